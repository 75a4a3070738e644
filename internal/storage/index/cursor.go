package index

import "github.com/SimonWaldherr/tinySQL/internal/storage/record"

// leafUpperBound returns the first index i in [0,numKey) with
// key[i] > key, or numKey if none — the leaf-level counterpart of
// upperBound, which starts its search at index 1 for internal-node
// descent.
func (t *BTree) leafUpperBound(buf []byte, numKey int, key []byte) int {
	lo, hi := 0, numKey
	for lo < hi {
		mid := (lo + hi) / 2
		if ixCompare(t.keyAt(buf, mid), key) > 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func (t *BTree) nextLeafOf(pageNo int32) (int32, error) {
	frame, err := t.fetchLatched(pageNo, true)
	if err != nil {
		return 0, err
	}
	next := nodeNextLeaf(frame.Buf)
	t.unlatchUnpin(held{pageNo, frame, true}, false)
	return next, nil
}

// LowerBound returns the Iid of the first entry >= key (spec §4.4
// lower_bound), or InvalidIid if the tree is empty or key is past every
// entry.
func (t *BTree) LowerBound(key []byte) (Iid, error) {
	root, err := t.rootPage()
	if err != nil {
		return InvalidIid, err
	}
	if root == sentinelPage {
		return InvalidIid, nil
	}
	path, err := t.findLeaf(root, key, modeFind)
	if err != nil {
		return InvalidIid, err
	}
	leaf := path[len(path)-1]
	numKey := nodeNumKey(leaf.frame.Buf)
	i := t.lowerBound(leaf.frame.Buf, numKey, key)
	pageNo := leaf.pageNo
	t.releaseHeld(path, false)

	if i == numKey {
		nextPN, err := t.nextLeafOf(pageNo)
		if err != nil {
			return InvalidIid, err
		}
		if nextPN == sentinelPage {
			return InvalidIid, nil
		}
		return Iid{PageNo: nextPN, SlotNo: 0}, nil
	}
	return Iid{PageNo: pageNo, SlotNo: int32(i)}, nil
}

// UpperBound returns the Iid of the first entry > key (spec §4.4
// upper_bound), or InvalidIid if none exists.
func (t *BTree) UpperBound(key []byte) (Iid, error) {
	root, err := t.rootPage()
	if err != nil {
		return InvalidIid, err
	}
	if root == sentinelPage {
		return InvalidIid, nil
	}
	path, err := t.findLeaf(root, key, modeFind)
	if err != nil {
		return InvalidIid, err
	}
	leaf := path[len(path)-1]
	numKey := nodeNumKey(leaf.frame.Buf)
	i := t.leafUpperBound(leaf.frame.Buf, numKey, key)
	pageNo := leaf.pageNo
	t.releaseHeld(path, false)

	if i == numKey {
		nextPN, err := t.nextLeafOf(pageNo)
		if err != nil {
			return InvalidIid, err
		}
		if nextPN == sentinelPage {
			return InvalidIid, nil
		}
		return Iid{PageNo: nextPN, SlotNo: 0}, nil
	}
	return Iid{PageNo: pageNo, SlotNo: int32(i)}, nil
}

// LeafBegin returns the Iid of the first entry in leaf order.
func (t *BTree) LeafBegin() (Iid, error) {
	fl, err := t.firstLeaf()
	if err != nil {
		return InvalidIid, err
	}
	if fl == sentinelPage {
		return InvalidIid, nil
	}
	return Iid{PageNo: fl, SlotNo: 0}, nil
}

// LeafEnd returns the one-past-the-end Iid of leaf order: the last leaf's
// own num_key as its slot_no, matching spec §4.4's half-open [begin,end)
// convention.
func (t *BTree) LeafEnd() (Iid, error) {
	ll, err := t.lastLeaf()
	if err != nil {
		return InvalidIid, err
	}
	if ll == sentinelPage {
		return InvalidIid, nil
	}
	frame, err := t.fetchLatched(ll, true)
	if err != nil {
		return InvalidIid, err
	}
	n := nodeNumKey(frame.Buf)
	t.unlatchUnpin(held{ll, frame, true}, false)
	return Iid{PageNo: ll, SlotNo: int32(n)}, nil
}

// GetRID returns the rid stored at iid.
func (t *BTree) GetRID(iid Iid) (record.RID, error) {
	frame, err := t.fetchLatched(iid.PageNo, true)
	if err != nil {
		return record.RID{}, err
	}
	numKey := nodeNumKey(frame.Buf)
	if iid.SlotNo < 0 || int(iid.SlotNo) >= numKey {
		t.unlatchUnpin(held{iid.PageNo, frame, true}, false)
		return record.RID{}, ErrEntryNotFound
	}
	rid := t.ridAt(frame.Buf, int(iid.SlotNo))
	t.unlatchUnpin(held{iid.PageNo, frame, true}, false)
	return rid, nil
}

// Cursor walks leaf-level entries in key order starting from some Iid,
// crossing leaf boundaries via next_leaf as it goes (spec §4.4's range
// scan over the leaf chain).
type Cursor struct {
	t    *BTree
	cur  Iid
	done bool
}

// Scan returns a Cursor that yields entries from start onward. A cursor
// built from an invalid start is immediately exhausted.
func (t *BTree) Scan(start Iid) *Cursor {
	return &Cursor{t: t, cur: start, done: !start.Valid()}
}

// Next returns the next (rid, iid) pair, or ok=false once the cursor is
// exhausted.
func (c *Cursor) Next() (record.RID, Iid, bool) {
	if c.done {
		return record.RID{}, InvalidIid, false
	}
	frame, err := c.t.fetchLatched(c.cur.PageNo, true)
	if err != nil {
		c.done = true
		return record.RID{}, InvalidIid, false
	}
	numKey := nodeNumKey(frame.Buf)
	if int(c.cur.SlotNo) >= numKey {
		next := nodeNextLeaf(frame.Buf)
		c.t.unlatchUnpin(held{c.cur.PageNo, frame, true}, false)
		if next == sentinelPage {
			c.done = true
			return record.RID{}, InvalidIid, false
		}
		c.cur = Iid{PageNo: next, SlotNo: 0}
		return c.Next()
	}
	rid := c.t.ridAt(frame.Buf, int(c.cur.SlotNo))
	iid := c.cur
	c.t.unlatchUnpin(held{c.cur.PageNo, frame, true}, false)
	c.cur = Iid{PageNo: c.cur.PageNo, SlotNo: c.cur.SlotNo + 1}
	return rid, iid, true
}
