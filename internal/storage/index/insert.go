package index

import (
	"github.com/SimonWaldherr/tinySQL/internal/storage/record"
	"github.com/SimonWaldherr/tinySQL/internal/storage/txn"
)

// InsertEntry inserts (key, rid) into the tree, splitting nodes up the
// path as needed (spec §4.4 InsertEntry/InsertIntoParent). Returns false
// without mutating anything if key is already present — this tree never
// stores duplicate keys. ctx's Txn, if set, records an undo that deletes
// the entry again on rollback.
func (t *BTree) InsertEntry(key []byte, rid record.RID, ctx *record.Ctx) (bool, error) {
	t.mu.Lock()
	root, err := t.rootPage()
	if err != nil {
		t.mu.Unlock()
		return false, err
	}
	if root == sentinelPage {
		pageNo, frame, err := t.allocNode(true)
		if err != nil {
			t.mu.Unlock()
			return false, err
		}
		setNodeNumKey(frame.Buf, 1)
		t.setKeyAt(frame.Buf, 0, key)
		t.setRidAt(frame.Buf, 0, rid)
		t.unlatchUnpin(held{pageNo, frame, false}, true)

		if err := t.setRootPage(pageNo); err != nil {
			t.mu.Unlock()
			return false, err
		}
		if err := t.setFirstLeaf(pageNo); err != nil {
			t.mu.Unlock()
			return false, err
		}
		if err := t.setLastLeaf(pageNo); err != nil {
			t.mu.Unlock()
			return false, err
		}
		t.mu.Unlock()
		t.recordInsertUndo(ctx, key)
		return true, nil
	}
	t.mu.Unlock()

	path, err := t.findLeaf(root, key, modeInsert)
	if err != nil {
		return false, err
	}
	leaf := path[len(path)-1]
	numKey := nodeNumKey(leaf.frame.Buf)
	i := t.lowerBound(leaf.frame.Buf, numKey, key)
	if i < numKey && ixCompare(t.keyAt(leaf.frame.Buf, i), key) == 0 {
		t.releaseHeld(path, false)
		return false, nil
	}

	t.insertPair(leaf.frame.Buf, numKey, i, key, rid)
	setNodeNumKey(leaf.frame.Buf, numKey+1)

	if numKey+1 < t.maxN {
		t.releaseHeld(path, true)
		t.recordInsertUndo(ctx, key)
		return true, nil
	}

	rightPN, promoted, err := t.splitLeafNode(leaf.pageNo, leaf.frame.Buf)
	if err != nil {
		t.releaseHeld(path, true)
		return false, err
	}
	oldKey0 := append([]byte(nil), t.keyAt(leaf.frame.Buf, 0)...)
	ancestors := path[:len(path)-1]
	t.unlatchUnpin(leaf, true)
	if err := t.insertIntoParent(ancestors, leaf.pageNo, rightPN, promoted, oldKey0); err != nil {
		return false, err
	}
	t.recordInsertUndo(ctx, key)
	return true, nil
}

func (t *BTree) recordInsertUndo(ctx *record.Ctx, key []byte) {
	if ctx == nil || ctx.Txn == nil {
		return
	}
	k := append([]byte(nil), key...)
	ctx.Txn.RecordWrite(txn.ActionInsert, func() error {
		_, err := t.DeleteEntry(k, nil)
		return err
	})
}

// splitLeafNode splits a full leaf node (exactly maxN entries) into left
// (leftBuf, kept in place) and a freshly allocated right sibling, spliced
// into the leaf chain. Returns the right node's page number and its first
// key, the value to promote into the parent.
func (t *BTree) splitLeafNode(leftPN int32, leftBuf []byte) (int32, []byte, error) {
	numKey := nodeNumKey(leftBuf)
	mid := t.maxN / 2

	rightPN, rightFrame, err := t.allocNode(true)
	if err != nil {
		return 0, nil, err
	}
	rightCount := numKey - mid
	for j := 0; j < rightCount; j++ {
		t.setKeyAt(rightFrame.Buf, j, t.keyAt(leftBuf, mid+j))
		t.setRidAt(rightFrame.Buf, j, t.ridAt(leftBuf, mid+j))
	}
	setNodeNumKey(rightFrame.Buf, rightCount)
	setNodeNumKey(leftBuf, mid)
	setNodeParent(rightFrame.Buf, nodeParent(leftBuf))

	oldNext := nodeNextLeaf(leftBuf)
	setNodeNextLeaf(rightFrame.Buf, oldNext)
	setNodePrevLeaf(rightFrame.Buf, leftPN)
	setNodeNextLeaf(leftBuf, rightPN)

	if oldNext != sentinelPage {
		nextFrame, err := t.fetchLatched(oldNext, false)
		if err != nil {
			t.unlatchUnpin(held{rightPN, rightFrame, false}, true)
			return 0, nil, err
		}
		setNodePrevLeaf(nextFrame.Buf, rightPN)
		t.unlatchUnpin(held{oldNext, nextFrame, false}, true)
	} else {
		t.mu.Lock()
		err := t.setLastLeaf(rightPN)
		t.mu.Unlock()
		if err != nil {
			t.unlatchUnpin(held{rightPN, rightFrame, false}, true)
			return 0, nil, err
		}
	}

	promoted := append([]byte(nil), t.keyAt(rightFrame.Buf, 0)...)
	t.unlatchUnpin(held{rightPN, rightFrame, false}, true)
	return rightPN, promoted, nil
}

// splitInternalNode splits a full internal node the same way, additionally
// fixing the parent pointer of every child that moved to the right half.
func (t *BTree) splitInternalNode(leftPN int32, leftBuf []byte) (int32, []byte, error) {
	numKey := nodeNumKey(leftBuf)
	mid := t.maxN / 2

	rightPN, rightFrame, err := t.allocNode(false)
	if err != nil {
		return 0, nil, err
	}
	rightCount := numKey - mid
	for j := 0; j < rightCount; j++ {
		t.setKeyAt(rightFrame.Buf, j, t.keyAt(leftBuf, mid+j))
		t.setRidAt(rightFrame.Buf, j, t.ridAt(leftBuf, mid+j))
	}
	setNodeNumKey(rightFrame.Buf, rightCount)
	setNodeNumKey(leftBuf, mid)
	setNodeParent(rightFrame.Buf, nodeParent(leftBuf))

	for j := 0; j < rightCount; j++ {
		if err := t.reparentChild(t.childPageAt(rightFrame.Buf, j), rightPN); err != nil {
			t.unlatchUnpin(held{rightPN, rightFrame, false}, true)
			return 0, nil, err
		}
	}

	promoted := append([]byte(nil), t.keyAt(rightFrame.Buf, 0)...)
	t.unlatchUnpin(held{rightPN, rightFrame, false}, true)
	return rightPN, promoted, nil
}

func (t *BTree) reparentChild(childPN, newParent int32) error {
	frame, err := t.fetchLatched(childPN, false)
	if err != nil {
		return err
	}
	setNodeParent(frame.Buf, newParent)
	t.unlatchUnpin(held{childPN, frame, false}, true)
	return nil
}

// insertIntoParent installs (rightPN, promotedKey) as the entry following
// leftPN in leftPN's parent, splitting further up ancestors as needed
// (spec §4.4 InsertIntoParent). ancestors is whatever find_leaf(modeInsert)
// left latched above leftPN's own level — empty if leftPN was root. oldKey0
// is leftPN's own key[0] as of the split that produced it (unchanged by the
// split itself, since the left half keeps its original entries in place);
// it seeds a freshly created root's first entry when ancestors is empty.
func (t *BTree) insertIntoParent(ancestors []held, leftPN, rightPN int32, promotedKey, oldKey0 []byte) error {
	if len(ancestors) == 0 {
		rootPN, rootFrame, err := t.allocNode(false)
		if err != nil {
			return err
		}
		setNodeNumKey(rootFrame.Buf, 2)
		t.setKeyAt(rootFrame.Buf, 0, oldKey0)
		t.setChildPageAt(rootFrame.Buf, 0, leftPN)
		t.setKeyAt(rootFrame.Buf, 1, promotedKey)
		t.setChildPageAt(rootFrame.Buf, 1, rightPN)
		t.unlatchUnpin(held{rootPN, rootFrame, false}, true)

		if err := t.reparentChild(leftPN, rootPN); err != nil {
			return err
		}
		if err := t.reparentChild(rightPN, rootPN); err != nil {
			return err
		}
		t.mu.Lock()
		err = t.setRootPage(rootPN)
		t.mu.Unlock()
		return err
	}

	parent := ancestors[len(ancestors)-1]
	numKey := nodeNumKey(parent.frame.Buf)
	i := t.upperBound(parent.frame.Buf, numKey, promotedKey)
	t.insertPair(parent.frame.Buf, numKey, i, promotedKey, record.RID{PageNo: rightPN})
	setNodeNumKey(parent.frame.Buf, numKey+1)

	if numKey+1 < t.maxN {
		t.unlatchUnpin(parent, true)
		return nil
	}

	rightOfParent, promoted, err := t.splitInternalNode(parent.pageNo, parent.frame.Buf)
	if err != nil {
		t.unlatchUnpin(parent, true)
		return err
	}
	parentOldKey0 := append([]byte(nil), t.keyAt(parent.frame.Buf, 0)...)
	t.unlatchUnpin(parent, true)
	return t.insertIntoParent(ancestors[:len(ancestors)-1], parent.pageNo, rightOfParent, promoted, parentOldKey0)
}
