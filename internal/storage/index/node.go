package index

import (
	"encoding/binary"

	"github.com/SimonWaldherr/tinySQL/internal/storage/record"
)

func nodeIsLeaf(buf []byte) bool { return binary.LittleEndian.Uint32(buf[ndIsLeafOff:]) != 0 }
func setNodeIsLeaf(buf []byte, v bool) {
	var x uint32
	if v {
		x = 1
	}
	binary.LittleEndian.PutUint32(buf[ndIsLeafOff:], x)
}

func nodeNumKey(buf []byte) int { return int(binary.LittleEndian.Uint32(buf[ndNumKeyOff:])) }
func setNodeNumKey(buf []byte, n int) {
	binary.LittleEndian.PutUint32(buf[ndNumKeyOff:], uint32(n))
}

func nodeParent(buf []byte) int32 { return int32(binary.LittleEndian.Uint32(buf[ndParentOff:])) }
func setNodeParent(buf []byte, v int32) {
	binary.LittleEndian.PutUint32(buf[ndParentOff:], uint32(v))
}

func nodePrevLeaf(buf []byte) int32 { return int32(binary.LittleEndian.Uint32(buf[ndPrevLeafOff:])) }
func setNodePrevLeaf(buf []byte, v int32) {
	binary.LittleEndian.PutUint32(buf[ndPrevLeafOff:], uint32(v))
}

func nodeNextLeaf(buf []byte) int32 { return int32(binary.LittleEndian.Uint32(buf[ndNextLeafOff:])) }
func setNodeNextLeaf(buf []byte, v int32) {
	binary.LittleEndian.PutUint32(buf[ndNextLeafOff:], uint32(v))
}

func (t *BTree) keyAt(buf []byte, i int) []byte {
	off := keysOffset() + i*t.colLen
	return buf[off : off+t.colLen]
}

func (t *BTree) setKeyAt(buf []byte, i int, key []byte) {
	off := keysOffset() + i*t.colLen
	copy(buf[off:off+t.colLen], key)
}

func (t *BTree) ridAt(buf []byte, i int) record.RID {
	off := ridsOffset(t.maxN, t.colLen) + i*ridSize
	return record.RID{
		PageNo: int32(binary.LittleEndian.Uint32(buf[off:])),
		SlotNo: int32(binary.LittleEndian.Uint32(buf[off+4:])),
	}
}

func (t *BTree) setRidAt(buf []byte, i int, rid record.RID) {
	off := ridsOffset(t.maxN, t.colLen) + i*ridSize
	binary.LittleEndian.PutUint32(buf[off:], uint32(rid.PageNo))
	binary.LittleEndian.PutUint32(buf[off+4:], uint32(rid.SlotNo))
}

// childPageAt reads the i-th internal entry's rid.page_no as a child page
// number (spec §3: "internal rids' page_no identifies the child page").
func (t *BTree) childPageAt(buf []byte, i int) int32 { return t.ridAt(buf, i).PageNo }

func (t *BTree) setChildPageAt(buf []byte, i int, pageNo int32) {
	t.setRidAt(buf, i, record.RID{PageNo: pageNo})
}

// lowerBound returns the first index i in [0,numKey) with key[i] >= key,
// or numKey if none (spec §4.4).
func (t *BTree) lowerBound(buf []byte, numKey int, key []byte) int {
	lo, hi := 0, numKey
	for lo < hi {
		mid := (lo + hi) / 2
		if ixCompare(t.keyAt(buf, mid), key) >= 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// upperBound returns the first index i >= 1 with key[i] > key, or numKey
// if none.
func (t *BTree) upperBound(buf []byte, numKey int, key []byte) int {
	lo, hi := 1, numKey
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

// internalLookup returns the child page_no to descend into for key,
// exploiting the "key[i] = min of subtree i" convention.
func (t *BTree) internalLookup(buf []byte, numKey int, key []byte) int32 {
	i := t.upperBound(buf, numKey, key) - 1
	if i < 0 {
		i = 0
	}
	return t.childPageAt(buf, i)
}

// leafLookup returns the rid stored for key in a leaf, if present.
func (t *BTree) leafLookup(buf []byte, numKey int, key []byte) (record.RID, bool) {
	i := t.lowerBound(buf, numKey, key)
	if i < numKey && ixCompare(t.keyAt(buf, i), key) == 0 {
		return t.ridAt(buf, i), true
	}
	return record.RID{}, false
}

// insertPair shifts entries [i,numKey) right by one slot and writes
// (key,rid) at i. Caller must ensure numKey < maxN and update num_key.
func (t *BTree) insertPair(buf []byte, numKey, i int, key []byte, rid record.RID) {
	for j := numKey; j > i; j-- {
		t.setKeyAt(buf, j, t.keyAt(buf, j-1))
		t.setRidAt(buf, j, t.ridAt(buf, j-1))
	}
	t.setKeyAt(buf, i, key)
	t.setRidAt(buf, i, rid)
}

// erasePair shifts entries (i,numKey) left by one slot, removing index i.
// Caller must update num_key.
func (t *BTree) erasePair(buf []byte, numKey, i int) {
	for j := i; j < numKey-1; j++ {
		t.setKeyAt(buf, j, t.keyAt(buf, j+1))
		t.setRidAt(buf, j, t.ridAt(buf, j+1))
	}
}
