package index

import (
	"github.com/SimonWaldherr/tinySQL/internal/storage/record"
)

// GetValue appends key's rid to out (if present) after a shared-latch
// find_leaf descent (spec §4.4 GetValue). Duplicate keys are forbidden so
// out gains at most one entry.
func (t *BTree) GetValue(key []byte) ([]record.RID, error) {
	root, err := t.rootPage()
	if err != nil {
		return nil, err
	}
	if root == sentinelPage {
		return nil, nil
	}
	path, err := t.findLeaf(root, key, modeFind)
	if err != nil {
		return nil, err
	}
	leaf := path[len(path)-1]
	numKey := nodeNumKey(leaf.frame.Buf)
	var out []record.RID
	if rid, ok := t.leafLookup(leaf.frame.Buf, numKey, key); ok {
		out = append(out, rid)
	}
	t.releaseHeld(path, false)
	return out, nil
}

// maintainParentAlongPath re-synchronizes separator keys along path after
// its leaf's key[0] may have changed (spec §4.4 maintain_parent): walking
// from the leaf up toward the root, it compares each ancestor's stored
// separator for its path child against that child's current key[0],
// overwrites it when they differ, and stops at the first ancestor whose
// separator already matches (or at the root). Every node in path must
// already be exclusively latched by the caller; this only mutates
// in-memory buffers, it never latches, unlatches, or pins anything.
func (t *BTree) maintainParentAlongPath(path []held) {
	for k := len(path) - 1; k > 0; k-- {
		child := path[k]
		parent := path[k-1]
		childKey0 := t.keyAt(child.frame.Buf, 0)

		pNumKey := nodeNumKey(parent.frame.Buf)
		idx := -1
		for j := 0; j < pNumKey; j++ {
			if t.childPageAt(parent.frame.Buf, j) == child.pageNo {
				idx = j
				break
			}
		}
		if idx < 0 {
			return
		}
		if ixCompare(t.keyAt(parent.frame.Buf, idx), childKey0) == 0 {
			return
		}
		t.setKeyAt(parent.frame.Buf, idx, childKey0)
	}
}
