package index

import (
	"github.com/SimonWaldherr/tinySQL/internal/storage/buffer"
	"github.com/SimonWaldherr/tinySQL/internal/storage/diskmgr"
)

// crabMode selects find_leaf's latch discipline (spec §4.4/§5).
type crabMode uint8

const (
	modeFind crabMode = iota
	modeInsert
	modeDelete
)

// held is one page still latched after find_leaf returns; path is ordered
// root-most-remaining to leaf.
type held struct {
	pageNo int32
	frame  *buffer.Frame
	shared bool
}

func (t *BTree) fetchLatched(pageNo int32, shared bool) (*buffer.Frame, error) {
	pid := diskmgr.PageID{File: t.fileID, Page: pageNo}
	frame, err := t.pool.Fetch(pid)
	if err != nil {
		return nil, err
	}
	if shared {
		frame.Latch.RLock()
	} else {
		frame.Latch.Lock()
	}
	return frame, nil
}

func (t *BTree) unlatchUnpin(h held, dirty bool) {
	if h.shared {
		h.frame.Latch.RUnlock()
	} else {
		h.frame.Latch.Unlock()
	}
	t.pool.Unpin(diskmgr.PageID{File: t.fileID, Page: h.pageNo}, dirty)
}

// releaseHeld unlatches and unpins every entry in path, leaf-first.
func (t *BTree) releaseHeld(path []held, dirty bool) {
	for i := len(path) - 1; i >= 0; i-- {
		t.unlatchUnpin(path[i], dirty)
	}
}

// findLeaf descends from root_page to the leaf that would contain key,
// applying the mode-specific crabbing discipline (spec §4.4 find_leaf):
//
//   - modeFind: shared latches, coupled (child latched before parent released).
//     Returns a single-entry path: just the leaf, still RLocked.
//   - modeInsert: exclusive latches; whenever the current node is "safe"
//     (num_key+1 < max_n), every previously-held ancestor is released.
//     Returns whatever remains latched down to the leaf.
//   - modeDelete: exclusive latches held the entire way. Returns the full
//     root-to-leaf path.
func (t *BTree) findLeaf(rootPN int32, key []byte, mode crabMode) ([]held, error) {
	switch mode {
	case modeFind:
		cur := rootPN
		frame, err := t.fetchLatched(cur, true)
		if err != nil {
			return nil, err
		}
		for !nodeIsLeaf(frame.Buf) {
			numKey := nodeNumKey(frame.Buf)
			child := t.internalLookup(frame.Buf, numKey, key)
			childFrame, err := t.fetchLatched(child, true)
			if err != nil {
				t.unlatchUnpin(held{cur, frame, true}, false)
				return nil, err
			}
			t.unlatchUnpin(held{cur, frame, true}, false)
			cur, frame = child, childFrame
		}
		return []held{{cur, frame, true}}, nil

	case modeInsert:
		var path []held
		cur := rootPN
		for {
			frame, err := t.fetchLatched(cur, false)
			if err != nil {
				t.releaseHeld(path, false)
				return nil, err
			}
			path = append(path, held{cur, frame, false})
			if nodeNumKey(frame.Buf)+1 < t.maxN {
				t.releaseHeld(path[:len(path)-1], false)
				path = path[len(path)-1:]
			}
			if nodeIsLeaf(frame.Buf) {
				return path, nil
			}
			numKey := nodeNumKey(frame.Buf)
			cur = t.internalLookup(frame.Buf, numKey, key)
		}

	default: // modeDelete
		var path []held
		cur := rootPN
		for {
			frame, err := t.fetchLatched(cur, false)
			if err != nil {
				t.releaseHeld(path, false)
				return nil, err
			}
			path = append(path, held{cur, frame, false})
			if nodeIsLeaf(frame.Buf) {
				return path, nil
			}
			numKey := nodeNumKey(frame.Buf)
			cur = t.internalLookup(frame.Buf, numKey, key)
		}
	}
}
