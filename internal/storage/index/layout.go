package index

import "github.com/SimonWaldherr/tinySQL/internal/storage/diskmgr"

// B+Tree file header page (page 0) layout (spec §3 "B+-tree file header":
// col_type, col_len, btree_order, root_page, first_leaf, last_leaf, num_pages).
const (
	fhColTypeOff   = diskmgr.PageHeaderSize + 0
	fhColLenOff    = diskmgr.PageHeaderSize + 4
	fhOrderOff     = diskmgr.PageHeaderSize + 8
	fhRootPageOff  = diskmgr.PageHeaderSize + 12
	fhFirstLeafOff = diskmgr.PageHeaderSize + 16
	fhLastLeafOff  = diskmgr.PageHeaderSize + 20
	fhNumPagesOff  = diskmgr.PageHeaderSize + 24
)

// B+Tree node page header layout (spec §3 "B+-tree node page": is_leaf,
// num_key, parent_page_no, prev_leaf, next_leaf, next_free_page_no),
// followed by max_n fixed-width keys then max_n rid slots.
const (
	ndIsLeafOff   = diskmgr.PageHeaderSize + 0
	ndNumKeyOff   = diskmgr.PageHeaderSize + 4
	ndParentOff   = diskmgr.PageHeaderSize + 8
	ndPrevLeafOff = diskmgr.PageHeaderSize + 12
	ndNextLeafOff = diskmgr.PageHeaderSize + 16
	ndNextFreeOff = diskmgr.PageHeaderSize + 20
	ndHeaderSize  = 24

	ridSize = 8 // int32 page_no + int32 slot_no
)

const sentinelPage int32 = -1

// nodeLayout computes max_n (btree_order), the largest number of key/rid
// pairs a node page can hold, given pageSize and colLen.
func nodeLayout(pageSize, colLen int) int {
	available := pageSize - diskmgr.PageHeaderSize - ndHeaderSize
	maxN := available / (colLen + ridSize)
	if maxN < 4 {
		maxN = 4
	}
	return maxN
}

func keysOffset() int { return diskmgr.PageHeaderSize + ndHeaderSize }

func ridsOffset(maxN, colLen int) int { return keysOffset() + maxN*colLen }
