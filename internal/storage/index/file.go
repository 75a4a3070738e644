package index

import (
	"encoding/binary"
	"sync"

	"github.com/SimonWaldherr/tinySQL/internal/storage/buffer"
	"github.com/SimonWaldherr/tinySQL/internal/storage/diskmgr"
)

// BTree is an open B+Tree index file.
type BTree struct {
	mu sync.Mutex // serializes root_page/first_leaf/last_leaf header updates

	pool   *buffer.BufferPool
	disk   *diskmgr.Manager
	fileID diskmgr.FileID

	colType ColType
	colLen  int
	maxN    int
}

// Create formats a new, empty B+Tree index file keyed by a fixed-width
// column of the given type and length.
func Create(pool *buffer.BufferPool, disk *diskmgr.Manager, colType ColType, colLen int) (*BTree, error) {
	fileID, err := disk.CreateFile("idx")
	if err != nil {
		return nil, err
	}
	maxN := nodeLayout(disk.PageSize(), colLen)

	frame, pid, err := pool.New(fileID)
	if err != nil {
		return nil, err
	}
	diskmgr.PutHeader(frame.Buf, diskmgr.PageTypeBTreeHeader, pid.Page)
	binary.LittleEndian.PutUint32(frame.Buf[fhColTypeOff:], uint32(colType))
	binary.LittleEndian.PutUint32(frame.Buf[fhColLenOff:], uint32(colLen))
	binary.LittleEndian.PutUint32(frame.Buf[fhOrderOff:], uint32(maxN))
	binary.LittleEndian.PutUint32(frame.Buf[fhRootPageOff:], uint32(sentinelPage))
	binary.LittleEndian.PutUint32(frame.Buf[fhFirstLeafOff:], uint32(sentinelPage))
	binary.LittleEndian.PutUint32(frame.Buf[fhLastLeafOff:], uint32(sentinelPage))
	binary.LittleEndian.PutUint32(frame.Buf[fhNumPagesOff:], 1)
	pool.Unpin(pid, true)

	return &BTree{pool: pool, disk: disk, fileID: fileID, colType: colType, colLen: colLen, maxN: maxN}, nil
}

// Open reopens an existing B+Tree index file.
func Open(pool *buffer.BufferPool, disk *diskmgr.Manager, fileID diskmgr.FileID) (*BTree, error) {
	pid := diskmgr.PageID{File: fileID, Page: 0}
	frame, err := pool.Fetch(pid)
	if err != nil {
		return nil, err
	}
	colType := ColType(binary.LittleEndian.Uint32(frame.Buf[fhColTypeOff:]))
	colLen := int(binary.LittleEndian.Uint32(frame.Buf[fhColLenOff:]))
	maxN := int(binary.LittleEndian.Uint32(frame.Buf[fhOrderOff:]))
	pool.Unpin(pid, false)

	return &BTree{pool: pool, disk: disk, fileID: fileID, colType: colType, colLen: colLen, maxN: maxN}, nil
}

func (t *BTree) FileID() diskmgr.FileID { return t.fileID }
func (t *BTree) MaxN() int              { return t.maxN }
func (t *BTree) ColLen() int            { return t.colLen }

func (t *BTree) headerField(off int) (int32, error) {
	pid := diskmgr.PageID{File: t.fileID, Page: 0}
	frame, err := t.pool.Fetch(pid)
	if err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(frame.Buf[off:]))
	t.pool.Unpin(pid, false)
	return v, nil
}

func (t *BTree) setHeaderField(off int, v int32) error {
	pid := diskmgr.PageID{File: t.fileID, Page: 0}
	frame, err := t.pool.Fetch(pid)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(frame.Buf[off:], uint32(v))
	t.pool.Unpin(pid, true)
	return nil
}

func (t *BTree) rootPage() (int32, error)   { return t.headerField(fhRootPageOff) }
func (t *BTree) setRootPage(v int32) error  { return t.setHeaderField(fhRootPageOff, v) }
func (t *BTree) firstLeaf() (int32, error)  { return t.headerField(fhFirstLeafOff) }
func (t *BTree) setFirstLeaf(v int32) error { return t.setHeaderField(fhFirstLeafOff, v) }
func (t *BTree) lastLeaf() (int32, error)   { return t.headerField(fhLastLeafOff) }
func (t *BTree) setLastLeaf(v int32) error  { return t.setHeaderField(fhLastLeafOff, v) }

// allocNode allocates and zero-initializes a fresh node page, pinned and
// returned exclusively latched; the caller must unlatch+unpin it.
func (t *BTree) allocNode(isLeaf bool) (int32, *buffer.Frame, error) {
	frame, pid, err := t.pool.New(t.fileID)
	if err != nil {
		return 0, nil, err
	}
	diskmgr.PutHeader(frame.Buf, diskmgr.PageTypeBTreeNode, pid.Page)
	setNodeIsLeaf(frame.Buf, isLeaf)
	setNodeNumKey(frame.Buf, 0)
	setNodeParent(frame.Buf, sentinelPage)
	setNodePrevLeaf(frame.Buf, sentinelPage)
	setNodeNextLeaf(frame.Buf, sentinelPage)
	frame.Latch.Lock()
	return pid.Page, frame, nil
}
