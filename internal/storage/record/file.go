// Package record implements the Record File Handle (spec §4.3): a
// slotted-page heap with bitmap-based fixed-size slot allocation.
package record

import (
	"encoding/binary"
	"sync"

	"github.com/SimonWaldherr/tinySQL/internal/storage/buffer"
	"github.com/SimonWaldherr/tinySQL/internal/storage/diskmgr"
	"github.com/SimonWaldherr/tinySQL/internal/storage/lockmgr"
	"github.com/SimonWaldherr/tinySQL/internal/storage/logx"
	"github.com/SimonWaldherr/tinySQL/internal/storage/txn"
)

// Ctx is the execution context every Record File Handle call requires
// (spec §6): the lock manager arbitrating concurrent access, and the
// transaction whose write-set records the call for rollback. log_mgr is an
// external collaborator (spec §1, out of scope); Log is this package's own
// diagnostic logger (SPEC_FULL.md §4.9) and is independent of it.
type Ctx struct {
	LockMgr *lockmgr.LockManager
	Txn     *txn.Transaction
	Log     logx.Logger
}

func (c *Ctx) logger() logx.Logger {
	if c == nil || c.Log == nil {
		return logx.Nop()
	}
	return c.Log
}

// File is an open heap file.
type File struct {
	mu sync.Mutex // serializes first_free_page_no / num_pages header updates

	pool   *buffer.BufferPool
	disk   *diskmgr.Manager
	fileID diskmgr.FileID

	recordSize        int
	numRecordsPerPage int
	bitmapSize        int
}

// Create formats a new heap file for fixed-size records of recordSize
// bytes.
func Create(pool *buffer.BufferPool, disk *diskmgr.Manager, recordSize int) (*File, error) {
	fileID, err := disk.CreateFile("tbl")
	if err != nil {
		return nil, err
	}
	numRecs, bitmapSize := layout(disk.PageSize(), recordSize)

	frame, pid, err := pool.New(fileID)
	if err != nil {
		return nil, err
	}
	diskmgr.PutHeader(frame.Buf, diskmgr.PageTypeHeapHeader, pid.Page)
	binary.LittleEndian.PutUint32(frame.Buf[fileHeaderRecordSizeOff:], uint32(recordSize))
	binary.LittleEndian.PutUint32(frame.Buf[fileHeaderRecsPerPageOff:], uint32(numRecs))
	binary.LittleEndian.PutUint32(frame.Buf[fileHeaderBitmapSizeOff:], uint32(bitmapSize))
	binary.LittleEndian.PutUint32(frame.Buf[fileHeaderNumPagesOff:], 1)
	binary.LittleEndian.PutUint32(frame.Buf[fileHeaderFirstFreeOff:], uint32(sentinelPageNo))
	pool.Unpin(pid, true)

	return &File{
		pool: pool, disk: disk, fileID: fileID,
		recordSize: recordSize, numRecordsPerPage: numRecs, bitmapSize: bitmapSize,
	}, nil
}

// Open reopens an existing heap file by its already-registered FileID,
// reading its layout back out of the header page.
func Open(pool *buffer.BufferPool, disk *diskmgr.Manager, fileID diskmgr.FileID) (*File, error) {
	hdrPID := diskmgr.PageID{File: fileID, Page: 0}
	frame, err := pool.Fetch(hdrPID)
	if err != nil {
		return nil, err
	}
	recordSize := int(binary.LittleEndian.Uint32(frame.Buf[fileHeaderRecordSizeOff:]))
	numRecs := int(binary.LittleEndian.Uint32(frame.Buf[fileHeaderRecsPerPageOff:]))
	bitmapSize := int(binary.LittleEndian.Uint32(frame.Buf[fileHeaderBitmapSizeOff:]))
	pool.Unpin(hdrPID, false)

	return &File{
		pool: pool, disk: disk, fileID: fileID,
		recordSize: recordSize, numRecordsPerPage: numRecs, bitmapSize: bitmapSize,
	}, nil
}

func (f *File) FileID() diskmgr.FileID { return f.fileID }
func (f *File) RecordSize() int        { return f.recordSize }

func (f *File) headerFirstFree() (int32, error) {
	pid := diskmgr.PageID{File: f.fileID, Page: 0}
	frame, err := f.pool.Fetch(pid)
	if err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(frame.Buf[fileHeaderFirstFreeOff:]))
	f.pool.Unpin(pid, false)
	return v, nil
}

func (f *File) setHeaderFirstFree(v int32) error {
	pid := diskmgr.PageID{File: f.fileID, Page: 0}
	frame, err := f.pool.Fetch(pid)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(frame.Buf[fileHeaderFirstFreeOff:], uint32(v))
	f.pool.Unpin(pid, true)
	return nil
}

func (f *File) bumpHeaderNumPages() error {
	pid := diskmgr.PageID{File: f.fileID, Page: 0}
	frame, err := f.pool.Fetch(pid)
	if err != nil {
		return err
	}
	n := binary.LittleEndian.Uint32(frame.Buf[fileHeaderNumPagesOff:])
	binary.LittleEndian.PutUint32(frame.Buf[fileHeaderNumPagesOff:], n+1)
	f.pool.Unpin(pid, true)
	return nil
}
