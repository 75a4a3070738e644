package record

import "github.com/SimonWaldherr/tinySQL/internal/storage/diskmgr"

// Cursor iterates occupied slots in ascending (page_no, slot_no) order
// across every page of a heap file (spec §4.3). It takes no locks of its
// own — callers needing transactional isolation should pair it with
// explicit Get calls through a Ctx.
type Cursor struct {
	f        *File
	pageNo   int32
	numPages int32
	slotNo   int32
	done     bool
}

// Scan opens a cursor positioned before the first record.
func (f *File) Scan() (*Cursor, error) {
	pid := diskmgr.PageID{File: f.fileID, Page: 0}
	frame, err := f.pool.Fetch(pid)
	if err != nil {
		return nil, err
	}
	numPages := int32(0)
	if n, err := f.disk.NumPages(f.fileID); err == nil {
		numPages = n
	}
	f.pool.Unpin(pid, false)

	c := &Cursor{f: f, pageNo: 1, numPages: numPages, slotNo: 0}
	c.advanceToNextSet()
	return c, nil
}

// advanceToNextSet moves the cursor to the next set bit at or after its
// current (pageNo, slotNo), possibly stepping across page boundaries.
func (c *Cursor) advanceToNextSet() {
	for c.pageNo < c.numPages {
		pid := diskmgr.PageID{File: c.f.fileID, Page: c.pageNo}
		frame, err := c.f.pool.Fetch(pid)
		if err != nil {
			c.done = true
			return
		}
		bs := loadBitmap(frame.Buf, c.f.bitmapSize)
		next, ok := bs.NextSet(uint(c.slotNo))
		c.f.pool.Unpin(pid, false)
		if ok && int(next) < c.f.numRecordsPerPage {
			c.slotNo = int32(next)
			return
		}
		c.pageNo++
		c.slotNo = 0
	}
	c.done = true
}

// Next returns the next occupied rid in ascending order, or InvalidRID
// once the scan is exhausted.
func (c *Cursor) Next() RID {
	if c.done {
		return InvalidRID
	}
	rid := RID{PageNo: c.pageNo, SlotNo: c.slotNo}
	c.slotNo++
	c.advanceToNextSet()
	return rid
}
