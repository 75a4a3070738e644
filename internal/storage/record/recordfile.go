package record

import (
	"fmt"

	"github.com/SimonWaldherr/tinySQL/internal/storage/diskmgr"
	"github.com/SimonWaldherr/tinySQL/internal/storage/lockmgr"
	"github.com/SimonWaldherr/tinySQL/internal/storage/txn"
)

func toLockRID(r RID) lockmgr.RID { return lockmgr.RID{PageNo: r.PageNo, SlotNo: r.SlotNo} }

// acquirePageForInsertLocked returns the page_no Insert should target:
// file.first_free_page_no if one exists, otherwise a freshly allocated
// page threaded onto the head of the free-list (spec §4.3). Callers must
// hold f.mu.
func (f *File) acquirePageForInsertLocked() (int32, error) {
	firstFree, err := f.headerFirstFree()
	if err != nil {
		return 0, err
	}
	if firstFree != sentinelPageNo {
		return firstFree, nil
	}

	frame, pid, err := f.pool.New(f.fileID)
	if err != nil {
		return 0, err
	}
	diskmgr.PutHeader(frame.Buf, diskmgr.PageTypeHeapData, pid.Page)
	setPageNumRecords(frame.Buf, 0)
	setPageNextFree(frame.Buf, firstFree)
	f.pool.Unpin(pid, true)

	if err := f.setHeaderFirstFree(pid.Page); err != nil {
		return 0, err
	}
	if err := f.bumpHeaderNumPages(); err != nil {
		return 0, err
	}
	return pid.Page, nil
}

// Insert writes buf into the first free slot of a free-list page (or a
// freshly allocated one), returning its rid.
//
// Per spec §9's race-window fix, the page is fetched and latched, the
// slot is chosen under that latch, and only then is the record X-lock
// acquired on the now-known rid — not predicted ahead of the latch.
func (f *File) Insert(buf []byte, ctx *Ctx) (RID, error) {
	if len(buf) != f.recordSize {
		return InvalidRID, ErrSizeMismatch
	}

	f.mu.Lock()
	pageNo, err := f.acquirePageForInsertLocked()
	if err != nil {
		f.mu.Unlock()
		return InvalidRID, err
	}

	pid := diskmgr.PageID{File: f.fileID, Page: pageNo}
	frame, err := f.pool.Fetch(pid)
	if err != nil {
		f.mu.Unlock()
		return InvalidRID, err
	}
	frame.Latch.Lock()

	bs := loadBitmap(frame.Buf, f.bitmapSize)
	slotNo, ok := bs.NextClear(0)
	if !ok || int(slotNo) >= f.numRecordsPerPage {
		frame.Latch.Unlock()
		f.pool.Unpin(pid, false)
		f.mu.Unlock()
		return InvalidRID, fmt.Errorf("record: page %d has no free slot despite free-list membership", pageNo)
	}
	rid := RID{PageNo: pageNo, SlotNo: int32(slotNo)}

	if err := ctx.LockMgr.LockXRecord(ctx.Txn, uint32(f.fileID), toLockRID(rid)); err != nil {
		frame.Latch.Unlock()
		f.pool.Unpin(pid, false)
		f.mu.Unlock()
		return InvalidRID, err
	}

	bs.Set(slotNo)
	storeBitmap(frame.Buf, f.bitmapSize, bs)
	off := slotOffset(f.bitmapSize, f.recordSize, int(slotNo))
	copy(frame.Buf[off:off+f.recordSize], buf)
	numRecords := pageNumRecords(frame.Buf) + 1
	setPageNumRecords(frame.Buf, numRecords)
	becameFull := int(numRecords) == f.numRecordsPerPage
	next := pageNextFree(frame.Buf)

	frame.Latch.Unlock()
	f.pool.Unpin(pid, true)

	if becameFull {
		if err := f.setHeaderFirstFree(next); err != nil {
			f.mu.Unlock()
			return InvalidRID, err
		}
	}
	f.mu.Unlock()

	ctx.Txn.RecordWrite(txn.ActionInsert, func() error { return f.rawDelete(rid) })
	ctx.logger().Debug("record insert", "file", f.fileID, "rid", fmt.Sprintf("(%d,%d)", rid.PageNo, rid.SlotNo))
	return rid, nil
}

// Get returns a copy of rid's record bytes after acquiring a record S-lock.
func (f *File) Get(rid RID, ctx *Ctx) ([]byte, error) {
	if err := ctx.LockMgr.LockSRecord(ctx.Txn, uint32(f.fileID), toLockRID(rid)); err != nil {
		return nil, err
	}
	pid := diskmgr.PageID{File: f.fileID, Page: rid.PageNo}
	frame, err := f.pool.Fetch(pid)
	if err != nil {
		return nil, err
	}
	frame.Latch.RLock()

	bs := loadBitmap(frame.Buf, f.bitmapSize)
	if !bs.Test(uint(rid.SlotNo)) {
		frame.Latch.RUnlock()
		f.pool.Unpin(pid, false)
		return nil, ErrRecordNotFound
	}
	off := slotOffset(f.bitmapSize, f.recordSize, int(rid.SlotNo))
	out := make([]byte, f.recordSize)
	copy(out, frame.Buf[off:off+f.recordSize])

	frame.Latch.RUnlock()
	f.pool.Unpin(pid, false)
	return out, nil
}

// Update overwrites rid's record bytes after acquiring a record X-lock.
func (f *File) Update(rid RID, buf []byte, ctx *Ctx) error {
	if len(buf) != f.recordSize {
		return ErrSizeMismatch
	}
	if err := ctx.LockMgr.LockXRecord(ctx.Txn, uint32(f.fileID), toLockRID(rid)); err != nil {
		return err
	}

	preImage, err := f.overwriteSlot(rid, buf)
	if err != nil {
		return err
	}
	ctx.Txn.RecordWrite(txn.ActionUpdate, func() error { return f.rawWrite(rid, preImage) })
	ctx.logger().Debug("record update", "file", f.fileID, "rid", fmt.Sprintf("(%d,%d)", rid.PageNo, rid.SlotNo))
	return nil
}

// Delete clears rid's bit after acquiring a record X-lock, re-linking the
// page at the free-list head if it was previously full.
func (f *File) Delete(rid RID, ctx *Ctx) error {
	if err := ctx.LockMgr.LockXRecord(ctx.Txn, uint32(f.fileID), toLockRID(rid)); err != nil {
		return err
	}
	preImage, err := f.clearSlot(rid)
	if err != nil {
		return err
	}
	ctx.Txn.RecordWrite(txn.ActionDelete, func() error { return f.rawInsertAt(rid, preImage) })
	ctx.logger().Debug("record delete", "file", f.fileID, "rid", fmt.Sprintf("(%d,%d)", rid.PageNo, rid.SlotNo))
	return nil
}

// overwriteSlot replaces rid's slot bytes without touching its bitmap bit,
// returning the pre-image. Used by Update and, via rawWrite, by Update's
// rollback.
func (f *File) overwriteSlot(rid RID, buf []byte) ([]byte, error) {
	pid := diskmgr.PageID{File: f.fileID, Page: rid.PageNo}
	frame, err := f.pool.Fetch(pid)
	if err != nil {
		return nil, err
	}
	frame.Latch.Lock()

	bs := loadBitmap(frame.Buf, f.bitmapSize)
	if !bs.Test(uint(rid.SlotNo)) {
		frame.Latch.Unlock()
		f.pool.Unpin(pid, false)
		return nil, ErrRecordNotFound
	}
	off := slotOffset(f.bitmapSize, f.recordSize, int(rid.SlotNo))
	preImage := make([]byte, f.recordSize)
	copy(preImage, frame.Buf[off:off+f.recordSize])
	copy(frame.Buf[off:off+f.recordSize], buf)

	frame.Latch.Unlock()
	f.pool.Unpin(pid, true)
	return preImage, nil
}

// clearSlot clears rid's bit, decrements num_records, and — if the page
// was previously full — re-links it at the free-list head. It returns the
// record's pre-image bytes.
func (f *File) clearSlot(rid RID) ([]byte, error) {
	pid := diskmgr.PageID{File: f.fileID, Page: rid.PageNo}
	frame, err := f.pool.Fetch(pid)
	if err != nil {
		return nil, err
	}
	frame.Latch.Lock()

	bs := loadBitmap(frame.Buf, f.bitmapSize)
	if !bs.Test(uint(rid.SlotNo)) {
		frame.Latch.Unlock()
		f.pool.Unpin(pid, false)
		return nil, ErrRecordNotFound
	}
	off := slotOffset(f.bitmapSize, f.recordSize, int(rid.SlotNo))
	preImage := make([]byte, f.recordSize)
	copy(preImage, frame.Buf[off:off+f.recordSize])

	bs.Clear(uint(rid.SlotNo))
	storeBitmap(frame.Buf, f.bitmapSize, bs)
	wasFull := int(pageNumRecords(frame.Buf)) == f.numRecordsPerPage
	setPageNumRecords(frame.Buf, pageNumRecords(frame.Buf)-1)

	frame.Latch.Unlock()
	f.pool.Unpin(pid, true)

	if wasFull {
		f.mu.Lock()
		firstFree, err := f.headerFirstFree()
		if err == nil {
			if relinkErr := f.relinkPageAtHead(rid.PageNo, firstFree); relinkErr != nil {
				err = relinkErr
			}
		}
		f.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
	return preImage, nil
}

// relinkPageAtHead threads pageNo onto the head of the free-list: its own
// next_free_page_no becomes the previous head, and the file header's
// first_free_page_no becomes pageNo.
func (f *File) relinkPageAtHead(pageNo, previousHead int32) error {
	pid := diskmgr.PageID{File: f.fileID, Page: pageNo}
	frame, err := f.pool.Fetch(pid)
	if err != nil {
		return err
	}
	frame.Latch.Lock()
	setPageNextFree(frame.Buf, previousHead)
	frame.Latch.Unlock()
	f.pool.Unpin(pid, true)
	return f.setHeaderFirstFree(pageNo)
}

// rawDelete is Insert's undo: clear rid's bit, no lock (re)acquisition —
// the transaction already holds the X-lock from the original Insert.
func (f *File) rawDelete(rid RID) error {
	_, err := f.clearSlot(rid)
	return err
}

// rawWrite is Update's undo: restore buf at rid without touching the bit.
func (f *File) rawWrite(rid RID, buf []byte) error {
	_, err := f.overwriteSlot(rid, buf)
	return err
}

// rawInsertAt is Delete's undo: re-set rid's bit and restore buf, mirroring
// Insert's full-page unlink bookkeeping.
func (f *File) rawInsertAt(rid RID, buf []byte) error {
	pid := diskmgr.PageID{File: f.fileID, Page: rid.PageNo}
	frame, err := f.pool.Fetch(pid)
	if err != nil {
		return err
	}
	frame.Latch.Lock()

	bs := loadBitmap(frame.Buf, f.bitmapSize)
	bs.Set(uint(rid.SlotNo))
	storeBitmap(frame.Buf, f.bitmapSize, bs)
	off := slotOffset(f.bitmapSize, f.recordSize, int(rid.SlotNo))
	copy(frame.Buf[off:off+f.recordSize], buf)
	numRecords := pageNumRecords(frame.Buf) + 1
	setPageNumRecords(frame.Buf, numRecords)
	becameFull := int(numRecords) == f.numRecordsPerPage
	next := pageNextFree(frame.Buf)

	frame.Latch.Unlock()
	f.pool.Unpin(pid, true)

	if becameFull {
		f.mu.Lock()
		err := f.setHeaderFirstFree(next)
		f.mu.Unlock()
		return err
	}
	return nil
}
