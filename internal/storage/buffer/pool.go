package buffer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/SimonWaldherr/tinySQL/internal/storage/diskmgr"
	"github.com/SimonWaldherr/tinySQL/internal/storage/logx"
)

// ErrBufferPoolExhausted is returned when every frame is pinned and no
// victim can be found for a Fetch or New request.
var ErrBufferPoolExhausted = errors.New("buffer: pool exhausted, every frame pinned")

// Frame is a page-sized buffer owned by the BufferPool, grounded in the
// teacher's pager.PageFrame (internal/storage/pager/pager.go) but carrying
// a per-frame latch (Latch) instead of an LRU-list prev/next pair, since
// the B+Tree index handle needs real shared/exclusive page latches for
// crabbing (spec §4.4/§5), not just an eviction order.
type Frame struct {
	Latch    sync.RWMutex
	PageID   diskmgr.PageID
	Buf      []byte
	PinCount int
	Dirty    bool
}

// BufferPool mediates access to disk pages through a fixed-capacity set of
// frames, replacing the least useful frame (per the clock policy) when a
// requested page is not resident (spec §4.2).
type BufferPool struct {
	mu        sync.Mutex
	disk      *diskmgr.Manager
	frames    []*Frame
	free      []int
	pageTable map[diskmgr.PageID]int
	replacer  *ClockReplacer
	log       logx.Logger
}

// NewBufferPool creates a pool of poolSize frames over disk.
func NewBufferPool(disk *diskmgr.Manager, poolSize int, log logx.Logger) *BufferPool {
	if log == nil {
		log = logx.Nop()
	}
	frames := make([]*Frame, poolSize)
	free := make([]int, poolSize)
	for i := range frames {
		frames[i] = &Frame{Buf: make([]byte, disk.PageSize())}
		free[i] = i
	}
	return &BufferPool{
		disk:      disk,
		frames:    frames,
		free:      free,
		pageTable: make(map[diskmgr.PageID]int),
		replacer:  NewClockReplacer(poolSize),
		log:       log,
	}
}

// victimFrameLocked picks a frame index to reuse: the free-list first,
// falling back to the clock replacer. If the chosen frame already holds a
// dirty page, that page is written back before its mapping is dropped.
// Callers must hold p.mu.
func (p *BufferPool) victimFrameLocked() (int, error) {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		return idx, nil
	}
	idx, ok := p.replacer.Victim()
	if !ok {
		return 0, ErrBufferPoolExhausted
	}
	f := p.frames[idx]
	if f.Dirty {
		if err := p.disk.WritePage(f.PageID, f.Buf); err != nil {
			return 0, fmt.Errorf("buffer: writeback victim page %+v: %w", f.PageID, err)
		}
		p.log.Debug("evict dirty frame", "page", f.PageID, "frame", idx)
	}
	delete(p.pageTable, f.PageID)
	return idx, nil
}

// Fetch pins and returns the frame holding pageID, loading it from disk if
// it is not already resident. Returns ErrBufferPoolExhausted if every
// frame is pinned and pageID is not resident.
func (p *BufferPool) Fetch(pageID diskmgr.PageID) (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.pageTable[pageID]; ok {
		f := p.frames[idx]
		f.PinCount++
		p.replacer.Pin(idx)
		return f, nil
	}

	idx, err := p.victimFrameLocked()
	if err != nil {
		return nil, err
	}
	f := p.frames[idx]
	if err := p.disk.ReadPage(pageID, f.Buf); err != nil {
		p.free = append(p.free, idx)
		return nil, err
	}
	f.PageID = pageID
	f.PinCount = 1
	f.Dirty = false
	p.pageTable[pageID] = idx
	p.replacer.Pin(idx)
	return f, nil
}

// New allocates a fresh, zeroed page in fileID, pins it, and returns its
// frame together with its new page ID.
func (p *BufferPool) New(fileID diskmgr.FileID) (*Frame, diskmgr.PageID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, err := p.victimFrameLocked()
	if err != nil {
		return nil, diskmgr.PageID{}, err
	}
	pageNo, err := p.disk.AllocatePage(fileID)
	if err != nil {
		p.free = append(p.free, idx)
		return nil, diskmgr.PageID{}, err
	}
	pid := diskmgr.PageID{File: fileID, Page: pageNo}

	f := p.frames[idx]
	for i := range f.Buf {
		f.Buf[i] = 0
	}
	f.PageID = pid
	f.PinCount = 1
	f.Dirty = false
	p.pageTable[pid] = idx
	p.replacer.Pin(idx)
	return f, pid, nil
}

// Unpin decrements pageID's pin count (floor 0) and, once it reaches 0,
// tells the replacer the frame is eligible for reclamation and ORs
// dirtyHint into the frame's dirty flag. It reports whether pageID was
// resident.
func (p *BufferPool) Unpin(pageID diskmgr.PageID, dirtyHint bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.pageTable[pageID]
	if !ok {
		return false
	}
	f := p.frames[idx]
	if f.PinCount > 0 {
		f.PinCount--
	}
	if f.PinCount == 0 {
		p.replacer.Unpin(idx)
	}
	f.Dirty = f.Dirty || dirtyHint
	return true
}

// Flush writes pageID's frame to disk if resident, clearing its dirty flag.
func (p *BufferPool) Flush(pageID diskmgr.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.pageTable[pageID]
	if !ok {
		return nil
	}
	f := p.frames[idx]
	if err := p.disk.WritePage(pageID, f.Buf); err != nil {
		return err
	}
	f.Dirty = false
	return nil
}

// FlushAll writes every resident dirty frame belonging to fileID.
func (p *BufferPool) FlushAll(fileID diskmgr.FileID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for pid, idx := range p.pageTable {
		if pid.File != fileID {
			continue
		}
		f := p.frames[idx]
		if !f.Dirty {
			continue
		}
		if err := p.disk.WritePage(pid, f.Buf); err != nil {
			return err
		}
		f.Dirty = false
	}
	return nil
}

// Delete removes pageID's frame from the pool and returns it to the
// free-list. It fails if the page is resident and still pinned.
func (p *BufferPool) Delete(pageID diskmgr.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.pageTable[pageID]
	if !ok {
		return nil
	}
	f := p.frames[idx]
	if f.PinCount > 0 {
		return fmt.Errorf("buffer: cannot delete pinned page %+v (pin_count=%d)", pageID, f.PinCount)
	}
	delete(p.pageTable, pageID)
	f.PageID = diskmgr.PageID{}
	f.Dirty = false
	for i := range f.Buf {
		f.Buf[i] = 0
	}
	p.free = append(p.free, idx)
	return nil
}
