// Package diskmgr implements fixed-size page I/O and per-file page-number
// allocation, the "Disk I/O" row of the storage engine (spec §2, §4.7).
//
// Every heap file and every B+Tree index file is backed by its own OS file,
// opened under a small integer FileID. Pages are fixed-size and addressed
// by (FileID, PageNo); PageNo 0 is always the file's own header page.
package diskmgr

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const (
	// MinPageSize is the smallest page size this engine accepts.
	MinPageSize = 512
	// MaxPageSize is the largest page size this engine accepts.
	MaxPageSize = 65536

	// PageHeaderSize is the size of the common page header every page
	// carries, ahead of its type-specific layout.
	//
	//	[0:4]   PageType  (uint32 LE)
	//	[4:8]   PageNo    (uint32 LE)
	//	[8:12]  CRC32     (uint32 LE, Castagnoli)
	//	[12:16] Reserved
	PageHeaderSize = 16
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// FileID identifies an open heap or index file within a Manager.
type FileID uint32

// PageID addresses a single page within a specific file.
type PageID struct {
	File FileID
	Page int32
}

// PageType distinguishes the header/data pages a Manager's callers write.
type PageType uint32

const (
	PageTypeHeapHeader PageType = iota + 1
	PageTypeHeapData
	PageTypeBTreeHeader
	PageTypeBTreeNode
)

// PutHeader writes the common page header fields into buf (CRC excluded —
// call SetCRC once the rest of the page has been written).
func PutHeader(buf []byte, pt PageType, pageNo int32) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(pt))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(pageNo))
}

// HeaderType reads the PageType out of a page buffer.
func HeaderType(buf []byte) PageType {
	return PageType(binary.LittleEndian.Uint32(buf[0:4]))
}

// HeaderPageNo reads the PageNo out of a page buffer.
func HeaderPageNo(buf []byte) int32 {
	return int32(binary.LittleEndian.Uint32(buf[4:8]))
}

// computeCRC hashes the page with its CRC field (bytes [8:12]) zeroed.
func computeCRC(buf []byte) uint32 {
	h := crc32.New(crcTable)
	h.Write(buf[0:8])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(buf[12:])
	return h.Sum32()
}

// SetCRC computes and stores the page checksum.
func SetCRC(buf []byte) {
	binary.LittleEndian.PutUint32(buf[8:12], computeCRC(buf))
}

// VerifyCRC reports whether the stored checksum matches the page contents.
func VerifyCRC(buf []byte) error {
	stored := binary.LittleEndian.Uint32(buf[8:12])
	got := computeCRC(buf)
	if stored != got {
		return fmt.Errorf("%w: page %d stored=%08x computed=%08x", ErrPageCorrupt, HeaderPageNo(buf), stored, got)
	}
	return nil
}

type file struct {
	mu       sync.Mutex
	f        *os.File
	numPages int32
}

// Manager owns one *os.File per registered FileID and performs fixed-size
// page reads/writes and per-file page-number allocation.
type Manager struct {
	mu       sync.Mutex
	dataDir  string
	pageSize int
	files    map[FileID]*file
	nextID   FileID
}

// NewManager creates a Manager rooted at dataDir with the given page size.
// dataDir is created if it does not already exist.
func NewManager(dataDir string, pageSize int) (*Manager, error) {
	if pageSize < MinPageSize || pageSize > MaxPageSize || pageSize&(pageSize-1) != 0 {
		return nil, fmt.Errorf("diskmgr: invalid page size %d", pageSize)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("diskmgr: create data dir: %w", err)
	}
	return &Manager{
		dataDir:  dataDir,
		pageSize: pageSize,
		files:    make(map[FileID]*file),
	}, nil
}

// PageSize returns the fixed page size this Manager was opened with.
func (m *Manager) PageSize() int { return m.pageSize }

// CreateFile creates a new backing file with a UUID-derived name and
// returns the FileID the caller will use for all further page I/O. prefix
// is a human-readable hint ("tbl", "idx") used only in the file name.
func (m *Manager) CreateFile(prefix string) (FileID, error) {
	name := fmt.Sprintf("%s_%s.dat", prefix, uuid.NewString())
	f, err := os.OpenFile(filepath.Join(m.dataDir, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("diskmgr: create file: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.files[id] = &file{f: f}
	return id, nil
}

// OpenFile opens an existing backing file by path and registers it under a
// fresh FileID, inferring its current page count from file size.
func (m *Manager) OpenFile(path string) (FileID, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return 0, fmt.Errorf("diskmgr: open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("diskmgr: stat file: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.files[id] = &file{f: f, numPages: int32(info.Size() / int64(m.pageSize))}
	return id, nil
}

func (m *Manager) entry(id FileID) (*file, error) {
	m.mu.Lock()
	fe, ok := m.files[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: file %d", ErrFileNotOpen, id)
	}
	return fe, nil
}

// ReadPage reads page id.Page of file id.File into buf, which must be
// exactly PageSize() bytes. It verifies the page checksum.
func (m *Manager) ReadPage(id PageID, buf []byte) error {
	fe, err := m.entry(id.File)
	if err != nil {
		return err
	}
	if len(buf) != m.pageSize {
		return fmt.Errorf("diskmgr: buffer size %d != page size %d", len(buf), m.pageSize)
	}
	fe.mu.Lock()
	defer fe.mu.Unlock()
	off := int64(id.Page) * int64(m.pageSize)
	if _, err := fe.f.ReadAt(buf, off); err != nil {
		return fmt.Errorf("%w: read page %d of file %d: %v", ErrPageNotExist, id.Page, id.File, err)
	}
	return VerifyCRC(buf)
}

// WritePage writes buf (exactly PageSize() bytes) to page id.Page of file
// id.File, updating the checksum first.
func (m *Manager) WritePage(id PageID, buf []byte) error {
	fe, err := m.entry(id.File)
	if err != nil {
		return err
	}
	if len(buf) != m.pageSize {
		return fmt.Errorf("diskmgr: buffer size %d != page size %d", len(buf), m.pageSize)
	}
	SetCRC(buf)
	fe.mu.Lock()
	defer fe.mu.Unlock()
	off := int64(id.Page) * int64(m.pageSize)
	if _, err := fe.f.WriteAt(buf, off); err != nil {
		return fmt.Errorf("diskmgr: write page %d of file %d: %w", id.Page, id.File, err)
	}
	if id.Page >= fe.numPages {
		fe.numPages = id.Page + 1
	}
	return nil
}

// AllocatePage extends fileID by one page and returns its page number. The
// caller is responsible for writing the page's initial contents.
func (m *Manager) AllocatePage(fileID FileID) (int32, error) {
	fe, err := m.entry(fileID)
	if err != nil {
		return 0, err
	}
	fe.mu.Lock()
	defer fe.mu.Unlock()
	pn := fe.numPages
	fe.numPages++
	return pn, nil
}

// NumPages reports how many pages fileID currently spans.
func (m *Manager) NumPages(fileID FileID) (int32, error) {
	fe, err := m.entry(fileID)
	if err != nil {
		return 0, err
	}
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.numPages, nil
}

// Close fsyncs and closes every open file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for id, fe := range m.files {
		if err := fe.f.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := fe.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.files, id)
	}
	return firstErr
}
