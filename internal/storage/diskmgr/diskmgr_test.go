package diskmgr

import (
	"bytes"
	"testing"
)

func TestCRC_DetectsCorruption(t *testing.T) {
	buf := make([]byte, 512)
	PutHeader(buf, PageTypeHeapData, 3)
	SetCRC(buf)
	if err := VerifyCRC(buf); err != nil {
		t.Fatalf("valid CRC failed: %v", err)
	}
	buf[100] ^= 0xFF
	if err := VerifyCRC(buf); err == nil {
		t.Fatal("expected CRC error after corruption")
	}
}

func TestManager_WriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, 512)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	fid, err := m.CreateFile("tbl")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	pn, err := m.AllocatePage(fid)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if pn != 0 {
		t.Fatalf("expected first page number 0, got %d", pn)
	}

	buf := make([]byte, 512)
	PutHeader(buf, PageTypeHeapData, pn)
	copy(buf[16:], []byte("hello page"))
	if err := m.WritePage(PageID{File: fid, Page: pn}, buf); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	out := make([]byte, 512)
	if err := m.ReadPage(PageID{File: fid, Page: pn}, out); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(out, buf) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestManager_AllocatePage_Sequential(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, 512)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	fid, _ := m.CreateFile("tbl")
	for i := int32(0); i < 5; i++ {
		pn, err := m.AllocatePage(fid)
		if err != nil {
			t.Fatalf("AllocatePage: %v", err)
		}
		if pn != i {
			t.Fatalf("expected page %d, got %d", i, pn)
		}
	}
	n, err := m.NumPages(fid)
	if err != nil {
		t.Fatalf("NumPages: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 pages, got %d", n)
	}
}

func TestManager_ReadUnopenedFile(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, 512)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()
	buf := make([]byte, 512)
	if err := m.ReadPage(PageID{File: 999, Page: 0}, buf); err == nil {
		t.Fatal("expected error for unopened file")
	}
}

func TestNewManager_RejectsBadPageSize(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewManager(dir, 100); err == nil {
		t.Fatal("expected error for non-power-of-two page size")
	}
}
