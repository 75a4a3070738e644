package buffer

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/SimonWaldherr/tinySQL/internal/storage/diskmgr"
)

func newTestPool(t *testing.T, poolSize int) (*BufferPool, diskmgr.FileID) {
	t.Helper()
	disk, err := diskmgr.NewManager(filepath.Join(t.TempDir(), "data"), 4096)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	fid, err := disk.CreateFile("tbl")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	return NewBufferPool(disk, poolSize, nil), fid
}

func TestBufferPool_NewFetchUnpinRoundTrip(t *testing.T) {
	pool, fid := newTestPool(t, 4)

	f, pid, err := pool.New(fid)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	copy(f.Buf, []byte("hello page"))
	if !pool.Unpin(pid, true) {
		t.Fatal("Unpin: page not found")
	}
	if err := pool.Flush(pid); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	f2, err := pool.Fetch(pid)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.HasPrefix(f2.Buf, []byte("hello page")) {
		t.Fatalf("fetched page content mismatch: %q", f2.Buf[:16])
	}
	pool.Unpin(pid, false)
}

func TestBufferPool_ExhaustedWhenAllPinned(t *testing.T) {
	pool, fid := newTestPool(t, 2)

	_, pid1, err := pool.New(fid)
	if err != nil {
		t.Fatalf("New 1: %v", err)
	}
	_, pid2, err := pool.New(fid)
	if err != nil {
		t.Fatalf("New 2: %v", err)
	}

	if _, _, err := pool.New(fid); err != ErrBufferPoolExhausted {
		t.Fatalf("expected ErrBufferPoolExhausted, got %v", err)
	}

	pool.Unpin(pid1, false)
	f3, pid3, err := pool.New(fid)
	if err != nil {
		t.Fatalf("New after unpin: %v", err)
	}
	if pid3 == pid1 {
		t.Fatalf("new page reused same page id: %+v", pid3)
	}
	_ = f3
	pool.Unpin(pid2, false)
	pool.Unpin(pid3, false)
}

func TestBufferPool_DeleteRejectsPinned(t *testing.T) {
	pool, fid := newTestPool(t, 2)
	_, pid, err := pool.New(fid)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := pool.Delete(pid); err == nil {
		t.Fatal("expected Delete to reject a pinned page")
	}
	pool.Unpin(pid, false)
	if err := pool.Delete(pid); err != nil {
		t.Fatalf("Delete after unpin: %v", err)
	}
}

func TestBufferPool_FlushAllWritesOnlyDirty(t *testing.T) {
	pool, fid := newTestPool(t, 4)
	_, pid1, _ := pool.New(fid)
	_, pid2, _ := pool.New(fid)
	pool.Unpin(pid1, true)
	pool.Unpin(pid2, false)

	if err := pool.FlushAll(fid); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if pool.frames[pool.pageTable[pid1]].Dirty {
		t.Fatal("FlushAll should clear the dirty flag of the frame it wrote")
	}
	// pid2 was never dirty, so FlushAll must not have written it to disk.
	onDisk := make([]byte, pool.disk.PageSize())
	if err := pool.disk.ReadPage(pid2, onDisk); err == nil {
		t.Fatal("FlushAll should not write a clean frame to disk")
	}
	// both pages remain resident and unpinned; neither Flush call should error.
	if err := pool.Flush(pid1); err != nil {
		t.Fatalf("Flush pid1: %v", err)
	}
	if err := pool.Flush(pid2); err != nil {
		t.Fatalf("Flush pid2: %v", err)
	}
}
