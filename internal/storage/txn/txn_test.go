package txn

import (
	"errors"
	"testing"

	"github.com/SimonWaldherr/tinySQL/internal/storage/lockmgr"
)

func TestBegin_AssignsIncreasingIDs(t *testing.T) {
	lm := lockmgr.New(nil)
	mgr := NewManager(lm, nil)
	t1 := mgr.Begin()
	t2 := mgr.Begin()
	if t1.ID() == t2.ID() {
		t.Fatalf("expected distinct txn ids, got %d and %d", t1.ID(), t2.ID())
	}
	if t1.State() != StateDefault {
		t.Fatalf("fresh txn should be DEFAULT, got %v", t1.State())
	}
}

func TestCommit_ReleasesLocksAndClearsWriteSet(t *testing.T) {
	lm := lockmgr.New(nil)
	mgr := NewManager(lm, nil)
	t1 := mgr.Begin()

	id := lockmgr.LockID{FileID: 1, Gran: lockmgr.Table}
	if err := lm.Acquire(t1, id, lockmgr.X); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	undone := false
	t1.RecordWrite(ActionInsert, func() error { undone = true; return nil })

	mgr.Commit(t1)
	if t1.State() != StateCommitted {
		t.Fatalf("expected COMMITTED, got %v", t1.State())
	}
	if undone {
		t.Fatal("commit must not run undo callbacks")
	}
	if len(t1.LockSet()) != 0 {
		t.Fatal("commit must release every lock")
	}

	t2 := mgr.Begin()
	if err := lm.Acquire(t2, id, lockmgr.X); err != nil {
		t.Fatalf("lock should be free after commit: %v", err)
	}
}

func TestAbort_ReplaysWriteSetInReverse(t *testing.T) {
	lm := lockmgr.New(nil)
	mgr := NewManager(lm, nil)
	t1 := mgr.Begin()

	var order []int
	t1.RecordWrite(ActionInsert, func() error { order = append(order, 1); return nil })
	t1.RecordWrite(ActionUpdate, func() error { order = append(order, 2); return nil })
	t1.RecordWrite(ActionDelete, func() error { order = append(order, 3); return nil })

	if err := mgr.Abort(t1); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if t1.State() != StateAborted {
		t.Fatalf("expected ABORTED, got %v", t1.State())
	}
	want := []int{3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("undo order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("undo order = %v, want %v", order, want)
		}
	}
}

func TestAbort_ReportsFirstErrorButRunsAll(t *testing.T) {
	lm := lockmgr.New(nil)
	mgr := NewManager(lm, nil)
	t1 := mgr.Begin()

	ran := 0
	boom := errors.New("boom")
	t1.RecordWrite(ActionInsert, func() error { ran++; return boom })
	t1.RecordWrite(ActionUpdate, func() error { ran++; return nil })

	err := mgr.Abort(t1)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom error, got %v", err)
	}
	if ran != 2 {
		t.Fatalf("expected both undo callbacks to run, ran=%d", ran)
	}
}

func TestReleaseLatches_RunsInLIFOOrder(t *testing.T) {
	tr := newTransaction(1)
	var order []int
	tr.PushLatch(func() { order = append(order, 1) })
	tr.PushLatch(func() { order = append(order, 2) })
	tr.PushLatch(func() { order = append(order, 3) })
	tr.ReleaseLatches()
	want := []int{3, 2, 1}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("release order = %v, want %v", order, want)
		}
	}
}
