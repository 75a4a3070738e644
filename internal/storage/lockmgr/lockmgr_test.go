package lockmgr

import (
	"sync"
	"testing"
	"time"
)

// fakeTxn is a minimal Txn for exercising the lock manager in isolation.
type fakeTxn struct {
	mu    sync.Mutex
	id    uint64
	state TxnState
	locks map[LockID]struct{}
}

func newFakeTxn(id uint64) *fakeTxn {
	return &fakeTxn{id: id, locks: make(map[LockID]struct{})}
}

func (t *fakeTxn) ID() uint64 { return t.id }
func (t *fakeTxn) State() TxnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
func (t *fakeTxn) SetState(s TxnState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}
func (t *fakeTxn) AddLock(id LockID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locks[id] = struct{}{}
}
func (t *fakeTxn) RemoveLock(id LockID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, id)
}

func TestCompatibilityMatrix(t *testing.T) {
	cases := []struct {
		a, b Mode
		want bool
	}{
		{IS, IS, true}, {IS, IX, true}, {IS, S, true}, {IS, SIX, true}, {IS, X, false},
		{IX, IX, true}, {IX, S, false}, {IX, SIX, false}, {IX, X, false},
		{S, S, true}, {S, SIX, false}, {S, X, false},
		{SIX, SIX, false}, {SIX, X, false},
		{X, X, false},
	}
	for _, c := range cases {
		if got := Compatible(c.a, c.b); got != c.want {
			t.Errorf("Compatible(%v,%v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestAcquire_CompatibleGrantedImmediately(t *testing.T) {
	lm := New(nil)
	id := LockID{FileID: 1, Gran: Table}
	t1 := newFakeTxn(1)
	t2 := newFakeTxn(2)

	if err := lm.LockIXTable(t1, 1); err != nil {
		t.Fatalf("t1 IX: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- lm.LockISTable(t2, 1) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("t2 IS: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("t2 IS should have been granted immediately (compatible with IX)")
	}
	_ = id
}

func TestAcquire_IncompatibleBlocksUntilRelease(t *testing.T) {
	lm := New(nil)
	rid := RID{PageNo: 1, SlotNo: 0}
	t1 := newFakeTxn(1)
	t2 := newFakeTxn(2)

	if err := lm.LockSRecord(t1, 1, rid); err != nil {
		t.Fatalf("t1 S: %v", err)
	}

	granted := make(chan error, 1)
	go func() { granted <- lm.LockXRecord(t2, 1, rid) }()

	select {
	case <-granted:
		t.Fatal("t2 X should not be granted while t1 holds S")
	case <-time.After(100 * time.Millisecond):
	}

	id := LockID{FileID: 1, Gran: Record, RID: rid}
	lm.Unlock(t1, id)

	select {
	case err := <-granted:
		if err != nil {
			t.Fatalf("t2 X after release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("t2 X should have been granted after t1 released")
	}
}

func TestUnlock_TransitionsToShrinking(t *testing.T) {
	lm := New(nil)
	t1 := newFakeTxn(1)
	if err := lm.LockXTable(t1, 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if t1.State() != StateGrowing {
		t.Fatalf("expected GROWING after first acquire, got %v", t1.State())
	}
	lm.Unlock(t1, LockID{FileID: 1, Gran: Table})
	if t1.State() != StateShrinking {
		t.Fatalf("expected SHRINKING after unlock, got %v", t1.State())
	}
}

func TestAcquire_AbortedTxnRejected(t *testing.T) {
	lm := New(nil)
	t1 := newFakeTxn(1)
	t1.SetState(StateAborted)
	if err := lm.LockSTable(t1, 1); err != errTxnAborted {
		t.Fatalf("expected errTxnAborted, got %v", err)
	}
}

func TestAcquire_IdempotentAtSameOrStrongerMode(t *testing.T) {
	lm := New(nil)
	t1 := newFakeTxn(1)
	id := LockID{FileID: 1, Gran: Table}
	if err := lm.Acquire(t1, id, X); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := lm.Acquire(t1, id, S); err != nil {
		t.Fatalf("re-acquire at weaker mode should be a no-op: %v", err)
	}
}

func TestUnlock_GroupModeJoinsRemainingHolders(t *testing.T) {
	lm := New(nil)
	id := LockID{FileID: 1, Gran: Table}
	t1 := newFakeTxn(1)
	t2 := newFakeTxn(2)

	if err := lm.LockISTable(t1, 1); err != nil {
		t.Fatalf("t1 IS: %v", err)
	}
	if err := lm.LockISTable(t2, 1); err != nil {
		t.Fatalf("t2 IS: %v", err)
	}
	lm.Unlock(t1, id)

	t3 := newFakeTxn(3)
	done := make(chan error, 1)
	go func() { done <- lm.LockSTable(t3, 1) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("t3 S: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("t3 S should be granted: group_mode should still be IS (t2's hold), compatible with S")
	}
}
