// Package txn implements the transaction manager (spec §4.6): per-
// transaction lifecycle state, a process-wide transaction map, and
// write-set-based commit/rollback.
package txn

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/SimonWaldherr/tinySQL/internal/storage/lockmgr"
	"github.com/SimonWaldherr/tinySQL/internal/storage/logx"
)

// State mirrors lockmgr.TxnState; re-declared here as the type this
// package's own API speaks in, to avoid forcing every caller to import
// lockmgr just to compare a transaction's phase.
type State = lockmgr.TxnState

const (
	StateDefault   = lockmgr.StateDefault
	StateGrowing   = lockmgr.StateGrowing
	StateShrinking = lockmgr.StateShrinking
	StateCommitted = lockmgr.StateCommitted
	StateAborted   = lockmgr.StateAborted
)

// ActionKind tags a write-set entry with the operation it reverses.
type ActionKind uint8

const (
	ActionInsert ActionKind = iota
	ActionUpdate
	ActionDelete
)

func (k ActionKind) String() string {
	switch k {
	case ActionInsert:
		return "INSERT"
	case ActionUpdate:
		return "UPDATE"
	case ActionDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// WriteAction is one reversible step in a transaction's write-set. Undo
// performs exactly the inverse of the original mutation; record/index
// handles build the closure at the moment they perform the mutation, so
// this package never needs to import record or index (it would otherwise
// be a cycle, since record/index take a *Transaction in their own APIs).
type WriteAction struct {
	Kind ActionKind
	Undo func() error
}

// Transaction is one unit of work: its lock_set (delegated to lockmgr via
// AddLock/RemoveLock), its write_set for rollback, and the page_set
// latches a B+Tree descent is currently holding.
type Transaction struct {
	mu       sync.Mutex
	id       uint64
	state    State
	lockSet  map[lockmgr.LockID]struct{}
	writeSet []WriteAction
	pageSet  []func() // deferred unlatch callbacks for an in-flight tree descent

	// DeletedPages collects page ids a B+Tree delete_entry emptied. Commit
	// and Abort do not free these pages; they stay allocated in their file.
	DeletedPages []uint64
}

func newTransaction(id uint64) *Transaction {
	return &Transaction{id: id, lockSet: make(map[lockmgr.LockID]struct{})}
}

func (t *Transaction) ID() uint64 { return t.id }

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// AddLock records id in the lock_set. Called by lockmgr.LockManager.Acquire.
func (t *Transaction) AddLock(id lockmgr.LockID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lockSet[id] = struct{}{}
}

// RemoveLock removes id from the lock_set. Called by lockmgr.LockManager.Unlock.
func (t *Transaction) RemoveLock(id lockmgr.LockID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lockSet, id)
}

// LockSet returns a snapshot of currently held lock ids.
func (t *Transaction) LockSet() []lockmgr.LockID {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]lockmgr.LockID, 0, len(t.lockSet))
	for id := range t.lockSet {
		ids = append(ids, id)
	}
	return ids
}

// RecordWrite appends a reversible action to the write_set. Record/index
// handles call this immediately after a successful Insert/Update/Delete.
func (t *Transaction) RecordWrite(kind ActionKind, undo func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeSet = append(t.writeSet, WriteAction{Kind: kind, Undo: undo})
}

// PushLatch registers a page-latch release callback on the transaction's
// page-set. The B+Tree index handle does not use it; its descents keep
// their latches in their own path slice.
func (t *Transaction) PushLatch(release func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pageSet = append(t.pageSet, release)
}

// ReleaseLatches runs and clears every pending page-set release callback,
// in LIFO order (innermost latch released first).
func (t *Transaction) ReleaseLatches() {
	t.mu.Lock()
	cbs := t.pageSet
	t.pageSet = nil
	t.mu.Unlock()
	for i := len(cbs) - 1; i >= 0; i-- {
		cbs[i]()
	}
}

// Manager owns the process-wide transaction map and coordinates
// begin/commit/abort against a LockManager.
type Manager struct {
	mu      sync.Mutex
	txns    map[uint64]*Transaction
	nextID  uint64
	lockMgr *lockmgr.LockManager
	log     logx.Logger
}

// NewManager creates a Manager bound to lockMgr for lock release on
// commit/abort. A nil logger disables diagnostics.
func NewManager(lockMgr *lockmgr.LockManager, log logx.Logger) *Manager {
	if log == nil {
		log = logx.Nop()
	}
	return &Manager{txns: make(map[uint64]*Transaction), lockMgr: lockMgr, log: log}
}

// Begin allocates a fresh transaction and registers it in the process-wide
// map.
func (m *Manager) Begin() *Transaction {
	id := atomic.AddUint64(&m.nextID, 1)
	t := newTransaction(id)
	m.mu.Lock()
	m.txns[id] = t
	m.mu.Unlock()
	m.log.Debug("begin", "txn", id)
	return t
}

// Lookup returns the transaction registered under id, if any.
func (m *Manager) Lookup(id uint64) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[id]
	return t, ok
}

// releaseAllLocks unlocks every lock_id in txn's lock_set.
func (m *Manager) releaseAllLocks(t *Transaction) {
	for _, id := range t.LockSet() {
		m.lockMgr.Unlock(t, id)
	}
}

// Commit releases every lock held by t and marks it COMMITTED. The
// write_set is discarded without being replayed — log_mgr (an external
// collaborator per spec §6) is responsible for any durability record,
// which this core does not implement.
func (m *Manager) Commit(t *Transaction) {
	m.releaseAllLocks(t)
	t.mu.Lock()
	t.writeSet = nil
	t.state = StateCommitted
	t.mu.Unlock()
	m.log.Debug("commit", "txn", t.ID())
	m.forget(t.ID())
}

// Abort replays t's write_set in reverse, invoking each action's Undo, then
// releases locks and marks t ABORTED. The first Undo error is returned but
// every remaining entry is still attempted, since leaving earlier actions
// un-reversed would be worse than reporting one partial failure.
func (m *Manager) Abort(t *Transaction) error {
	t.mu.Lock()
	actions := t.writeSet
	t.writeSet = nil
	t.mu.Unlock()

	var firstErr error
	for i := len(actions) - 1; i >= 0; i-- {
		if err := actions[i].Undo(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("txn: undo %s action: %w", actions[i].Kind, err)
		}
	}

	m.releaseAllLocks(t)
	t.mu.Lock()
	t.state = StateAborted
	t.mu.Unlock()
	m.log.Debug("abort", "txn", t.ID())
	m.forget(t.ID())
	return firstErr
}

func (m *Manager) forget(id uint64) {
	m.mu.Lock()
	delete(m.txns, id)
	m.mu.Unlock()
}
