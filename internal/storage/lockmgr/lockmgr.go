// Package lockmgr implements the multi-granularity two-phase lock manager
// (spec §4.5): a table of lock_id -> {request queue, group mode, condition}
// guarded by a single mutex, with IS/IX/S/SIX/X compatibility arbitration.
package lockmgr

import (
	"fmt"
	"sync"

	"github.com/SimonWaldherr/tinySQL/internal/storage/logx"
)

// Mode is a lock's granularity/intent mode.
type Mode uint8

const (
	// NonLock is the group mode of a lock_id with no granted holders.
	NonLock Mode = iota
	IS
	IX
	S
	SIX
	X
)

func (m Mode) String() string {
	switch m {
	case NonLock:
		return "NON_LOCK"
	case IS:
		return "IS"
	case IX:
		return "IX"
	case S:
		return "S"
	case SIX:
		return "SIX"
	case X:
		return "X"
	default:
		return "UNKNOWN"
	}
}

// compat[a][b] reports whether mode a may be held concurrently with mode b.
// NonLock is compatible with everything; it never appears as a granted mode.
var compat = [6][6]bool{
	NonLock: {true, true, true, true, true, true},
	IS:      {true, true, true, true, true, false},
	IX:      {true, true, true, false, false, false},
	S:       {true, true, false, true, false, false},
	SIX:     {true, true, false, false, false, false},
	X:       {true, false, false, false, false, false},
}

// Compatible reports whether a and b may be granted concurrently.
func Compatible(a, b Mode) bool { return compat[a][b] }

// join returns the least mode covering both a and b (the lattice join used
// to recompute group_mode), following the IS < IX,S < SIX < X ordering
// spec.md §4.5 implies. NonLock joined with anything yields the other mode.
func join(a, b Mode) Mode {
	if a == NonLock {
		return b
	}
	if b == NonLock {
		return a
	}
	if a == b {
		return a
	}
	// Every pair not handled above involves X, which covers every mode.
	pair := [2]Mode{a, b}
	switch pair {
	case [2]Mode{IS, IX}, [2]Mode{IX, IS}:
		return IX
	case [2]Mode{IS, S}, [2]Mode{S, IS}:
		return S
	case [2]Mode{IS, SIX}, [2]Mode{SIX, IS}:
		return SIX
	case [2]Mode{IX, S}, [2]Mode{S, IX}:
		return SIX
	case [2]Mode{IX, SIX}, [2]Mode{SIX, IX}, [2]Mode{S, SIX}, [2]Mode{SIX, S}:
		return SIX
	default:
		return X
	}
}

// TxnState is a transaction's 2PL phase, as observed by the lock manager.
type TxnState uint8

const (
	StateDefault TxnState = iota
	StateGrowing
	StateShrinking
	StateCommitted
	StateAborted
)

// Txn is the subset of transaction state the lock manager reads and
// mutates. *txn.Transaction implements this interface.
type Txn interface {
	ID() uint64
	State() TxnState
	SetState(TxnState)
	AddLock(id LockID)
	RemoveLock(id LockID)
}

// Granularity distinguishes a table-level lock_id from a record-level one.
type Granularity uint8

const (
	Table Granularity = iota
	Record
)

// RID mirrors record.RID's shape without importing the record package
// (which itself depends on lockmgr), avoiding an import cycle.
type RID struct {
	PageNo int32
	SlotNo int32
}

// LockID identifies a lockable resource: either a whole file (table-
// granularity) or one record within a file.
type LockID struct {
	FileID uint32
	Gran   Granularity
	RID    RID
}

func (id LockID) String() string {
	if id.Gran == Table {
		return fmt.Sprintf("file:%d/TABLE", id.FileID)
	}
	return fmt.Sprintf("file:%d/RECORD(%d,%d)", id.FileID, id.RID.PageNo, id.RID.SlotNo)
}

type request struct {
	txnID   uint64
	mode    Mode
	granted bool
}

type entry struct {
	cond      *sync.Cond
	requests  []*request
	groupMode Mode
}

// LockManager grants and releases IS/IX/S/SIX/X locks under strict 2PL.
type LockManager struct {
	mu      sync.Mutex
	entries map[LockID]*entry
	log     logx.Logger
}

// New creates an empty LockManager. A nil logger disables diagnostics.
func New(log logx.Logger) *LockManager {
	if log == nil {
		log = logx.Nop()
	}
	return &LockManager{entries: make(map[LockID]*entry), log: log}
}

var errTxnAborted = fmt.Errorf("lockmgr: transaction aborted")

// ErrTxnAborted is returned by Acquire when txn.State() is already ABORTED.
func ErrTxnAborted() error { return errTxnAborted }

// Acquire grants txn mode on id, blocking until compatible. It is idempotent
// if txn already holds id at mode or stronger, and performs an in-place
// upgrade (re-checked against every other granted holder) if txn holds id
// at a weaker, incompatible mode — spec.md §9's open question #3.
func (lm *LockManager) Acquire(txn Txn, id LockID, mode Mode) error {
	if txn.State() == StateAborted {
		return errTxnAborted
	}

	lm.mu.Lock()
	e, ok := lm.entries[id]
	if !ok {
		e = &entry{cond: sync.NewCond(&lm.mu)}
		lm.entries[id] = e
	}

	if existing := findRequest(e, txn.ID()); existing != nil {
		if existing.granted && covers(existing.mode, mode) {
			lm.mu.Unlock()
			return nil
		}
		if existing.granted {
			// Upgrade in place, then re-check compatibility with every
			// other granted holder before declaring success.
			upgraded := join(existing.mode, mode)
			for {
				if compatibleWithOthers(e, existing, upgraded) {
					existing.mode = upgraded
					e.groupMode = recomputeGroupMode(e)
					lm.mu.Unlock()
					txn.AddLock(id)
					return nil
				}
				e.cond.Wait()
				if txn.State() == StateAborted {
					lm.mu.Unlock()
					return errTxnAborted
				}
			}
		}
	}

	req := &request{txnID: txn.ID(), mode: mode}
	e.requests = append(e.requests, req)
	for {
		if Compatible(e.groupMode, mode) {
			req.granted = true
			e.groupMode = join(e.groupMode, mode)
			lm.mu.Unlock()
			if txn.State() == StateDefault {
				txn.SetState(StateGrowing)
			}
			txn.AddLock(id)
			lm.log.Debug("lock granted", "lock_id", id.String(), "mode", mode.String(), "txn", txn.ID())
			return nil
		}
		lm.log.Debug("lock wait", "lock_id", id.String(), "mode", mode.String(), "txn", txn.ID())
		e.cond.Wait()
		if txn.State() == StateAborted {
			removeRequest(e, req)
			e.groupMode = recomputeGroupMode(e)
			e.cond.Broadcast()
			lm.mu.Unlock()
			return errTxnAborted
		}
	}
}

// covers reports whether held is at least as strong as want under the
// IS < {IX,S} < SIX < X partial order (join(held,want)==held).
func covers(held, want Mode) bool { return join(held, want) == held }

// compatibleWithOthers checks candidateMode against every OTHER granted
// request in e (self excluded), per spec.md §9's upgrade fix.
func compatibleWithOthers(e *entry, self *request, candidateMode Mode) bool {
	for _, r := range e.requests {
		if r == self || !r.granted {
			continue
		}
		if !Compatible(candidateMode, r.mode) {
			return false
		}
	}
	return true
}

func findRequest(e *entry, txnID uint64) *request {
	for _, r := range e.requests {
		if r.txnID == txnID {
			return r
		}
	}
	return nil
}

func removeRequest(e *entry, target *request) {
	out := e.requests[:0]
	for _, r := range e.requests {
		if r != target {
			out = append(out, r)
		}
	}
	e.requests = out
}

// recomputeGroupMode folds the join of every remaining granted request's
// mode — spec.md §9's open question #4, replacing "NON_LOCK when queue
// non-empty" with the join of actual granted holders.
func recomputeGroupMode(e *entry) Mode {
	gm := NonLock
	for _, r := range e.requests {
		if r.granted {
			gm = join(gm, r.mode)
		}
	}
	return gm
}

// Unlock releases txn's hold on id. It recomputes group_mode from the
// remaining granted holders, wakes waiters, and transitions txn to
// SHRINKING (2PL: once released, no new Acquire calls should follow,
// though this manager does not itself refuse a post-SHRINKING Acquire —
// callers are expected to observe txn.State() and stop calling Acquire).
func (lm *LockManager) Unlock(txn Txn, id LockID) {
	lm.mu.Lock()
	e, ok := lm.entries[id]
	if !ok {
		lm.mu.Unlock()
		return
	}
	removeRequest(e, findRequest(e, txn.ID()))
	e.groupMode = recomputeGroupMode(e)
	empty := len(e.requests) == 0
	if empty {
		delete(lm.entries, id)
	}
	e.cond.Broadcast()
	lm.mu.Unlock()

	txn.RemoveLock(id)
	if txn.State() == StateGrowing {
		txn.SetState(StateShrinking)
	}
	lm.log.Debug("lock released", "lock_id", id.String(), "txn", txn.ID())
}

// Convenience wrappers matching spec.md §6's named entry points.

func (lm *LockManager) LockSRecord(txn Txn, fileID uint32, rid RID) error {
	return lm.Acquire(txn, LockID{FileID: fileID, Gran: Record, RID: rid}, S)
}

func (lm *LockManager) LockXRecord(txn Txn, fileID uint32, rid RID) error {
	return lm.Acquire(txn, LockID{FileID: fileID, Gran: Record, RID: rid}, X)
}

func (lm *LockManager) LockSTable(txn Txn, fileID uint32) error {
	return lm.Acquire(txn, LockID{FileID: fileID, Gran: Table}, S)
}

func (lm *LockManager) LockXTable(txn Txn, fileID uint32) error {
	return lm.Acquire(txn, LockID{FileID: fileID, Gran: Table}, X)
}

func (lm *LockManager) LockISTable(txn Txn, fileID uint32) error {
	return lm.Acquire(txn, LockID{FileID: fileID, Gran: Table}, IS)
}

func (lm *LockManager) LockIXTable(txn Txn, fileID uint32) error {
	return lm.Acquire(txn, LockID{FileID: fileID, Gran: Table}, IX)
}
