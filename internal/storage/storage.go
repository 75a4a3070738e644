// Package storage wires the Disk I/O, Buffer Pool, Lock Manager, and
// Transaction Manager components into one Engine (spec §2, §6): the
// storage core a query executor (out of this module's scope) would sit
// on top of.
package storage

import (
	"fmt"

	"github.com/SimonWaldherr/tinySQL/internal/storage/buffer"
	"github.com/SimonWaldherr/tinySQL/internal/storage/config"
	"github.com/SimonWaldherr/tinySQL/internal/storage/diskmgr"
	"github.com/SimonWaldherr/tinySQL/internal/storage/index"
	"github.com/SimonWaldherr/tinySQL/internal/storage/lockmgr"
	"github.com/SimonWaldherr/tinySQL/internal/storage/logx"
	"github.com/SimonWaldherr/tinySQL/internal/storage/record"
	"github.com/SimonWaldherr/tinySQL/internal/storage/txn"
)

// Engine owns the single Disk Manager and Buffer Pool every open heap and
// index file in a database shares, plus the Lock Manager and Transaction
// Manager that arbitrate concurrent access to them.
type Engine struct {
	Disk    *diskmgr.Manager
	Pool    *buffer.BufferPool
	LockMgr *lockmgr.LockManager
	TxnMgr  *txn.Manager
	Log     logx.Logger
}

// Open builds an Engine from cfg, creating its data directory if needed.
// A nil log disables diagnostics.
func Open(cfg *config.Config, log logx.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logx.Nop()
	}

	disk, err := diskmgr.NewManager(cfg.DataDir, cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("storage: open disk manager: %w", err)
	}
	pool := buffer.NewBufferPool(disk, cfg.BufferPoolSize, log)
	lockMgr := lockmgr.New(log)
	txnMgr := txn.NewManager(lockMgr, log)

	return &Engine{Disk: disk, Pool: pool, LockMgr: lockMgr, TxnMgr: txnMgr, Log: log}, nil
}

// Close flushes nothing on its own (callers FlushAll per file before
// closing); it only releases the underlying OS file handles.
func (e *Engine) Close() error {
	return e.Disk.Close()
}

// Begin starts a new transaction against this engine.
func (e *Engine) Begin() *txn.Transaction {
	return e.TxnMgr.Begin()
}

// Commit commits tr, releasing its locks.
func (e *Engine) Commit(tr *txn.Transaction) {
	e.TxnMgr.Commit(tr)
}

// Abort rolls tr back, undoing its write-set before releasing its locks.
func (e *Engine) Abort(tr *txn.Transaction) error {
	return e.TxnMgr.Abort(tr)
}

// Ctx builds the record.Ctx a Record File Handle or B+Tree call needs for
// tr, wired to this engine's own lock manager and logger (spec §6's
// ExecContext).
func (e *Engine) Ctx(tr *txn.Transaction) *record.Ctx {
	return &record.Ctx{LockMgr: e.LockMgr, Txn: tr, Log: e.Log}
}

// CreateRecordFile formats a new heap file of recordSize-byte records,
// bound to this engine's shared buffer pool.
func (e *Engine) CreateRecordFile(recordSize int) (*record.File, error) {
	return record.Create(e.Pool, e.Disk, recordSize)
}

// OpenRecordFile reopens an existing heap file by its FileID.
func (e *Engine) OpenRecordFile(fileID diskmgr.FileID) (*record.File, error) {
	return record.Open(e.Pool, e.Disk, fileID)
}

// CreateIndex formats a new B+Tree index file keyed by a fixed-width
// column of the given type and length, bound to this engine's shared
// buffer pool.
func (e *Engine) CreateIndex(colType index.ColType, colLen int) (*index.BTree, error) {
	return index.Create(e.Pool, e.Disk, colType, colLen)
}

// OpenIndex reopens an existing B+Tree index file by its FileID.
func (e *Engine) OpenIndex(fileID diskmgr.FileID) (*index.BTree, error) {
	return index.Open(e.Pool, e.Disk, fileID)
}
