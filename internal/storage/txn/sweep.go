package txn

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically logs long-GROWING transactions — a visibility aid,
// not deadlock detection (spec.md §9 leaves deadlock detection
// unspecified). It never aborts a transaction on its own.
type Sweeper struct {
	cron      *cron.Cron
	mgr       *Manager
	threshold time.Duration
	since     map[uint64]time.Time
}

// NewSweeper builds a sweeper that, once Start is called, scans every
// interval for transactions that have held StateGrowing longer than
// threshold. Disabled until Start is called; the transaction manager works
// identically whether or not a sweeper is ever started.
func NewSweeper(mgr *Manager, threshold time.Duration) *Sweeper {
	return &Sweeper{
		cron:      cron.New(),
		mgr:       mgr,
		threshold: threshold,
		since:     make(map[uint64]time.Time),
	}
}

// Start schedules the sweep to run every interval (default 30s if interval
// is 0) and begins the cron scheduler's own goroutine.
func (s *Sweeper) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	spec := "@every " + interval.String()
	_, err := s.cron.AddFunc(spec, s.sweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for any in-flight sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	now := time.Now()
	s.mgr.mu.Lock()
	candidates := make([]*Transaction, 0, len(s.mgr.txns))
	for _, t := range s.mgr.txns {
		if t.State() == StateGrowing {
			candidates = append(candidates, t)
		}
	}
	s.mgr.mu.Unlock()

	seen := make(map[uint64]bool, len(candidates))
	for _, t := range candidates {
		seen[t.ID()] = true
		start, ok := s.since[t.ID()]
		if !ok {
			s.since[t.ID()] = now
			continue
		}
		if now.Sub(start) >= s.threshold {
			s.mgr.log.Warn("long-running GROWING transaction", "txn", t.ID(), "growing_for", now.Sub(start).String())
		}
	}
	for id := range s.since {
		if !seen[id] {
			delete(s.since, id)
		}
	}
}
