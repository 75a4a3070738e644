// Package buffer implements the clock-policy frame replacer and the
// buffer pool built on top of it (spec §4.1, §4.2).
package buffer

import "sync"

// status is a clock replacer slot's state.
type status uint8

const (
	// statusPinned marks a slot the replacer must never choose as a victim:
	// either the frame is currently pinned, or the slot is simply empty.
	statusPinned status = iota
	// statusUntouched is victimisable immediately.
	statusUntouched
	// statusAccessed was touched since it was last considered; the clock
	// hand demotes it to untouched on its next sweep before it can be
	// taken as a victim.
	statusAccessed
)

// ClockReplacer chooses a victim frame under the clock (second-chance)
// policy: Pin marks a frame unvictimisable, Unpin gives it one chance to
// be referenced again before Victim can reclaim it.
type ClockReplacer struct {
	mu       sync.Mutex
	statuses []status
	hand     int
}

// NewClockReplacer creates a replacer tracking capacity frame slots, all
// initially unvictimisable (as if freshly pinned).
func NewClockReplacer(capacity int) *ClockReplacer {
	return &ClockReplacer{statuses: make([]status, capacity)}
}

// Pin marks frame as in-use; the replacer will never choose it as a victim
// until it is Unpinned.
func (c *ClockReplacer) Pin(frame int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[frame] = statusPinned
}

// Unpin marks frame eligible for replacement. Per spec §4.1 this only
// transitions a frame that was exactly statusPinned into statusAccessed —
// a frame the clock hand already demoted to statusUntouched during a
// sweep stays untouched (and therefore immediately victimisable) even
// though it has since been unpinned again.
func (c *ClockReplacer) Unpin(frame int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statuses[frame] == statusPinned {
		c.statuses[frame] = statusAccessed
	}
}

// Victim advances the clock hand looking for a frame to reclaim, demoting
// statusAccessed frames to statusUntouched as it passes them. It returns
// (frame, true) for the first statusUntouched frame it finds, leaving that
// frame marked statusPinned (the caller is expected to immediately install
// a new page into it). If a full sweep demotes nothing and finds nothing
// to return, there is no victim — every frame is pinned — and it returns
// (0, false).
func (c *ClockReplacer) Victim() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.statuses)
	if n == 0 {
		return 0, false
	}
	for {
		demotedAny := false
		for i := 0; i < n; i++ {
			idx := c.hand
			c.hand = (c.hand + 1) % n
			switch c.statuses[idx] {
			case statusPinned:
				continue
			case statusAccessed:
				c.statuses[idx] = statusUntouched
				demotedAny = true
			case statusUntouched:
				c.statuses[idx] = statusPinned
				return idx, true
			}
		}
		if !demotedAny {
			return 0, false
		}
	}
}

// Size reports how many slots are currently not statusPinned.
func (c *ClockReplacer) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.statuses {
		if s != statusPinned {
			n++
		}
	}
	return n
}
