package testutil

import (
	"sync"
	"time"
)

// WallClock is a settable wall clock for tests.
//
// Relative times resolve against Now, so a scenario that pins the clock
// produces the same absolute ranges on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type WallClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewWallClock creates a clock stopped at t.
func NewWallClock(t time.Time) *WallClock {
	return &WallClock{now: t}
}

// Now returns the current clock time. It never moves on its own.
func (c *WallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d (backwards for negative d).
func (c *WallClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *WallClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
