package correlate

import "sync/atomic"

// ID is the process-local transaction id that correlates a request with its
// callback deliveries.
type ID int64

// CancelID is the id assigned by the remote endpoint once the initiating call
// returns. It is required to cancel the request remotely. Zero means none.
type CancelID uint32

// Clock mints transaction ids.
//
// Every call to Next returns a strictly greater value than the previous one.
// Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first id is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose first id is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next transaction id.
func (c *Clock) Next() ID {
	return ID(c.seq.Add(1))
}

// Current returns the last id handed out, or the start value.
func (c *Clock) Current() ID {
	return ID(c.seq.Load())
}
