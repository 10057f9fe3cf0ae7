package simserver

import (
	"sync"

	"github.com/roach88/histsess/internal/correlate"
)

// frameType distinguishes callback frames.
type frameType int

const (
	// frameData carries a result payload for a transaction.
	frameData frameType = iota + 1
	// frameCancelAck acknowledges a remote cancel.
	frameCancelAck
)

// frame is one callback on the shared channel.
type frame struct {
	Type      frameType
	RequestID correlate.ID
	Payload   correlate.Payload
	CancelID  correlate.CancelID
}

// frameQueue is a thread-safe unbounded FIFO of callback frames.
//
// Any goroutine may enqueue (Begin, advise and playback jobs, Cancel); only
// the Run loop dequeues. The 1-buffered signal channel lets Run wait on the
// queue and a context at the same time.
type frameQueue struct {
	mu     sync.Mutex
	frames []frame
	closed bool
	signal chan struct{}
}

func newFrameQueue() *frameQueue {
	return &frameQueue{
		frames: make([]frame, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends f. Returns false if the queue is closed.
func (q *frameQueue) Enqueue(f frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.frames = append(q.frames, f)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front frame without blocking.
func (q *frameQueue) TryDequeue() (frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return frame{}, false
	}
	f := q.frames[0]

	// Clear the slot so the payload can be collected.
	q.frames[0] = frame{}
	if len(q.frames) == 1 {
		q.frames = q.frames[:0]
	} else {
		q.frames = q.frames[1:]
	}
	return f, true
}

// Wait returns a channel that fires when frames may be available or the
// queue was closed.
func (q *frameQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued frames.
func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Close stops further enqueues and wakes the Run loop.
func (q *frameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Closed reports whether Close was called.
func (q *frameQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
