package simserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/histsess/internal/correlate"
	"github.com/roach88/histsess/internal/hda"
	"github.com/roach88/histsess/internal/store"
	"github.com/roach88/histsess/internal/transport"
)

// Defaults applied by New.
const (
	DefaultPageSize       = 100
	DefaultAdviseInterval = time.Second

	// maxIntervals caps the resample intervals of one processed read.
	maxIntervals = 100_000
)

var (
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("server closed")

	// ErrNoSink is logged when a frame is pumped before Bind.
	ErrNoSink = errors.New("no sink bound")
)

// Server is the in-process historian endpoint.
//
// Thread-safety model:
//   - Begin, Cancel, Bind and the browse.Namespace methods are safe from any
//     goroutine
//   - Run must be called from exactly one goroutine
type Server struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time

	pageSize       int
	adviseInterval time.Duration

	queue   *frameQueue
	nextCID atomic.Uint32

	mu       sync.Mutex
	sink     transport.Sink
	jobs     map[correlate.CancelID]*job
	position string

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// job is a running advise or playback subscription.
type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithPageSize sets the number of raw values per item in one ReadRaw
// delivery. Values <= 0 keep the default.
func WithPageSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithAdviseInterval sets the update period used when a call does not name
// one. Values <= 0 keep the default.
func WithAdviseInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.adviseInterval = d
		}
	}
}

// WithNow replaces the wall clock used to stamp annotations.
func WithNow(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New creates a server over st. Call Run to start delivering callbacks.
func New(st *store.Store, opts ...Option) *Server {
	base, stop := context.WithCancel(context.Background())
	s := &Server{
		store:          st,
		logger:         slog.Default(),
		now:            time.Now,
		pageSize:       DefaultPageSize,
		adviseInterval: DefaultAdviseInterval,
		queue:          newFrameQueue(),
		jobs:           make(map[correlate.CancelID]*job),
		base:           base,
		stop:           stop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind implements transport.Transport.
func (s *Server) Bind(sink transport.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Run pumps callback frames into the bound sink until ctx is done or the
// server is closed. A frame that cannot be delivered is logged and skipped.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("simserver starting")

	for {
		f, ok := s.queue.TryDequeue()
		if ok {
			if err := s.deliver(f); err != nil {
				logFrameError(s.logger, f, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Info("simserver stopping: context cancelled")
			s.Close()
			return ctx.Err()

		case <-s.queue.Wait():
			// A closed queue fires forever; stop once it is drained.
			if s.queue.Closed() && s.queue.Len() == 0 {
				s.logger.Info("simserver stopping: queue closed")
				return nil
			}
		}
	}
}

// Close stops every subscription and closes the callback queue. Frames
// already queued are still delivered by Run.
func (s *Server) Close() {
	s.stop()
	s.wg.Wait()
	s.queue.Close()
}

func (s *Server) deliver(f frame) error {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return ErrNoSink
	}

	switch f.Type {
	case frameData:
		sink.Dispatch(f.RequestID, f.Payload)
	case frameCancelAck:
		sink.CancelAcknowledged(f.CancelID)
	default:
		return fmt.Errorf("unknown frame type: %d", f.Type)
	}
	return nil
}

func logFrameError(l *slog.Logger, f frame, err error) {
	switch f.Type {
	case frameCancelAck:
		l.Error("cancel acknowledgment not delivered",
			"error", err,
			"cancel_id", f.CancelID,
		)
	default:
		l.Error("callback not delivered",
			"error", err,
			"request_id", f.RequestID,
			"entries", len(f.Payload.Entries),
		)
	}
}

// post queues a data frame for id.
func (s *Server) post(id correlate.ID, p correlate.Payload) bool {
	return s.queue.Enqueue(frame{Type: frameData, RequestID: id, Payload: p})
}

// Begin implements transport.Transport. Items are validated one by one;
// unknown items are rejected with store.ErrItemNotFound and take no further
// part in the call. One-shot results are queued before Begin returns.
func (s *Server) Begin(ctx context.Context, call *transport.Call) (*transport.Reply, error) {
	if s.queue.Closed() {
		return nil, ErrClosed
	}
	if call == nil || call.RequestID == 0 {
		return nil, errors.New("begin: missing request id")
	}
	if err := s.checkCall(call); err != nil {
		return nil, fmt.Errorf("begin %s: %w", call.Op, err)
	}

	reply := &transport.Reply{
		CancelID: correlate.CancelID(s.nextCID.Add(1)),
		Actual:   call.Range,
		Items:    make([]correlate.InitialItem, len(call.Items)),
	}

	var accepted []acceptedItem
	for i, it := range call.Items {
		it.ID = hda.NormalizeItemID(string(it.ID))
		handle := hda.ServerHandle(i + 1)
		reply.Items[i] = correlate.InitialItem{Handle: handle, Item: it}

		ok, err := s.store.ItemExists(ctx, it.ID)
		if err != nil {
			return nil, fmt.Errorf("begin %s: %w", call.Op, err)
		}
		if !ok {
			reply.Items[i].Err = fmt.Errorf("%w: %s", store.ErrItemNotFound, it.ID)
			continue
		}
		accepted = append(accepted, acceptedItem{index: i, handle: handle, id: it.ID})
	}

	s.logger.Debug("begin",
		"op", call.Op,
		"request_id", call.RequestID,
		"cancel_id", reply.CancelID,
		"items", len(call.Items),
		"accepted", len(accepted),
	)

	if len(accepted) == 0 {
		return reply, nil
	}

	switch call.Op {
	case transport.OpAdviseRaw:
		s.startJob(reply.CancelID, func(ctx context.Context) {
			s.advise(ctx, call, accepted)
		})
		reply.Actual = hda.TimeRange{Start: call.Range.Start}
		return reply, nil
	case transport.OpPlayback:
		s.startJob(reply.CancelID, func(ctx context.Context) {
			s.playback(ctx, call, accepted)
		})
		return reply, nil
	}

	payloads, err := s.oneShot(ctx, call, accepted)
	if err != nil {
		return nil, fmt.Errorf("begin %s: %w", call.Op, err)
	}
	for _, p := range payloads {
		if !s.post(call.RequestID, p) {
			return nil, ErrClosed
		}
	}
	return reply, nil
}

// acceptedItem is an item of a call that passed validation.
type acceptedItem struct {
	index  int
	handle hda.ServerHandle
	id     hda.ItemID
}

func (s *Server) checkCall(call *transport.Call) error {
	switch call.Op {
	case transport.OpReadProcessed:
		if call.Interval <= 0 {
			return errors.New("resample interval must be positive")
		}
		lo, hi := call.Range.Start, call.Range.End
		if call.Range.Descending() {
			lo, hi = hi, lo
		}
		if hi.Sub(lo)/call.Interval >= maxIntervals {
			return fmt.Errorf("more than %d resample intervals", maxIntervals)
		}
		if _, ok := aggregators[call.Aggregate]; !ok {
			return fmt.Errorf("unsupported aggregate %s", call.Aggregate)
		}
	case transport.OpPlayback:
		if call.Window <= 0 {
			return errors.New("playback window must be positive")
		}
	case transport.OpUpdate:
		switch call.Edit {
		case hda.EditInsert, hda.EditReplace, hda.EditInsertReplace:
		default:
			return fmt.Errorf("unsupported edit type %s", call.Edit)
		}
		if len(call.Values) != len(call.Items) {
			return fmt.Errorf("%d value lists for %d items", len(call.Values), len(call.Items))
		}
	case transport.OpDeleteAtTime:
		if len(call.Values) != len(call.Items) {
			return fmt.Errorf("%d value lists for %d items", len(call.Values), len(call.Items))
		}
	case transport.OpInsertAnnotations:
		if len(call.Annotations) != len(call.Items) {
			return fmt.Errorf("%d annotation lists for %d items", len(call.Annotations), len(call.Items))
		}
	case transport.OpReadRaw, transport.OpReadAtTime, transport.OpReadAttributes,
		transport.OpReadAnnotations, transport.OpDelete, transport.OpAdviseRaw:
	default:
		return fmt.Errorf("unsupported operation %s", call.Op)
	}
	return nil
}

func (s *Server) oneShot(ctx context.Context, call *transport.Call, items []acceptedItem) ([]correlate.Payload, error) {
	switch call.Op {
	case transport.OpReadRaw:
		return s.readRaw(ctx, call, items)
	case transport.OpReadProcessed:
		return s.readProcessed(ctx, call, items)
	case transport.OpReadAtTime:
		return s.readAtTime(ctx, call, items)
	case transport.OpReadAttributes:
		return s.readAttributes(ctx, call, items)
	case transport.OpReadAnnotations:
		return s.readAnnotations(ctx, call, items)
	case transport.OpUpdate:
		return s.update(ctx, call, items)
	case transport.OpDelete:
		return s.deleteRange(ctx, call, items)
	case transport.OpDeleteAtTime:
		return s.deleteAtTime(ctx, call, items)
	case transport.OpInsertAnnotations:
		return s.insertAnnotations(ctx, call, items)
	default:
		return nil, fmt.Errorf("unsupported operation %s", call.Op)
	}
}

// Cancel implements transport.Transport. A running subscription is stopped
// before the acknowledgment is queued, so no data frame for it follows the
// acknowledgment. Unknown or finished calls are acknowledged too.
func (s *Server) Cancel(_ context.Context, cancelID correlate.CancelID) error {
	if cancelID == 0 {
		return errors.New("cancel: zero cancel id")
	}

	s.mu.Lock()
	j := s.jobs[cancelID]
	delete(s.jobs, cancelID)
	s.mu.Unlock()

	if j != nil {
		j.cancel()
		<-j.done
	}

	if !s.queue.Enqueue(frame{Type: frameCancelAck, CancelID: cancelID}) {
		return ErrClosed
	}
	s.logger.Debug("cancel queued", "cancel_id", cancelID, "subscription", j != nil)
	return nil
}

// startJob runs fn until it returns, the call is cancelled or the server
// closes.
func (s *Server) startJob(cancelID correlate.CancelID, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(s.base)
	j := &job{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.jobs[cancelID] = j
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(j.done)
		defer cancel()
		fn(ctx)
	}()
}

// Subscriptions returns the number of running advise and playback jobs.
func (s *Server) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		select {
		case <-j.done:
		default:
			n++
		}
	}
	return n
}
