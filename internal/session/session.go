package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/histsess/internal/browse"
	"github.com/roach88/histsess/internal/correlate"
	"github.com/roach88/histsess/internal/hda"
	"github.com/roach88/histsess/internal/reltime"
	"github.com/roach88/histsess/internal/transport"
)

// Session is one client connection to a historian endpoint.
//
// Thread-safety model:
//   - All operations are safe for concurrent use
//   - Handlers run on whichever goroutine delivers the frame (usually the
//     transport's callback pump) and must not block for long
//   - A browse.Cursor belongs to one caller at a time
type Session struct {
	id        string
	transport transport.Transport
	registry  *correlate.Registry
	browser   *browse.Browser
	resolver  reltime.Resolver
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
}

type options struct {
	logger    *slog.Logger
	now       func() time.Time
	resolver  reltime.Resolver
	ids       IDGenerator
	namespace browse.Namespace
	registry  []correlate.Option
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the base logger. Every line carries the session id.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock sets the wall clock relative times are resolved against.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithResolver sets the relative time resolver, e.g. to change the first
// day of the week.
func WithResolver(r reltime.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithIDGenerator replaces the UUIDv7 session id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithNamespace sets the namespace used by Browse. By default the
// transport is used when it implements browse.Namespace.
func WithNamespace(ns browse.Namespace) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithRegistryOptions passes options to the session's registry.
func WithRegistryOptions(opts ...correlate.Option) Option {
	return func(o *options) {
		o.registry = append(o.registry, opts...)
	}
}

// New creates a session over tr and binds it as tr's sink.
func New(tr transport.Transport, opts ...Option) *Session {
	o := options{
		logger: slog.Default(),
		now:    time.Now,
		ids:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.namespace == nil {
		if ns, ok := tr.(browse.Namespace); ok {
			o.namespace = ns
		}
	}

	id := o.ids.Generate()
	logger := o.logger.With("session_id", id)

	s := &Session{
		id:        id,
		transport: tr,
		registry:  correlate.NewRegistry(append([]correlate.Option{correlate.WithLogger(logger)}, o.registry...)...),
		resolver:  o.resolver,
		now:       o.now,
		logger:    logger,
	}
	if o.namespace != nil {
		s.browser = browse.NewBrowser(o.namespace, logger)
	}
	tr.Bind(s)

	logger.Info("session opened")
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Registry exposes the session's correlation registry.
func (s *Session) Registry() *correlate.Registry {
	return s.registry
}

// Dispatch implements transport.Sink.
func (s *Session) Dispatch(id correlate.ID, p correlate.Payload) {
	s.registry.Dispatch(id, p)
}

// CancelAcknowledged implements transport.Sink.
func (s *Session) CancelAcknowledged(cancelID correlate.CancelID) bool {
	return s.registry.CancelAcknowledged(cancelID)
}

// Resolve evaluates t against the session clock.
func (s *Session) Resolve(t reltime.Time) time.Time {
	return s.resolver.Resolve(t, s.now())
}

// Span is a pair of possibly relative time bounds.
type Span struct {
	Start reltime.Time
	End   reltime.Time
}

func (s *Session) resolveSpan(sp Span) hda.TimeRange {
	now := s.now()
	return hda.TimeRange{
		Start: s.resolver.Resolve(sp.Start, now),
		End:   s.resolver.Resolve(sp.End, now),
	}
}

// Request is the handle of an issued operation.
type Request struct {
	ID       correlate.ID
	CancelID correlate.CancelID

	// Items is the per-item outcome of the initiating call, in request order.
	Items []correlate.InitialItem

	// Actual is the time window the endpoint resolved.
	Actual hda.TimeRange

	// Completed is set when the request finished while it was activated:
	// no item was accepted, or a result that raced ahead of the call
	// already completed it.
	Completed bool
}

// Accepted returns the number of items the endpoint accepted.
func (r *Request) Accepted() int {
	n := 0
	for _, it := range r.Items {
		if it.Err == nil {
			n++
		}
	}
	return n
}

// issue registers a request, sends call and activates the request with the
// reply. A failed call resolves the request with an error result and is
// returned as a TransportFault. A request cancelled, or cleared by Close,
// while the call was in flight is cancelled remotely here.
func (s *Session) issue(ctx context.Context, call *transport.Call, token any, h correlate.Handler) (*Request, error) {
	// Registering under s.mu orders the request against Close's Clear.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	id := s.registry.Register(token, h)
	s.mu.Unlock()
	call.RequestID = id

	reply, err := s.transport.Begin(ctx, call)
	if err != nil {
		fault := &TransportFault{Op: call.Op.String(), RequestID: id, Err: err}
		s.registry.Fail(id, fault)
		s.logger.Warn("initiating call failed",
			"op", call.Op,
			"request_id", id,
			"error", err,
		)
		return nil, fault
	}

	outcome := s.registry.Activate(id, reply.CancelID, reply.Actual, reply.Items)
	if outcome == correlate.Withdrawn {
		s.withdraw(ctx, id, reply.CancelID)
	}
	s.logger.Debug("request issued",
		"op", call.Op,
		"request_id", id,
		"cancel_id", reply.CancelID,
		"outcome", outcome,
	)

	completed := outcome == correlate.Done
	if outcome == correlate.Withdrawn {
		registered, _ := s.registry.State(id)
		completed = !registered
	}
	return &Request{
		ID:        id,
		CancelID:  reply.CancelID,
		Items:     reply.Items,
		Actual:    reply.Actual,
		Completed: completed,
	}, nil
}

// withdraw sends the remote cancel for a request that was dropped locally
// before its initiating call returned.
func (s *Session) withdraw(ctx context.Context, id correlate.ID, cancelID correlate.CancelID) {
	if cancelID == 0 {
		return
	}
	if err := s.transport.Cancel(ctx, cancelID); err != nil {
		// No acknowledgment will come for a cancel that was never sent.
		s.registry.Unregister(id)
		s.logger.Warn("remote cancel failed",
			"request_id", id,
			"cancel_id", cancelID,
			"error", err,
		)
	}
}

// Cancel stops req.
//
// A request still waiting for its initiating call has no remote cancel id
// yet; the remote cancel is sent once the call returns. Otherwise the
// remote cancel is issued at once. With onAcknowledged the request keeps
// receiving deliveries until the endpoint confirms, without it the request
// is removed at once. Cancelling a request
// that already finished returns correlate.ErrUnknownTransaction.
func (s *Session) Cancel(ctx context.Context, req *Request, onAcknowledged func(correlate.ID)) error {
	cancelID, err := s.registry.Withdraw(req.ID, onAcknowledged)
	if err != nil {
		return err
	}
	if cancelID == 0 {
		return nil
	}

	if err := s.transport.Cancel(ctx, cancelID); err != nil {
		// No acknowledgment will come for a cancel that was never sent.
		s.registry.Unregister(req.ID)
		return &TransportFault{Op: "Cancel", RequestID: req.ID, Err: err}
	}
	return nil
}

// Close cancels every outstanding request remotely and rejects further
// operations. Handlers of outstanding requests are not notified.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	outstanding := s.registry.Clear()
	for _, o := range outstanding {
		if o.CancelID == 0 {
			continue
		}
		if err := s.transport.Cancel(ctx, o.CancelID); err != nil {
			errs = append(errs, &TransportFault{Op: "Cancel", RequestID: o.ID, Err: err})
		}
	}

	s.logger.Info("session closed", "outstanding", len(outstanding))
	return errors.Join(errs...)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
