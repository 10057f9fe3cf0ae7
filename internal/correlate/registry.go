package correlate

import (
	"log/slog"
	"sync"

	"github.com/roach88/histsess/internal/hda"
)

// Registry is the table of outstanding requests keyed by transaction id.
//
// It is the only place ids are minted and the only place entries are
// removed. Construct one per session and pass it to whatever needs it.
//
// Thread-safety model:
//   - All methods are safe for concurrent use
//   - One mutex guards the whole table (not per entry)
//   - Handlers run without the mutex held
type Registry struct {
	mu       sync.Mutex
	requests map[ID]*request
	byCancel map[CancelID]ID

	clock   *Clock
	logger  *slog.Logger
	metrics *Metrics
}

// request is one outstanding protocol transaction.
//
// INVARIANTS:
//   - directory == nil: pending, deliveries accumulate in buffered
//   - directory != nil: active, buffered is nil and never refilled
//   - pending -> active happens at most once
type request struct {
	id       ID
	cancelID CancelID
	token    any
	handler  Handler

	directory map[hda.ServerHandle]hda.Item
	buffered  []Payload
	actual    hda.TimeRange

	cancelSubscribers []func(ID)
	cancelRequested   bool

	// outbox holds deliveries waiting for the handler. draining is true
	// while some goroutine is running them.
	outbox   []func()
	draining bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for dropped deliveries and handler faults.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClock replaces the id clock, e.g. to resume numbering.
func WithClock(c *Clock) Option {
	return func(r *Registry) {
		r.clock = c
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		requests: make(map[ID]*request),
		byCancel: make(map[CancelID]ID),
		clock:    NewClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts a new pending request and returns its id.
//
// Call Register before sending the initiating remote call: deliveries that
// race ahead of the call's return are buffered under the returned id.
func (r *Registry) Register(callerToken any, h Handler) ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.clock.Next()
	r.requests[id] = &request{
		id:      id,
		token:   callerToken,
		handler: h,
	}
	r.metrics.addRequest(statePending, 1)
	return id
}

// Activation is the outcome of Activate.
type Activation int

const (
	// Open means the request is active and waits for deliveries.
	Open Activation = iota
	// Done means the request finished during activation: no item was
	// accepted, or a buffered delivery completed it.
	Done
	// Withdrawn means the request was cancelled or removed while its
	// initiating call was in flight. The caller owns the remote cancel.
	Withdrawn
)

func (a Activation) String() string {
	switch a {
	case Open:
		return "open"
	case Done:
		return "done"
	case Withdrawn:
		return "withdrawn"
	default:
		return "unknown"
	}
}

// Activate records the outcome of the initiating call and moves the request
// from pending to active.
//
// Only items whose Err is nil enter the item directory. With no accepted
// items the request is removed at once and Activate returns Done without
// invoking the handler. Otherwise every buffered delivery is replayed in
// arrival order; replay stops at the first delivery that satisfies the
// request's completion rule, in which case the request is removed and
// Activate returns Done.
//
// An unknown id, or a request cancelled while pending, returns Withdrawn.
// A cancelled request drops its buffered deliveries; if it has cancel
// subscribers and a non-zero cancelID it stays registered until
// CancelAcknowledged, otherwise it is removed and its subscribers run.
// A second Activate for the same id is ignored and returns Open.
func (r *Registry) Activate(id ID, cancelID CancelID, actual hda.TimeRange, items []InitialItem) Activation {
	r.mu.Lock()

	req, ok := r.requests[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("activate for unknown transaction", "request_id", id)
		return Withdrawn
	}
	if req.directory != nil {
		r.mu.Unlock()
		r.logger.Warn("request already active", "request_id", id)
		return Open
	}
	if req.cancelRequested {
		return r.withdrawLocked(req, cancelID, actual)
	}

	dir := make(map[hda.ServerHandle]hda.Item, len(items))
	for _, it := range items {
		if it.Err == nil {
			dir[it.Handle] = it.Item
		}
	}

	req.actual = actual
	if cancelID != 0 {
		req.cancelID = cancelID
		r.byCancel[cancelID] = id
	}

	if len(dir) == 0 {
		dropped := len(req.buffered)
		r.removeLocked(req, statePending, reasonEmpty)
		r.mu.Unlock()
		r.metrics.delivery(outcomeDropped, dropped)
		return Done
	}

	req.directory = dir
	buffered := req.buffered
	req.buffered = nil
	r.metrics.addRequest(statePending, -1)
	r.metrics.addRequest(stateActive, 1)

	completed := false
	replayed := 0
	run := false
	for _, p := range buffered {
		replayed++
		if r.enqueueLocked(req, r.resultLocked(req, p)) {
			run = true
		}
		if req.handler.kind.completes(p) {
			completed = true
			break
		}
	}
	if completed {
		r.removeLocked(req, stateActive, reasonCompleted)
	}
	r.mu.Unlock()

	r.metrics.delivery(outcomeDelivered, replayed)
	if dropped := len(buffered) - replayed; dropped > 0 {
		r.metrics.delivery(outcomeDropped, dropped)
		r.logger.Debug("deliveries after completion dropped",
			"request_id", id,
			"dropped", dropped,
		)
	}
	if run {
		r.drain(req)
	}
	if completed {
		return Done
	}
	return Open
}

// withdrawLocked activates a request cancelled while pending. Caller holds
// r.mu, which is released before returning.
func (r *Registry) withdrawLocked(req *request, cancelID CancelID, actual hda.TimeRange) Activation {
	dropped := len(req.buffered)
	req.buffered = nil
	req.actual = actual

	if cancelID != 0 && len(req.cancelSubscribers) > 0 {
		req.cancelID = cancelID
		r.byCancel[cancelID] = req.id
		req.directory = map[hda.ServerHandle]hda.Item{}
		r.metrics.addRequest(statePending, -1)
		r.metrics.addRequest(stateActive, 1)
		r.mu.Unlock()
		r.metrics.delivery(outcomeDropped, dropped)
		return Withdrawn
	}

	// No acknowledgment will arrive: release subscribers now.
	subs := req.cancelSubscribers
	req.cancelSubscribers = nil
	r.removeLocked(req, statePending, reasonCancelled)
	run := false
	for _, sub := range subs {
		if r.enqueueFuncLocked(req, func() { r.notifyCancel(req, sub) }) {
			run = true
		}
	}
	r.mu.Unlock()

	r.metrics.delivery(outcomeDropped, dropped)
	if run {
		r.drain(req)
	}
	return Withdrawn
}

// Dispatch routes one callback delivery.
//
// Unknown ids are dropped. Pending requests buffer the payload. Active
// requests receive it, enriched with the cached item identities and actual
// time range; a delivery that satisfies the completion rule removes the
// request.
func (r *Registry) Dispatch(id ID, p Payload) {
	r.mu.Lock()

	req, ok := r.requests[id]
	if !ok {
		r.mu.Unlock()
		r.metrics.delivery(outcomeDropped, 1)
		r.logger.Debug("delivery for unknown transaction dropped", "request_id", id)
		return
	}

	if req.directory == nil {
		req.buffered = append(req.buffered, p)
		r.mu.Unlock()
		r.metrics.delivery(outcomeBuffered, 1)
		return
	}

	run := r.enqueueLocked(req, r.resultLocked(req, p))
	if req.handler.kind.completes(p) {
		r.removeLocked(req, stateActive, reasonCompleted)
	}
	r.mu.Unlock()

	r.metrics.delivery(outcomeDelivered, 1)
	if run {
		r.drain(req)
	}
}

// Cancel marks a request as cancelled.
//
// Without onAcknowledged the request is removed immediately. With it, the
// callback is queued and the request stays registered, still receiving
// deliveries, until CancelAcknowledged is called with its remote cancel id.
// A pending request with onAcknowledged stays registered and Activate
// reports it Withdrawn. Cancel returns false for unknown ids.
func (r *Registry) Cancel(id ID, onAcknowledged func(ID)) bool {
	_, err := r.Withdraw(id, onAcknowledged)
	return err == nil
}

// Withdraw is Cancel that also returns the remote cancel id the request
// carried when it was cancelled. A zero id means the request was still
// pending and its Activate will report Withdrawn. Unknown ids return
// ErrUnknownTransaction.
func (r *Registry) Withdraw(id ID, onAcknowledged func(ID)) (CancelID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return 0, ErrUnknownTransaction
	}
	cancelID := req.cancelID
	if onAcknowledged == nil {
		r.removeLocked(req, req.state(), reasonCancelled)
		return cancelID, nil
	}
	req.cancelSubscribers = append(req.cancelSubscribers, onAcknowledged)
	if req.directory == nil {
		req.cancelRequested = true
	}
	return cancelID, nil
}

// CancelAcknowledged is called by the transport once the remote endpoint
// confirms a cancellation. Subscribers run after any deliveries already
// queued for the request, then the request is gone. Returns false if no
// registered request carries cancelID.
func (r *Registry) CancelAcknowledged(cancelID CancelID) bool {
	r.mu.Lock()

	id, ok := r.byCancel[cancelID]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("cancel acknowledgment for unknown transaction", "cancel_id", cancelID)
		return false
	}
	req := r.requests[id]
	subs := req.cancelSubscribers
	req.cancelSubscribers = nil
	r.removeLocked(req, req.state(), reasonCancelled)

	run := false
	for _, sub := range subs {
		if r.enqueueFuncLocked(req, func() { r.notifyCancel(req, sub) }) {
			run = true
		}
	}
	r.mu.Unlock()

	if run {
		r.drain(req)
	}
	return true
}

// Fail resolves a request whose initiating call failed. The handler receives
// one Result carrying err and the request is removed. Returns false for
// unknown ids.
func (r *Registry) Fail(id ID, err error) bool {
	r.mu.Lock()

	req, ok := r.requests[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	res := &Result{
		RequestID:   req.id,
		CallerToken: req.token,
		ActualTime:  req.actual,
		Err:         err,
	}
	dropped := len(req.buffered)
	r.removeLocked(req, req.state(), reasonFailed)
	run := r.enqueueLocked(req, res)
	r.mu.Unlock()

	r.metrics.delivery(outcomeDropped, dropped)
	if run {
		r.drain(req)
	}
	return true
}

// Unregister removes a request without notifying its handler. It is
// idempotent and reports whether the id was present.
func (r *Registry) Unregister(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return false
	}
	r.removeLocked(req, req.state(), reasonUnregistered)
	return true
}

// RemoteCancelID returns the remote cancel id of a registered request.
// The id is zero while the request is pending.
func (r *Registry) RemoteCancelID(id ID) (CancelID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return 0, ErrUnknownTransaction
	}
	return req.cancelID, nil
}

// State reports whether id is registered and, if so, whether it is active.
func (r *Registry) State(id ID) (registered, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return false, false
	}
	return true, req.directory != nil
}

// Len returns the number of registered requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// Outstanding identifies a request removed by Clear.
type Outstanding struct {
	ID       ID
	CancelID CancelID
	Kind     Kind
}

// Clear removes every request without notifying handlers and returns what
// was outstanding, ordered by id. Used at session end to cancel remotely.
func (r *Registry) Clear() []Outstanding {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Outstanding, 0, len(r.requests))
	for _, req := range r.requests {
		out = append(out, Outstanding{ID: req.id, CancelID: req.cancelID, Kind: req.handler.kind})
	}
	for _, o := range out {
		req := r.requests[o.ID]
		r.removeLocked(req, req.state(), reasonCleared)
	}
	sortOutstanding(out)
	return out
}

func (req *request) state() string {
	if req.directory == nil {
		return statePending
	}
	return stateActive
}

// removeLocked deletes req from the table. Caller holds r.mu.
func (r *Registry) removeLocked(req *request, state, reason string) {
	delete(r.requests, req.id)
	if req.cancelID != 0 {
		delete(r.byCancel, req.cancelID)
	}
	req.buffered = nil
	r.metrics.addRequest(state, -1)
	r.metrics.removal(req.handler.kind, reason)
}

// resultLocked builds the Result for one payload of an active request.
// Caller holds r.mu.
func (r *Registry) resultLocked(req *request, p Payload) *Result {
	res := &Result{
		RequestID:   req.id,
		CallerToken: req.token,
		ActualTime:  req.actual,
		Err:         p.Err,
		Items:       make([]ItemResult, len(p.Entries)),
	}
	for i, e := range p.Entries {
		item, ok := req.directory[e.Handle]
		if !ok {
			r.logger.Debug("delivery for unknown item handle",
				"request_id", req.id,
				"handle", e.Handle,
			)
		}
		res.Items[i] = ItemResult{Item: item, Entry: e}
	}
	return res
}
