package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/histsess/internal/browse"
	"github.com/roach88/histsess/internal/correlate"
	"github.com/roach88/histsess/internal/hda"
	"github.com/roach88/histsess/internal/reltime"
	"github.com/roach88/histsess/internal/session"
	"github.com/roach88/histsess/internal/simserver"
	"github.com/roach88/histsess/internal/store"
	"github.com/roach88/histsess/internal/testutil"
)

// StepTimeout bounds the wait for one request to complete.
const StepTimeout = 5 * time.Second

// TraceEvent is one line of a scenario trace.
type TraceEvent struct {
	Step int    `json:"step"`
	Type string `json:"type"`
	Text string `json:"text"`
}

func (e TraceEvent) String() string {
	return fmt.Sprintf("[%d] %s: %s", e.Step, e.Type, e.Text)
}

// Trace event types.
const (
	EventResolve    = "resolve"
	EventPage       = "page"
	EventCall       = "call"
	EventReject     = "reject"
	EventDelivery   = "delivery"
	EventItem       = "item"
	EventValue      = "value"
	EventAttribute  = "attribute"
	EventAnnotation = "annotation"
	EventError      = "error"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	SessionID string       `json:"session_id"`
	Trace     []TraceEvent `json:"trace"`

	// Errors holds one message per failed assertion.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed assertion and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(step int, typ, format string, args ...any) {
	r.Trace = append(r.Trace, TraceEvent{Step: step, Type: typ, Text: fmt.Sprintf(format, args...)})
}

// Render returns the trace as text, one event per line.
func (r *Result) Render(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	fmt.Fprintf(&b, "session: %s\n", r.SessionID)
	for _, ev := range r.Trace {
		b.WriteString(ev.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Harness runs scenario steps against one session.
type Harness struct {
	session *session.Session
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a pinned wall clock
// and a fixed session id, so the same scenario always yields the same trace.
//
// Execution flow:
//  1. Create and seed an in-memory store
//  2. Start a simulated server and a session bound to it
//  3. Execute steps, each waiting for its request to complete
//  4. Evaluate assertions against the trace and final store
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := st.Seed(ctx, scenario.Fixture); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	weekStart, err := parseWeekday(scenario.WeekStart)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewWallClock(scenario.Now)
	srv := simserver.New(st,
		simserver.WithLogger(logger),
		simserver.WithNow(clock.Now),
		simserver.WithPageSize(scenario.PageSize),
	)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.Run(runCtx) }()

	sess := session.New(srv,
		session.WithLogger(logger),
		session.WithClock(clock.Now),
		session.WithResolver(reltime.Resolver{WeekStart: weekStart}),
		session.WithIDGenerator(testutil.NewFixedIDGenerator(scenario.SessionID)),
	)
	defer func() {
		_ = sess.Close(ctx)
		srv.Close()
		stop()
		<-done
	}()

	h := &Harness{session: sess}

	result := NewResult()
	result.SessionID = sess.ID()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}

	actx := &AssertionContext{Ctx: ctx, Store: st, Resolve: sess.Resolve}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step. Operation failures are recorded in the trace;
// the returned error is reserved for harness faults such as a request that
// never completes.
func (h *Harness) executeStep(ctx context.Context, n int, step Step, result *Result) error {
	switch step.Op {
	case OpResolve:
		t := reltime.MustParse(step.Time)
		result.add(n, EventResolve, "%s -> %s", t, formatTime(h.session.Resolve(t)))
		return nil
	case OpBrowse:
		page := 0
		err := h.session.BrowseAll(ctx, step.Root, step.PageSize, func(elems []browse.Element) error {
			page++
			result.add(n, EventPage, "%d: %s", page, formatElements(elems))
			return nil
		})
		if err != nil {
			result.add(n, EventError, "%v", err)
		}
		return nil
	}

	items := make([]hda.Item, len(step.Items))
	for i, id := range step.Items {
		items[i] = hda.Item{ID: hda.ItemID(id), ClientHandle: hda.ClientHandle(i + 1)}
	}
	span := session.Span{Start: parseOr(step.Start), End: parseOr(step.End)}

	c := newCollector()
	var (
		req  *session.Request
		err  error
		kind correlate.Kind
	)
	switch step.Op {
	case OpReadRaw:
		kind = correlate.KindReadValues
		req, err = h.session.ReadRaw(ctx, items, span, step.MaxValues, nil, c.handle)
	case OpReadProcessed:
		kind = correlate.KindReadValues
		agg, _ := hda.ParseAggregate(step.Aggregate)
		interval, _ := time.ParseDuration(step.Interval)
		req, err = h.session.ReadProcessed(ctx, items, span, agg, interval, nil, c.handle)
	case OpReadAtTime:
		kind = correlate.KindReadValues
		times := make([]reltime.Time, len(step.Times))
		for i, t := range step.Times {
			times[i] = reltime.MustParse(t)
		}
		req, err = h.session.ReadAtTime(ctx, items, times, nil, c.handle)
	case OpReadAttributes:
		kind = correlate.KindReadAttributes
		attrs := make([]hda.AttributeID, len(step.Attributes))
		for i, name := range step.Attributes {
			attrs[i], _ = hda.ParseAttributeID(name)
		}
		req, err = h.session.ReadAttributes(ctx, items, span, attrs, nil, c.handle)
	case OpReadAnnotations:
		kind = correlate.KindReadAnnotations
		req, err = h.session.ReadAnnotations(ctx, items, span, nil, c.handle)
	case OpInsert, OpReplace, OpInsertReplace:
		kind = correlate.KindUpdate
		values := h.values(step.Values, len(items))
		switch step.Op {
		case OpInsert:
			req, err = h.session.Insert(ctx, items, values, nil, c.handle)
		case OpReplace:
			req, err = h.session.Replace(ctx, items, values, nil, c.handle)
		default:
			req, err = h.session.InsertReplace(ctx, items, values, nil, c.handle)
		}
	case OpDelete:
		kind = correlate.KindUpdate
		req, err = h.session.Delete(ctx, items, span, nil, c.handle)
	case OpDeleteAtTime:
		kind = correlate.KindUpdate
		times := make([][]time.Time, len(items))
		for i := range items {
			for _, t := range step.Times {
				times[i] = append(times[i], h.session.Resolve(reltime.MustParse(t)))
			}
		}
		req, err = h.session.DeleteAtTime(ctx, items, times, nil, c.handle)
	case OpInsertAnnotations:
		kind = correlate.KindUpdate
		notes := make([][]hda.Annotation, len(items))
		for i := range items {
			for _, note := range step.Notes {
				notes[i] = append(notes[i], hda.Annotation{
					Timestamp: h.session.Resolve(reltime.MustParse(note.Time)),
					Text:      note.Text,
					User:      note.User,
				})
			}
		}
		req, err = h.session.InsertAnnotations(ctx, items, notes, nil, c.handle)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	if err != nil {
		result.add(n, EventError, "%v", err)
		return nil
	}
	h.recordCall(n, step.Op, req, result)
	if req.Accepted() == 0 {
		return nil
	}

	results, err := c.await(ctx, kind)
	if err != nil {
		return err
	}
	for k, res := range results {
		recordResult(n, k+1, kind, res, result)
	}
	return nil
}

func (h *Harness) values(steps []StepValue, items int) [][]hda.Value {
	vals := make([]hda.Value, len(steps))
	for i, v := range steps {
		q := hda.Quality(v.Quality)
		if q == 0 {
			q = hda.QualityGood
		}
		vals[i] = hda.Value{
			Timestamp: h.session.Resolve(reltime.MustParse(v.Time)),
			Data:      v.Value,
			Quality:   q,
		}
	}
	out := make([][]hda.Value, items)
	for i := range out {
		out[i] = vals
	}
	return out
}

func (h *Harness) recordCall(n int, op string, req *session.Request, result *Result) {
	text := fmt.Sprintf("%s request=%d accepted=%d/%d", op, req.ID, req.Accepted(), len(req.Items))
	if !req.Actual.Start.IsZero() || !req.Actual.End.IsZero() {
		text += " actual=" + formatRange(req.Actual)
	}
	result.add(n, EventCall, "%s", text)
	for _, it := range req.Items {
		if it.Err != nil {
			result.add(n, EventReject, "%s: %v", it.Item.ID, it.Err)
		}
	}
}

func recordResult(n, seq int, kind correlate.Kind, res *correlate.Result, result *Result) {
	if res.Err != nil {
		result.add(n, EventDelivery, "#%d request=%d: %v", seq, res.RequestID, res.Err)
		return
	}
	result.add(n, EventDelivery, "#%d request=%d", seq, res.RequestID)

	for _, ir := range res.Items {
		id := ir.Item.ID
		text := string(id)
		switch {
		case ir.Err != nil:
			text += ": " + oneLine(ir.Err)
		case kind == correlate.KindUpdate:
			text += " ok"
		case ir.MoreData:
			text += " more"
		}
		result.add(n, EventItem, "%s", text)

		for _, v := range ir.Values {
			result.add(n, EventValue, "%s %s %s %s", id, formatTime(v.Timestamp), formatFloat(v.Data), v.Quality)
		}
		for _, a := range ir.Attributes {
			if a.Err != nil {
				result.add(n, EventAttribute, "%s %s: %v", id, a.ID, a.Err)
				continue
			}
			for _, av := range a.Values {
				result.add(n, EventAttribute, "%s %s %s %q", id, a.ID, formatTime(av.Timestamp), av.Data)
			}
		}
		for _, note := range ir.Annotations {
			text := fmt.Sprintf("%s %s %q", id, formatTime(note.Timestamp), note.Text)
			if note.User != "" {
				text += " by " + note.User
			}
			result.add(n, EventAnnotation, "%s", text)
		}
	}
}

// collector gathers the results of one request.
type collector struct {
	results chan *correlate.Result
}

func newCollector() *collector {
	return &collector{results: make(chan *correlate.Result, 256)}
}

func (c *collector) handle(res *correlate.Result) error {
	c.results <- res
	return nil
}

// await reads results until one satisfies kind's completion rule.
func (c *collector) await(ctx context.Context, kind correlate.Kind) ([]*correlate.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, StepTimeout)
	defer cancel()

	var out []*correlate.Result
	for {
		select {
		case res := <-c.results:
			out = append(out, res)
			if completes(kind, res) {
				return out, nil
			}
		case <-ctx.Done():
			return out, fmt.Errorf("request did not complete after %d results: %w", len(out), ctx.Err())
		}
	}
}

func completes(kind correlate.Kind, res *correlate.Result) bool {
	if kind != correlate.KindReadValues {
		return true
	}
	for _, ir := range res.Items {
		if ir.MoreData {
			return false
		}
	}
	return true
}

func parseOr(text string) reltime.Time {
	if text == "" {
		return reltime.Now()
	}
	return reltime.MustParse(text)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatRange(r hda.TimeRange) string {
	return "[" + formatTime(r.Start) + ", " + formatTime(r.End) + "]"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatElements(elems []browse.Element) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		kind := "leaf"
		switch {
		case e.IsBranch:
			kind = "branch"
		case e.IsItem:
			kind = "item"
		}
		parts[i] = kind + " " + string(e.ItemID)
	}
	return strings.Join(parts, ", ")
}

// oneLine flattens joined errors onto one line.
func oneLine(err error) string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		parts := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			parts = append(parts, e.Error())
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}
