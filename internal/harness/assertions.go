package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/histsess/internal/hda"
	"github.com/roach88/histsess/internal/reltime"
	"github.com/roach88/histsess/internal/store"
)

// Assertion validates the trace or the final store content.
type Assertion struct {
	// Type specifies the assertion type:
	//   - "trace_contains": some event of Event type contains Text
	//   - "trace_order": events containing Texts appear in order
	//   - "trace_count": exactly Count events of Event type contain Text
	//   - "final_values": Item holds Count raw values in [Start, End]
	Type string `yaml:"type"`

	// Event restricts matching to one event type. Empty matches any.
	Event string `yaml:"event,omitempty"`

	Text  string   `yaml:"text,omitempty"`
	Texts []string `yaml:"texts,omitempty"`
	Count int      `yaml:"count,omitempty"`

	// Item, Start and End select history for final_values.
	Item  string `yaml:"item,omitempty"`
	Start string `yaml:"start,omitempty"`
	End   string `yaml:"end,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalValues   = "final_values"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", ev)
		}
	}
	return buf.String()
}

// AssertionContext carries what final_values needs to inspect the store.
type AssertionContext struct {
	Ctx     context.Context
	Store   *store.Store
	Resolve func(reltime.Time) time.Time
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalValues:
			err = assertFinalValues(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func matches(ev TraceEvent, eventType, text string) bool {
	if eventType != "" && ev.Type != eventType {
		return false
	}
	return strings.Contains(ev.Text, text)
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a.Event, a.Text) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s event containing %q", eventLabel(a.Event), a.Text),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first event matching each text appears
// after the first event matching the previous one. Intervening events are
// allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	pos := 0
	for _, text := range a.Texts {
		found := false
		for pos < len(trace) {
			ev := trace[pos]
			pos++
			if matches(ev, a.Event, text) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %q", a.Texts),
				Actual:   fmt.Sprintf("%q missing or out of order", text),
				Trace:    trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a.Event, a.Text) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s events containing %q", a.Count, eventLabel(a.Event), a.Text),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertFinalValues(actx *AssertionContext, a Assertion) error {
	if actx == nil || actx.Store == nil {
		return fmt.Errorf("final_values assertion requires a store")
	}
	start, err := reltime.Parse(a.Start)
	if err != nil {
		return err
	}
	end, err := reltime.Parse(a.End)
	if err != nil {
		return err
	}
	r := hda.TimeRange{Start: actx.Resolve(start), End: actx.Resolve(end)}

	vals, err := actx.Store.ReadRaw(actx.Ctx, hda.NormalizeItemID(a.Item), r, 0)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalValues,
			Expected: fmt.Sprintf("%d values of %s in %s", a.Count, a.Item, r),
			Actual:   fmt.Sprintf("read error: %v", err),
		}
	}
	if len(vals) != a.Count {
		return &AssertionError{
			Type:     AssertFinalValues,
			Expected: fmt.Sprintf("%d values of %s in %s", a.Count, a.Item, r),
			Actual:   fmt.Sprintf("%d values", len(vals)),
		}
	}
	return nil
}

func eventLabel(eventType string) string {
	if eventType == "" {
		return "any"
	}
	return eventType
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Texts) == 0 {
			return fmt.Errorf("assertions[%d]: texts list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalValues:
		if a.Item == "" || a.Start == "" || a.End == "" {
			return fmt.Errorf("assertions[%d]: item, start and end are required for final_values", index)
		}
		for _, t := range []string{a.Start, a.End} {
			if _, err := reltime.Parse(t); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
