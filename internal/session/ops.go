package session

import (
	"context"
	"time"

	"github.com/roach88/histsess/internal/correlate"
	"github.com/roach88/histsess/internal/hda"
	"github.com/roach88/histsess/internal/reltime"
	"github.com/roach88/histsess/internal/transport"
)

// ReadRaw reads raw history. Results may span several deliveries; the
// request completes with the first one that leaves no item with more data.
// maxValues <= 0 means no cap per item.
func (s *Session) ReadRaw(ctx context.Context, items []hda.Item, span Span, maxValues int, token any, fn correlate.HandlerFunc) (*Request, error) {
	return s.issue(ctx, &transport.Call{
		Op:        transport.OpReadRaw,
		Items:     items,
		Range:     s.resolveSpan(span),
		MaxValues: maxValues,
	}, token, correlate.ReadValues(fn))
}

// ReadProcessed reads one aggregate value per resample interval.
func (s *Session) ReadProcessed(ctx context.Context, items []hda.Item, span Span, agg hda.Aggregate, interval time.Duration, token any, fn correlate.HandlerFunc) (*Request, error) {
	return s.issue(ctx, &transport.Call{
		Op:        transport.OpReadProcessed,
		Items:     items,
		Range:     s.resolveSpan(span),
		Aggregate: agg,
		Interval:  interval,
	}, token, correlate.ReadValues(fn))
}

// ReadAtTime reads the value in effect at each of times.
func (s *Session) ReadAtTime(ctx context.Context, items []hda.Item, times []reltime.Time, token any, fn correlate.HandlerFunc) (*Request, error) {
	now := s.now()
	resolved := make([]time.Time, len(times))
	for i, t := range times {
		resolved[i] = s.resolver.Resolve(t, now)
	}
	return s.issue(ctx, &transport.Call{
		Op:    transport.OpReadAtTime,
		Items: items,
		Times: resolved,
	}, token, correlate.ReadValues(fn))
}

// ReadAttributes reads attribute history over span.
func (s *Session) ReadAttributes(ctx context.Context, items []hda.Item, span Span, attrs []hda.AttributeID, token any, fn correlate.HandlerFunc) (*Request, error) {
	return s.issue(ctx, &transport.Call{
		Op:         transport.OpReadAttributes,
		Items:      items,
		Range:      s.resolveSpan(span),
		Attributes: attrs,
	}, token, correlate.ReadAttributes(fn))
}

// ReadAnnotations reads the notes attached to items over span.
func (s *Session) ReadAnnotations(ctx context.Context, items []hda.Item, span Span, token any, fn correlate.HandlerFunc) (*Request, error) {
	return s.issue(ctx, &transport.Call{
		Op:    transport.OpReadAnnotations,
		Items: items,
		Range: s.resolveSpan(span),
	}, token, correlate.ReadAnnotations(fn))
}

// Insert adds values that must not exist yet. values is aligned with items.
func (s *Session) Insert(ctx context.Context, items []hda.Item, values [][]hda.Value, token any, fn correlate.HandlerFunc) (*Request, error) {
	return s.edit(ctx, hda.EditInsert, items, values, token, fn)
}

// Replace overwrites values that must already exist.
func (s *Session) Replace(ctx context.Context, items []hda.Item, values [][]hda.Value, token any, fn correlate.HandlerFunc) (*Request, error) {
	return s.edit(ctx, hda.EditReplace, items, values, token, fn)
}

// InsertReplace writes values whether or not they exist.
func (s *Session) InsertReplace(ctx context.Context, items []hda.Item, values [][]hda.Value, token any, fn correlate.HandlerFunc) (*Request, error) {
	return s.edit(ctx, hda.EditInsertReplace, items, values, token, fn)
}

func (s *Session) edit(ctx context.Context, mode hda.EditType, items []hda.Item, values [][]hda.Value, token any, fn correlate.HandlerFunc) (*Request, error) {
	return s.issue(ctx, &transport.Call{
		Op:     transport.OpUpdate,
		Items:  items,
		Edit:   mode,
		Values: values,
	}, token, correlate.Update(fn))
}

// Delete removes all values of items inside span.
func (s *Session) Delete(ctx context.Context, items []hda.Item, span Span, token any, fn correlate.HandlerFunc) (*Request, error) {
	return s.issue(ctx, &transport.Call{
		Op:    transport.OpDelete,
		Items: items,
		Range: s.resolveSpan(span),
	}, token, correlate.Update(fn))
}

// DeleteAtTime removes single values. times is aligned with items.
func (s *Session) DeleteAtTime(ctx context.Context, items []hda.Item, times [][]time.Time, token any, fn correlate.HandlerFunc) (*Request, error) {
	values := make([][]hda.Value, len(times))
	for i, ts := range times {
		values[i] = make([]hda.Value, len(ts))
		for k, t := range ts {
			values[i][k] = hda.Value{Timestamp: t}
		}
	}
	return s.issue(ctx, &transport.Call{
		Op:     transport.OpDeleteAtTime,
		Items:  items,
		Values: values,
	}, token, correlate.Update(fn))
}

// InsertAnnotations attaches notes. notes is aligned with items.
func (s *Session) InsertAnnotations(ctx context.Context, items []hda.Item, notes [][]hda.Annotation, token any, fn correlate.HandlerFunc) (*Request, error) {
	return s.issue(ctx, &transport.Call{
		Op:          transport.OpInsertAnnotations,
		Items:       items,
		Annotations: notes,
	}, token, correlate.Update(fn))
}

// AdviseRaw subscribes to raw values from start onwards. interval <= 0 uses
// the endpoint's default. The subscription runs until cancelled.
func (s *Session) AdviseRaw(ctx context.Context, items []hda.Item, start reltime.Time, interval time.Duration, token any, fn correlate.HandlerFunc) (*Request, error) {
	return s.issue(ctx, &transport.Call{
		Op:       transport.OpAdviseRaw,
		Items:    items,
		Range:    hda.TimeRange{Start: s.Resolve(start)},
		Interval: interval,
	}, token, correlate.DataUpdate(fn))
}

// Playback replays span one window per interval. Like AdviseRaw it only
// ends when cancelled.
func (s *Session) Playback(ctx context.Context, items []hda.Item, span Span, window, interval time.Duration, token any, fn correlate.HandlerFunc) (*Request, error) {
	return s.issue(ctx, &transport.Call{
		Op:       transport.OpPlayback,
		Items:    items,
		Range:    s.resolveSpan(span),
		Window:   window,
		Interval: interval,
	}, token, correlate.DataUpdate(fn))
}
