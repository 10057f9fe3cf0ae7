package simserver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/histsess/internal/correlate"
	"github.com/roach88/histsess/internal/hda"
	"github.com/roach88/histsess/internal/store"
	"github.com/roach88/histsess/internal/transport"
)

// readRaw splits each item's values into pages of pageSize. Delivery k holds
// page k of every item; an entry is flagged MoreData while that item has
// pages left, so only the last delivery completes the read.
func (s *Server) readRaw(ctx context.Context, call *transport.Call, items []acceptedItem) ([]correlate.Payload, error) {
	pages := make([][][]hda.Value, len(items))
	deliveries := 1
	for i, it := range items {
		vals, err := s.store.ReadRaw(ctx, it.id, call.Range, call.MaxValues)
		if err != nil {
			return nil, err
		}
		pages[i] = chunk(vals, s.pageSize)
		deliveries = max(deliveries, len(pages[i]))
	}

	out := make([]correlate.Payload, deliveries)
	for k := range out {
		entries := make([]correlate.Entry, len(items))
		for i, it := range items {
			e := correlate.Entry{Handle: it.handle}
			switch {
			case len(pages[i]) == 0:
				if k == 0 {
					e.Err = store.ErrNoData
				}
			case k < len(pages[i]):
				e.Values = pages[i][k]
				e.MoreData = k < len(pages[i])-1
			}
			entries[i] = e
		}
		out[k] = correlate.Payload{Entries: entries}
	}
	return out, nil
}

func chunk(vals []hda.Value, size int) [][]hda.Value {
	var out [][]hda.Value
	for len(vals) > 0 {
		n := min(size, len(vals))
		out = append(out, vals[:n:n])
		vals = vals[n:]
	}
	return out
}

// readProcessed computes one aggregate value per resample interval. The
// intervals start at the range's earlier bound; a descending range returns
// them newest first.
func (s *Server) readProcessed(ctx context.Context, call *transport.Call, items []acceptedItem) ([]correlate.Payload, error) {
	agg := aggregators[call.Aggregate]
	lo, hi := call.Range.Start, call.Range.End
	if call.Range.Descending() {
		lo, hi = hi, lo
	}

	entries := make([]correlate.Entry, len(items))
	for i, it := range items {
		raw, err := s.store.ReadRaw(ctx, it.id, hda.TimeRange{Start: lo, End: hi}, 0)
		if err != nil {
			return nil, err
		}
		prior, hasPrior, err := s.store.ValueAt(ctx, it.id, lo)
		if err != nil {
			return nil, err
		}

		var vals []hda.Value
		rest := raw
		for start := lo; start.Before(hi); start = start.Add(call.Interval) {
			end := start.Add(call.Interval)
			n := 0
			for n < len(rest) && rest[n].Timestamp.Before(end) {
				n++
			}
			w := window{start: start, end: end, samples: rest[:n], next: rest[n:]}
			if hasPrior && !prior.Timestamp.After(start) {
				w.prior = &prior
			}
			vals = append(vals, agg(w))

			if n > 0 {
				last := rest[n-1]
				prior, hasPrior = last, true
			}
			rest = rest[n:]
		}
		if call.Range.Descending() {
			slices.Reverse(vals)
		}
		entries[i] = correlate.Entry{Handle: it.handle, Values: vals}
	}
	return []correlate.Payload{{Entries: entries}}, nil
}

// readAtTime returns, for every requested timestamp, the value in effect at
// that time. A value not recorded exactly at the timestamp is flagged
// Interpolated; a timestamp before all history gets a Bad NoData value.
func (s *Server) readAtTime(ctx context.Context, call *transport.Call, items []acceptedItem) ([]correlate.Payload, error) {
	entries := make([]correlate.Entry, len(items))
	for i, it := range items {
		vals := make([]hda.Value, len(call.Times))
		for k, t := range call.Times {
			v, ok, err := s.store.ValueAt(ctx, it.id, t)
			if err != nil {
				return nil, err
			}
			switch {
			case !ok:
				vals[k] = hda.Value{Timestamp: t, Quality: hda.QualityBad | hda.QualityNoData}
			case v.Timestamp.Equal(t):
				vals[k] = v
			default:
				q := v.Quality.Data() | hda.QualityInterpolated
				vals[k] = hda.Value{Timestamp: t, Data: v.Data, Quality: q}
			}
		}
		entries[i] = correlate.Entry{Handle: it.handle, Values: vals}
	}
	return []correlate.Payload{{Entries: entries}}, nil
}

func (s *Server) readAttributes(ctx context.Context, call *transport.Call, items []acceptedItem) ([]correlate.Payload, error) {
	entries := make([]correlate.Entry, len(items))
	for i, it := range items {
		attrs := make([]hda.AttributeResult, len(call.Attributes))
		for k, id := range call.Attributes {
			vals, err := s.store.ReadAttribute(ctx, it.id, id, call.Range)
			if err != nil && !errors.Is(err, store.ErrNoData) {
				return nil, err
			}
			attrs[k] = hda.AttributeResult{ID: id, Values: vals, Err: err}
		}
		entries[i] = correlate.Entry{Handle: it.handle, Attributes: attrs}
	}
	return []correlate.Payload{{Entries: entries}}, nil
}

func (s *Server) readAnnotations(ctx context.Context, call *transport.Call, items []acceptedItem) ([]correlate.Payload, error) {
	entries := make([]correlate.Entry, len(items))
	for i, it := range items {
		notes, err := s.store.ReadAnnotations(ctx, it.id, call.Range)
		if err != nil {
			return nil, err
		}
		e := correlate.Entry{Handle: it.handle, Annotations: notes}
		if len(notes) == 0 {
			e.Err = store.ErrNoData
		}
		entries[i] = e
	}
	return []correlate.Payload{{Entries: entries}}, nil
}

// itemErr formats a per-item failure the way Begin does for rejected items.
func itemErr(id hda.ItemID, t time.Time, err error) error {
	return fmt.Errorf("%s@%s: %w", id, t.UTC().Format(time.RFC3339Nano), err)
}
