package simserver

import (
	"context"
	"time"

	"github.com/roach88/histsess/internal/correlate"
	"github.com/roach88/histsess/internal/hda"
	"github.com/roach88/histsess/internal/transport"
)

// advise delivers every value at or after the call's start time, then keeps
// polling for newer values once per interval. A frame is only sent when at
// least one item has new values.
func (s *Server) advise(ctx context.Context, call *transport.Call, items []acceptedItem) {
	interval := call.Interval
	if interval <= 0 {
		interval = s.adviseInterval
	}
	seen := make([]time.Time, len(items))
	for i := range seen {
		seen[i] = call.Range.Start.Add(-time.Nanosecond)
	}

	poll := func() {
		var entries []correlate.Entry
		for i, it := range items {
			vals, err := s.store.ReadAfter(ctx, it.id, seen[i])
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("advise read failed",
						"request_id", call.RequestID,
						"item", it.id,
						"error", err,
					)
				}
				continue
			}
			if len(vals) == 0 {
				continue
			}
			seen[i] = vals[len(vals)-1].Timestamp
			entries = append(entries, correlate.Entry{Handle: it.handle, Values: vals})
		}
		if len(entries) > 0 && ctx.Err() == nil {
			s.post(call.RequestID, correlate.Payload{Entries: entries})
		}
	}

	poll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

// playback replays history one window per interval, from the start of the
// range until the window passes its end. The subscription then stays open
// and silent until cancelled.
func (s *Server) playback(ctx context.Context, call *transport.Call, items []acceptedItem) {
	interval := call.Interval
	if interval <= 0 {
		interval = s.adviseInterval
	}
	lo, hi := call.Range.Start, call.Range.End
	if call.Range.Descending() {
		lo, hi = hi, lo
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for start := lo; !start.After(hi); start = start.Add(call.Window) {
		end := start.Add(call.Window - time.Nanosecond)
		if end.After(hi) {
			end = hi
		}
		entries := make([]correlate.Entry, 0, len(items))
		for _, it := range items {
			vals, err := s.store.ReadRaw(ctx, it.id, hda.TimeRange{Start: start, End: end}, 0)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("playback read failed",
						"request_id", call.RequestID,
						"item", it.id,
						"error", err,
					)
				}
				return
			}
			entries = append(entries, correlate.Entry{Handle: it.handle, Values: vals})
		}
		if ctx.Err() != nil {
			return
		}
		s.post(call.RequestID, correlate.Payload{Entries: entries})

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}

	s.logger.Debug("playback exhausted", "request_id", call.RequestID)
}
