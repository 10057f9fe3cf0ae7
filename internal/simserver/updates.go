package simserver

import (
	"context"
	"errors"

	"github.com/roach88/histsess/internal/correlate"
	"github.com/roach88/histsess/internal/store"
	"github.com/roach88/histsess/internal/transport"
)

// isEditErr reports whether err is a per-value edit failure. Those are
// reported in the item's entry; anything else fails the whole call.
func isEditErr(err error) bool {
	return errors.Is(err, store.ErrDataExists) || errors.Is(err, store.ErrNoData)
}

func (s *Server) update(ctx context.Context, call *transport.Call, items []acceptedItem) ([]correlate.Payload, error) {
	entries := make([]correlate.Entry, len(items))
	for i, it := range items {
		var errs []error
		for _, v := range call.Values[it.index] {
			err := s.store.WriteSample(ctx, it.id, v, call.Edit)
			if err == nil {
				continue
			}
			if !isEditErr(err) {
				return nil, err
			}
			errs = append(errs, itemErr(it.id, v.Timestamp, err))
		}
		entries[i] = correlate.Entry{Handle: it.handle, Err: errors.Join(errs...)}
	}
	return []correlate.Payload{{Entries: entries}}, nil
}

func (s *Server) deleteRange(ctx context.Context, call *transport.Call, items []acceptedItem) ([]correlate.Payload, error) {
	entries := make([]correlate.Entry, len(items))
	for i, it := range items {
		n, err := s.store.DeleteRange(ctx, it.id, call.Range)
		if err != nil {
			return nil, err
		}
		e := correlate.Entry{Handle: it.handle}
		if n == 0 {
			e.Err = store.ErrNoData
		}
		entries[i] = e
	}
	return []correlate.Payload{{Entries: entries}}, nil
}

func (s *Server) deleteAtTime(ctx context.Context, call *transport.Call, items []acceptedItem) ([]correlate.Payload, error) {
	entries := make([]correlate.Entry, len(items))
	for i, it := range items {
		var errs []error
		for _, v := range call.Values[it.index] {
			err := s.store.DeleteAt(ctx, it.id, v.Timestamp)
			if err == nil {
				continue
			}
			if !isEditErr(err) {
				return nil, err
			}
			errs = append(errs, itemErr(it.id, v.Timestamp, err))
		}
		entries[i] = correlate.Entry{Handle: it.handle, Err: errors.Join(errs...)}
	}
	return []correlate.Payload{{Entries: entries}}, nil
}

func (s *Server) insertAnnotations(ctx context.Context, call *transport.Call, items []acceptedItem) ([]correlate.Payload, error) {
	entries := make([]correlate.Entry, len(items))
	for i, it := range items {
		for _, a := range call.Annotations[it.index] {
			if a.Created.IsZero() {
				a.Created = s.now()
			}
			if err := s.store.AddAnnotation(ctx, it.id, a); err != nil {
				return nil, err
			}
		}
		entries[i] = correlate.Entry{Handle: it.handle}
	}
	return []correlate.Payload{{Entries: entries}}, nil
}
