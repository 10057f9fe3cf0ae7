package session

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/histsess/internal/correlate"
	"github.com/roach88/histsess/internal/hda"
)

// ItemValues is the gathered outcome of a synchronous read for one item.
type ItemValues struct {
	Item   hda.Item
	Values []hda.Value
	Err    error
}

// ReadRawSync issues ReadRaw and waits for the request to complete. The
// result is in request order, rejected items carry their rejection error.
// If ctx ends first the request is cancelled and ctx's error returned.
func (s *Session) ReadRawSync(ctx context.Context, items []hda.Item, span Span, maxValues int) ([]ItemValues, error) {
	var (
		mu   sync.Mutex
		got  = make(map[hda.ServerHandle]*ItemValues)
		done = make(chan error, 1)
	)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	handle := func(res *correlate.Result) error {
		mu.Lock()
		defer mu.Unlock()

		if res.Err != nil {
			finish(res.Err)
			return nil
		}
		more := false
		for _, ir := range res.Items {
			acc, ok := got[ir.Handle]
			if !ok {
				acc = &ItemValues{}
				got[ir.Handle] = acc
			}
			acc.Values = append(acc.Values, ir.Values...)
			if ir.Err != nil && acc.Err == nil {
				acc.Err = ir.Err
			}
			more = more || ir.MoreData
		}
		if !more {
			finish(nil)
		}
		return nil
	}

	req, err := s.ReadRaw(ctx, items, span, maxValues, nil, handle)
	if err != nil {
		return nil, err
	}

	if req.Accepted() > 0 {
		select {
		case err := <-done:
			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			cerr := s.Cancel(context.WithoutCancel(ctx), req, nil)
			if cerr != nil && !errors.Is(cerr, correlate.ErrUnknownTransaction) {
				s.logger.Warn("cancel after abandoned read failed", "request_id", req.ID, "error", cerr)
			}
			return nil, ctx.Err()
		}
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]ItemValues, len(req.Items))
	for i, it := range req.Items {
		out[i] = ItemValues{Item: it.Item, Err: it.Err}
		if acc, ok := got[it.Handle]; ok && it.Err == nil {
			out[i].Values = acc.Values
			out[i].Err = acc.Err
		}
	}
	return out, nil
}
