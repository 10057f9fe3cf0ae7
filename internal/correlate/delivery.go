package correlate

import (
	"fmt"
	"slices"
)

// enqueueLocked queues res for req's handler. It returns true when the
// caller must drain the outbox after releasing r.mu. Caller holds r.mu.
func (r *Registry) enqueueLocked(req *request, res *Result) bool {
	return r.enqueueFuncLocked(req, func() { r.invoke(req, res) })
}

func (r *Registry) enqueueFuncLocked(req *request, fn func()) bool {
	req.outbox = append(req.outbox, fn)
	if req.draining {
		return false
	}
	req.draining = true
	return true
}

// drain runs req's queued deliveries until the outbox is empty. Only the
// goroutine that set draining calls it, so deliveries for one request never
// run concurrently or out of order. Must be called without r.mu held.
func (r *Registry) drain(req *request) {
	for {
		r.mu.Lock()
		batch := req.outbox
		req.outbox = nil
		if len(batch) == 0 {
			req.draining = false
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

// invoke runs the handler inside a fault boundary. Errors and panics become
// a logged HandlerFault and go no further.
func (r *Registry) invoke(req *request, res *Result) {
	if req.handler.fn == nil {
		return
	}
	if fault := callHandler(req, res); fault != nil {
		r.metrics.fault(req.handler.kind)
		r.logger.Warn("result handler fault",
			"request_id", req.id,
			"kind", req.handler.kind.String(),
			"panicked", fault.Panicked,
			"error", fault.Err,
		)
	}
}

func callHandler(req *request, res *Result) (fault *HandlerFault) {
	defer func() {
		if p := recover(); p != nil {
			fault = &HandlerFault{
				RequestID: req.id,
				Kind:      req.handler.kind,
				Err:       panicError(p),
				Panicked:  true,
			}
		}
	}()

	if err := req.handler.fn(res); err != nil {
		return &HandlerFault{RequestID: req.id, Kind: req.handler.kind, Err: err}
	}
	return nil
}

// notifyCancel runs one cancellation subscriber inside a fault boundary.
func (r *Registry) notifyCancel(req *request, sub func(ID)) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.fault(req.handler.kind)
			r.logger.Warn("cancel subscriber panicked",
				"request_id", req.id,
				"error", panicError(p),
			)
		}
	}()
	sub(req.id)
}

func panicError(p any) error {
	if err, ok := p.(error); ok {
		return err
	}
	return fmt.Errorf("%v", p)
}

func sortOutstanding(out []Outstanding) {
	slices.SortFunc(out, func(a, b Outstanding) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
}
