package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/histsess/internal/correlate"
)

// Recorder is a correlate.HandlerFunc target that keeps every result.
type Recorder struct {
	mu      sync.Mutex
	results []*correlate.Result

	// Err, when set, is returned from every Handle call.
	Err error
}

// Handle records res. Pass it as the handler of a request.
func (r *Recorder) Handle(res *correlate.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return r.Err
}

// Results returns a copy of the recorded results in delivery order.
func (r *Recorder) Results() []*correlate.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*correlate.Result(nil), r.results...)
}

// Len returns the number of recorded results.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

// Wait blocks until at least n results were recorded and returns them.
func (r *Recorder) Wait(t *testing.T, n int) []*correlate.Result {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.Len() >= n
	}, 2*time.Second, time.Millisecond, "waiting for %d results", n)
	return r.Results()
}
