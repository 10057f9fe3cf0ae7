package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/histsess/internal/correlate"
	"github.com/roach88/histsess/internal/hda"
	"github.com/roach88/histsess/internal/simserver"
	"github.com/roach88/histsess/internal/store"
	"github.com/roach88/histsess/internal/testutil"
	"github.com/roach88/histsess/internal/transport"
)

var (
	t0      = time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	errDown = errors.New("link down")
)

func at(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Second)
}

// fakeTransport answers Begin from a script and delivers frames directly to
// the sink from the calling goroutine.
type fakeTransport struct {
	mu      sync.Mutex
	sink    transport.Sink
	calls   []*transport.Call
	cancels []correlate.CancelID

	// onBegin runs inside Begin before the reply is returned.
	onBegin   func(call *transport.Call, sink transport.Sink)
	beginErr  error
	cancelErr error
	reject    bool
	nextCID   correlate.CancelID
}

func (f *fakeTransport) Bind(sink transport.Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
}

func (f *fakeTransport) Begin(_ context.Context, call *transport.Call) (*transport.Reply, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	sink, hook, err := f.sink, f.onBegin, f.beginErr
	f.nextCID++
	cid := f.nextCID
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if hook != nil {
		hook(call, sink)
	}

	reply := &transport.Reply{CancelID: cid, Actual: call.Range}
	for i, it := range call.Items {
		ii := correlate.InitialItem{Handle: hda.ServerHandle(i + 1), Item: it}
		if f.reject {
			ii.Err = store.ErrItemNotFound
		}
		reply.Items = append(reply.Items, ii)
	}
	return reply, nil
}

func (f *fakeTransport) Cancel(_ context.Context, cancelID correlate.CancelID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancels = append(f.cancels, cancelID)
	return nil
}

func (f *fakeTransport) cancelled() []correlate.CancelID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]correlate.CancelID(nil), f.cancels...)
}

func newFakeSession(t *testing.T, opts ...Option) (*Session, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	opts = append([]Option{WithIDGenerator(testutil.NewFixedIDGenerator("s-1"))}, opts...)
	return New(tr, opts...), tr
}

// newSimSession runs a simserver over a store seeded with Plant.Boiler.Temp
// (values 0..9 at t0+0s..9s) and Plant.Boiler.Flow (no data).
func newSimSession(t *testing.T, srvOpts []simserver.Option, opts ...Option) (*Session, *simserver.Server, *store.Store) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := store.Fixture{Items: []store.FixtureItem{{ID: "Plant.Boiler.Temp"}, {ID: "Plant.Boiler.Flow"}}}
	for i := 0; i < 10; i++ {
		f.Samples = append(f.Samples, store.FixtureSample{Item: "Plant.Boiler.Temp", Time: at(i), Value: float64(i)})
	}
	require.NoError(t, st.Seed(ctx, f))

	srv := simserver.New(st, srvOpts...)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(runCtx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	clock := testutil.NewWallClock(at(10))
	opts = append([]Option{
		WithIDGenerator(testutil.NewFixedIDGenerator("s-1")),
		WithClock(clock.Now),
	}, opts...)
	return New(srv, opts...), srv, st
}

func items(ids ...string) []hda.Item {
	out := make([]hda.Item, len(ids))
	for i, id := range ids {
		out[i] = hda.Item{ID: hda.ItemID(id), ClientHandle: hda.ClientHandle(10 + i)}
	}
	return out
}

func dataOf(vs []hda.Value) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = v.Data
	}
	return out
}
