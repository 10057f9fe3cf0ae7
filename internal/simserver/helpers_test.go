package simserver

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/histsess/internal/correlate"
	"github.com/roach88/histsess/internal/hda"
	"github.com/roach88/histsess/internal/store"
	"github.com/roach88/histsess/internal/transport"
)

var t0 = time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)

func at(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Second)
}

// recordingSink captures every frame the server pumps.
type recordingSink struct {
	mu     sync.Mutex
	data   []dataFrame
	acks   []correlate.CancelID
	events []string
}

type dataFrame struct {
	id correlate.ID
	p  correlate.Payload
}

func (r *recordingSink) Dispatch(id correlate.ID, p correlate.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, dataFrame{id: id, p: p})
	r.events = append(r.events, "data")
}

func (r *recordingSink) CancelAcknowledged(id correlate.CancelID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, id)
	r.events = append(r.events, "ack")
	return true
}

func (r *recordingSink) frames(id correlate.ID) []correlate.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []correlate.Payload
	for _, f := range r.data {
		if f.id == id {
			out = append(out, f.p)
		}
	}
	return out
}

func (r *recordingSink) acked(id correlate.CancelID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.acks {
		if a == id {
			return true
		}
	}
	return false
}

func (r *recordingSink) eventLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// waitFrames blocks until n frames for id were pumped.
func (r *recordingSink) waitFrames(t *testing.T, id correlate.ID, n int) []correlate.Payload {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.frames(id)) >= n
	}, 2*time.Second, time.Millisecond)
	return r.frames(id)
}

// newTestServer opens a store seeded with Plant.Boiler.Temp (values 0..9 at
// t0+0s..9s), Plant.Boiler.Flow (no data) and Plant.Turbine.Speed, and runs
// a server over it.
func newTestServer(t *testing.T, opts ...Option) (*Server, *recordingSink, *store.Store) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := store.Fixture{
		Items: []store.FixtureItem{
			{ID: "Plant.Boiler.Temp", Since: t0, Attributes: map[string]string{"EngUnits": "degC"}},
			{ID: "Plant.Boiler.Flow"},
			{ID: "Plant.Turbine.Speed"},
		},
	}
	for i := 0; i < 10; i++ {
		f.Samples = append(f.Samples, store.FixtureSample{Item: "Plant.Boiler.Temp", Time: at(i), Value: float64(i)})
	}
	require.NoError(t, st.Seed(ctx, f))

	srv := New(st, opts...)
	sink := &recordingSink{}
	srv.Bind(sink)

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
	return srv, sink, st
}

func items(ids ...string) []hda.Item {
	out := make([]hda.Item, len(ids))
	for i, id := range ids {
		out[i] = hda.Item{ID: hda.ItemID(id), ClientHandle: hda.ClientHandle(i + 1)}
	}
	return out
}

func begin(t *testing.T, srv *Server, call *transport.Call) *transport.Reply {
	t.Helper()
	reply, err := srv.Begin(context.Background(), call)
	require.NoError(t, err)
	return reply
}

func dataOf(vs []hda.Value) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = v.Data
	}
	return out
}
