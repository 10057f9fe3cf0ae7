package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/histsess/internal/browse"
	"github.com/roach88/histsess/internal/correlate"
	"github.com/roach88/histsess/internal/hda"
	"github.com/roach88/histsess/internal/reltime"
	"github.com/roach88/histsess/internal/simserver"
	"github.com/roach88/histsess/internal/store"
	"github.com/roach88/histsess/internal/testutil"
	"github.com/roach88/histsess/internal/transport"
)

func TestNew_BindsAndNames(t *testing.T) {
	s, tr := newFakeSession(t)

	assert.Equal(t, "s-1", s.ID())
	assert.Same(t, s, tr.sink)
}

func TestNew_DefaultIDIsUUIDv7(t *testing.T) {
	s := New(&fakeTransport{})
	assert.Len(t, s.ID(), 36)
	assert.Equal(t, '7', rune(s.ID()[14]))
}

func TestIssue_BufferedDeliveriesReplayedInOrder(t *testing.T) {
	s, tr := newFakeSession(t)
	tr.onBegin = func(call *transport.Call, sink transport.Sink) {
		// Frames that race ahead of the reply.
		sink.Dispatch(call.RequestID, correlate.Payload{Entries: []correlate.Entry{
			{Handle: 1, MoreData: true, Values: []hda.Value{{Data: 1}}},
		}})
		sink.Dispatch(call.RequestID, correlate.Payload{Entries: []correlate.Entry{
			{Handle: 1, Values: []hda.Value{{Data: 2}}},
		}})
	}

	rec := &testutil.Recorder{}
	req, err := s.ReadRaw(context.Background(), items("A.x"), Span{Start: reltime.At(at(0)), End: reltime.At(at(9))}, 0, "tok", rec.Handle)
	require.NoError(t, err)

	assert.True(t, req.Completed)
	got := rec.Wait(t, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Items[0].Values[0].Data)
	assert.Equal(t, 2.0, got[1].Items[0].Values[0].Data)
	for _, res := range got {
		assert.Equal(t, "tok", res.CallerToken)
		assert.Equal(t, hda.ItemID("A.x"), res.Items[0].Item.ID)
		assert.Equal(t, hda.ClientHandle(10), res.Items[0].Item.ClientHandle)
		assert.True(t, res.ActualTime.Start.Equal(at(0)))
	}
	assert.Zero(t, s.Registry().Len())
}

func TestIssue_NoAcceptedItemsCompletesWithoutHandler(t *testing.T) {
	s, tr := newFakeSession(t)
	tr.reject = true

	rec := &testutil.Recorder{}
	req, err := s.ReadAttributes(context.Background(), items("A.x"), Span{Start: reltime.Now(), End: reltime.Now()}, []hda.AttributeID{hda.AttrDescription}, nil, rec.Handle)
	require.NoError(t, err)

	assert.True(t, req.Completed)
	assert.Zero(t, req.Accepted())
	assert.Zero(t, rec.Len())
	assert.Zero(t, s.Registry().Len())
}

func TestIssue_BeginFailureResolvesRequest(t *testing.T) {
	s, tr := newFakeSession(t)
	tr.beginErr = errDown

	rec := &testutil.Recorder{}
	_, err := s.Delete(context.Background(), items("A.x"), Span{Start: reltime.Now(), End: reltime.Now()}, nil, rec.Handle)

	require.Error(t, err)
	assert.True(t, IsTransportFault(err))
	assert.ErrorIs(t, err, errDown)

	got := rec.Wait(t, 1)
	assert.ErrorIs(t, got[0].Err, errDown)
	assert.Zero(t, s.Registry().Len(), "a failed call must not leak its request")
}

func TestCancel_PendingRequestCancelledRemotelyOnReply(t *testing.T) {
	s, tr := newFakeSession(t)
	var cancelErr error
	tr.onBegin = func(call *transport.Call, _ transport.Sink) {
		cancelErr = s.Cancel(context.Background(), &Request{ID: call.RequestID}, nil)
	}

	req, err := s.AdviseRaw(context.Background(), items("A.x"), reltime.Now(), 0, nil, func(*correlate.Result) error { return nil })
	require.NoError(t, err)

	assert.NoError(t, cancelErr)
	assert.True(t, req.Completed)
	assert.Equal(t, []correlate.CancelID{req.CancelID}, tr.cancelled(), "the remote subscription must not outlive the cancel")
	assert.Zero(t, s.Registry().Len())
}

func TestCancel_PendingRequestWithAck(t *testing.T) {
	s, tr := newFakeSession(t)
	var acked []correlate.ID
	tr.onBegin = func(call *transport.Call, sink transport.Sink) {
		require.NoError(t, s.Cancel(context.Background(), &Request{ID: call.RequestID}, func(id correlate.ID) {
			acked = append(acked, id)
		}))
		// Dropped: the request was cancelled before it became active.
		sink.Dispatch(call.RequestID, correlate.Payload{Entries: []correlate.Entry{{Handle: 1, Values: []hda.Value{{Data: 1}}}}})
	}

	rec := &testutil.Recorder{}
	req, err := s.AdviseRaw(context.Background(), items("A.x"), reltime.Now(), 0, nil, rec.Handle)
	require.NoError(t, err)

	assert.False(t, req.Completed, "waits for the acknowledgment")
	assert.Equal(t, []correlate.CancelID{req.CancelID}, tr.cancelled())
	assert.Empty(t, acked)

	assert.True(t, s.CancelAcknowledged(req.CancelID))
	assert.Equal(t, []correlate.ID{req.ID}, acked)
	assert.Zero(t, rec.Len())
	assert.Zero(t, s.Registry().Len())
}

func TestClose_DuringInitiatingCall(t *testing.T) {
	s, tr := newFakeSession(t)
	tr.onBegin = func(*transport.Call, transport.Sink) {
		require.NoError(t, s.Close(context.Background()))
	}

	req, err := s.AdviseRaw(context.Background(), items("A.x"), reltime.Now(), 0, nil, func(*correlate.Result) error { return nil })
	require.NoError(t, err)

	assert.True(t, req.Completed)
	assert.Equal(t, []correlate.CancelID{req.CancelID}, tr.cancelled())
	assert.Zero(t, s.Registry().Len())

	_, err = s.AdviseRaw(context.Background(), items("A.x"), reltime.Now(), 0, nil, func(*correlate.Result) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCancel_PendingRemoteCancelFails(t *testing.T) {
	s, tr := newFakeSession(t)
	tr.cancelErr = errDown
	tr.onBegin = func(call *transport.Call, _ transport.Sink) {
		require.NoError(t, s.Cancel(context.Background(), &Request{ID: call.RequestID}, func(correlate.ID) {}))
	}

	req, err := s.AdviseRaw(context.Background(), items("A.x"), reltime.Now(), 0, nil, func(*correlate.Result) error { return nil })
	require.NoError(t, err)

	assert.True(t, req.Completed, "no acknowledgment can come")
	assert.Zero(t, s.Registry().Len())
}

func TestCancel_WithoutAckRemovesAtOnce(t *testing.T) {
	s, tr := newFakeSession(t)

	req, err := s.AdviseRaw(context.Background(), items("A.x"), reltime.Now(), 0, nil, func(*correlate.Result) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 1, s.Registry().Len())

	require.NoError(t, s.Cancel(context.Background(), req, nil))
	assert.Zero(t, s.Registry().Len())
	assert.Equal(t, []correlate.CancelID{req.CancelID}, tr.cancelled())

	// The late acknowledgment finds nothing.
	assert.False(t, s.CancelAcknowledged(req.CancelID))
	assert.ErrorIs(t, s.Cancel(context.Background(), req, nil), correlate.ErrUnknownTransaction)
}

func TestCancel_TransportFailureUnregisters(t *testing.T) {
	s, tr := newFakeSession(t)

	req, err := s.AdviseRaw(context.Background(), items("A.x"), reltime.Now(), 0, nil, func(*correlate.Result) error { return nil })
	require.NoError(t, err)

	tr.cancelErr = errDown
	acked := false
	err = s.Cancel(context.Background(), req, func(correlate.ID) { acked = true })

	assert.True(t, IsTransportFault(err))
	assert.False(t, acked)
	assert.Zero(t, s.Registry().Len())
}

func TestClose_CancelsOutstanding(t *testing.T) {
	s, tr := newFakeSession(t)
	ctx := context.Background()
	noop := func(*correlate.Result) error { return nil }

	r1, err := s.AdviseRaw(ctx, items("A.x"), reltime.Now(), 0, nil, noop)
	require.NoError(t, err)
	r2, err := s.Playback(ctx, items("A.x"), Span{Start: reltime.At(at(0)), End: reltime.At(at(9))}, time.Second, time.Second, nil, noop)
	require.NoError(t, err)

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, []correlate.CancelID{r1.CancelID, r2.CancelID}, tr.cancelled())
	assert.Zero(t, s.Registry().Len())

	_, err = s.AdviseRaw(ctx, items("A.x"), reltime.Now(), 0, nil, noop)
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = s.Browse(ctx, "", 0)
	assert.Error(t, err)

	assert.NoError(t, s.Close(ctx), "Close is idempotent")
}

func TestClose_ReportsCancelFailures(t *testing.T) {
	s, tr := newFakeSession(t)
	ctx := context.Background()

	_, err := s.AdviseRaw(ctx, items("A.x"), reltime.Now(), 0, nil, func(*correlate.Result) error { return nil })
	require.NoError(t, err)

	tr.cancelErr = errDown
	err = s.Close(ctx)
	assert.True(t, IsTransportFault(err))
	assert.Zero(t, s.Registry().Len())
}

func TestBrowse_NoNamespace(t *testing.T) {
	s, _ := newFakeSession(t)

	_, _, err := s.Browse(context.Background(), "", 0)
	assert.ErrorIs(t, err, ErrNoNamespace)
	_, _, err = s.BrowseNext(context.Background(), nil, 0)
	assert.ErrorIs(t, err, ErrNoNamespace)
}

func TestResolve_UsesSessionClockAndResolver(t *testing.T) {
	clock := testutil.NewWallClock(time.Date(2024, 1, 31, 10, 20, 30, 0, time.UTC)) // Wednesday
	s, tr := newFakeSession(t, WithClock(clock.Now), WithResolver(reltime.Resolver{WeekStart: time.Monday}))

	_, err := s.ReadRaw(context.Background(), items("A.x"),
		Span{Start: reltime.MustParse("WEEK-1W"), End: reltime.MustParse("HOUR+90M")}, 0, nil,
		func(*correlate.Result) error { return nil })
	require.NoError(t, err)

	call := tr.calls[0]
	assert.True(t, call.Range.Start.Equal(time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)), "start %s", call.Range.Start)
	assert.True(t, call.Range.End.Equal(time.Date(2024, 1, 31, 11, 30, 0, 0, time.UTC)), "end %s", call.Range.End)
}

func TestOperations_BuildCalls(t *testing.T) {
	s, tr := newFakeSession(t)
	ctx := context.Background()
	noop := func(*correlate.Result) error { return nil }
	its := items("A.x")
	span := Span{Start: reltime.At(at(0)), End: reltime.At(at(5))}

	_, err := s.ReadProcessed(ctx, its, span, hda.AggregateAverage, time.Second, nil, noop)
	require.NoError(t, err)
	_, err = s.ReadAtTime(ctx, its, []reltime.Time{reltime.At(at(1)), reltime.At(at(2))}, nil, noop)
	require.NoError(t, err)
	_, err = s.ReadAnnotations(ctx, its, span, nil, noop)
	require.NoError(t, err)
	_, err = s.Insert(ctx, its, [][]hda.Value{{{Timestamp: at(1)}}}, nil, noop)
	require.NoError(t, err)
	_, err = s.Replace(ctx, its, [][]hda.Value{{{Timestamp: at(1)}}}, nil, noop)
	require.NoError(t, err)
	_, err = s.InsertReplace(ctx, its, [][]hda.Value{{{Timestamp: at(1)}}}, nil, noop)
	require.NoError(t, err)
	_, err = s.DeleteAtTime(ctx, its, [][]time.Time{{at(3)}}, nil, noop)
	require.NoError(t, err)
	_, err = s.InsertAnnotations(ctx, its, [][]hda.Annotation{{{Timestamp: at(1), Text: "x"}}}, nil, noop)
	require.NoError(t, err)

	ops := make([]transport.Op, len(tr.calls))
	for i, c := range tr.calls {
		ops[i] = c.Op
		assert.NotZero(t, c.RequestID)
	}
	assert.Equal(t, []transport.Op{
		transport.OpReadProcessed, transport.OpReadAtTime, transport.OpReadAnnotations,
		transport.OpUpdate, transport.OpUpdate, transport.OpUpdate,
		transport.OpDeleteAtTime, transport.OpInsertAnnotations,
	}, ops)

	assert.Equal(t, hda.AggregateAverage, tr.calls[0].Aggregate)
	assert.Equal(t, []time.Time{at(1), at(2)}, tr.calls[1].Times)
	assert.Equal(t, hda.EditInsert, tr.calls[3].Edit)
	assert.Equal(t, hda.EditReplace, tr.calls[4].Edit)
	assert.Equal(t, hda.EditInsertReplace, tr.calls[5].Edit)
	assert.True(t, tr.calls[6].Values[0][0].Timestamp.Equal(at(3)))
}

func TestHandlerPanicDoesNotBreakOtherRequests(t *testing.T) {
	s, tr := newFakeSession(t)
	tr.onBegin = func(call *transport.Call, sink transport.Sink) {
		sink.Dispatch(call.RequestID, correlate.Payload{Entries: []correlate.Entry{{Handle: 1}}})
	}
	ctx := context.Background()

	_, err := s.Insert(ctx, items("A.x"), [][]hda.Value{{}}, nil, func(*correlate.Result) error { panic("bad consumer") })
	require.NoError(t, err)

	rec := &testutil.Recorder{}
	_, err = s.Insert(ctx, items("A.x"), [][]hda.Value{{}}, nil, rec.Handle)
	require.NoError(t, err)

	rec.Wait(t, 1)
	assert.Zero(t, s.Registry().Len())
}

func TestSim_ReadRawSyncGathersPages(t *testing.T) {
	s, _, _ := newSimSession(t, []simserver.Option{simserver.WithPageSize(3)})

	got, err := s.ReadRawSync(context.Background(), items("Plant.Boiler.Temp", "Plant.Boiler.Flow", "Plant.Nope"),
		Span{Start: reltime.MustParse("NOW-10S"), End: reltime.Now()}, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, dataOf(got[0].Values))
	assert.NoError(t, got[0].Err)
	assert.ErrorIs(t, got[1].Err, store.ErrNoData)
	assert.ErrorIs(t, got[2].Err, store.ErrItemNotFound)
	assert.Zero(t, s.Registry().Len())
}

func TestSim_ReadRawSyncAllRejected(t *testing.T) {
	s, _, _ := newSimSession(t, nil)

	got, err := s.ReadRawSync(context.Background(), items("Nope"), Span{Start: reltime.Now(), End: reltime.Now()}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0].Err, store.ErrItemNotFound)
}

func TestReadRawSync_ContextCancelled(t *testing.T) {
	s, tr := newFakeSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.ReadRawSync(ctx, items("A.x"), Span{Start: reltime.Now(), End: reltime.Now()}, 0)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, tr.cancelled(), 1)
	assert.Zero(t, s.Registry().Len())
}

func TestSim_AdviseAndCancelWithAck(t *testing.T) {
	s, srv, st := newSimSession(t, nil)
	ctx := context.Background()

	rec := &testutil.Recorder{}
	req, err := s.AdviseRaw(ctx, items("Plant.Boiler.Temp"), reltime.MustParse("NOW-2S"), 5*time.Millisecond, "watch", rec.Handle)
	require.NoError(t, err)
	assert.False(t, req.Completed)

	first := rec.Wait(t, 1)[0]
	assert.Equal(t, []float64{8, 9}, dataOf(first.Items[0].Values))
	assert.Equal(t, "watch", first.CallerToken)

	require.NoError(t, st.WriteSample(ctx, "Plant.Boiler.Temp", hda.Value{Timestamp: at(11), Data: 11}, hda.EditInsert))
	second := rec.Wait(t, 2)[1]
	assert.Equal(t, []float64{11}, dataOf(second.Items[0].Values))

	acked := make(chan correlate.ID, 1)
	require.NoError(t, s.Cancel(ctx, req, func(id correlate.ID) { acked <- id }))

	select {
	case id := <-acked:
		assert.Equal(t, req.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel was never acknowledged")
	}
	assert.Zero(t, s.Registry().Len())
	assert.Zero(t, srv.Subscriptions())
}

func TestSim_UpdatesAndAnnotations(t *testing.T) {
	s, _, st := newSimSession(t, nil)
	ctx := context.Background()

	rec := &testutil.Recorder{}
	_, err := s.Insert(ctx, items("Plant.Boiler.Temp"), [][]hda.Value{{
		{Timestamp: at(0), Data: 100},
		{Timestamp: at(30), Data: 30},
	}}, nil, rec.Handle)
	require.NoError(t, err)

	res := rec.Wait(t, 1)[0]
	assert.ErrorIs(t, res.Items[0].Err, store.ErrDataExists)

	v, ok, err := st.ValueAt(ctx, "Plant.Boiler.Temp", at(30))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30.0, v.Data)

	notes := &testutil.Recorder{}
	_, err = s.InsertAnnotations(ctx, items("Plant.Boiler.Temp"), [][]hda.Annotation{{{Timestamp: at(1), Text: "trip"}}}, nil, notes.Handle)
	require.NoError(t, err)
	notes.Wait(t, 1)

	read := &testutil.Recorder{}
	_, err = s.ReadAnnotations(ctx, items("Plant.Boiler.Temp"), Span{Start: reltime.At(at(0)), End: reltime.At(at(5))}, nil, read.Handle)
	require.NoError(t, err)
	got := read.Wait(t, 1)[0]
	require.Len(t, got.Items[0].Annotations, 1)
	assert.Equal(t, "trip", got.Items[0].Annotations[0].Text)
}

func TestSim_BrowseAll(t *testing.T) {
	s, _, _ := newSimSession(t, nil)

	var names []string
	pages := 0
	err := s.BrowseAll(context.Background(), "Plant.Boiler", 1, func(page []browse.Element) error {
		pages++
		for _, e := range page {
			names = append(names, e.Name)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Flow", "Temp"}, names)
	assert.Equal(t, 2, pages)
}

func TestSim_BrowseAllStopsOnCallbackError(t *testing.T) {
	s, _, _ := newSimSession(t, nil)
	stop := errors.New("stop")

	err := s.BrowseAll(context.Background(), "Plant.Boiler", 1, func([]browse.Element) error { return stop })
	assert.ErrorIs(t, err, stop)
}
