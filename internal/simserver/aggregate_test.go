package simserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/histsess/internal/hda"
	"github.com/roach88/histsess/internal/transport"
)

func processed(t *testing.T, agg hda.Aggregate, r hda.TimeRange, interval time.Duration) []hda.Value {
	t.Helper()
	srv, sink, _ := newTestServer(t)
	begin(t, srv, &transport.Call{
		Op:        transport.OpReadProcessed,
		RequestID: 1,
		Items:     items("Plant.Boiler.Temp"),
		Range:     r,
		Aggregate: agg,
		Interval:  interval,
	})
	frames := sink.waitFrames(t, 1, 1)
	require.Len(t, frames[0].Entries, 1)
	assert.False(t, frames[0].Entries[0].MoreData)
	return frames[0].Entries[0].Values
}

func TestReadProcessed_Aggregates(t *testing.T) {
	r := hda.TimeRange{Start: at(0), End: at(10)}

	tests := []struct {
		agg  hda.Aggregate
		want []float64
	}{
		{hda.AggregateAverage, []float64{2, 7}},
		{hda.AggregateTotal, []float64{10, 35}},
		{hda.AggregateCount, []float64{5, 5}},
		{hda.AggregateMinimum, []float64{0, 5}},
		{hda.AggregateMaximum, []float64{4, 9}},
		{hda.AggregateStart, []float64{0, 5}},
		{hda.AggregateEnd, []float64{4, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.agg.String(), func(t *testing.T) {
			vals := processed(t, tt.agg, r, 5*time.Second)
			assert.Equal(t, tt.want, dataOf(vals))
			for _, v := range vals {
				assert.True(t, v.Quality.Has(hda.QualityCalculated), "quality %s", v.Quality)
			}
		})
	}
}

func TestReadProcessed_MaximumKeepsSampleTimestamp(t *testing.T) {
	vals := processed(t, hda.AggregateMaximum, hda.TimeRange{Start: at(0), End: at(10)}, 5*time.Second)
	require.Len(t, vals, 2)
	assert.True(t, vals[0].Timestamp.Equal(at(4)))
}

func TestReadProcessed_Interpolative(t *testing.T) {
	vals := processed(t, hda.AggregateInterpolative, hda.TimeRange{Start: at(0), End: at(10)}, 2500*time.Millisecond)

	assert.Equal(t, []float64{0, 2.5, 5, 7.5}, dataOf(vals))
	assert.True(t, vals[1].Timestamp.Equal(at(2).Add(500*time.Millisecond)))
	for _, v := range vals {
		assert.Equal(t, hda.QualityGood|hda.QualityInterpolated, v.Quality)
	}
}

func TestReadProcessed_InterpolativePastLastValue(t *testing.T) {
	vals := processed(t, hda.AggregateInterpolative, hda.TimeRange{Start: at(8), End: at(12)}, 2*time.Second)

	require.Len(t, vals, 2)
	assert.Equal(t, 8.0, vals[0].Data)
	assert.Equal(t, 9.0, vals[1].Data)
	assert.Equal(t, hda.QualityUncertain|hda.QualityInterpolated, vals[1].Quality)
}

func TestReadProcessed_NoData(t *testing.T) {
	vals := processed(t, hda.AggregateAverage, hda.TimeRange{Start: at(-10), End: at(0)}, 5*time.Second)

	require.Len(t, vals, 2)
	for _, v := range vals {
		assert.Equal(t, hda.QualityBad|hda.QualityNoData, v.Quality)
	}

	vals = processed(t, hda.AggregateInterpolative, hda.TimeRange{Start: at(-10), End: at(-5)}, 5*time.Second)
	require.Len(t, vals, 1)
	assert.Equal(t, hda.QualityBad|hda.QualityNoData, vals[0].Quality)
}

func TestReadProcessed_Descending(t *testing.T) {
	vals := processed(t, hda.AggregateCount, hda.TimeRange{Start: at(10), End: at(0)}, 5*time.Second)

	require.Len(t, vals, 2)
	assert.True(t, vals[0].Timestamp.Equal(at(5)))
	assert.True(t, vals[1].Timestamp.Equal(at(0)))
}
