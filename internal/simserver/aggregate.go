package simserver

import (
	"time"

	"github.com/roach88/histsess/internal/hda"
)

// window is one resample interval [start, end) of a processed read.
type window struct {
	start, end time.Time

	// samples are the raw values inside the interval, oldest first.
	samples []hda.Value

	// prior is the last value at or before start, if any. next holds the
	// raw values after the interval.
	prior *hda.Value
	next  []hda.Value
}

type aggregator func(w window) hda.Value

var aggregators = map[hda.Aggregate]aggregator{
	hda.AggregateInterpolative: interpolative,
	hda.AggregateTotal:         total,
	hda.AggregateAverage:       average,
	hda.AggregateCount:         count,
	hda.AggregateMinimum:       minimum,
	hda.AggregateMaximum:       maximum,
	hda.AggregateStart:         first,
	hda.AggregateEnd:           last,
}

const calculated = hda.QualityGood | hda.QualityCalculated

func noData(t time.Time) hda.Value {
	return hda.Value{Timestamp: t, Quality: hda.QualityBad | hda.QualityNoData}
}

// interpolative returns the value at the interval start, linearly
// interpolated between the surrounding raw values. After the last raw value
// the last value is held with Uncertain quality.
func interpolative(w window) hda.Value {
	t := w.start
	if len(w.samples) > 0 && w.samples[0].Timestamp.Equal(t) {
		v := w.samples[0]
		return hda.Value{Timestamp: t, Data: v.Data, Quality: v.Quality.Data() | hda.QualityInterpolated}
	}
	if w.prior == nil {
		return noData(t)
	}
	if w.prior.Timestamp.Equal(t) {
		return hda.Value{Timestamp: t, Data: w.prior.Data, Quality: w.prior.Quality.Data() | hda.QualityInterpolated}
	}

	var after *hda.Value
	switch {
	case len(w.samples) > 0:
		after = &w.samples[0]
	case len(w.next) > 0:
		after = &w.next[0]
	}
	if after == nil {
		return hda.Value{Timestamp: t, Data: w.prior.Data, Quality: hda.QualityUncertain | hda.QualityInterpolated}
	}

	span := after.Timestamp.Sub(w.prior.Timestamp).Seconds()
	frac := t.Sub(w.prior.Timestamp).Seconds() / span
	data := w.prior.Data + (after.Data-w.prior.Data)*frac
	return hda.Value{Timestamp: t, Data: data, Quality: hda.QualityGood | hda.QualityInterpolated}
}

// total is the sum of the raw values in the interval.
func total(w window) hda.Value {
	if len(w.samples) == 0 {
		return noData(w.start)
	}
	sum := 0.0
	for _, v := range w.samples {
		sum += v.Data
	}
	return hda.Value{Timestamp: w.start, Data: sum, Quality: calculated}
}

// average is the arithmetic mean of the raw values in the interval.
func average(w window) hda.Value {
	v := total(w)
	if len(w.samples) > 0 {
		v.Data /= float64(len(w.samples))
	}
	return v
}

// count is never NoData: an empty interval counts zero.
func count(w window) hda.Value {
	return hda.Value{Timestamp: w.start, Data: float64(len(w.samples)), Quality: calculated}
}

func minimum(w window) hda.Value {
	return pick(w, func(a, b float64) bool { return a < b })
}

func maximum(w window) hda.Value {
	return pick(w, func(a, b float64) bool { return a > b })
}

// pick returns the raw value that wins better, keeping its own timestamp.
func pick(w window, better func(a, b float64) bool) hda.Value {
	if len(w.samples) == 0 {
		return noData(w.start)
	}
	best := w.samples[0]
	for _, v := range w.samples[1:] {
		if better(v.Data, best.Data) {
			best = v
		}
	}
	best.Quality = best.Quality.Data() | hda.QualityCalculated
	return best
}

func first(w window) hda.Value {
	if len(w.samples) == 0 {
		return noData(w.start)
	}
	v := w.samples[0]
	v.Quality = v.Quality.Data() | hda.QualityCalculated
	return v
}

func last(w window) hda.Value {
	if len(w.samples) == 0 {
		return noData(w.start)
	}
	v := w.samples[len(w.samples)-1]
	v.Quality = v.Quality.Data() | hda.QualityCalculated
	return v
}
