package reltime

import (
	"math"
	"time"
)

// Resolver resolves relative times. The zero value starts weeks on Sunday.
type Resolver struct {
	WeekStart time.Weekday
}

// Resolve resolves t against now using a Sunday week start.
func Resolve(t Time, now time.Time) time.Time {
	return Resolver{}.Resolve(t, now)
}

// Resolve snaps now to the start of t's base granularity and applies each
// offset in order. Absolute values are returned unchanged. The result keeps
// now's location.
func (r Resolver) Resolve(t Time, now time.Time) time.Time {
	if !t.IsRelative() {
		return t.Absolute
	}
	at := r.snap(t.Base, now)
	for _, o := range t.Offsets {
		at = apply(at, o)
	}
	return at
}

func (r Resolver) snap(base Base, now time.Time) time.Time {
	y, mo, d := now.Date()
	h, mi, s := now.Clock()
	loc := now.Location()

	switch base {
	case BaseSecond:
		return time.Date(y, mo, d, h, mi, s, 0, loc)
	case BaseMinute:
		return time.Date(y, mo, d, h, mi, 0, 0, loc)
	case BaseHour:
		return time.Date(y, mo, d, h, 0, 0, 0, loc)
	case BaseDay:
		return time.Date(y, mo, d, 0, 0, 0, 0, loc)
	case BaseWeek:
		back := (int(now.Weekday()) - int(r.WeekStart) + 7) % 7
		return time.Date(y, mo, d-back, 0, 0, 0, 0, loc)
	case BaseMonth:
		return time.Date(y, mo, 1, 0, 0, 0, 0, loc)
	case BaseYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	default:
		return now
	}
}

func apply(t time.Time, o Offset) time.Time {
	n := o.Magnitude
	switch o.Unit {
	case UnitSecond:
		return addUnits(t, n, time.Second)
	case UnitMinute:
		return addUnits(t, n, time.Minute)
	case UnitHour:
		return addUnits(t, n, time.Hour)
	case UnitDay:
		return t.AddDate(0, 0, n)
	case UnitWeek:
		return t.AddDate(0, 0, 7*n)
	case UnitMonth:
		return addMonths(t, n)
	case UnitYear:
		return addMonths(t, 12*n)
	default:
		return t
	}
}

// addUnits adds n*unit to t in steps that each fit in a time.Duration.
func addUnits(t time.Time, n int, unit time.Duration) time.Time {
	limit := int(math.MaxInt64 / int64(unit))
	for n > limit {
		t = t.Add(time.Duration(limit) * unit)
		n -= limit
	}
	for n < -limit {
		t = t.Add(-time.Duration(limit) * unit)
		n += limit
	}
	return t.Add(time.Duration(n) * unit)
}

// addMonths moves t by n calendar months, clamping the day of month to the
// length of the target month.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + n
	y += floorDiv(total, 12)
	month := time.Month(total - floorDiv(total, 12)*12 + 1)

	if last := daysIn(y, month, t.Location()); d > last {
		d = last
	}
	h, mi, s := t.Clock()
	return time.Date(y, month, d, h, mi, s, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
