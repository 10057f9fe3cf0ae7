package reltime

import (
	"fmt"
	"strings"
	"time"
)

// Base is the granularity a relative time is anchored to.
type Base int

const (
	BaseNow Base = iota
	BaseSecond
	BaseMinute
	BaseHour
	BaseDay
	BaseWeek
	BaseMonth
	BaseYear
)

// baseTokens is ordered so that no token is a prefix of a later one.
var baseTokens = []struct {
	token string
	base  Base
}{
	{"NOW", BaseNow},
	{"SECOND", BaseSecond},
	{"MINUTE", BaseMinute},
	{"HOUR", BaseHour},
	{"DAY", BaseDay},
	{"WEEK", BaseWeek},
	{"MONTH", BaseMonth},
	{"YEAR", BaseYear},
}

func (b Base) String() string {
	for _, t := range baseTokens {
		if t.base == b {
			return t.token
		}
	}
	return fmt.Sprintf("Base(%d)", int(b))
}

// Unit is the unit of a single offset.
type Unit int

const (
	UnitSecond Unit = iota + 1
	UnitMinute
	UnitHour
	UnitDay
	UnitWeek
	UnitMonth
	UnitYear
)

var unitTokens = map[string]Unit{
	"S":  UnitSecond,
	"M":  UnitMinute,
	"H":  UnitHour,
	"D":  UnitDay,
	"W":  UnitWeek,
	"MO": UnitMonth,
	"Y":  UnitYear,
}

func (u Unit) String() string {
	for tok, unit := range unitTokens {
		if unit == u {
			return tok
		}
	}
	return fmt.Sprintf("Unit(%d)", int(u))
}

// Offset is one signed step of a relative time.
type Offset struct {
	Magnitude int
	Unit      Unit
}

func (o Offset) String() string {
	sign := "+"
	m := o.Magnitude
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s%d%s", sign, m, o.Unit)
}

// Time is either a relative expression or an absolute instant.
//
// The zero value is the relative expression NOW.
type Time struct {
	// Absolute is the instant for absolute values. Ignored when relative.
	Absolute time.Time

	// Base and Offsets describe a relative value.
	Base    Base
	Offsets []Offset

	absolute bool
}

// Now returns the relative expression NOW.
func Now() Time {
	return Time{Base: BaseNow}
}

// At returns an absolute value.
func At(t time.Time) Time {
	return Time{Absolute: t, absolute: true}
}

// Relative builds a relative value from a base and offsets.
func Relative(base Base, offsets ...Offset) Time {
	return Time{Base: base, Offsets: append([]Offset(nil), offsets...)}
}

// IsRelative reports whether t must be resolved against a reference instant.
func (t Time) IsRelative() bool {
	return !t.absolute
}

// String renders the canonical text form. Absolute values render as RFC 3339.
func (t Time) String() string {
	if t.absolute {
		return t.Absolute.Format(time.RFC3339Nano)
	}
	var b strings.Builder
	b.WriteString(t.Base.String())
	for _, o := range t.Offsets {
		b.WriteString(o.String())
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (t Time) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Time) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
