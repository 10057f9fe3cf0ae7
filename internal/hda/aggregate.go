package hda

import (
	"fmt"
	"strings"
)

// Aggregate selects the calculation applied to each resample interval of a
// processed read.
type Aggregate int

const (
	AggregateInterpolative Aggregate = iota + 1
	AggregateTotal
	AggregateAverage
	AggregateCount
	AggregateMinimum
	AggregateMaximum
	AggregateStart
	AggregateEnd
)

var aggregateNames = []string{
	AggregateInterpolative: "Interpolative",
	AggregateTotal:         "Total",
	AggregateAverage:       "Average",
	AggregateCount:         "Count",
	AggregateMinimum:       "Minimum",
	AggregateMaximum:       "Maximum",
	AggregateStart:         "Start",
	AggregateEnd:           "End",
}

func (a Aggregate) String() string {
	if a > 0 && int(a) < len(aggregateNames) {
		return aggregateNames[a]
	}
	return fmt.Sprintf("Aggregate(%d)", int(a))
}

// ParseAggregate resolves a case-insensitive aggregate name.
func ParseAggregate(name string) (Aggregate, error) {
	for i, n := range aggregateNames {
		if i > 0 && strings.EqualFold(n, name) {
			return Aggregate(i), nil
		}
	}
	return 0, fmt.Errorf("unknown aggregate %q", name)
}
