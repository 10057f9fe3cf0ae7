package correlate

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/histsess/internal/hda"
)

// recorder collects every Result delivered to its handler.
type recorder struct {
	mu      sync.Mutex
	results []*Result
}

func (r *recorder) handle(res *Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func (r *recorder) all() []*Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Result(nil), r.results...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

var itemX = hda.Item{ID: "Plant.X", Path: "Plant", ClientHandle: 7}

func acceptX() []InitialItem {
	return []InitialItem{{Handle: 100, Item: itemX}}
}

func actualRange() hda.TimeRange {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return hda.TimeRange{Start: start, End: start.Add(time.Hour)}
}

// payload builds a single-entry payload for handle 100 tagged by value.
func payload(tag float64, more bool) Payload {
	return Payload{Entries: []Entry{{
		Handle:   100,
		MoreData: more,
		Values:   []hda.Value{{Data: tag, Quality: hda.QualityGood}},
	}}}
}

func tagOf(res *Result) float64 {
	return res.Items[0].Values[0].Data
}

var errBoom = errors.New("boom")

func label(i int) string {
	return fmt.Sprintf("delivery-%d", i)
}
