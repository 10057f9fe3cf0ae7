package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/histsess/internal/hda"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)

// at returns t0 plus n seconds.
func at(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Second)
}

// seedSeries creates item id with one good value per second for n seconds,
// starting at t0 with value 0.
func seedSeries(t *testing.T, s *Store, id string, n int) {
	t.Helper()
	ctx := context.Background()
	if err := s.PutItem(ctx, id); err != nil {
		t.Fatalf("PutItem(%q) failed: %v", id, err)
	}
	for i := 0; i < n; i++ {
		v := hda.Value{Timestamp: at(i), Data: float64(i), Quality: hda.QualityGood | hda.QualityRaw}
		if err := s.WriteSample(ctx, hda.ItemID(id), v, hda.EditInsert); err != nil {
			t.Fatalf("WriteSample(%q, %d) failed: %v", id, i, err)
		}
	}
}

func timestamps(vs []hda.Value) []time.Time {
	out := make([]time.Time, len(vs))
	for i, v := range vs {
		out[i] = v.Timestamp
	}
	return out
}
