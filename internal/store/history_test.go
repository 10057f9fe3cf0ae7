package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/histsess/internal/hda"
)

func TestWriteSample_Modes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutItem(ctx, "A.x"))

	good := hda.QualityGood | hda.QualityRaw
	v := hda.Value{Timestamp: at(0), Data: 1, Quality: good}

	assert.ErrorIs(t, s.WriteSample(ctx, "A.x", v, hda.EditReplace), ErrNoData)
	require.NoError(t, s.WriteSample(ctx, "A.x", v, hda.EditInsert))
	assert.ErrorIs(t, s.WriteSample(ctx, "A.x", v, hda.EditInsert), ErrDataExists)

	v.Data = 2
	require.NoError(t, s.WriteSample(ctx, "A.x", v, hda.EditReplace))

	v.Data = 3
	require.NoError(t, s.WriteSample(ctx, "A.x", v, hda.EditInsertReplace))
	v2 := hda.Value{Timestamp: at(1), Data: 4, Quality: good}
	require.NoError(t, s.WriteSample(ctx, "A.x", v2, hda.EditInsertReplace))

	got, err := s.ReadRaw(ctx, "A.x", hda.TimeRange{Start: at(0), End: at(10)}, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3.0, got[0].Data)
	assert.Equal(t, 4.0, got[1].Data)
	assert.Equal(t, good, got[0].Quality)
}

func TestWriteSample_UnknownItem(t *testing.T) {
	s := createTestStore(t)
	v := hda.Value{Timestamp: at(0), Data: 1}

	err := s.WriteSample(context.Background(), "Nope", v, hda.EditInsert)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestWriteSample_UnsupportedMode(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutItem(ctx, "A.x"))

	err := s.WriteSample(ctx, "A.x", hda.Value{Timestamp: at(0)}, hda.EditDelete)
	assert.Error(t, err)
}

func TestReadRaw_Ascending(t *testing.T) {
	s := createTestStore(t)
	seedSeries(t, s, "A.x", 10)

	got, err := s.ReadRaw(context.Background(), "A.x", hda.TimeRange{Start: at(2), End: at(5)}, 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(2), at(3), at(4), at(5)}, timestamps(got))
}

func TestReadRaw_DescendingAndLimited(t *testing.T) {
	s := createTestStore(t)
	seedSeries(t, s, "A.x", 10)

	got, err := s.ReadRaw(context.Background(), "A.x", hda.TimeRange{Start: at(8), End: at(1)}, 3)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(8), at(7), at(6)}, timestamps(got))
}

func TestReadRaw_PreservesSubsecondTimestamps(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutItem(ctx, "A.x"))

	ts := t0.Add(123456789 * time.Nanosecond)
	require.NoError(t, s.WriteSample(ctx, "A.x", hda.Value{Timestamp: ts, Data: 1}, hda.EditInsert))

	got, err := s.ReadRaw(ctx, "A.x", hda.TimeRange{Start: t0, End: at(1)}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Timestamp.Equal(ts))
	assert.Equal(t, time.UTC, got[0].Timestamp.Location())
}

func TestReadRaw_UnknownItem(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRaw(context.Background(), "Nope", hda.TimeRange{Start: at(0), End: at(1)}, 0)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestReadAfter(t *testing.T) {
	s := createTestStore(t)
	seedSeries(t, s, "A.x", 5)

	got, err := s.ReadAfter(context.Background(), "A.x", at(2))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(3), at(4)}, timestamps(got))
}

func TestValueAt(t *testing.T) {
	s := createTestStore(t)
	seedSeries(t, s, "A.x", 5)
	ctx := context.Background()

	v, ok, err := s.ValueAt(ctx, "A.x", at(3).Add(500*time.Millisecond))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3.0, v.Data)

	_, ok, err = s.ValueAt(ctx, "A.x", at(-1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteRange(t *testing.T) {
	s := createTestStore(t)
	seedSeries(t, s, "A.x", 10)
	ctx := context.Background()

	n, err := s.DeleteRange(ctx, "A.x", hda.TimeRange{Start: at(7), End: at(3)})
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	got, err := s.ReadRaw(ctx, "A.x", hda.TimeRange{Start: at(0), End: at(9)}, 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(0), at(1), at(2), at(8), at(9)}, timestamps(got))
}

func TestDeleteAt(t *testing.T) {
	s := createTestStore(t)
	seedSeries(t, s, "A.x", 3)
	ctx := context.Background()

	require.NoError(t, s.DeleteAt(ctx, "A.x", at(1)))
	assert.ErrorIs(t, s.DeleteAt(ctx, "A.x", at(1)), ErrNoData)
}
