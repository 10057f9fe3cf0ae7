package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/histsess/internal/hda"
)

// WriteSample changes the value of id at v.Timestamp according to mode:
//   - EditInsert fails with ErrDataExists if a value is already there
//   - EditReplace fails with ErrNoData if no value is there
//   - EditInsertReplace always writes
//
// Writes to unknown items fail with ErrItemNotFound.
func (s *Store) WriteSample(ctx context.Context, id hda.ItemID, v hda.Value, mode hda.EditType) error {
	itemID := string(hda.NormalizeItemID(string(id)))
	if err := s.requireItem(ctx, itemID); err != nil {
		return err
	}

	var query string
	switch mode {
	case hda.EditInsert:
		query = `
			INSERT INTO samples (item_id, ts, value, quality)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(item_id, ts) DO NOTHING`
	case hda.EditReplace:
		query = `
			UPDATE samples SET value = ?3, quality = ?4
			WHERE item_id = ?1 AND ts = ?2`
	case hda.EditInsertReplace:
		query = `
			INSERT INTO samples (item_id, ts, value, quality)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(item_id, ts) DO UPDATE SET value = excluded.value, quality = excluded.quality`
	default:
		return fmt.Errorf("write sample: unsupported edit type %s", mode)
	}

	res, err := s.db.ExecContext(ctx, query, itemID, encodeTime(v.Timestamp), v.Data, int64(v.Quality))
	if err != nil {
		return fmt.Errorf("write sample %q: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write sample %q: %w", itemID, err)
	}
	if n == 0 {
		if mode == hda.EditInsert {
			return ErrDataExists
		}
		return ErrNoData
	}
	return nil
}

// DeleteRange removes the values of id inside r (inclusive) and returns how
// many were removed.
func (s *Store) DeleteRange(ctx context.Context, id hda.ItemID, r hda.TimeRange) (int64, error) {
	itemID := string(hda.NormalizeItemID(string(id)))
	if err := s.requireItem(ctx, itemID); err != nil {
		return 0, err
	}
	lo, hi := bounds(r)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM samples
		WHERE item_id = ? AND ts >= ? AND ts <= ?
	`, itemID, lo, hi)
	if err != nil {
		return 0, fmt.Errorf("delete range %q: %w", itemID, err)
	}
	return res.RowsAffected()
}

// DeleteAt removes the value of id at exactly t. Returns ErrNoData if there
// is none.
func (s *Store) DeleteAt(ctx context.Context, id hda.ItemID, t time.Time) error {
	n, err := s.DeleteRange(ctx, id, hda.TimeRange{Start: t, End: t})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoData
	}
	return nil
}

// ReadRaw returns up to maxValues values (<= 0: all) of id inside r. A
// descending range returns newest first.
func (s *Store) ReadRaw(ctx context.Context, id hda.ItemID, r hda.TimeRange, maxValues int) ([]hda.Value, error) {
	itemID := string(hda.NormalizeItemID(string(id)))
	if err := s.requireItem(ctx, itemID); err != nil {
		return nil, err
	}

	order := "ASC"
	if r.Descending() {
		order = "DESC"
	}
	limit := int64(-1)
	if maxValues > 0 {
		limit = int64(maxValues)
	}
	lo, hi := bounds(r)

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, value, quality FROM samples
		WHERE item_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts `+order+`
		LIMIT ?
	`, itemID, lo, hi, limit)
	if err != nil {
		return nil, fmt.Errorf("read raw %q: %w", itemID, err)
	}
	return scanValues(rows)
}

// ReadAfter returns every value of id strictly after t, oldest first.
func (s *Store) ReadAfter(ctx context.Context, id hda.ItemID, t time.Time) ([]hda.Value, error) {
	itemID := string(hda.NormalizeItemID(string(id)))
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, value, quality FROM samples
		WHERE item_id = ? AND ts > ?
		ORDER BY ts ASC
	`, itemID, encodeTime(t))
	if err != nil {
		return nil, fmt.Errorf("read after %q: %w", itemID, err)
	}
	return scanValues(rows)
}

// ValueAt returns the latest value of id at or before t. The boolean is false
// when there is none.
func (s *Store) ValueAt(ctx context.Context, id hda.ItemID, t time.Time) (hda.Value, bool, error) {
	itemID := string(hda.NormalizeItemID(string(id)))
	var (
		ts      int64
		v       hda.Value
		quality int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT ts, value, quality FROM samples
		WHERE item_id = ? AND ts <= ?
		ORDER BY ts DESC
		LIMIT 1
	`, itemID, encodeTime(t)).Scan(&ts, &v.Data, &quality)
	if errors.Is(err, sql.ErrNoRows) {
		return hda.Value{}, false, nil
	}
	if err != nil {
		return hda.Value{}, false, fmt.Errorf("value at %q: %w", itemID, err)
	}
	v.Timestamp = decodeTime(ts)
	v.Quality = hda.Quality(quality)
	return v, true, nil
}

func (s *Store) requireItem(ctx context.Context, itemID string) error {
	ok, err := s.ItemExists(ctx, hda.ItemID(itemID))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	return nil
}

func scanValues(rows *sql.Rows) ([]hda.Value, error) {
	defer rows.Close()

	var out []hda.Value
	for rows.Next() {
		var (
			ts      int64
			v       hda.Value
			quality int64
		)
		if err := rows.Scan(&ts, &v.Data, &quality); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		v.Timestamp = decodeTime(ts)
		v.Quality = hda.Quality(quality)
		out = append(out, v)
	}
	return out, rows.Err()
}

// bounds returns the range's inclusive limits in ascending order.
func bounds(r hda.TimeRange) (lo, hi int64) {
	lo, hi = encodeTime(r.Start), encodeTime(r.End)
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}
