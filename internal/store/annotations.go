package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/histsess/internal/hda"
)

// AddAnnotation attaches a note to id. A zero Created is set to now.
func (s *Store) AddAnnotation(ctx context.Context, id hda.ItemID, a hda.Annotation) error {
	itemID := string(hda.NormalizeItemID(string(id)))
	if err := s.requireItem(ctx, itemID); err != nil {
		return err
	}
	if a.Created.IsZero() {
		a.Created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO annotations (item_id, ts, text, author, created)
		VALUES (?, ?, ?, ?, ?)
	`, itemID, encodeTime(a.Timestamp), a.Text, a.User, encodeTime(a.Created))
	if err != nil {
		return fmt.Errorf("add annotation %q: %w", itemID, err)
	}
	return nil
}

// ReadAnnotations returns the notes of id inside r, ordered by timestamp and
// insertion order.
func (s *Store) ReadAnnotations(ctx context.Context, id hda.ItemID, r hda.TimeRange) ([]hda.Annotation, error) {
	itemID := string(hda.NormalizeItemID(string(id)))
	if err := s.requireItem(ctx, itemID); err != nil {
		return nil, err
	}
	lo, hi := bounds(r)

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, text, author, created FROM annotations
		WHERE item_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, id ASC
	`, itemID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("read annotations %q: %w", itemID, err)
	}
	defer rows.Close()

	var out []hda.Annotation
	for rows.Next() {
		var (
			a           hda.Annotation
			ts, created int64
		)
		if err := rows.Scan(&ts, &a.Text, &a.User, &created); err != nil {
			return nil, fmt.Errorf("read annotations %q: %w", itemID, err)
		}
		a.Timestamp = decodeTime(ts)
		a.Created = decodeTime(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetAttribute records the value of an attribute of id from t onwards.
func (s *Store) SetAttribute(ctx context.Context, id hda.ItemID, attr hda.AttributeID, t time.Time, value string) error {
	itemID := string(hda.NormalizeItemID(string(id)))
	if err := s.requireItem(ctx, itemID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_attributes (item_id, attr_id, ts, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(item_id, attr_id, ts) DO UPDATE SET value = excluded.value
	`, itemID, int64(attr), encodeTime(t), value)
	if err != nil {
		return fmt.Errorf("set attribute %s of %q: %w", attr, itemID, err)
	}
	return nil
}

// ReadAttribute returns the attribute value in effect at the start of r
// followed by every later change up to the end of r. Returns ErrNoData when
// the attribute was never set before the end of r.
func (s *Store) ReadAttribute(ctx context.Context, id hda.ItemID, attr hda.AttributeID, r hda.TimeRange) ([]hda.AttributeValue, error) {
	itemID := string(hda.NormalizeItemID(string(id)))
	if err := s.requireItem(ctx, itemID); err != nil {
		return nil, err
	}
	lo, hi := bounds(r)

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, value FROM item_attributes
		WHERE item_id = ?1 AND attr_id = ?2 AND ts <= ?4 AND ts >= COALESCE(
			(SELECT MAX(ts) FROM item_attributes WHERE item_id = ?1 AND attr_id = ?2 AND ts <= ?3),
			?3)
		ORDER BY ts ASC
	`, itemID, int64(attr), lo, hi)
	if err != nil {
		return nil, fmt.Errorf("read attribute %s of %q: %w", attr, itemID, err)
	}
	defer rows.Close()

	var out []hda.AttributeValue
	for rows.Next() {
		var (
			v  hda.AttributeValue
			ts int64
		)
		if err := rows.Scan(&ts, &v.Data); err != nil {
			return nil, fmt.Errorf("read attribute %s of %q: %w", attr, itemID, err)
		}
		v.Timestamp = decodeTime(ts)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}
