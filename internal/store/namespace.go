package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/histsess/internal/hda"
)

// PutBranch creates the branch at path and every missing ancestor.
// Existing branches are left untouched. The empty path is the root and
// always exists.
func (s *Store) PutBranch(ctx context.Context, path string) error {
	path = hda.NormalizePath(path)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return putBranchTx(ctx, tx, path)
	})
}

func putBranchTx(ctx context.Context, tx *sql.Tx, path string) error {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, hda.PathSeparator)
	parent := ""
	for _, name := range parts {
		if name == "" {
			return fmt.Errorf("put branch %q: empty path segment", path)
		}
		full := hda.JoinPath(parent, name)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO branches (path, parent, name)
			VALUES (?, ?, ?)
			ON CONFLICT(path) DO NOTHING
		`, full, parent, name); err != nil {
			return fmt.Errorf("put branch %q: %w", full, err)
		}
		parent = full
	}
	return nil
}

// PutItem creates the item and its parent branches. Idempotent.
func (s *Store) PutItem(ctx context.Context, id string) error {
	itemID := hda.NormalizeItemID(id)
	branch, name := hda.SplitPath(string(itemID))
	if name == "" {
		return fmt.Errorf("put item %q: empty name", id)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := putBranchTx(ctx, tx, branch); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO items (id, branch, name)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, string(itemID), branch, name)
		if err != nil {
			return fmt.Errorf("put item %q: %w", itemID, err)
		}
		return nil
	})
}

// BranchExists reports whether path names a branch. The root always exists.
func (s *Store) BranchExists(ctx context.Context, path string) (bool, error) {
	path = hda.NormalizePath(path)
	if path == "" {
		return true, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM branches WHERE path = ?`, path).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("branch exists %q: %w", path, err)
	}
	return n > 0, nil
}

// ListBranches returns the names of the child branches of path, sorted.
func (s *Store) ListBranches(ctx context.Context, path string) ([]string, error) {
	return s.listNames(ctx, `
		SELECT name FROM branches
		WHERE parent = ?
		ORDER BY name ASC COLLATE BINARY
	`, hda.NormalizePath(path))
}

// ListItems returns the names of the items directly under path, sorted.
func (s *Store) ListItems(ctx context.Context, path string) ([]string, error) {
	return s.listNames(ctx, `
		SELECT name FROM items
		WHERE branch = ?
		ORDER BY name ASC COLLATE BINARY
	`, hda.NormalizePath(path))
}

func (s *Store) listNames(ctx context.Context, query, path string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, path)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", path, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list %q: %w", path, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ItemExists reports whether id names an item.
func (s *Store) ItemExists(ctx context.Context, id hda.ItemID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE id = ?`,
		string(hda.NormalizeItemID(string(id))),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("item exists %q: %w", id, err)
	}
	return n > 0, nil
}

// ItemsExist reports existence for each id, in order.
func (s *Store) ItemsExist(ctx context.Context, ids []hda.ItemID) ([]bool, error) {
	out := make([]bool, len(ids))
	for i, id := range ids {
		ok, err := s.ItemExists(ctx, id)
		if err != nil {
			return nil, err
		}
		out[i] = ok
	}
	return out, nil
}
