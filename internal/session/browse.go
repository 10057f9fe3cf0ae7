package session

import (
	"context"

	"github.com/roach88/histsess/internal/browse"
)

// Browse lists the children of root, branches first, up to maxElements
// (<= 0: no limit). A non-nil cursor means the page was truncated.
func (s *Session) Browse(ctx context.Context, root string, maxElements int) ([]browse.Element, *browse.Cursor, error) {
	if s.browser == nil {
		return nil, nil, ErrNoNamespace
	}
	if s.isClosed() {
		return nil, nil, ErrClosed
	}
	return s.browser.Browse(ctx, root, maxElements)
}

// BrowseNext continues a truncated browse. An exhausted cursor yields an
// empty page and a nil cursor.
func (s *Session) BrowseNext(ctx context.Context, c *browse.Cursor, maxElements int) ([]browse.Element, *browse.Cursor, error) {
	if s.browser == nil {
		return nil, nil, ErrNoNamespace
	}
	return s.browser.BrowseNext(ctx, c, maxElements)
}

// BrowseAll pages through root until the cursor is exhausted, calling fn
// with every page.
func (s *Session) BrowseAll(ctx context.Context, root string, pageSize int, fn func(page []browse.Element) error) error {
	page, cur, err := s.Browse(ctx, root, pageSize)
	for {
		if err != nil {
			_ = cur.Dispose()
			return err
		}
		if len(page) > 0 {
			if err := fn(page); err != nil {
				_ = cur.Dispose()
				return err
			}
		}
		if cur == nil {
			return nil
		}
		page, cur, err = s.BrowseNext(ctx, cur, pageSize)
	}
}
