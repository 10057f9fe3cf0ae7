package browse

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/histsess/internal/hda"
)

// BlockSize is the number of elements requested from the remote enumerator
// per round trip.
const BlockSize = 10

// Cursor is the resumable position of a truncated browse.
type Cursor struct {
	branchPath string
	phase      Phase
	enum       Enumerator
	disposed   bool
}

// BranchPath returns the branch being browsed.
func (c *Cursor) BranchPath() string {
	return c.branchPath
}

// Phase returns the phase the next page resumes in.
func (c *Cursor) Phase() Phase {
	return c.phase
}

// Disposed reports whether the cursor has been released.
func (c *Cursor) Disposed() bool {
	return c == nil || c.disposed
}

// Dispose releases the remote enumerator. It is idempotent.
func (c *Cursor) Dispose() error {
	if c == nil || c.disposed {
		return nil
	}
	c.disposed = true
	return c.closeEnum()
}

func (c *Cursor) closeEnum() error {
	if c.enum == nil {
		return nil
	}
	err := c.enum.Close()
	c.enum = nil
	if err != nil {
		return fmt.Errorf("close %s enumerator: %w", c.phase, err)
	}
	return nil
}

// Browser pages through a Namespace.
type Browser struct {
	ns     Namespace
	logger *slog.Logger
}

// NewBrowser creates a Browser over ns. A nil logger uses slog.Default().
func NewBrowser(ns Namespace, logger *slog.Logger) *Browser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{ns: ns, logger: logger}
}

// Browse lists the children of root: branches first, then items, up to
// maxElements (<= 0 means no limit). A non-nil Cursor is returned only when
// the cap was reached before both phases were exhausted.
func (b *Browser) Browse(ctx context.Context, root string, maxElements int) ([]Element, *Cursor, error) {
	root = hda.NormalizePath(root)
	if err := b.ns.ChangePosition(ctx, root); err != nil {
		return nil, nil, fmt.Errorf("browse %q: %w", root, err)
	}

	c := &Cursor{branchPath: root, phase: PhaseBranches}
	page, err := b.fill(ctx, c, maxElements, false)
	if err != nil {
		_ = c.Dispose()
		return nil, nil, err
	}
	return b.finish(c, page)
}

// BrowseNext continues a truncated browse. A nil, exhausted or disposed
// cursor yields an empty page and a nil cursor. The cursor is disposed once
// both phases are drained.
func (b *Browser) BrowseNext(ctx context.Context, c *Cursor, maxElements int) ([]Element, *Cursor, error) {
	if c.Disposed() {
		return nil, nil, nil
	}
	page, err := b.fill(ctx, c, maxElements, true)
	if err != nil {
		return nil, c, err
	}
	return b.finish(c, page)
}

func (b *Browser) finish(c *Cursor, page []Element) ([]Element, *Cursor, error) {
	if c.disposed {
		return page, nil, nil
	}
	return page, c, nil
}

// fill reads one page into c's phases. When both phases run out the cursor
// is disposed. rehome moves the remote position back to the cursor's branch
// before the item phase opens, since other browses may have moved it.
func (b *Browser) fill(ctx context.Context, c *Cursor, maxElements int, rehome bool) ([]Element, error) {
	limit := maxElements
	if limit <= 0 {
		limit = math.MaxInt
	}

	var page []Element
	for len(page) < limit {
		if c.enum == nil {
			if c.phase == PhaseItems && rehome {
				if err := b.ns.ChangePosition(ctx, c.branchPath); err != nil {
					return nil, fmt.Errorf("browse %q: %w", c.branchPath, err)
				}
			}
			enum, err := b.ns.Enumerate(ctx, c.phase)
			if err != nil {
				return nil, fmt.Errorf("enumerate %s of %q: %w", c.phase, c.branchPath, err)
			}
			c.enum = enum
		}

		n := min(BlockSize, limit-len(page))
		batch, err := c.enum.Next(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("enumerate %s of %q: %w", c.phase, c.branchPath, err)
		}
		for i := range batch {
			batch[i].IsBranch = c.phase == PhaseBranches
		}
		page = append(page, batch...)

		if len(batch) < n {
			if err := c.closeEnum(); err != nil {
				b.logger.Warn("enumerator close failed", "branch", c.branchPath, "error", err)
			}
			if c.phase == PhaseBranches {
				c.phase = PhaseItems
				continue
			}
			c.disposed = true
			break
		}
	}

	if err := b.validate(ctx, page); err != nil {
		return nil, err
	}
	return page, nil
}

func (b *Browser) validate(ctx context.Context, page []Element) error {
	if len(page) == 0 {
		return nil
	}
	ids := make([]hda.ItemID, len(page))
	for i, e := range page {
		ids[i] = e.ItemID
	}
	ok, err := b.ns.ValidateItems(ctx, ids)
	if err != nil {
		return fmt.Errorf("validate browse page: %w", err)
	}
	if len(ok) != len(page) {
		return fmt.Errorf("validate browse page: got %d results for %d elements", len(ok), len(page))
	}
	for i := range page {
		page[i].IsItem = ok[i]
	}
	return nil
}
