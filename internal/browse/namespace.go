package browse

import (
	"context"
	"fmt"

	"github.com/roach88/histsess/internal/hda"
)

// Phase is the enumeration phase of a browse.
type Phase int

const (
	PhaseBranches Phase = iota + 1
	PhaseItems
)

func (p Phase) String() string {
	switch p {
	case PhaseBranches:
		return "branches"
	case PhaseItems:
		return "items"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Element is one entry of a browse page.
type Element struct {
	Name   string     `json:"name"`
	ItemID hda.ItemID `json:"item_id"`

	// IsBranch is set for elements enumerated in the branch phase.
	IsBranch bool `json:"is_branch"`

	// IsItem is set when the namespace confirmed ItemID as an item.
	IsItem bool `json:"is_item"`
}

// Namespace is the remote side of a browse.
type Namespace interface {
	// ChangePosition moves the remote browse position to path. The empty
	// path is the root.
	ChangePosition(ctx context.Context, path string) error

	// Enumerate opens an enumerator over the children of the current
	// position for the given phase.
	Enumerate(ctx context.Context, phase Phase) (Enumerator, error)

	// ValidateItems reports, for each id, whether it names an existing item.
	ValidateItems(ctx context.Context, ids []hda.ItemID) ([]bool, error)
}

// Enumerator is an open remote enumeration.
type Enumerator interface {
	// Next returns up to n elements. Fewer than n means the enumeration is
	// exhausted.
	Next(ctx context.Context, n int) ([]Element, error)

	// Close releases the enumerator.
	Close() error
}
