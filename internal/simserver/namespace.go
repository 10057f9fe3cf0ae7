package simserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/histsess/internal/browse"
	"github.com/roach88/histsess/internal/hda"
)

// ChangePosition implements browse.Namespace. The position is shared by
// every browse on the server.
func (s *Server) ChangePosition(ctx context.Context, path string) error {
	path = hda.NormalizePath(path)
	ok, err := s.store.BranchExists(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("change position: no branch %q", path)
	}

	s.mu.Lock()
	s.position = path
	s.mu.Unlock()
	return nil
}

// Enumerate implements browse.Namespace. The enumerator works on a snapshot
// of the children taken when it is opened.
func (s *Server) Enumerate(ctx context.Context, phase browse.Phase) (browse.Enumerator, error) {
	s.mu.Lock()
	path := s.position
	s.mu.Unlock()

	var (
		names []string
		err   error
	)
	switch phase {
	case browse.PhaseBranches:
		names, err = s.store.ListBranches(ctx, path)
	case browse.PhaseItems:
		names, err = s.store.ListItems(ctx, path)
	default:
		return nil, fmt.Errorf("enumerate: unknown phase %s", phase)
	}
	if err != nil {
		return nil, err
	}

	elems := make([]browse.Element, len(names))
	for i, name := range names {
		elems[i] = browse.Element{Name: name, ItemID: hda.ItemID(hda.JoinPath(path, name))}
	}
	return &enumerator{elems: elems}, nil
}

// ValidateItems implements browse.Namespace.
func (s *Server) ValidateItems(ctx context.Context, ids []hda.ItemID) ([]bool, error) {
	return s.store.ItemsExist(ctx, ids)
}

var errEnumeratorClosed = errors.New("enumerator closed")

type enumerator struct {
	elems  []browse.Element
	closed bool
}

func (e *enumerator) Next(_ context.Context, n int) ([]browse.Element, error) {
	if e.closed {
		return nil, errEnumeratorClosed
	}
	n = min(n, len(e.elems))
	out := e.elems[:n:n]
	e.elems = e.elems[n:]
	return out, nil
}

func (e *enumerator) Close() error {
	e.closed = true
	e.elems = nil
	return nil
}
