package browse

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/histsess/internal/hda"
)

// fakeNode is one branch of the fake namespace.
type fakeNode struct {
	branches []string
	items    []string
}

// fakeNamespace is an in-memory Namespace that records every remote call.
type fakeNamespace struct {
	mu       sync.Mutex
	tree     map[string]fakeNode
	items    map[hda.ItemID]bool
	position string

	positions []string
	nextSizes []int
	open      int
	validated int

	failValidate bool
}

func newFakeNamespace() *fakeNamespace {
	return &fakeNamespace{
		tree:  map[string]fakeNode{"": {}},
		items: map[hda.ItemID]bool{},
	}
}

func (f *fakeNamespace) addBranch(path string, branches []string, items []string) {
	f.tree[path] = fakeNode{branches: branches, items: items}
	for _, it := range items {
		f.items[hda.ItemID(hda.JoinPath(path, it))] = true
	}
}

var errNoBranch = errors.New("no such branch")

func (f *fakeNamespace) ChangePosition(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tree[path]; !ok {
		return errNoBranch
	}
	f.position = path
	f.positions = append(f.positions, path)
	return nil
}

func (f *fakeNamespace) Enumerate(_ context.Context, phase Phase) (Enumerator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	node := f.tree[f.position]
	names := node.items
	if phase == PhaseBranches {
		names = node.branches
	}
	elems := make([]Element, len(names))
	for i, n := range names {
		elems[i] = Element{Name: n, ItemID: hda.ItemID(hda.JoinPath(f.position, n))}
	}
	f.open++
	return &fakeEnumerator{ns: f, elems: elems}, nil
}

func (f *fakeNamespace) ValidateItems(_ context.Context, ids []hda.ItemID) ([]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failValidate {
		return nil, errors.New("validation unavailable")
	}
	f.validated++
	out := make([]bool, len(ids))
	for i, id := range ids {
		out[i] = f.items[id]
	}
	return out, nil
}

func (f *fakeNamespace) openEnumerators() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

type fakeEnumerator struct {
	ns     *fakeNamespace
	elems  []Element
	pos    int
	closed bool
}

func (e *fakeEnumerator) Next(_ context.Context, n int) ([]Element, error) {
	e.ns.mu.Lock()
	e.ns.nextSizes = append(e.ns.nextSizes, n)
	e.ns.mu.Unlock()

	end := min(e.pos+n, len(e.elems))
	out := append([]Element(nil), e.elems[e.pos:end]...)
	e.pos = end
	return out, nil
}

func (e *fakeEnumerator) Close() error {
	if e.closed {
		return errors.New("double close")
	}
	e.closed = true
	e.ns.mu.Lock()
	e.ns.open--
	e.ns.mu.Unlock()
	return nil
}

func names(elems []Element) []string {
	out := make([]string, len(elems))
	for i, e := range elems {
		out[i] = e.Name
	}
	return out
}
