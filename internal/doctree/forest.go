// Package doctree holds the in-memory document hierarchy of one library.
//
// A Forest is an arena: every node lives in a map keyed by document id and
// refers to its parent and children by id only. It is built from the flat
// list returned by the document tree endpoint and is thrown away and rebuilt
// after every structural change on the server.
package doctree

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hyperjump/quire/internal/models"
)

// ErrDuplicateID is returned by BuildTreeStrict when two input rows share an id.
var ErrDuplicateID = errors.New("duplicate document id")

// ErrUnknownDocument is returned when an operation names an id not in the forest.
var ErrUnknownDocument = errors.New("document not in tree")

// ErrInvalidMove is returned by Reparent when CanReparent rejects the move.
var ErrInvalidMove = errors.New("invalid move")

type node struct {
	doc      models.Document
	parent   *int64
	children []int64
}

// Forest is a set of document trees indexed by id.
type Forest struct {
	nodes map[int64]*node
	roots []int64
	order []int64 // input order, used for deterministic cycle breaking
}

// Entry is one document of a pre-order walk.
type Entry struct {
	Doc         models.Document
	Depth       int
	HasChildren bool
}

// BuildTree assembles docs into a forest in O(n).
//
// Rows with a nil parent, or a parent id missing from docs, become roots.
// Siblings keep their input order. Later rows repeating an id are dropped.
// Rows whose parent links loop without reaching a root are cut loose at the
// first row of the loop (in input order) so that no document is lost.
func BuildTree(docs []models.Document) *Forest {
	f, _ := build(docs)
	return f
}

// BuildTreeStrict is BuildTree but fails on duplicate ids.
func BuildTreeStrict(docs []models.Document) (*Forest, error) {
	f, dups := build(docs)
	if len(dups) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrDuplicateID, dups)
	}
	return f, nil
}

func build(docs []models.Document) (*Forest, []int64) {
	f := &Forest{
		nodes: make(map[int64]*node, len(docs)),
		order: make([]int64, 0, len(docs)),
	}
	var dups []int64
	for _, d := range docs {
		if _, ok := f.nodes[d.ID]; ok {
			dups = append(dups, d.ID)
			continue
		}
		f.nodes[d.ID] = &node{doc: d}
		f.order = append(f.order, d.ID)
	}

	for _, id := range f.order {
		n := f.nodes[id]
		pid := n.doc.ParentID
		if pid == nil || *pid == id {
			f.roots = append(f.roots, id)
			continue
		}
		p, ok := f.nodes[*pid]
		if !ok {
			f.roots = append(f.roots, id)
			continue
		}
		n.parent = models.Int64(*pid)
		p.children = append(p.children, id)
	}

	f.breakCycles()
	return f, dups
}

// breakCycles promotes to root the first node of every parent loop that is
// unreachable from the existing roots.
func (f *Forest) breakCycles() {
	seen := make(map[int64]bool, len(f.nodes))
	var mark func(id int64)
	mark = func(id int64) {
		seen[id] = true
		for _, c := range f.nodes[id].children {
			if !seen[c] {
				mark(c)
			}
		}
	}
	for _, r := range f.roots {
		mark(r)
	}
	if len(seen) == len(f.nodes) {
		return
	}
	for _, id := range f.order {
		if seen[id] {
			continue
		}
		f.detach(id)
		f.roots = append(f.roots, id)
		mark(id)
	}
}

// detach removes id from its parent's child list (or from the roots).
func (f *Forest) detach(id int64) {
	n := f.nodes[id]
	if n.parent == nil {
		f.roots = slices.DeleteFunc(f.roots, func(v int64) bool { return v == id })
		return
	}
	p := f.nodes[*n.parent]
	p.children = slices.DeleteFunc(p.children, func(v int64) bool { return v == id })
	n.parent = nil
}

// Len returns the number of documents in the forest.
func (f *Forest) Len() int {
	if f == nil {
		return 0
	}
	return len(f.nodes)
}

// Roots returns the root ids in order.
func (f *Forest) Roots() []int64 {
	if f == nil {
		return nil
	}
	return slices.Clone(f.roots)
}

// Children returns the child ids of id in order.
func (f *Forest) Children(id int64) []int64 {
	if f == nil {
		return nil
	}
	n, ok := f.nodes[id]
	if !ok {
		return nil
	}
	return slices.Clone(n.children)
}

// Parent returns the parent id of id, or false for roots and unknown ids.
func (f *Forest) Parent(id int64) (int64, bool) {
	if f == nil {
		return 0, false
	}
	n, ok := f.nodes[id]
	if !ok || n.parent == nil {
		return 0, false
	}
	return *n.parent, true
}

// Get returns the document with id by direct lookup.
func (f *Forest) Get(id int64) (models.Document, bool) {
	if f == nil {
		return models.Document{}, false
	}
	n, ok := f.nodes[id]
	if !ok {
		return models.Document{}, false
	}
	return n.doc, true
}

// FindByID searches the forest depth-first, roots in order, and returns the
// first document with id.
func (f *Forest) FindByID(id int64) (models.Document, bool) {
	var found models.Document
	ok := false
	f.Walk(func(e Entry) bool {
		if e.Doc.ID == id {
			found, ok = e.Doc, true
			return false
		}
		return true
	})
	return found, ok
}

// IsDescendantOf reports whether candidate lies below ancestor. A node is not
// its own descendant.
func (f *Forest) IsDescendantOf(ancestor, candidate int64) bool {
	if f == nil {
		return false
	}
	n, ok := f.nodes[ancestor]
	if !ok {
		return false
	}
	stack := slices.Clone(n.children)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == candidate {
			return true
		}
		stack = append(stack, f.nodes[id].children...)
	}
	return false
}

// CanReparent reports whether dragged may be moved under target. A nil target
// is the root collection and is always allowed for a known document.
func (f *Forest) CanReparent(dragged int64, target *int64) bool {
	if f == nil {
		return false
	}
	if _, ok := f.nodes[dragged]; !ok {
		return false
	}
	if target == nil {
		return true
	}
	if *target == dragged {
		return false
	}
	if _, ok := f.nodes[*target]; !ok {
		return false
	}
	return !f.IsDescendantOf(dragged, *target)
}

// Reparent moves dragged under target (nil for root) in place. The moved
// document is appended after its new siblings.
func (f *Forest) Reparent(dragged int64, target *int64) error {
	if !f.CanReparent(dragged, target) {
		if _, ok := f.nodes[dragged]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownDocument, dragged)
		}
		return ErrInvalidMove
	}
	n := f.nodes[dragged]
	f.detach(dragged)
	if target == nil {
		n.doc.ParentID = nil
		f.roots = append(f.roots, dragged)
		return nil
	}
	n.parent = models.Int64(*target)
	n.doc.ParentID = models.Int64(*target)
	p := f.nodes[*target]
	p.children = append(p.children, dragged)
	return nil
}

// Merge copies title and content of doc onto the node with the same id.
// It reports whether the node exists. Structure is left untouched.
func (f *Forest) Merge(doc models.Document) bool {
	if f == nil {
		return false
	}
	n, ok := f.nodes[doc.ID]
	if !ok {
		return false
	}
	n.doc.Title = doc.Title
	n.doc.Content = doc.Content
	if !doc.UpdatedAt.IsZero() {
		n.doc.UpdatedAt = doc.UpdatedAt
	}
	return true
}

// Walk visits documents in pre-order until fn returns false.
func (f *Forest) Walk(fn func(Entry) bool) {
	if f == nil {
		return
	}
	var visit func(id int64, depth int) bool
	visit = func(id int64, depth int) bool {
		n := f.nodes[id]
		if !fn(Entry{Doc: n.doc, Depth: depth, HasChildren: len(n.children) > 0}) {
			return false
		}
		for _, c := range n.children {
			if !visit(c, depth+1) {
				return false
			}
		}
		return true
	}
	for _, r := range f.roots {
		if !visit(r, 0) {
			return
		}
	}
}

// Flatten returns every document in pre-order with its depth.
func (f *Forest) Flatten() []Entry {
	out := make([]Entry, 0, f.Len())
	f.Walk(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Path returns the chain of documents from the root down to id, inclusive.
func (f *Forest) Path(id int64) []models.Document {
	if f == nil {
		return nil
	}
	var chain []models.Document
	for cur, ok := id, true; ok; cur, ok = f.Parent(cur) {
		n, exists := f.nodes[cur]
		if !exists {
			return nil
		}
		chain = append(chain, n.doc)
	}
	slices.Reverse(chain)
	return chain
}

// First returns the id of the first root.
func (f *Forest) First() (int64, bool) {
	if f == nil || len(f.roots) == 0 {
		return 0, false
	}
	return f.roots[0], true
}
