package domain

import (
	"fmt"
	"sort"
)

// Family discriminates the closed set of entity variants.
type Family string

// Entity families.
const (
	FamilyLayer   Family = "layer"
	FamilyWall    Family = "wall"
	FamilyOpening Family = "opening"
	FamilyContent Family = "content"
	FamilyLight   Family = "light"
	FamilyGroup   Family = "group"
)

// FieldChange is dispatched on an entity's Changed signal whenever a declared
// field takes a new value.
type FieldChange struct {
	Entity Entity
	Field  string
	Old    any
	New    any
}

// Entity is an addressable node of the document graph. The set of
// implementations is closed: Layer, Wall, Opening, Content, Light and Group.
type Entity interface {
	ID() string
	TypeTag() string
	Family() Family
	Parents() []Entity
	Children() []Entity
	AddParent(p Entity) bool
	RemoveParent(p Entity) bool
	HasParents() bool
	IsDisposed() bool
	Destroy()
	Changed() *Signal[FieldChange]
	base() *Node
}

// Node carries the state shared by every entity family. Families embed *Node.
type Node struct {
	self     Entity
	id       string
	typeTag  string
	family   Family
	parents  map[string]Entity
	order    []string
	children []Entity
	disposed bool
	doc      *Document
	changed  Signal[FieldChange]
	cleanup  []func()
}

func newNode(id, typeTag string, family Family) *Node {
	return &Node{
		id:      id,
		typeTag: typeTag,
		family:  family,
		parents: make(map[string]Entity),
	}
}

// ID returns the entity id.
func (n *Node) ID() string { return n.id }

// TypeTag returns the long class name.
func (n *Node) TypeTag() string { return n.typeTag }

// Family returns the variant family.
func (n *Node) Family() Family { return n.family }

// Changed is the field-change signal.
func (n *Node) Changed() *Signal[FieldChange] { return &n.changed }

// IsDisposed reports whether Destroy has run.
func (n *Node) IsDisposed() bool { return n.disposed }

func (n *Node) base() *Node { return n }

// Document returns the owning document, or nil for free-standing entities.
func (n *Node) Document() *Document { return n.doc }

// Parents returns the parents in attachment order.
func (n *Node) Parents() []Entity {
	out := make([]Entity, 0, len(n.order))
	for _, id := range n.order {
		out = append(out, n.parents[id])
	}
	return out
}

// ParentIDs returns parent ids in attachment order.
func (n *Node) ParentIDs() []string {
	return append([]string(nil), n.order...)
}

// Children returns the ordered children.
func (n *Node) Children() []Entity {
	return append([]Entity(nil), n.children...)
}

// ChildIndex returns the position of child, or -1.
func (n *Node) ChildIndex(child Entity) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

// HasParents reports whether the entity is attached anywhere.
func (n *Node) HasParents() bool { return len(n.order) > 0 }

// HasParent reports whether p is a parent.
func (n *Node) HasParent(p Entity) bool {
	if p == nil {
		return false
	}
	cur, ok := n.parents[p.ID()]
	return ok && cur == p
}

// AddParent attaches the entity under p, appending it to p's children. It is a
// no-op returning false when already attached to p or when either side is
// disposed.
func (n *Node) AddParent(p Entity) bool {
	return n.attach(p, -1)
}

// RemoveParent detaches the entity from p.
func (n *Node) RemoveParent(p Entity) bool {
	if p == nil || !n.HasParent(p) {
		return false
	}
	delete(n.parents, p.ID())
	for i, id := range n.order {
		if id == p.ID() {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
	pn := p.base()
	if idx := pn.ChildIndex(n.self); idx >= 0 {
		pn.children = append(pn.children[:idx], pn.children[idx+1:]...)
	}
	return true
}

func (n *Node) attach(p Entity, index int) bool {
	if p == nil || n.disposed || p.IsDisposed() || n.HasParent(p) {
		return false
	}
	n.parents[p.ID()] = p
	n.order = append(n.order, p.ID())
	pn := p.base()
	if index < 0 || index >= len(pn.children) {
		pn.children = append(pn.children, n.self)
	} else {
		pn.children = append(pn.children, nil)
		copy(pn.children[index+1:], pn.children[index:])
		pn.children[index] = n.self
	}
	return true
}

// onDestroy registers fn to run when the entity is destroyed.
func (n *Node) onDestroy(fn func()) {
	n.cleanup = append(n.cleanup, fn)
}

// Destroy severs associations that reference the entity, disposes its signals,
// detaches it from parents and children and unregisters it from its document.
// Calling Destroy twice is a no-op.
func (n *Node) Destroy() {
	if n.disposed {
		return
	}
	if n.doc != nil {
		n.doc.severAssociations(n.self)
	}
	n.disposed = true
	n.changed.Dispose()
	for _, fn := range n.cleanup {
		fn()
	}
	n.cleanup = nil
	for _, p := range n.Parents() {
		n.RemoveParent(p)
	}
	for _, c := range n.Children() {
		c.RemoveParent(n.self)
	}
	if n.doc != nil {
		n.doc.unregister(n.self, true)
	}
}

func (n *Node) emit(field string, old, updated any) {
	n.changed.Dispatch(FieldChange{Entity: n.self, Field: field, Old: old, New: updated})
}

// set assigns v to *dst and emits a change when the value differs.
func set[T comparable](n *Node, field string, dst *T, v T) {
	if *dst == v {
		return
	}
	old := *dst
	*dst = v
	n.emit(field, old, v)
}

// Attach adds child under parent at index (a negative or out of range index
// appends). It rejects cycles, disposed entities and an existing link.
func Attach(parent, child Entity, index int) error {
	if parent == nil || child == nil {
		return ErrNilEntity
	}
	if parent.IsDisposed() || child.IsDisposed() {
		return ErrDisposed
	}
	if IsAncestor(child, parent) || parent == child {
		return fmt.Errorf("%w: %s under %s", ErrCycle, child.ID(), parent.ID())
	}
	if !child.base().attach(parent, index) {
		return fmt.Errorf("%w: %s under %s", ErrAlreadyAttached, child.ID(), parent.ID())
	}
	return nil
}

// IsAncestor reports whether a is an ancestor of e.
func IsAncestor(a, e Entity) bool {
	seen := map[string]bool{}
	stack := e.Parents()
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == a {
			return true
		}
		if seen[cur.ID()] {
			continue
		}
		seen[cur.ID()] = true
		stack = append(stack, cur.Parents()...)
	}
	return false
}

// FirstParent returns the earliest attached parent, or nil.
func FirstParent(e Entity) Entity {
	n := e.base()
	if len(n.order) == 0 {
		return nil
	}
	return n.parents[n.order[0]]
}

// Walk visits e and its descendants depth-first, each entity once. Returning
// false from fn prunes the subtree.
func Walk(e Entity, fn func(Entity) bool) {
	seen := make(map[string]bool)
	var visit func(Entity)
	visit = func(cur Entity) {
		if seen[cur.ID()] {
			return
		}
		seen[cur.ID()] = true
		if !fn(cur) {
			return
		}
		for _, c := range cur.Children() {
			visit(c)
		}
	}
	visit(e)
}

// SortedIDs returns the ids of entities in lexical order.
func SortedIDs(entities []Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.ID())
	}
	sort.Strings(out)
	return out
}
