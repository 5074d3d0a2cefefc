package txn

import (
	"fmt"

	"designcore/pkg/domain"
)

// refresh recomputes the associations owned by e and its descendants.
func refresh(doc *domain.Document, entities ...domain.Entity) {
	if doc == nil {
		return
	}
	for _, e := range entities {
		if e != nil {
			doc.Associations().Update(e, true, true)
		}
	}
}

// assocState keeps the association set around a request so undo and redo can
// restore membership without replaying deltas.
type assocState struct {
	doc    *domain.Document
	before domain.AssociationSnapshot
	after  domain.AssociationSnapshot
}

func (s *assocState) captureBefore() {
	if s.doc != nil {
		s.before = s.doc.Associations().Snapshot()
	}
}

func (s *assocState) captureAfter() {
	if s.doc != nil {
		s.after = s.doc.Associations().Snapshot()
	}
}

func (s *assocState) restoreBefore() {
	if s.doc != nil {
		s.doc.Associations().Restore(s.before)
	}
}

func (s *assocState) restoreAfter() {
	if s.doc != nil {
		s.doc.Associations().Restore(s.after)
	}
}

// MoveRequest replaces the transform of one entity.
type MoveRequest struct {
	Lifecycle
	doc    *domain.Document
	entity domain.Transformable
	before domain.Transform
	after  domain.Transform
}

// NewMoveRequest moves e to the transform to.
func NewMoveRequest(doc *domain.Document, e domain.Entity, to domain.Transform) (*MoveRequest, error) {
	t, ok := e.(domain.Transformable)
	if !ok {
		return nil, fmt.Errorf("%w: %T has no transform", ErrInvalidArguments, e)
	}
	return &MoveRequest{doc: doc, entity: t, after: to}, nil
}

// Type implements Request.
func (r *MoveRequest) Type() string { return TypeMove }

// Entity returns the moved entity.
func (r *MoveRequest) Entity() domain.Entity { return r.entity }

// Target returns the committed transform.
func (r *MoveRequest) Target() domain.Transform { return r.after }

// OnCommit implements Request.
func (r *MoveRequest) OnCommit() error {
	r.before = r.entity.Transform()
	r.apply(r.after)
	return nil
}

// OnUndo implements Request.
func (r *MoveRequest) OnUndo() error {
	r.apply(r.before)
	return nil
}

// OnRedo implements Request.
func (r *MoveRequest) OnRedo() error {
	r.apply(r.after)
	return nil
}

func (r *MoveRequest) apply(t domain.Transform) {
	r.entity.SetTransform(t)
	refresh(r.doc, r.entity)
}

// Changes implements Request.
func (r *MoveRequest) Changes() []Change {
	return []Change{{Entity: r.entity, Action: ActionUpdate}}
}

// Merge absorbs a later move of the same entity.
func (r *MoveRequest) Merge(next Request) bool {
	n, ok := next.(*MoveRequest)
	if !ok || n.entity != r.entity {
		return false
	}
	r.after = n.after
	return true
}

// SetFieldRequest assigns one field through accessor functions. Consecutive
// assignments of the same field merge inside a session.
type SetFieldRequest[T comparable] struct {
	Lifecycle
	entity domain.Entity
	field  string
	get    func() T
	set    func(T)
	before T
	after  T
}

// NewSetFieldRequest assigns value to field of e.
func NewSetFieldRequest[T comparable](e domain.Entity, field string, get func() T, set func(T), value T) *SetFieldRequest[T] {
	return &SetFieldRequest[T]{entity: e, field: field, get: get, set: set, after: value}
}

// Type implements Request.
func (r *SetFieldRequest[T]) Type() string { return "Set." + r.field }

// OnCommit implements Request.
func (r *SetFieldRequest[T]) OnCommit() error {
	if r.get == nil || r.set == nil {
		return fmt.Errorf("%w: field %s has no accessors", ErrInvalidArguments, r.field)
	}
	r.before = r.get()
	r.set(r.after)
	return nil
}

// OnUndo implements Request.
func (r *SetFieldRequest[T]) OnUndo() error {
	r.set(r.before)
	return nil
}

// OnRedo implements Request.
func (r *SetFieldRequest[T]) OnRedo() error {
	r.set(r.after)
	return nil
}

// Changes implements Request.
func (r *SetFieldRequest[T]) Changes() []Change {
	return []Change{{Entity: r.entity, Action: ActionUpdate}}
}

// Merge absorbs a later assignment of the same field.
func (r *SetFieldRequest[T]) Merge(next Request) bool {
	n, ok := next.(*SetFieldRequest[T])
	if !ok || n.entity != r.entity || n.field != r.field {
		return false
	}
	r.after = n.after
	return true
}

// ReparentRequest moves an entity from one parent to another.
type ReparentRequest struct {
	Lifecycle
	assocState
	child     domain.Entity
	from      domain.Entity
	to        domain.Entity
	index     int
	fromIndex int
}

// NewReparentRequest moves child from one parent to another at index. A nil
// from only attaches. from must currently hold child and to must not.
func NewReparentRequest(doc *domain.Document, child, from, to domain.Entity, index int) (*ReparentRequest, error) {
	if child == nil || to == nil {
		return nil, fmt.Errorf("%w: reparent needs a child and a target", ErrInvalidArguments)
	}
	if from == to {
		return nil, fmt.Errorf("%w: %s already under %s", ErrInvalidArguments, child.ID(), to.ID())
	}
	if from != nil && !hasParent(child, from) {
		return nil, fmt.Errorf("%w: %s is not under %s", ErrInvalidArguments, child.ID(), from.ID())
	}
	if hasParent(child, to) {
		return nil, fmt.Errorf("%w: %s already under %s", ErrInvalidArguments, child.ID(), to.ID())
	}
	return &ReparentRequest{assocState: assocState{doc: doc}, child: child, from: from, to: to, index: index, fromIndex: -1}, nil
}

// Type implements Request.
func (r *ReparentRequest) Type() string { return TypeReparent }

// OnCommit implements Request. An opening moved onto a wall has its host
// association rebound to that wall.
func (r *ReparentRequest) OnCommit() error {
	if domain.IsAncestor(r.child, r.to) || r.child == r.to {
		return fmt.Errorf("%w: %s under %s", domain.ErrCycle, r.child.ID(), r.to.ID())
	}
	if hasParent(r.child, r.to) {
		return fmt.Errorf("%w: %s under %s", domain.ErrAlreadyAttached, r.child.ID(), r.to.ID())
	}
	if r.from != nil && !hasParent(r.child, r.from) {
		return fmt.Errorf("%w: %s is not under %s", ErrInvalidArguments, r.child.ID(), r.from.ID())
	}
	r.captureBefore()
	if r.from != nil {
		r.fromIndex = indexOf(r.from.Children(), r.child)
		r.child.RemoveParent(r.from)
	}
	if err := domain.Attach(r.to, r.child, r.index); err != nil {
		if r.from != nil {
			_ = domain.Attach(r.from, r.child, r.fromIndex)
		}
		return err
	}
	if w, ok := r.to.(*domain.Wall); ok && r.doc != nil {
		if host, found := r.doc.Associations().OfType(r.child.ID(), domain.TypeHostAssociation); found {
			host.Rebind(w)
		}
	}
	refresh(r.doc, r.child)
	r.captureAfter()
	return nil
}

// OnUndo implements Request.
func (r *ReparentRequest) OnUndo() error {
	r.child.RemoveParent(r.to)
	if r.from != nil {
		if err := domain.Attach(r.from, r.child, r.fromIndex); err != nil {
			return err
		}
	}
	r.restoreBefore()
	refresh(r.doc, r.child)
	return nil
}

// OnRedo implements Request.
func (r *ReparentRequest) OnRedo() error {
	if r.from != nil {
		r.child.RemoveParent(r.from)
	}
	if err := domain.Attach(r.to, r.child, r.index); err != nil {
		return err
	}
	r.restoreAfter()
	refresh(r.doc, r.child)
	return nil
}

// Changes implements Request.
func (r *ReparentRequest) Changes() []Change {
	out := []Change{{Entity: r.child, Action: ActionUpdate}, {Entity: r.to, Action: ActionUpdate}}
	if r.from != nil {
		out = append(out, Change{Entity: r.from, Action: ActionUpdate})
	}
	return out
}

// ToggleComponentRequest enables or disables one content component.
type ToggleComponentRequest struct {
	Lifecycle
	content   *domain.Content
	component string
	enable    bool
	was       bool
}

// NewToggleComponentRequest toggles component on c.
func NewToggleComponentRequest(c *domain.Content, component string, enable bool) (*ToggleComponentRequest, error) {
	if c == nil || component == "" {
		return nil, fmt.Errorf("%w: toggle needs content and a component", ErrInvalidArguments)
	}
	return &ToggleComponentRequest{content: c, component: component, enable: enable}, nil
}

// Type implements Request.
func (r *ToggleComponentRequest) Type() string { return TypeToggleComponent }

// OnCommit implements Request.
func (r *ToggleComponentRequest) OnCommit() error {
	r.was = r.content.IsComponentEnabled(r.component)
	r.apply(r.enable)
	return nil
}

// OnUndo implements Request.
func (r *ToggleComponentRequest) OnUndo() error {
	r.apply(r.was)
	return nil
}

// OnRedo implements Request.
func (r *ToggleComponentRequest) OnRedo() error {
	r.apply(r.enable)
	return nil
}

func (r *ToggleComponentRequest) apply(enabled bool) {
	if enabled {
		r.content.EnableComponent(r.component)
		return
	}
	r.content.DisableComponent(r.component)
}

// Changes implements Request.
func (r *ToggleComponentRequest) Changes() []Change {
	return []Change{{Entity: r.content, Action: ActionUpdate}}
}

// CreateEntityRequest creates an entity and attaches it under a parent.
// Undo detaches and unregisters the entity while keeping its id reserved, so
// redo restores the same instance.
type CreateEntityRequest struct {
	Lifecycle
	doc      *domain.Document
	typeName string
	seed     string
	parent   domain.Entity
	index    int
	init     func(domain.Entity) error
	entity   domain.Entity
}

// NewCreateEntityRequest creates an entity of typeName under parent. init, when
// set, configures the entity before it is attached.
func NewCreateEntityRequest(doc *domain.Document, typeName, seed string, parent domain.Entity, index int, init func(domain.Entity) error) (*CreateEntityRequest, error) {
	if doc == nil || parent == nil {
		return nil, fmt.Errorf("%w: create needs a document and a parent", ErrInvalidArguments)
	}
	return &CreateEntityRequest{doc: doc, typeName: typeName, seed: seed, parent: parent, index: index, init: init}, nil
}

// Type implements Request.
func (r *CreateEntityRequest) Type() string { return TypeCreateEntity }

// Entity returns the created entity once committed.
func (r *CreateEntityRequest) Entity() domain.Entity { return r.entity }

// OnCommit implements Request.
func (r *CreateEntityRequest) OnCommit() error {
	e, err := r.doc.Create(r.typeName, r.seed)
	if err != nil {
		return err
	}
	if r.init != nil {
		if err := r.init(e); err != nil {
			e.Destroy()
			return err
		}
	}
	if err := domain.Attach(r.parent, e, r.index); err != nil {
		e.Destroy()
		return err
	}
	r.entity = e
	refresh(r.doc, e)
	return nil
}

// OnUndo implements Request.
func (r *CreateEntityRequest) OnUndo() error {
	r.entity.RemoveParent(r.parent)
	r.doc.Forget(r.entity)
	return nil
}

// OnRedo implements Request.
func (r *CreateEntityRequest) OnRedo() error {
	if err := r.doc.Adopt(r.entity); err != nil {
		return err
	}
	if err := domain.Attach(r.parent, r.entity, r.index); err != nil {
		return err
	}
	refresh(r.doc, r.entity)
	return nil
}

// Changes implements Request.
func (r *CreateEntityRequest) Changes() []Change {
	if r.entity == nil {
		return nil
	}
	return []Change{{Entity: r.entity, Action: ActionCreate}}
}

// Dispose destroys an entity whose creation was undone and then dropped from
// the history, releasing its id.
func (r *CreateEntityRequest) Dispose() {
	if r.entity == nil {
		return
	}
	r.doc.Purge(r.entity)
}

type parentSlot struct {
	parent domain.Entity
	index  int
}

// DeleteEntityRequest recycles an entity: it is detached from every parent
// and unregistered, and associations referring to it become invalid. Undo
// restores the parents at their original positions.
type DeleteEntityRequest struct {
	Lifecycle
	doc      *domain.Document
	entity   domain.Entity
	slots    []parentSlot
	recycled bool
}

// NewDeleteEntityRequest recycles e.
func NewDeleteEntityRequest(doc *domain.Document, e domain.Entity) (*DeleteEntityRequest, error) {
	if doc == nil || e == nil {
		return nil, fmt.Errorf("%w: delete needs a document and an entity", ErrInvalidArguments)
	}
	if root := doc.Root(); root != nil && e == domain.Entity(root) {
		return nil, fmt.Errorf("%w: the root layer cannot be deleted", ErrInvalidArguments)
	}
	return &DeleteEntityRequest{doc: doc, entity: e}, nil
}

// Type implements Request.
func (r *DeleteEntityRequest) Type() string { return TypeDeleteEntity }

// OnCommit implements Request.
func (r *DeleteEntityRequest) OnCommit() error {
	r.slots = r.slots[:0]
	for _, p := range r.entity.Parents() {
		r.slots = append(r.slots, parentSlot{parent: p, index: indexOf(p.Children(), r.entity)})
	}
	return r.detach()
}

func (r *DeleteEntityRequest) detach() error {
	for _, s := range r.slots {
		r.entity.RemoveParent(s.parent)
	}
	r.doc.Forget(r.entity)
	r.recycled = true
	return nil
}

// OnUndo implements Request.
func (r *DeleteEntityRequest) OnUndo() error {
	if err := r.doc.Adopt(r.entity); err != nil {
		return err
	}
	r.recycled = false
	for _, s := range r.slots {
		if err := domain.Attach(s.parent, r.entity, s.index); err != nil {
			return err
		}
	}
	refresh(r.doc, r.entity)
	return nil
}

// OnRedo implements Request.
func (r *DeleteEntityRequest) OnRedo() error { return r.detach() }

// Changes implements Request.
func (r *DeleteEntityRequest) Changes() []Change {
	return []Change{{Entity: r.entity, Action: ActionRecycle}}
}

// Dispose destroys the recycled entity once the deletion can no longer be
// undone. A deletion dropped while undone leaves the entity alone.
func (r *DeleteEntityRequest) Dispose() {
	if r.recycled {
		r.doc.Purge(r.entity)
	}
}

// BindAssociationRequest creates or rebinds an association.
type BindAssociationRequest struct {
	Lifecycle
	assocState
	typeName string
	owner    domain.Entity
	assoc    *domain.Association
	targets  []domain.Entity
}

// NewBindAssociationRequest binds targets to an association of typeName
// owned by owner, creating it when owner has none of that type.
func NewBindAssociationRequest(doc *domain.Document, typeName string, owner domain.Entity, targets ...domain.Entity) (*BindAssociationRequest, error) {
	if doc == nil || owner == nil {
		return nil, fmt.Errorf("%w: bind needs a document and an owner", ErrInvalidArguments)
	}
	return &BindAssociationRequest{assocState: assocState{doc: doc}, typeName: typeName, owner: owner, targets: targets}, nil
}

// Type implements Request.
func (r *BindAssociationRequest) Type() string { return TypeBindAssociation }

// Association returns the bound association once committed.
func (r *BindAssociationRequest) Association() *domain.Association { return r.assoc }

// OnCommit implements Request.
func (r *BindAssociationRequest) OnCommit() error {
	r.captureBefore()
	long := r.doc.Registry().LongName(r.typeName)
	a, ok := r.doc.Associations().OfType(r.owner.ID(), long)
	if !ok {
		created, err := r.doc.Associate(r.typeName, r.owner, "")
		if err != nil {
			return err
		}
		a = created
	}
	a.Rebind(r.targets...)
	a.Compute(true)
	r.assoc = a
	r.captureAfter()
	return nil
}

// OnUndo implements Request.
func (r *BindAssociationRequest) OnUndo() error {
	r.restoreBefore()
	refresh(r.doc, r.owner)
	return nil
}

// OnRedo implements Request.
func (r *BindAssociationRequest) OnRedo() error {
	r.restoreAfter()
	refresh(r.doc, r.owner)
	return nil
}

// Changes implements Request.
func (r *BindAssociationRequest) Changes() []Change {
	out := []Change{{Entity: r.owner, Action: ActionUpdate}}
	for _, t := range r.targets {
		out = append(out, Change{Entity: t, Action: ActionUpdate})
	}
	return out
}

func indexOf(list []domain.Entity, e domain.Entity) int {
	for i, cur := range list {
		if cur == e {
			return i
		}
	}
	return -1
}
