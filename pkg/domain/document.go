package domain

import (
	"fmt"
	"sort"

	"designcore/pkg/diag"
)

// Document owns an entity graph: the id index, the root layer, the
// associations and the identity generator. It is single-writer.
type Document struct {
	registry *Registry
	ids      *IDGenerator
	reporter diag.Reporter
	entities map[string]Entity
	root     *Layer
	assocs   *AssociationManager
	added    Signal[Entity]
	removed  Signal[Entity]
}

// DocumentOption customises a Document.
type DocumentOption func(*docOptions)

type docOptions struct {
	ids      *IDGenerator
	reporter diag.Reporter
	rootID   string
}

// WithIDGenerator shares an identity generator with the document.
func WithIDGenerator(g *IDGenerator) DocumentOption {
	return func(o *docOptions) { o.ids = g }
}

// WithReporter routes model assertions to r.
func WithReporter(r diag.Reporter) DocumentOption {
	return func(o *docOptions) { o.reporter = r }
}

// WithRootID fixes the id of the root layer, as needed when reloading.
func WithRootID(id string) DocumentOption {
	return func(o *docOptions) { o.rootID = id }
}

// NewDocument constructs an empty document with a root layer.
func NewDocument(reg *Registry, opts ...DocumentOption) *Document {
	var o docOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.ids == nil {
		o.ids = NewIDGenerator()
	}
	d := &Document{
		registry: reg,
		ids:      o.ids,
		reporter: diag.OrNop(o.reporter),
		entities: make(map[string]Entity),
		assocs:   newAssociationManager(),
	}
	root := NewLayer(d.ids.Generate(o.rootID, string(FamilyLayer)))
	root.SetName("root")
	d.root = root
	d.register(root)
	return d
}

// Registry returns the class registry.
func (d *Document) Registry() *Registry { return d.registry }

// IDs returns the identity generator.
func (d *Document) IDs() *IDGenerator { return d.ids }

// Reporter returns the assertion sink.
func (d *Document) Reporter() diag.Reporter { return d.reporter }

// Root returns the root layer.
func (d *Document) Root() *Layer { return d.root }

// Associations returns the association index.
func (d *Document) Associations() *AssociationManager { return d.assocs }

// EntityAdded fires when an entity joins the document.
func (d *Document) EntityAdded() *Signal[Entity] { return &d.added }

// EntityRemoved fires when an entity leaves the document.
func (d *Document) EntityRemoved() *Signal[Entity] { return &d.removed }

// Create constructs a registered type. A non-empty seed is used as the id when
// free.
func (d *Document) Create(typeName, seed string) (Entity, error) {
	info, ok := d.registry.Class(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}
	id := d.ids.Generate(seed, string(info.Family))
	e := info.New(id)
	if e == nil || e.ID() != id {
		d.ids.Release(id)
		return nil, fmt.Errorf("factory for %s returned an invalid entity", info.Long)
	}
	d.register(e)
	return e, nil
}

// NewTransientGroup constructs a command-scoped group registered with the
// document.
func (d *Document) NewTransientGroup() *Group {
	g := NewTransientGroup(d.ids.Generate("", string(FamilyGroup)))
	d.register(g)
	return g
}

// Adopt registers an entity built elsewhere (a loader or a redo path). Its id
// must be free or already reserved for it.
func (d *Document) Adopt(e Entity) error {
	if e == nil {
		return ErrNilEntity
	}
	if e.IsDisposed() {
		return ErrDisposed
	}
	if cur, ok := d.entities[e.ID()]; ok {
		if cur == e {
			return nil
		}
		d.reporter.Assert(diag.KindIdentityConflict, "id already assigned", map[string]any{"id": e.ID()})
		return fmt.Errorf("%w: %s", ErrDuplicateID, e.ID())
	}
	d.ids.Reserve(e.ID())
	d.register(e)
	return nil
}

// Forget removes e from the index without destroying it. The id stays
// reserved so the entity can be adopted again by a redo.
func (d *Document) Forget(e Entity) {
	if e == nil {
		return
	}
	if d.entities[e.ID()] != e {
		return
	}
	d.unregister(e, false)
}

// Lookup implements Resolver.
func (d *Document) Lookup(id string) (Entity, bool) {
	e, ok := d.entities[id]
	return e, ok
}

// Get returns the entity with id or ErrNotFound.
func (d *Document) Get(id string) (Entity, error) {
	if e, ok := d.entities[id]; ok {
		return e, nil
	}
	return nil, ErrNotFound{Kind: "entity", ID: id}
}

// Len reports the number of registered entities, root included.
func (d *Document) Len() int { return len(d.entities) }

// Entities returns every registered entity ordered by id.
func (d *Document) Entities() []Entity {
	out := make([]Entity, 0, len(d.entities))
	for _, e := range d.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Detached returns registered entities without parents, root excluded.
func (d *Document) Detached() []Entity {
	var out []Entity
	for _, e := range d.Entities() {
		if e != Entity(d.root) && !e.HasParents() {
			out = append(out, e)
		}
	}
	return out
}

// Associate creates an association of typeName owned by e. A non-empty seed is
// used as the id when free.
func (d *Document) Associate(typeName string, e Entity, seed string) (*Association, error) {
	if e == nil {
		return nil, ErrNilEntity
	}
	class, ok := d.registry.AssociationByType(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}
	a := NewAssociation(d.ids.Generate(seed, KindAssociation), class, e)
	d.assocs.Add(a)
	return a, nil
}

// RemoveAssociation drops a and releases its id.
func (d *Document) RemoveAssociation(a *Association) {
	if d.assocs.Remove(a) {
		d.ids.Release(a.id)
	}
}

// Purge destroys an entity that was forgotten and will not be adopted again.
// Associations referring to it are severed and its id is released.
// Descendants left without a parent are purged with it. Registered or
// attached entities are left alone.
func (d *Document) Purge(e Entity) {
	if e == nil || e.IsDisposed() || e.HasParents() {
		return
	}
	if cur, ok := d.entities[e.ID()]; ok && cur == e {
		return
	}
	d.purgeTree(e)
}

func (d *Document) purgeTree(e Entity) {
	children := e.Children()
	if d.entities[e.ID()] == e {
		e.Destroy()
	} else {
		d.severAssociations(e)
		e.Destroy()
		d.ids.Release(e.ID())
	}
	for _, c := range children {
		if !c.IsDisposed() && !c.HasParents() {
			d.purgeTree(c)
		}
	}
}

// Destroy destroys e. See Node.Destroy.
func (d *Document) Destroy(e Entity) {
	if e == nil {
		return
	}
	e.Destroy()
}

func (d *Document) register(e Entity) {
	n := e.base()
	n.doc = d
	d.entities[e.ID()] = e
	d.added.Dispatch(e)
}

func (d *Document) unregister(e Entity, release bool) {
	if d.entities[e.ID()] == e {
		delete(d.entities, e.ID())
		if release {
			d.ids.Release(e.ID())
		}
		d.removed.Dispatch(e)
	}
	e.base().doc = nil
}

// severAssociations removes associations owned by e or targeting only e, and
// unbinds e from associations that also target other entities.
func (d *Document) severAssociations(e Entity) {
	for _, a := range d.assocs.All() {
		switch {
		case a.entity == e:
			d.RemoveAssociation(a)
		case a.Has(e) && len(a.targets) == 1 && len(a.unresolved) == 0:
			d.RemoveAssociation(a)
		case a.Has(e):
			a.Unbind(e)
		}
	}
}
