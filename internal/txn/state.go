package txn

import (
	"designcore/pkg/codec"
	"designcore/pkg/domain"
)

// StateRequest records the serialized state of a set of entities around an
// arbitrary mutation. Undo and redo reload the captured records instead of
// replaying the mutation, so any edit expressible through the entity API
// becomes reversible.
type StateRequest struct {
	Lifecycle
	doc       *domain.Document
	typ       string
	mutate    func(*StateRequest) error
	tracked   []domain.Entity
	seen      map[domain.Entity]bool
	capturing bool
	before    stateSnapshot
	after     stateSnapshot
}

type stateSnapshot struct {
	records map[domain.Entity]codec.Record
	assocs  domain.AssociationSnapshot
}

// NewStateRequest builds a request of type typ running mutate over entities.
// Entities created or first touched inside mutate must be passed to Track
// before they are modified.
func NewStateRequest(doc *domain.Document, typ string, mutate func(*StateRequest) error, entities ...domain.Entity) *StateRequest {
	if typ == "" {
		typ = TypeState
	}
	r := &StateRequest{doc: doc, typ: typ, mutate: mutate, seen: make(map[domain.Entity]bool)}
	for _, e := range entities {
		r.Track(e)
	}
	return r
}

// Type implements Request.
func (r *StateRequest) Type() string { return r.typ }

// Document returns the document being mutated.
func (r *StateRequest) Document() *domain.Document { return r.doc }

// Track adds e to the captured set. During OnCommit the entity's current
// state becomes its undo state.
func (r *StateRequest) Track(e domain.Entity) {
	if e == nil || r.seen[e] {
		return
	}
	r.seen[e] = true
	r.tracked = append(r.tracked, e)
	if r.capturing {
		r.before.records[e] = r.capture(e)
	}
}

// Create creates an entity from inside the mutation and tracks it as new, so
// undo removes it from the document.
func (r *StateRequest) Create(typeName, seed string) (domain.Entity, error) {
	e, err := r.doc.Create(typeName, seed)
	if err != nil {
		return nil, err
	}
	if !r.capturing {
		r.Track(e)
		return e, nil
	}
	r.seen[e] = true
	r.tracked = append(r.tracked, e)
	r.before.records[e] = nil
	return e, nil
}

// Tracked returns the captured entities in tracking order.
func (r *StateRequest) Tracked() []domain.Entity { return append([]domain.Entity(nil), r.tracked...) }

// OnCommit implements Request.
func (r *StateRequest) OnCommit() error {
	r.before = r.snapshot()
	if r.mutate != nil {
		r.capturing = true
		err := r.mutate(r)
		r.capturing = false
		if err != nil {
			r.restore(r.before)
			return err
		}
	}
	r.after = r.snapshot()
	refresh(r.doc, r.tracked...)
	return nil
}

// OnUndo implements Request.
func (r *StateRequest) OnUndo() error {
	r.restore(r.before)
	return nil
}

// OnRedo implements Request.
func (r *StateRequest) OnRedo() error {
	r.restore(r.after)
	return nil
}

// Changes implements Request.
func (r *StateRequest) Changes() []Change {
	out := make([]Change, 0, len(r.tracked))
	for _, e := range r.tracked {
		before, after := r.before.records[e], r.after.records[e]
		switch {
		case before == nil && after == nil:
			continue
		case before == nil:
			out = append(out, Change{Entity: e, Action: ActionCreate})
		case after == nil:
			out = append(out, Change{Entity: e, Action: ActionRecycle})
		default:
			out = append(out, Change{Entity: e, Action: ActionUpdate})
		}
	}
	return out
}

func (r *StateRequest) registered(e domain.Entity) bool {
	cur, ok := r.doc.Lookup(e.ID())
	return ok && cur == e
}

// capture returns e's record, or nil when e is not part of the document.
func (r *StateRequest) capture(e domain.Entity) codec.Record {
	if !r.registered(e) {
		return nil
	}
	recs, err := codec.DumpEntity(e, false, codec.DumpOptions{Registry: r.doc.Registry()})
	if err != nil || len(recs) == 0 {
		return nil
	}
	return recs[0]
}

func (r *StateRequest) snapshot() stateSnapshot {
	s := stateSnapshot{records: make(map[domain.Entity]codec.Record, len(r.tracked))}
	for _, e := range r.tracked {
		s.records[e] = r.capture(e)
	}
	s.assocs = r.doc.Associations().Snapshot()
	return s
}

// restore registers or forgets every tracked entity, reloads fields and
// children from the captured records, then reconciles parents.
func (r *StateRequest) restore(s stateSnapshot) {
	lc := codec.NewLoadContext(codec.WithFallback(r.doc))
	for _, e := range r.tracked {
		if s.records[e] == nil {
			for _, p := range e.Parents() {
				e.RemoveParent(p)
			}
			r.doc.Forget(e)
			continue
		}
		if !r.registered(e) {
			_ = r.doc.Adopt(e)
		}
		lc.Add(e)
	}
	opts := codec.LoadOptions{Context: lc, Registry: r.doc.Registry(), Hierarchy: true}
	for _, e := range r.tracked {
		if rec := s.records[e]; rec != nil {
			_ = codec.LoadEntity(e, rec, opts)
		}
	}
	for _, e := range r.tracked {
		if rec := s.records[e]; rec != nil {
			r.reconcileParents(e, rec)
		}
	}
	r.doc.Associations().Restore(s.assocs)
	refresh(r.doc, r.tracked...)
}

func (r *StateRequest) reconcileParents(e domain.Entity, rec codec.Record) {
	for _, p := range e.Parents() {
		if g, ok := p.(*domain.Group); ok && g.Transient() {
			return
		}
	}
	want, _ := rec[codec.KeyParents].([]string)
	keep := make(map[string]bool, len(want))
	for _, id := range want {
		keep[id] = true
	}
	for _, p := range e.Parents() {
		if !keep[p.ID()] {
			e.RemoveParent(p)
		}
	}
	for _, id := range want {
		p, ok := r.doc.Lookup(id)
		if !ok || hasParent(e, p) {
			continue
		}
		_ = domain.Attach(p, e, -1)
	}
}

func hasParent(e, p domain.Entity) bool {
	for _, cur := range e.Parents() {
		if cur == p {
			return true
		}
	}
	return false
}
