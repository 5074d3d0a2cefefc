package domain

import (
	"math"
)

// Long class names of the built-in association types.
const (
	TypeAssociation     = "Model.Association"
	TypeHostAssociation = "Model.HostAssociation"
)

// ComputeFunc recomputes an association's derived state.
type ComputeFunc func(a *Association)

// AssociationRecord is the serialized form of an association. Entity references
// are ids.
type AssociationRecord struct {
	Type    string   `json:"l"`
	ID      string   `json:"id"`
	Entity  string   `json:"entity"`
	Targets []string `json:"targets"`
}

// Resolver looks up already constructed entities by id during a load.
type Resolver interface {
	Lookup(id string) (Entity, bool)
}

// Association relates a source entity to an ordered set of targets. It is valid
// while every target is still attached somewhere in the graph. Invalid
// associations are kept; owners decide how to react.
type Association struct {
	id         string
	class      AssociationClass
	entityID   string
	entity     Entity
	targets    []Entity
	unresolved []string
	derived    map[string]any
	dirty      bool
	computed   Signal[*Association]
}

// NewAssociation constructs an association owned by entity. Callers obtain id
// from the document's IDGenerator with kind KindAssociation.
func NewAssociation(id string, class AssociationClass, entity Entity) *Association {
	a := &Association{id: id, class: class, entity: entity, derived: make(map[string]any), dirty: true}
	if entity != nil {
		a.entityID = entity.ID()
	}
	return a
}

// ID returns the association id.
func (a *Association) ID() string { return a.id }

// TypeTag returns the long association type name.
func (a *Association) TypeTag() string { return a.class.Long }

// Entity returns the source entity, nil while unresolved.
func (a *Association) Entity() Entity { return a.entity }

// EntityID returns the source entity id, known even when unresolved.
func (a *Association) EntityID() string { return a.entityID }

// Targets returns the bound targets in bind order.
func (a *Association) Targets() []Entity { return append([]Entity(nil), a.targets...) }

// FirstTarget returns the first bound target, or nil.
func (a *Association) FirstTarget() Entity {
	if len(a.targets) == 0 {
		return nil
	}
	return a.targets[0]
}

// Unresolved returns target ids that could not be resolved at load time.
func (a *Association) Unresolved() []string { return append([]string(nil), a.unresolved...) }

// Computed fires after Compute ran.
func (a *Association) Computed() *Signal[*Association] { return &a.computed }

// Derived returns derived state produced by the compute hook.
func (a *Association) Derived(key string) (any, bool) {
	v, ok := a.derived[key]
	return v, ok
}

// SetDerived stores derived state. Intended for compute hooks.
func (a *Association) SetDerived(key string, v any) { a.derived[key] = v }

// ClearDerived drops derived state.
func (a *Association) ClearDerived(key string) { delete(a.derived, key) }

// Has reports whether target is bound.
func (a *Association) Has(target Entity) bool {
	return a.indexOf(target) >= 0
}

func (a *Association) indexOf(target Entity) int {
	for i, t := range a.targets {
		if t == target {
			return i
		}
	}
	return -1
}

// Bind adds target. Binding nil or an already bound target is a no-op.
func (a *Association) Bind(target Entity) *Association {
	if target == nil || a.Has(target) {
		return a
	}
	a.targets = append(a.targets, target)
	a.dropUnresolved(target.ID())
	a.dirty = true
	return a
}

// Unbind removes target. Unbinding an absent target is a no-op.
func (a *Association) Unbind(target Entity) *Association {
	if i := a.indexOf(target); i >= 0 && target != nil {
		a.targets = append(a.targets[:i], a.targets[i+1:]...)
		a.dirty = true
	}
	return a
}

// UnbindID removes the target, or unresolved reference, carrying id.
func (a *Association) UnbindID(id string) *Association {
	for i, t := range a.targets {
		if t.ID() == id {
			a.targets = append(a.targets[:i], a.targets[i+1:]...)
			a.dirty = true
			return a
		}
	}
	if a.dropUnresolved(id) {
		a.dirty = true
	}
	return a
}

// UnbindAll clears every target and unresolved reference.
func (a *Association) UnbindAll() *Association {
	if len(a.targets) > 0 || len(a.unresolved) > 0 {
		a.dirty = true
	}
	a.targets = nil
	a.unresolved = nil
	return a
}

// Rebind replaces the targets.
func (a *Association) Rebind(targets ...Entity) *Association {
	a.UnbindAll()
	for _, t := range targets {
		a.Bind(t)
	}
	return a
}

func (a *Association) dropUnresolved(id string) bool {
	for i, u := range a.unresolved {
		if u == id {
			a.unresolved = append(a.unresolved[:i], a.unresolved[i+1:]...)
			return true
		}
	}
	return false
}

// IsValid holds iff the source and every reference resolved at load time and
// every current target has at least one parent.
func (a *Association) IsValid() bool {
	if a.entity == nil || len(a.unresolved) > 0 {
		return false
	}
	for _, t := range a.targets {
		if t.IsDisposed() || !t.HasParents() {
			return false
		}
	}
	return true
}

// Compute runs the type's compute hook when membership changed since the last
// run, or unconditionally when force is set.
func (a *Association) Compute(force bool) {
	if !force && !a.dirty {
		return
	}
	a.dirty = false
	if a.class.Compute != nil {
		a.class.Compute(a)
	}
	a.computed.Dispatch(a)
}

// Dump serializes the association using the registry's short names.
func (a *Association) Dump(reg *Registry) AssociationRecord {
	short := a.class.Short
	if reg != nil {
		short = reg.ShortName(a.class.Long)
	}
	targets := make([]string, 0, len(a.targets)+len(a.unresolved))
	for _, t := range a.targets {
		targets = append(targets, t.ID())
	}
	targets = append(targets, a.unresolved...)
	return AssociationRecord{Type: short, ID: a.id, Entity: a.entityID, Targets: targets}
}

// Load binds the source and targets named by rec, resolving ids through r. Ids
// that do not resolve are kept as unresolved references, which makes the
// association invalid; Load reports them.
func (a *Association) Load(rec AssociationRecord, r Resolver) []string {
	var missing []string
	a.entityID = rec.Entity
	a.entity = nil
	if e, ok := r.Lookup(rec.Entity); ok {
		a.entity = e
	} else {
		missing = append(missing, rec.Entity)
	}
	a.targets = nil
	a.unresolved = nil
	for _, id := range rec.Targets {
		t, ok := r.Lookup(id)
		if !ok {
			a.unresolved = append(a.unresolved, id)
			missing = append(missing, id)
			continue
		}
		a.Bind(t)
	}
	a.dirty = true
	return missing
}

// ComputeHostOffset records, for an opening hosted by a wall, the distance of
// the opening's position along the wall axis (key "offset") clamped to the
// wall length.
func ComputeHostOffset(a *Association) {
	o, ok := a.entity.(*Opening)
	if !ok {
		return
	}
	w, ok := a.FirstTarget().(*Wall)
	if !ok {
		delete(a.derived, "offset")
		return
	}
	dx, dy := w.to.X-w.from.X, w.to.Y-w.from.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		a.derived["offset"] = 0.0
		return
	}
	p := o.xf.Position
	t := ((p.X-w.from.X)*dx + (p.Y-w.from.Y)*dy) / length
	a.derived["offset"] = math.Max(0, math.Min(length, t))
}
