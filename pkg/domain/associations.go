package domain

import "sort"

// AssociationManager indexes a document's associations by id and by source
// entity.
type AssociationManager struct {
	byID     map[string]*Association
	byEntity map[string][]*Association
}

func newAssociationManager() *AssociationManager {
	return &AssociationManager{
		byID:     make(map[string]*Association),
		byEntity: make(map[string][]*Association),
	}
}

// Add indexes a. It reports false when an association with the same id is
// already present.
func (m *AssociationManager) Add(a *Association) bool {
	if a == nil {
		return false
	}
	if _, ok := m.byID[a.id]; ok {
		return false
	}
	m.byID[a.id] = a
	m.byEntity[a.entityID] = append(m.byEntity[a.entityID], a)
	return true
}

// Remove drops a from the index.
func (m *AssociationManager) Remove(a *Association) bool {
	if a == nil || m.byID[a.id] != a {
		return false
	}
	delete(m.byID, a.id)
	list := m.byEntity[a.entityID]
	for i, cur := range list {
		if cur == a {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.byEntity, a.entityID)
	} else {
		m.byEntity[a.entityID] = list
	}
	return true
}

// Get returns the association with id.
func (m *AssociationManager) Get(id string) (*Association, bool) {
	a, ok := m.byID[id]
	return a, ok
}

// Len reports the number of indexed associations.
func (m *AssociationManager) Len() int { return len(m.byID) }

// ForEntity returns the associations whose source is entityID.
func (m *AssociationManager) ForEntity(entityID string) []*Association {
	return append([]*Association(nil), m.byEntity[entityID]...)
}

// OfType returns the first association of typeTag owned by entityID.
func (m *AssociationManager) OfType(entityID, typeTag string) (*Association, bool) {
	for _, a := range m.byEntity[entityID] {
		if a.class.Long == typeTag {
			return a, true
		}
	}
	return nil, false
}

// TargetsOf returns the targets of every association owned by entityID.
func (m *AssociationManager) TargetsOf(entityID string) []Entity {
	var out []Entity
	seen := map[Entity]bool{}
	for _, a := range m.byEntity[entityID] {
		for _, t := range a.targets {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// EntityByTarget returns the source entities of associations that target
// targetID. With recursive set it follows sources that are themselves targets.
func (m *AssociationManager) EntityByTarget(targetID string, recursive bool) []Entity {
	var out []Entity
	seen := map[string]bool{targetID: true}
	queue := []string{targetID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, a := range m.All() {
			if a.entity == nil || seen[a.entityID] {
				continue
			}
			for _, t := range a.targets {
				if t.ID() == id {
					seen[a.entityID] = true
					out = append(out, a.entity)
					if recursive {
						queue = append(queue, a.entityID)
					}
					break
				}
			}
		}
	}
	return out
}

// All returns every association ordered by id.
func (m *AssociationManager) All() []*Association {
	out := make([]*Association, 0, len(m.byID))
	for _, a := range m.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Invalid returns associations that currently fail IsValid. Nothing is swept
// automatically; callers decide whether to remove or rebind them.
func (m *AssociationManager) Invalid() []*Association {
	var out []*Association
	for _, a := range m.All() {
		if !a.IsValid() {
			out = append(out, a)
		}
	}
	return out
}

// Update recomputes the associations owned by e, and with recursive set those
// owned by its descendants.
func (m *AssociationManager) Update(e Entity, recursive, force bool) {
	if e == nil {
		return
	}
	if !recursive {
		for _, a := range m.byEntity[e.ID()] {
			a.Compute(force)
		}
		return
	}
	Walk(e, func(cur Entity) bool {
		for _, a := range m.byEntity[cur.ID()] {
			a.Compute(force)
		}
		return true
	})
}

// Dump serializes the valid associations ordered by id.
func (m *AssociationManager) Dump(reg *Registry) []AssociationRecord {
	var out []AssociationRecord
	for _, a := range m.All() {
		if a.IsValid() {
			out = append(out, a.Dump(reg))
		}
	}
	return out
}

// LoadIssue describes an association record that loaded incompletely.
type LoadIssue struct {
	Index   int
	ID      string
	Type    string
	Unknown bool
	Missing []string
}

// Load reconstructs records through r. Records of unknown type are skipped;
// records with unresolved references are kept as invalid associations. Both
// are returned as issues.
func (m *AssociationManager) Load(records []AssociationRecord, reg *Registry, r Resolver) []LoadIssue {
	var issues []LoadIssue
	for i, rec := range records {
		class, ok := reg.AssociationByType(rec.Type)
		if !ok {
			issues = append(issues, LoadIssue{Index: i, ID: rec.ID, Type: rec.Type, Unknown: true})
			continue
		}
		a := NewAssociation(rec.ID, class, nil)
		if missing := a.Load(rec, r); len(missing) > 0 {
			issues = append(issues, LoadIssue{Index: i, ID: rec.ID, Type: rec.Type, Missing: missing})
		}
		if old, exists := m.byID[rec.ID]; exists {
			m.Remove(old)
		}
		m.Add(a)
		a.Compute(true)
	}
	return issues
}

type associationState struct {
	a          *Association
	entity     Entity
	entityID   string
	targets    []Entity
	unresolved []string
}

// AssociationSnapshot captures membership of every association for undo.
type AssociationSnapshot struct {
	states []associationState
}

// Len reports how many associations the snapshot holds.
func (s AssociationSnapshot) Len() int { return len(s.states) }

// Snapshot captures the current association set.
func (m *AssociationManager) Snapshot() AssociationSnapshot {
	all := m.All()
	states := make([]associationState, 0, len(all))
	for _, a := range all {
		states = append(states, associationState{
			a:          a,
			entity:     a.entity,
			entityID:   a.entityID,
			targets:    append([]Entity(nil), a.targets...),
			unresolved: append([]string(nil), a.unresolved...),
		})
	}
	return AssociationSnapshot{states: states}
}

// Restore makes the association set equal to snap. Associations created after
// the snapshot are removed.
func (m *AssociationManager) Restore(snap AssociationSnapshot) {
	m.byID = make(map[string]*Association, len(snap.states))
	m.byEntity = make(map[string][]*Association)
	for _, st := range snap.states {
		a := st.a
		a.entity = st.entity
		a.entityID = st.entityID
		a.targets = append([]Entity(nil), st.targets...)
		a.unresolved = append([]string(nil), st.unresolved...)
		a.dirty = true
		m.Add(a)
	}
}
