package domain

import (
	"fmt"
	"sort"
)

// Factory constructs a fresh entity carrying id.
type Factory func(id string) Entity

// ClassInfo describes a registered entity class.
type ClassInfo struct {
	Long   string
	Short  string
	Family Family
	New    Factory
}

// AssociationClass describes a registered association type. Compute may be nil.
type AssociationClass struct {
	Long    string
	Short   string
	Compute ComputeFunc
}

// Registry maps serialized type names to constructors. A registry is built
// explicitly at startup and handed to every document and load operation; there
// is no process-wide instance.
type Registry struct {
	classes map[string]*ClassInfo
	short   map[string]string
	long    map[string]string
	aliases map[string]string
	assocs  map[string]*AssociationClass
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		classes: make(map[string]*ClassInfo),
		short:   make(map[string]string),
		long:    make(map[string]string),
		aliases: make(map[string]string),
		assocs:  make(map[string]*AssociationClass),
	}
}

// RegisterClass binds long and short names to factory. Re-registering the same
// name pair replaces the factory; reusing either name for a different pair
// fails with ErrConflictingRegistration.
func (r *Registry) RegisterClass(long, short string, family Family, factory Factory) error {
	if long == "" || short == "" {
		return ErrEmptyName
	}
	if factory == nil {
		return fmt.Errorf("register %s: nil factory", long)
	}
	if err := r.checkPair(long, short); err != nil {
		return err
	}
	r.classes[long] = &ClassInfo{Long: long, Short: short, Family: family, New: factory}
	r.short[long] = short
	r.long[short] = long
	return nil
}

// RegisterAssociation binds an association type to its names and compute hook.
func (r *Registry) RegisterAssociation(long, short string, compute ComputeFunc) error {
	if long == "" || short == "" {
		return ErrEmptyName
	}
	if err := r.checkPair(long, short); err != nil {
		return err
	}
	r.assocs[long] = &AssociationClass{Long: long, Short: short, Compute: compute}
	r.short[long] = short
	r.long[short] = long
	return nil
}

func (r *Registry) checkPair(long, short string) error {
	if existing, ok := r.short[long]; ok && existing != short {
		return fmt.Errorf("%w: %s already maps to %s", ErrConflictingRegistration, long, existing)
	}
	if existing, ok := r.long[short]; ok && existing != long {
		return fmt.Errorf("%w: %s already maps to %s", ErrConflictingRegistration, short, existing)
	}
	if _, ok := r.aliases[short]; ok {
		return fmt.Errorf("%w: %s is an alias", ErrConflictingRegistration, short)
	}
	return nil
}

// Alias lets a legacy name resolve to an already registered long name, so
// payloads written before a rename keep loading.
func (r *Registry) Alias(legacy, long string) error {
	if legacy == "" || long == "" {
		return ErrEmptyName
	}
	if _, ok := r.short[long]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, long)
	}
	if _, ok := r.long[legacy]; ok {
		return fmt.Errorf("%w: %s is a registered short name", ErrConflictingRegistration, legacy)
	}
	if _, ok := r.short[legacy]; ok {
		return fmt.Errorf("%w: %s is a registered long name", ErrConflictingRegistration, legacy)
	}
	r.aliases[legacy] = long
	return nil
}

// resolve maps a short, long or legacy name to the canonical long name.
func (r *Registry) resolve(name string) string {
	if long, ok := r.long[name]; ok {
		return long
	}
	if long, ok := r.aliases[name]; ok {
		return long
	}
	return name
}

// ClassByType returns the factory for name (short, long or alias). A miss
// reports false and never panics.
func (r *Registry) ClassByType(name string) (Factory, bool) {
	info, ok := r.Class(name)
	if !ok {
		return nil, false
	}
	return info.New, true
}

// Class returns the registered class for name.
func (r *Registry) Class(name string) (ClassInfo, bool) {
	info, ok := r.classes[r.resolve(name)]
	if !ok {
		return ClassInfo{}, false
	}
	return *info, true
}

// AssociationByType returns the association class for name.
func (r *Registry) AssociationByType(name string) (AssociationClass, bool) {
	cls, ok := r.assocs[r.resolve(name)]
	if !ok {
		return AssociationClass{}, false
	}
	return *cls, true
}

// ShortName returns the serialized discriminator for long. Unregistered names
// are returned unchanged.
func (r *Registry) ShortName(long string) string {
	if short, ok := r.short[long]; ok {
		return short
	}
	return long
}

// LongName returns the long name for a short or legacy discriminator.
// Unregistered names are returned unchanged.
func (r *Registry) LongName(short string) string {
	return r.resolve(short)
}

// Classes lists registered entity classes ordered by long name.
func (r *Registry) Classes() []ClassInfo {
	out := make([]ClassInfo, 0, len(r.classes))
	for _, info := range r.classes {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Long < out[j].Long })
	return out
}

// Clone returns an independent copy of r.
func (r *Registry) Clone() *Registry {
	cp := NewRegistry()
	for k, v := range r.classes {
		info := *v
		cp.classes[k] = &info
	}
	for k, v := range r.assocs {
		cls := *v
		cp.assocs[k] = &cls
	}
	for k, v := range r.short {
		cp.short[k] = v
	}
	for k, v := range r.long {
		cp.long[k] = v
	}
	for k, v := range r.aliases {
		cp.aliases[k] = v
	}
	return cp
}
