package core

import (
	"fmt"
	"sort"

	"designcore/internal/txn"
	"designcore/pkg/domain"
)

// Plugin describes an extension module that contributes association types,
// request types, rules and legacy type aliases.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *PluginRegistry) error
}

type associationDef struct {
	long, short string
	compute     domain.ComputeFunc
}

// PluginRegistry accumulates plugin contributions during registration.
type PluginRegistry struct {
	rules        []txn.Rule
	requests     map[string]txn.Factory
	associations []associationDef
	aliases      map[string]string
}

// NewPluginRegistry constructs a plugin registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{
		requests: make(map[string]txn.Factory),
		aliases:  make(map[string]string),
	}
}

// RegisterRule adds a rule evaluated after every commit.
func (r *PluginRegistry) RegisterRule(rule txn.Rule) {
	if rule == nil {
		return
	}
	r.rules = append(r.rules, rule)
}

// RegisterRequest contributes a request type creatable through the
// transaction manager.
func (r *PluginRegistry) RegisterRequest(typ string, f txn.Factory) error {
	if typ == "" || f == nil {
		return fmt.Errorf("request registration requires a type and a factory")
	}
	if _, exists := r.requests[typ]; exists {
		return fmt.Errorf("request type %s already registered", typ)
	}
	r.requests[typ] = f
	return nil
}

// RegisterAssociation contributes an association type and its compute hook.
func (r *PluginRegistry) RegisterAssociation(long, short string, compute domain.ComputeFunc) {
	r.associations = append(r.associations, associationDef{long: long, short: short, compute: compute})
}

// RegisterAlias maps a retired short name onto a current long type name so
// older payloads keep loading.
func (r *PluginRegistry) RegisterAlias(legacy, long string) {
	if legacy == "" || long == "" {
		return
	}
	r.aliases[legacy] = long
}

// Rules returns a copy of registered rules.
func (r *PluginRegistry) Rules() []txn.Rule {
	out := make([]txn.Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// RequestTypes returns the contributed request types, sorted.
func (r *PluginRegistry) RequestTypes() []string {
	out := make([]string, 0, len(r.requests))
	for typ := range r.requests {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// apply registers the association types and aliases with reg.
func (r *PluginRegistry) apply(reg *domain.Registry) error {
	for _, a := range r.associations {
		if err := reg.RegisterAssociation(a.long, a.short, a.compute); err != nil {
			return fmt.Errorf("association %s: %w", a.long, err)
		}
	}
	legacy := make([]string, 0, len(r.aliases))
	for k := range r.aliases {
		legacy = append(legacy, k)
	}
	sort.Strings(legacy)
	for _, k := range legacy {
		if err := reg.Alias(k, r.aliases[k]); err != nil {
			return fmt.Errorf("alias %s: %w", k, err)
		}
	}
	return nil
}

// PluginMetadata stores metadata describing an installed plugin.
type PluginMetadata struct {
	Name         string
	Version      string
	Rules        []string
	Requests     []string
	Associations []string
	Aliases      map[string]string
}

func (r *PluginRegistry) metadata(p Plugin) PluginMetadata {
	meta := PluginMetadata{Name: p.Name(), Version: p.Version(), Requests: r.RequestTypes()}
	for _, rule := range r.rules {
		meta.Rules = append(meta.Rules, rule.Name())
	}
	for _, a := range r.associations {
		meta.Associations = append(meta.Associations, a.long)
	}
	if len(r.aliases) > 0 {
		meta.Aliases = make(map[string]string, len(r.aliases))
		for k, v := range r.aliases {
			meta.Aliases[k] = v
		}
	}
	return meta
}
