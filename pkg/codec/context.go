package codec

import (
	"errors"
	"fmt"
	"strings"

	"designcore/pkg/diag"
	"designcore/pkg/domain"
)

// Category classifies a load failure.
type Category string

// Load failure categories.
const (
	CategoryUnknownType   Category = "unknown_type"
	CategoryUnresolvedRef Category = "unresolved_reference"
	CategoryInvalidField  Category = "invalid_field"
	CategoryDuplicateID   Category = "duplicate_id"
	CategoryTypeMismatch  Category = "type_mismatch"
)

var kindByCategory = map[Category]diag.Kind{
	CategoryUnknownType:   diag.KindUnknownType,
	CategoryUnresolvedRef: diag.KindUnresolvedRef,
	CategoryInvalidField:  diag.KindInvalidField,
	CategoryDuplicateID:   diag.KindIdentityConflict,
	CategoryTypeMismatch:  diag.KindInvalidField,
}

// ErrLoad matches every *LoadError through errors.Is.
var ErrLoad = errors.New("codec: load failed")

// LoadError is a structured, recoverable load failure. Path locates the
// offending record inside the serialized tree.
type LoadError struct {
	Category Category
	Path     string
	ID       string
	Detail   string
}

func (e *LoadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at %s", e.Category, e.Path)
	if e.ID != "" {
		fmt.Fprintf(&b, " (id %s)", e.ID)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Is reports ErrLoad as a match.
func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// LoadContext maps ids to entities already reconstructed during one load and
// collects the failures met along the way. It is discarded when the load ends.
type LoadContext struct {
	entities map[string]domain.Entity
	fallback domain.Resolver
	reporter diag.Reporter
	errors   []*LoadError
	path     []string
	skips    map[string]bool
}

// LoadContextOption customises a LoadContext.
type LoadContextOption func(*LoadContext)

// WithFallback resolves ids absent from the context through r, typically the
// live document when restoring snapshots.
func WithFallback(r domain.Resolver) LoadContextOption {
	return func(c *LoadContext) { c.fallback = r }
}

// WithLoadReporter mirrors every recorded failure to r.
func WithLoadReporter(r diag.Reporter) LoadContextOption {
	return func(c *LoadContext) { c.reporter = r }
}

// NewLoadContext constructs an empty context.
func NewLoadContext(opts ...LoadContextOption) *LoadContext {
	c := &LoadContext{entities: make(map[string]domain.Entity), skips: make(map[string]bool)}
	for _, opt := range opts {
		opt(c)
	}
	c.reporter = diag.OrNop(c.reporter)
	return c
}

// Add registers e. It reports false when the id is already taken by another
// entity.
func (c *LoadContext) Add(e domain.Entity) bool {
	if cur, ok := c.entities[e.ID()]; ok && cur != e {
		return false
	}
	c.entities[e.ID()] = e
	return true
}

// Has reports whether id was registered in this context.
func (c *LoadContext) Has(id string) bool {
	_, ok := c.entities[id]
	return ok
}

// Lookup implements domain.Resolver.
func (c *LoadContext) Lookup(id string) (domain.Entity, bool) {
	if e, ok := c.entities[id]; ok {
		return e, true
	}
	if c.fallback != nil {
		return c.fallback.Lookup(id)
	}
	return nil, false
}

// Len reports the number of registered entities.
func (c *LoadContext) Len() int { return len(c.entities) }

// Errors returns the recorded failures in order.
func (c *LoadContext) Errors() []*LoadError {
	return append([]*LoadError(nil), c.errors...)
}

// Err joins the recorded failures, or returns nil.
func (c *LoadContext) Err() error {
	if len(c.errors) == 0 {
		return nil
	}
	errs := make([]error, len(c.errors))
	for i, e := range c.errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Path returns the current location inside the tree.
func (c *LoadContext) Path() string {
	if len(c.path) == 0 {
		return "$"
	}
	return "$" + strings.Join(c.path, "")
}

// skip marks id as belonging to a subtree dropped by the loader, so later
// references to it are not reported twice.
func (c *LoadContext) skip(id string) {
	if id != "" {
		c.skips[id] = true
	}
}

func (c *LoadContext) skipped(id string) bool { return c.skips[id] }

func (c *LoadContext) push(segment string) { c.path = append(c.path, segment) }

func (c *LoadContext) pop() {
	if len(c.path) > 0 {
		c.path = c.path[:len(c.path)-1]
	}
}

// Fail records a failure at the current path.
func (c *LoadContext) Fail(cat Category, id, detail string) *LoadError {
	le := &LoadError{Category: cat, Path: c.Path(), ID: id, Detail: detail}
	c.errors = append(c.errors, le)
	c.reporter.Assert(kindByCategory[cat], le.Error(), map[string]any{
		"category": string(cat),
		"path":     le.Path,
		"id":       id,
	})
	return le
}
