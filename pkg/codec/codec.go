// Package codec converts document entities to flat records and back. Each
// entity family has one codec built from reusable field sets applied in
// base-then-derived order. Codecs depend on the domain model; the model never
// depends on codecs.
package codec

import (
	"fmt"

	"designcore/pkg/domain"
)

// FormatVersion is the version of the serialized document layout.
const FormatVersion = 1

// DumpCallback is invoked with every entity record produced by Dump, after the
// record is complete. Callbacks may add keys to rec.
type DumpCallback func(e domain.Entity, rec Record)

// DumpOptions tunes Dump.
type DumpOptions struct {
	// Registry supplies the long to short type name table. Nil uses the
	// built-in table.
	Registry *domain.Registry
	// Recursive appends the records of every persistent descendant.
	Recursive bool
}

func (o DumpOptions) registry() *domain.Registry {
	if o.Registry != nil {
		return o.Registry
	}
	return builtinRegistry
}

// LoadOptions tunes Load.
type LoadOptions struct {
	// Context resolves references and collects failures. Nil makes Load use a
	// private context and return its failures as an error.
	Context *LoadContext
	// Registry resolves the record's type discriminator. Nil uses the built-in
	// table.
	Registry *domain.Registry
	// Hierarchy makes Load restore the children listed in the record.
	Hierarchy bool
}

func (o LoadOptions) registry() *domain.Registry {
	if o.Registry != nil {
		return o.Registry
	}
	return builtinRegistry
}

// Codec is the dump/load pair of one entity family.
type Codec interface {
	// Dump returns the entity's own record at index 0, followed by the records
	// of its descendants when opts.Recursive is set.
	Dump(e domain.Entity, cb DumpCallback, includeMetadata bool, opts DumpOptions) []Record
	// Load applies rec to e. Unknown keys are ignored and rec is never
	// modified.
	Load(e domain.Entity, rec Record, opts LoadOptions) error
}

var builtinRegistry = func() *domain.Registry {
	reg := domain.NewRegistry()
	if err := domain.RegisterBuiltins(reg); err != nil {
		panic(fmt.Sprintf("codec: builtin registry: %v", err))
	}
	return reg
}()

type entityCodec struct {
	family domain.Family
	sets   []fieldSet
}

func newEntityCodec(family domain.Family, derived ...fieldSet) *entityCodec {
	sets := []fieldSet{identityFields{}, metaFields{}, hierarchyFields{}}
	return &entityCodec{family: family, sets: append(sets, derived...)}
}

var (
	layerCodec   = newEntityCodec(domain.FamilyLayer, layerFields{})
	wallCodec    = newEntityCodec(domain.FamilyWall, wallFields{})
	openingCodec = newEntityCodec(domain.FamilyOpening, transformFields{}, openingFields{})
	contentCodec = newEntityCodec(domain.FamilyContent, transformFields{}, contentFields{})
	lightCodec   = newEntityCodec(domain.FamilyLight, transformFields{}, lightFields{})
	groupCodec   = newEntityCodec(domain.FamilyGroup, transformFields{})
)

// LayerCodec returns the layer codec.
func LayerCodec() Codec { return layerCodec }

// WallCodec returns the wall codec.
func WallCodec() Codec { return wallCodec }

// OpeningCodec returns the codec shared by doors, windows and holes.
func OpeningCodec() Codec { return openingCodec }

// ContentCodec returns the codec shared by boxes, curtains and models.
func ContentCodec() Codec { return contentCodec }

// LightCodec returns the light codec.
func LightCodec() Codec { return lightCodec }

// GroupCodec returns the group codec.
func GroupCodec() Codec { return groupCodec }

// For returns the codec of e's family.
func For(e domain.Entity) (Codec, error) {
	switch e.(type) {
	case *domain.Layer:
		return layerCodec, nil
	case *domain.Wall:
		return wallCodec, nil
	case *domain.Opening:
		return openingCodec, nil
	case *domain.Content:
		return contentCodec, nil
	case *domain.Light:
		return lightCodec, nil
	case *domain.Group:
		return groupCodec, nil
	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrUnknownType, e)
	}
}

// DumpEntity dumps e with its family codec.
func DumpEntity(e domain.Entity, includeMetadata bool, opts DumpOptions) ([]Record, error) {
	c, err := For(e)
	if err != nil {
		return nil, err
	}
	return c.Dump(e, nil, includeMetadata, opts), nil
}

// LoadEntity loads rec into e with its family codec.
func LoadEntity(e domain.Entity, rec Record, opts LoadOptions) error {
	c, err := For(e)
	if err != nil {
		return err
	}
	return c.Load(e, rec, opts)
}

func (c *entityCodec) Dump(e domain.Entity, cb DumpCallback, includeMetadata bool, opts DumpOptions) []Record {
	if e == nil {
		return nil
	}
	var out []Record
	c.dumpInto(e, cb, includeMetadata, opts, make(map[string]bool), &out)
	return out
}

func (c *entityCodec) dumpInto(e domain.Entity, cb DumpCallback, includeMetadata bool, opts DumpOptions, seen map[string]bool, out *[]Record) {
	seen[e.ID()] = true
	rec := make(Record)
	for _, s := range c.sets {
		s.dump(e, rec, includeMetadata, opts)
	}
	if cb != nil {
		cb(e, rec)
	}
	*out = append(*out, rec)
	if !opts.Recursive {
		return
	}
	for _, child := range persistentChildren(e) {
		if seen[child.ID()] {
			continue
		}
		cc, err := For(child)
		if err != nil {
			continue
		}
		cc.(*entityCodec).dumpInto(child, cb, includeMetadata, opts, seen, out)
	}
}

func (c *entityCodec) Load(e domain.Entity, rec Record, opts LoadOptions) error {
	if e == nil {
		return domain.ErrNilEntity
	}
	if e.Family() != c.family {
		return fmt.Errorf("codec for %s cannot load %s", c.family, e.TypeTag())
	}
	lc := opts.Context
	private := lc == nil
	if private {
		lc = NewLoadContext()
	}
	if t := rec.Type(); t != "" {
		if long := opts.registry().LongName(t); long != e.TypeTag() {
			le := lc.Fail(CategoryTypeMismatch, e.ID(), fmt.Sprintf("record type %s, entity type %s", long, e.TypeTag()))
			return le
		}
	}
	for _, s := range c.sets {
		s.load(e, rec, lc, opts)
	}
	if private {
		return lc.Err()
	}
	return nil
}
