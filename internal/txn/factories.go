package txn

import (
	"fmt"

	"designcore/pkg/domain"
)

func registerBuiltinFactories(m *Manager) {
	builtins := map[string]Factory{
		TypeComposite:       compositeFactory,
		TypeMove:            moveFactory,
		TypeReparent:        reparentFactory,
		TypeToggleComponent: toggleFactory,
		TypeCreateEntity:    createFactory,
		TypeDeleteEntity:    deleteFactory,
		TypeBindAssociation: bindFactory,
		TypeState:           stateFactory,
	}
	for typ, f := range builtins {
		m.factories[typ] = f
	}
}

// arg returns args[i] as T.
func arg[T any](args []any, i int, name string) (T, error) {
	var zero T
	if i >= len(args) {
		return zero, fmt.Errorf("%w: missing %s", ErrInvalidArguments, name)
	}
	v, ok := args[i].(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", ErrInvalidArguments, name, args[i])
	}
	return v, nil
}

// optArg returns args[i] as T, or def when absent or nil.
func optArg[T any](args []any, i int, name string, def T) (T, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	return arg[T](args, i, name)
}

func entities(args []any, from int) ([]domain.Entity, error) {
	var out []domain.Entity
	for i := from; i < len(args); i++ {
		switch v := args[i].(type) {
		case domain.Entity:
			out = append(out, v)
		case []domain.Entity:
			out = append(out, v...)
		default:
			return nil, fmt.Errorf("%w: argument %d is %T", ErrInvalidArguments, i, args[i])
		}
	}
	return out, nil
}

func compositeFactory(_ *Manager, args ...any) (Request, error) {
	var children []Request
	for i, a := range args {
		switch v := a.(type) {
		case Request:
			children = append(children, v)
		case []Request:
			children = append(children, v...)
		default:
			return nil, fmt.Errorf("%w: argument %d is %T", ErrInvalidArguments, i, a)
		}
	}
	return NewComposite(children...), nil
}

func moveFactory(m *Manager, args ...any) (Request, error) {
	e, err := arg[domain.Entity](args, 0, "entity")
	if err != nil {
		return nil, err
	}
	to, err := arg[domain.Transform](args, 1, "transform")
	if err != nil {
		return nil, err
	}
	return NewMoveRequest(m.doc, e, to)
}

func reparentFactory(m *Manager, args ...any) (Request, error) {
	child, err := arg[domain.Entity](args, 0, "child")
	if err != nil {
		return nil, err
	}
	from, err := optArg[domain.Entity](args, 1, "from", nil)
	if err != nil {
		return nil, err
	}
	to, err := arg[domain.Entity](args, 2, "to")
	if err != nil {
		return nil, err
	}
	index, err := optArg(args, 3, "index", -1)
	if err != nil {
		return nil, err
	}
	return NewReparentRequest(m.doc, child, from, to, index)
}

func toggleFactory(_ *Manager, args ...any) (Request, error) {
	c, err := arg[*domain.Content](args, 0, "content")
	if err != nil {
		return nil, err
	}
	component, err := arg[string](args, 1, "component")
	if err != nil {
		return nil, err
	}
	enable, err := arg[bool](args, 2, "enable")
	if err != nil {
		return nil, err
	}
	return NewToggleComponentRequest(c, component, enable)
}

func createFactory(m *Manager, args ...any) (Request, error) {
	typeName, err := arg[string](args, 0, "type")
	if err != nil {
		return nil, err
	}
	seed, err := optArg(args, 1, "seed", "")
	if err != nil {
		return nil, err
	}
	parent, err := optArg[domain.Entity](args, 2, "parent", m.doc.Root())
	if err != nil {
		return nil, err
	}
	index, err := optArg(args, 3, "index", -1)
	if err != nil {
		return nil, err
	}
	init, err := optArg[func(domain.Entity) error](args, 4, "init", nil)
	if err != nil {
		return nil, err
	}
	return NewCreateEntityRequest(m.doc, typeName, seed, parent, index, init)
}

func deleteFactory(m *Manager, args ...any) (Request, error) {
	e, err := arg[domain.Entity](args, 0, "entity")
	if err != nil {
		return nil, err
	}
	return NewDeleteEntityRequest(m.doc, e)
}

func bindFactory(m *Manager, args ...any) (Request, error) {
	typeName, err := arg[string](args, 0, "association type")
	if err != nil {
		return nil, err
	}
	owner, err := arg[domain.Entity](args, 1, "owner")
	if err != nil {
		return nil, err
	}
	targets, err := entities(args, 2)
	if err != nil {
		return nil, err
	}
	return NewBindAssociationRequest(m.doc, typeName, owner, targets...)
}

func stateFactory(m *Manager, args ...any) (Request, error) {
	typ, err := optArg(args, 0, "type", TypeState)
	if err != nil {
		return nil, err
	}
	mutate, err := arg[func(*StateRequest) error](args, 1, "mutation")
	if err != nil {
		return nil, err
	}
	tracked, err := entities(args, 2)
	if err != nil {
		return nil, err
	}
	return NewStateRequest(m.doc, typ, mutate, tracked...), nil
}
