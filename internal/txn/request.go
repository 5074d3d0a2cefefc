// Package txn implements reversible requests and the transaction manager that
// sequences them into a linear undo/redo history.
package txn

import (
	"errors"
	"fmt"

	"designcore/pkg/domain"
)

// State is the lifecycle position of a request.
type State int

// Request states. A redone request is observably Committed. A retired
// request was merged into another or dropped from the history and cannot be
// committed again.
const (
	StateCreated State = iota
	StateCommitted
	StateUndone
	StateRetired
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateCommitted:
		return "committed"
	case StateUndone:
		return "undone"
	case StateRetired:
		return "retired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Action classifies how a request touched an entity.
type Action string

// Supported actions.
const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionRecycle Action = "recycle"
)

// Change names one entity affected by a request.
type Change struct {
	Entity domain.Entity
	Action Action
}

// Request is an atomic, reversible mutation. OnUndo restores every affected
// entity to its state before OnCommit; OnRedo reapplies the committed state
// rather than replaying a delta.
type Request interface {
	Type() string
	OnCommit() error
	OnUndo() error
	OnRedo() error
	Changes() []Change
}

// Lifecycle carries the manager state of a request. Requests embed it so
// the state stays with the request after it leaves the history. Requests
// without it are tracked by the manager only while it holds them.
type Lifecycle struct {
	state State
}

func (l *Lifecycle) lifecycle() *Lifecycle { return l }

type stateful interface {
	lifecycle() *Lifecycle
}

// Merger is implemented by requests that can absorb a later request of the
// same kind inside a session, so repeated edits occupy one history slot.
type Merger interface {
	Merge(next Request) bool
}

// Disposer is implemented by requests holding resources released when the
// request leaves the history.
type Disposer interface {
	Dispose()
}

// Request type names understood by Manager.CreateRequest.
const (
	TypeComposite       = "Composite"
	TypeMove            = "Move"
	TypeReparent        = "Reparent"
	TypeToggleComponent = "ToggleComponent"
	TypeCreateEntity    = "CreateEntity"
	TypeDeleteEntity    = "DeleteEntity"
	TypeBindAssociation = "BindAssociation"
	TypeState           = "State"
)

// Sentinel errors.
var (
	ErrInvalidOrder       = errors.New("txn: request out of order")
	ErrUnknownRequestType = errors.New("txn: unknown request type")
	ErrInvalidArguments   = errors.New("txn: invalid request arguments")
	ErrSessionClosed      = errors.New("txn: session closed")
)

// Composite commits its children in order as one indivisible request and
// undoes them in reverse order.
type Composite struct {
	Lifecycle
	children []Request
}

// NewComposite groups children.
func NewComposite(children ...Request) *Composite {
	out := make([]Request, 0, len(children))
	for _, c := range children {
		if c != nil {
			out = append(out, c)
		}
	}
	return &Composite{children: out}
}

// Type implements Request.
func (c *Composite) Type() string { return TypeComposite }

// Children returns the grouped requests in commit order.
func (c *Composite) Children() []Request { return append([]Request(nil), c.children...) }

// Len reports the number of children.
func (c *Composite) Len() int { return len(c.children) }

// OnCommit commits every child. A failing child rolls back the children
// already committed before the error is returned.
func (c *Composite) OnCommit() error {
	for i, child := range c.children {
		if err := child.OnCommit(); err != nil {
			c.rollback(i)
			return fmt.Errorf("composite child %d (%s): %w", i, child.Type(), err)
		}
	}
	return nil
}

func (c *Composite) rollback(n int) {
	for j := n - 1; j >= 0; j-- {
		_ = c.children[j].OnUndo()
	}
}

// OnUndo undoes the children in reverse order.
func (c *Composite) OnUndo() error {
	var errs []error
	for i := len(c.children) - 1; i >= 0; i-- {
		if err := c.children[i].OnUndo(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnRedo redoes the children in order. A failing child undoes the children
// already redone.
func (c *Composite) OnRedo() error {
	for i, child := range c.children {
		if err := child.OnRedo(); err != nil {
			c.rollback(i)
			return fmt.Errorf("composite child %d (%s): %w", i, child.Type(), err)
		}
	}
	return nil
}

// Changes concatenates the children's changes.
func (c *Composite) Changes() []Change {
	var out []Change
	for _, child := range c.children {
		out = append(out, child.Changes()...)
	}
	return out
}

// Dispose forwards to children that hold resources.
func (c *Composite) Dispose() {
	for _, child := range c.children {
		if d, ok := child.(Disposer); ok {
			d.Dispose()
		}
	}
}
