package command

import (
	"fmt"

	"designcore/internal/txn"
	"designcore/pkg/domain"
)

type memberSlot struct {
	entity domain.Transformable
	parent domain.Entity
	index  int
	origin domain.Transform
}

// MultiMoveCommand drags a selection as one unit. While the gesture runs the
// members sit in a transient group under the first member's parent; the
// terminating event disbands the group and commits one composite of Move
// requests. Cancel and cleanup always return members to their original
// parents and positions.
type MultiMoveCommand struct {
	selection []domain.Transformable
	members   []memberSlot
	group     *domain.Group
	offset    domain.Vec3
}

// NewMultiMoveCommand drags selection.
func NewMultiMoveCommand(selection ...domain.Transformable) *MultiMoveCommand {
	return &MultiMoveCommand{selection: selection}
}

// Type implements Command.
func (c *MultiMoveCommand) Type() string { return "MultiMove" }

// CanSuspend implements Command.
func (c *MultiMoveCommand) CanSuspend() bool { return true }

// Group returns the transient group while the gesture runs.
func (c *MultiMoveCommand) Group() *domain.Group { return c.group }

// OnExecute implements Command.
func (c *MultiMoveCommand) OnExecute(ctx *Context) error {
	if len(c.selection) == 0 {
		return fmt.Errorf("%w: empty selection", ErrInvalidPayload)
	}
	home := domain.FirstParent(c.selection[0])
	if home == nil {
		home = ctx.Doc.Root()
	}
	c.group = ctx.Doc.NewTransientGroup()
	if err := domain.Attach(home, c.group, -1); err != nil {
		c.disband(ctx)
		return err
	}
	for _, e := range c.selection {
		slot := memberSlot{entity: e, index: -1, origin: e.Transform()}
		if p := domain.FirstParent(e); p != nil {
			slot.parent = p
			slot.index = indexOf(p.Children(), e)
			e.RemoveParent(p)
		}
		c.members = append(c.members, slot)
		if err := domain.Attach(c.group, e, -1); err != nil {
			c.disband(ctx)
			return err
		}
	}
	return nil
}

// OnReceive implements Command.
func (c *MultiMoveCommand) OnReceive(ctx *Context, event string, payload any) (bool, error) {
	switch event {
	case EventDragMove:
		delta, err := vec3(payload)
		if err != nil {
			return false, err
		}
		c.preview(delta)
		return false, nil
	case EventReset:
		c.preview(domain.Vec3{})
		return false, nil
	case EventDragEnd:
		offset := c.offset
		c.disband(ctx)
		if offset == (domain.Vec3{}) {
			return true, nil
		}
		moves := make([]txn.Request, 0, len(c.members))
		for _, m := range c.members {
			to := m.origin
			to.Position = to.Position.Add(offset)
			r, err := txn.NewMoveRequest(ctx.Doc, m.entity, to)
			if err != nil {
				return true, err
			}
			moves = append(moves, r)
		}
		return true, ctx.Commit(txn.NewComposite(moves...))
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
}

func (c *MultiMoveCommand) preview(delta domain.Vec3) {
	c.offset = delta
	if c.group != nil {
		c.group.SetPosition(delta)
	}
	for _, m := range c.members {
		m.entity.SetPosition(m.origin.Position.Add(delta))
	}
}

// disband returns members to their original parents and positions and
// destroys the group. It is idempotent.
func (c *MultiMoveCommand) disband(ctx *Context) {
	for _, m := range c.members {
		if c.group != nil {
			m.entity.RemoveParent(c.group)
		}
		m.entity.SetTransform(m.origin)
	}
	// Reverse order undoes the index shifts of the removals in OnExecute.
	for i := len(c.members) - 1; i >= 0; i-- {
		m := c.members[i]
		if m.parent != nil && !m.parent.IsDisposed() {
			_ = domain.Attach(m.parent, m.entity, m.index)
		}
	}
	if c.group != nil {
		ctx.Doc.Destroy(c.group)
		c.group = nil
	}
	c.offset = domain.Vec3{}
}

// OnCancel implements Command.
func (c *MultiMoveCommand) OnCancel(ctx *Context) { c.disband(ctx) }

// OnCleanup implements Command.
func (c *MultiMoveCommand) OnCleanup(ctx *Context) {
	if c.group != nil {
		c.disband(ctx)
	}
}

func indexOf(list []domain.Entity, e domain.Entity) int {
	for i, cur := range list {
		if cur == e {
			return i
		}
	}
	return -1
}
