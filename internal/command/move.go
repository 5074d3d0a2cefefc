package command

import (
	"fmt"

	"designcore/internal/txn"
	"designcore/pkg/domain"
)

func vec3(payload any) (domain.Vec3, error) {
	switch v := payload.(type) {
	case domain.Vec3:
		return v, nil
	case *domain.Vec3:
		if v != nil {
			return *v, nil
		}
	case [3]float64:
		return domain.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
	}
	return domain.Vec3{}, fmt.Errorf("%w: %T is not a vector", ErrInvalidPayload, payload)
}

// MoveCommand drags one transformable entity. drag_move and moveto carry a
// domain.Vec3: drag_move an offset from the start position, moveto an
// absolute position. The entity follows the pointer without requests; the
// terminating event commits one Move request.
type MoveCommand struct {
	entity domain.Transformable
	origin domain.Transform
	target domain.Transform
}

// NewMoveCommand drags e.
func NewMoveCommand(e domain.Transformable) *MoveCommand {
	return &MoveCommand{entity: e}
}

// Type implements Command.
func (c *MoveCommand) Type() string { return "Move" }

// CanSuspend implements Command.
func (c *MoveCommand) CanSuspend() bool { return true }

// OnExecute implements Command.
func (c *MoveCommand) OnExecute(*Context) error {
	if c.entity == nil {
		return fmt.Errorf("%w: nothing to move", ErrInvalidPayload)
	}
	c.origin = c.entity.Transform()
	c.target = c.origin
	return nil
}

// OnReceive implements Command.
func (c *MoveCommand) OnReceive(ctx *Context, event string, payload any) (bool, error) {
	switch event {
	case EventDragMove:
		delta, err := vec3(payload)
		if err != nil {
			return false, err
		}
		c.preview(c.origin.Position.Add(delta))
		return false, nil
	case EventMoveTo:
		pos, err := vec3(payload)
		if err != nil {
			return false, err
		}
		c.preview(pos)
		return true, c.commit(ctx)
	case EventDragEnd:
		return true, c.commit(ctx)
	case EventReset:
		c.preview(c.origin.Position)
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
}

func (c *MoveCommand) preview(pos domain.Vec3) {
	c.target.Position = pos
	c.entity.SetPosition(pos)
}

// commit restores the origin so the request records it as the undo state.
func (c *MoveCommand) commit(ctx *Context) error {
	c.entity.SetTransform(c.origin)
	if c.target == c.origin {
		return nil
	}
	r, err := txn.NewMoveRequest(ctx.Doc, c.entity, c.target)
	if err != nil {
		return err
	}
	return ctx.Commit(r)
}

// OnCancel implements Command.
func (c *MoveCommand) OnCancel(*Context) {
	if c.entity != nil {
		c.entity.SetTransform(c.origin)
	}
}

// OnCleanup implements Command.
func (c *MoveCommand) OnCleanup(*Context) {}

// ResizeCommand scales one transformable entity. resize carries a
// domain.Vec3 of per-axis factors applied to the starting scale; changeend
// commits one Move request carrying the new scale.
type ResizeCommand struct {
	entity domain.Transformable
	origin domain.Transform
	target domain.Transform
}

// NewResizeCommand resizes e.
func NewResizeCommand(e domain.Transformable) *ResizeCommand {
	return &ResizeCommand{entity: e}
}

// Type implements Command.
func (c *ResizeCommand) Type() string { return "Resize" }

// CanSuspend implements Command.
func (c *ResizeCommand) CanSuspend() bool { return false }

// OnExecute implements Command.
func (c *ResizeCommand) OnExecute(*Context) error {
	if c.entity == nil {
		return fmt.Errorf("%w: nothing to resize", ErrInvalidPayload)
	}
	c.origin = c.entity.Transform()
	c.target = c.origin
	return nil
}

// OnReceive implements Command.
func (c *ResizeCommand) OnReceive(ctx *Context, event string, payload any) (bool, error) {
	switch event {
	case EventResize:
		f, err := vec3(payload)
		if err != nil {
			return false, err
		}
		s := c.origin.Scale
		c.target.Scale = domain.Vec3{X: s.X * f.X, Y: s.Y * f.Y, Z: s.Z * f.Z}
		c.entity.SetTransform(c.target)
		return false, nil
	case EventReset:
		c.target = c.origin
		c.entity.SetTransform(c.origin)
		return false, nil
	case EventChangeEnd:
		c.entity.SetTransform(c.origin)
		if c.target == c.origin {
			return true, nil
		}
		r, err := txn.NewMoveRequest(ctx.Doc, c.entity, c.target)
		if err != nil {
			return true, err
		}
		return true, ctx.Commit(r)
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
}

// OnCancel implements Command.
func (c *ResizeCommand) OnCancel(*Context) {
	if c.entity != nil {
		c.entity.SetTransform(c.origin)
	}
}

// OnCleanup implements Command.
func (c *ResizeCommand) OnCleanup(*Context) {}
