// Package command drives interactive, multi-event gestures. A command
// accumulates UI events and commits its requests inside one transaction
// session, so a gesture yields a single history entry.
package command

import (
	"errors"
	"fmt"
	"log/slog"

	"designcore/internal/txn"
	"designcore/pkg/diag"
	"designcore/pkg/domain"
)

// State is the lifecycle position of a command.
type State int

// Command states.
const (
	StateIdle State = iota
	StateExecuting
	StateSuspended
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExecuting:
		return "executing"
	case StateSuspended:
		return "suspended"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event types understood by the built-in commands.
const (
	EventDragMove  = "drag_move"
	EventDragEnd   = "drag_end"
	EventMoveTo    = "moveto"
	EventReset     = "reset"
	EventResize    = "resize"
	EventChangeEnd = "changeend"
)

// Errors returned by the manager and commands.
var (
	ErrNoActiveCommand = errors.New("command: no active command")
	ErrNotExecuting    = errors.New("command: command is not executing")
	ErrCannotSuspend   = errors.New("command: command cannot be suspended")
	ErrUnknownEvent    = errors.New("command: unknown event")
	ErrInvalidPayload  = errors.New("command: invalid payload")
)

// Context gives a running command access to the document and the
// transaction manager. Requests committed through it join the command's
// session.
type Context struct {
	Doc    *domain.Document
	Txn    *txn.Manager
	Logger *slog.Logger
}

// Commit commits r into the command's session.
func (c *Context) Commit(r txn.Request) error {
	return c.Txn.Commit(r)
}

// Command is an interactive gesture. OnReceive returns done once a
// terminating event has committed the gesture's requests. OnCleanup runs
// after completion and after cancellation and must leave no transient
// entity attached.
type Command interface {
	Type() string
	OnExecute(ctx *Context) error
	OnReceive(ctx *Context, event string, payload any) (done bool, err error)
	OnCancel(ctx *Context)
	OnCleanup(ctx *Context)
	CanSuspend() bool
}

// Outcome is dispatched when a command finishes.
type Outcome struct {
	Command Command
	State   State
}

type run struct {
	cmd     Command
	state   State
	ctx     *Context
	session *txn.Session
}

// Manager runs at most one command at a time.
type Manager struct {
	txn      *txn.Manager
	reporter diag.Reporter
	logger   *slog.Logger
	active   *run
	finished domain.Signal[Outcome]
}

// Option customises a Manager.
type Option func(*Manager)

// WithReporter routes cleanup failures to r.
func WithReporter(r diag.Reporter) Option {
	return func(m *Manager) { m.reporter = diag.OrNop(r) }
}

// WithLogger sets the debug logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager builds a command manager over tm.
func NewManager(tm *txn.Manager, opts ...Option) *Manager {
	m := &Manager{
		txn:      tm,
		reporter: diag.Nop(),
		logger:   slog.New(slog.DiscardHandler),
	}
	if doc := tm.Document(); doc != nil {
		m.reporter = doc.Reporter()
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Finished fires when a command completes or is cancelled.
func (m *Manager) Finished() *domain.Signal[Outcome] { return &m.finished }

// Active returns the running command, if any.
func (m *Manager) Active() Command {
	if m.active == nil {
		return nil
	}
	return m.active.cmd
}

// State reports the state of the running command, or Idle.
func (m *Manager) State() State {
	if m.active == nil {
		return StateIdle
	}
	return m.active.state
}

// Execute starts cmd, cancelling any command still running. A failing
// OnExecute cancels cmd and returns the error.
func (m *Manager) Execute(cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil command", ErrInvalidPayload)
	}
	if m.active != nil {
		m.Cancel()
	}
	r := &run{
		cmd:     cmd,
		state:   StateExecuting,
		ctx:     &Context{Doc: m.txn.Document(), Txn: m.txn, Logger: m.logger},
		session: m.txn.StartSession(),
	}
	m.active = r
	m.logger.Debug("command started", "type", cmd.Type())
	if err := cmd.OnExecute(r.ctx); err != nil {
		m.Cancel()
		return fmt.Errorf("execute %s: %w", cmd.Type(), err)
	}
	return nil
}

// Receive forwards an event to the running command. A command reporting
// done is completed.
func (m *Manager) Receive(event string, payload any) error {
	r := m.active
	if r == nil {
		return ErrNoActiveCommand
	}
	if r.state != StateExecuting {
		return fmt.Errorf("%w: %s", ErrNotExecuting, r.state)
	}
	done, err := r.cmd.OnReceive(r.ctx, event, payload)
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.cmd.Type(), event, err)
	}
	if done {
		return m.Complete()
	}
	return nil
}

// Suspend pauses the running command when it allows suspension.
func (m *Manager) Suspend() error {
	r := m.active
	if r == nil {
		return ErrNoActiveCommand
	}
	if r.state != StateExecuting {
		return fmt.Errorf("%w: %s", ErrNotExecuting, r.state)
	}
	if !r.cmd.CanSuspend() {
		return fmt.Errorf("%w: %s", ErrCannotSuspend, r.cmd.Type())
	}
	r.state = StateSuspended
	return nil
}

// Resume continues a suspended command.
func (m *Manager) Resume() error {
	r := m.active
	if r == nil {
		return ErrNoActiveCommand
	}
	if r.state != StateSuspended {
		return fmt.Errorf("%w: %s is %s", ErrNotExecuting, r.cmd.Type(), r.state)
	}
	r.state = StateExecuting
	return nil
}

// Complete commits the running command's session as one history entry.
func (m *Manager) Complete() (err error) {
	r := m.active
	if r == nil {
		return ErrNoActiveCommand
	}
	defer m.finish(r, StateCompleted)
	if err := r.session.Commit(); err != nil {
		_ = r.session.End()
		return fmt.Errorf("complete %s: %w", r.cmd.Type(), err)
	}
	return nil
}

// Cancel aborts the running command and rolls back anything it committed.
// It is a no-op without a running command.
func (m *Manager) Cancel() {
	r := m.active
	if r == nil {
		return
	}
	defer m.finish(r, StateCancelled)
	r.cmd.OnCancel(r.ctx)
	if err := r.session.End(); err != nil {
		m.reporter.Assert(diag.KindCleanupFailure, "session rollback failed", map[string]any{
			"command": r.cmd.Type(), "error": err.Error(),
		})
	}
}

// finish runs the command's cleanup unconditionally. A panicking cleanup is
// reported and does not leave the command active.
func (m *Manager) finish(r *run, st State) {
	defer func() {
		if p := recover(); p != nil {
			m.reporter.Assert(diag.KindCleanupFailure, "command cleanup panicked", map[string]any{
				"command": r.cmd.Type(), "panic": fmt.Sprint(p),
			})
		}
		if r.session.Active() {
			_ = r.session.End()
		}
		r.state = st
		if m.active == r {
			m.active = nil
		}
		m.logger.Debug("command finished", "type", r.cmd.Type(), "state", st.String())
		m.finished.Dispatch(Outcome{Command: r.cmd, State: st})
	}()
	r.cmd.OnCleanup(r.ctx)
}
