package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"designcore/pkg/diag"
	"designcore/pkg/domain"
)

// DefaultHistoryLimit bounds the number of undoable entries kept.
const DefaultHistoryLimit = 100

// Factory builds a request from loosely typed arguments.
type Factory func(m *Manager, args ...any) (Request, error)

type entry struct {
	req   Request
	state State
}

// Manager owns the undo/redo history of one document. Entries before the
// cursor are committed; entries after it are undone and form the redo tail.
// Requests without a Lifecycle are tracked in states only while the manager
// holds them. The manager is single-writer.
type Manager struct {
	doc       *domain.Document
	reporter  diag.Reporter
	logger    *slog.Logger
	rules     *RulesEngine
	metrics   *Metrics
	tracer    trace.Tracer
	limit     int
	history   []*entry
	cursor    int
	factories map[string]Factory
	sessions  []*Session
	states    map[Request]State

	committed domain.Signal[Request]
	undone    domain.Signal[Request]
	redone    domain.Signal[Request]
}

// Option customises a Manager.
type Option func(*Manager)

// WithHistoryLimit bounds the history. Values below one keep the default.
func WithHistoryLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.limit = n
		}
	}
}

// WithReporter routes ordering assertions and rule warnings to r.
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

// WithRules evaluates engine after every commit.
func WithRules(engine *RulesEngine) Option {
	return func(m *Manager) { m.rules = engine }
}

// WithMetrics records request outcomes.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithTracer records a span per commit, undo and redo.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

// NewManager constructs a manager bound to doc with the built-in request
// factories registered.
func NewManager(doc *domain.Document, opts ...Option) *Manager {
	m := &Manager{
		doc:       doc,
		reporter:  diag.Nop(),
		logger:    slog.New(slog.DiscardHandler),
		tracer:    noop.NewTracerProvider().Tracer("designcore/txn"),
		limit:     DefaultHistoryLimit,
		factories: make(map[string]Factory),
		states:    make(map[Request]State),
	}
	if doc != nil {
		m.reporter = doc.Reporter()
	}
	for _, opt := range opts {
		opt(m)
	}
	registerBuiltinFactories(m)
	return m
}

// Document returns the document the manager mutates.
func (m *Manager) Document() *domain.Document { return m.doc }

// Committed fires after a request is committed, including inside a session.
func (m *Manager) Committed() *domain.Signal[Request] { return &m.committed }

// Undone fires after a history entry is undone.
func (m *Manager) Undone() *domain.Signal[Request] { return &m.undone }

// Redone fires after a history entry is redone.
func (m *Manager) Redone() *domain.Signal[Request] { return &m.redone }

// RegisterRequest installs a factory for typ.
func (m *Manager) RegisterRequest(typ string, f Factory) error {
	if typ == "" || f == nil {
		return fmt.Errorf("%w: empty request registration", ErrInvalidArguments)
	}
	if _, ok := m.factories[typ]; ok {
		return fmt.Errorf("request type %s already registered", typ)
	}
	m.factories[typ] = f
	return nil
}

// RequestTypes lists the registered request type names.
func (m *Manager) RequestTypes() []string {
	out := make([]string, 0, len(m.factories))
	for typ := range m.factories {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// CreateRequest builds a request of typ. The request is not committed.
func (m *Manager) CreateRequest(typ string, args ...any) (Request, error) {
	f, ok := m.factories[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequestType, typ)
	}
	r, err := f(m, args...)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", typ, err)
	}
	return r, nil
}

// State reports the lifecycle state of r. Requests the manager never saw are
// Created.
func (m *Manager) State(r Request) State {
	if sf, ok := r.(stateful); ok {
		return sf.lifecycle().state
	}
	return m.states[r]
}

func (m *Manager) setState(r Request, st State) {
	if sf, ok := r.(stateful); ok {
		sf.lifecycle().state = st
		return
	}
	if st == StateRetired {
		delete(m.states, r)
		return
	}
	m.states[r] = st
}

// Commit commits r.
func (m *Manager) Commit(r Request) error {
	return m.CommitContext(context.Background(), r)
}

// CommitContext commits r. A request already committed or undone is rejected
// as out of order. A blocking rule violation rolls the request back and
// returns a RuleViolationError. Inside a session the request joins the
// session instead of the history.
func (m *Manager) CommitContext(ctx context.Context, r Request) (err error) {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidArguments)
	}
	if st := m.State(r); st != StateCreated {
		return m.rejectOrder("commit", r, st)
	}
	ctx, span := m.tracer.Start(ctx, "txn.commit", trace.WithAttributes(attribute.String("request.type", r.Type())))
	start := time.Now()
	defer func() {
		m.metrics.observe("commit", r.Type(), start, err)
		endSpan(span, err)
	}()

	if err = r.OnCommit(); err != nil {
		return fmt.Errorf("commit %s: %w", r.Type(), err)
	}
	if err = m.evaluate(ctx, r); err != nil {
		if uerr := r.OnUndo(); uerr != nil {
			err = errors.Join(err, fmt.Errorf("rollback %s: %w", r.Type(), uerr))
		}
		return err
	}
	m.setState(r, StateCommitted)
	if s := m.activeSession(); s != nil {
		s.add(r)
	} else {
		m.push(r)
	}
	m.logger.Debug("request committed", "type", r.Type(), "depth", m.cursor)
	m.committed.Dispatch(r)
	return nil
}

func (m *Manager) evaluate(ctx context.Context, r Request) error {
	if m.rules == nil {
		return nil
	}
	res, err := m.rules.Evaluate(ctx, m.doc, r.Changes())
	if err != nil {
		return fmt.Errorf("evaluate rules: %w", err)
	}
	for _, v := range res.Violations {
		if v.Severity == SeverityBlock {
			continue
		}
		m.reporter.Assert(diag.KindRuleViolation, v.Message, map[string]any{
			"rule": v.Rule, "severity": string(v.Severity), "entity": v.EntityID,
		})
	}
	if res.HasBlocking() {
		m.metrics.reject("rule")
		return RuleViolationError{Result: res}
	}
	return nil
}

// push appends a committed request, truncating the redo tail and evicting
// the oldest entry past the limit.
func (m *Manager) push(r Request) {
	for _, e := range m.history[m.cursor:] {
		m.dispose(e.req)
	}
	m.history = append(m.history[:m.cursor], &entry{req: r, state: StateCommitted})
	m.cursor++
	for len(m.history) > m.limit {
		m.dispose(m.history[0].req)
		m.history = m.history[1:]
		m.cursor--
	}
	m.metrics.depth(m.cursor)
}

func (m *Manager) dispose(r Request) {
	m.retire(r)
	if d, ok := r.(Disposer); ok {
		d.Dispose()
	}
}

func (m *Manager) retire(r Request) {
	m.setState(r, StateRetired)
	if c, ok := r.(*Composite); ok {
		for _, child := range c.children {
			m.retire(child)
		}
	}
}

// CanUndo reports whether a committed entry precedes the cursor.
func (m *Manager) CanUndo() bool { return m.cursor > 0 && m.activeSession() == nil }

// CanRedo reports whether an undone entry follows the cursor.
func (m *Manager) CanRedo() bool { return m.cursor < len(m.history) && m.activeSession() == nil }

// Undo undoes the most recent committed entry.
func (m *Manager) Undo() error { return m.UndoContext(context.Background()) }

// UndoContext undoes the most recent committed entry. With nothing to undo,
// or while a session is open, the call is rejected as a no-op.
func (m *Manager) UndoContext(ctx context.Context) error {
	if !m.CanUndo() {
		return m.rejectOrder("undo", nil, StateCreated)
	}
	return m.undoTop(ctx)
}

// UndoRequest undoes r, which must be the most recent committed entry.
func (m *Manager) UndoRequest(r Request) error {
	if !m.CanUndo() || m.history[m.cursor-1].req != r {
		return m.rejectOrder("undo", r, m.State(r))
	}
	return m.undoTop(context.Background())
}

func (m *Manager) undoTop(ctx context.Context) (err error) {
	e := m.history[m.cursor-1]
	_, span := m.tracer.Start(ctx, "txn.undo", trace.WithAttributes(attribute.String("request.type", e.req.Type())))
	start := time.Now()
	defer func() {
		m.metrics.observe("undo", e.req.Type(), start, err)
		endSpan(span, err)
	}()
	if err = e.req.OnUndo(); err != nil {
		return fmt.Errorf("undo %s: %w", e.req.Type(), err)
	}
	e.state = StateUndone
	m.setState(e.req, StateUndone)
	m.cursor--
	m.metrics.depth(m.cursor)
	m.logger.Debug("request undone", "type", e.req.Type(), "depth", m.cursor)
	m.undone.Dispatch(e.req)
	return nil
}

// Redo redoes the entry after the cursor.
func (m *Manager) Redo() error { return m.RedoContext(context.Background()) }

// RedoContext redoes the entry after the cursor. With nothing to redo the
// call is rejected as a no-op.
func (m *Manager) RedoContext(ctx context.Context) error {
	if !m.CanRedo() {
		return m.rejectOrder("redo", nil, StateCreated)
	}
	return m.redoNext(ctx)
}

// RedoRequest redoes r, which must be the next undone entry.
func (m *Manager) RedoRequest(r Request) error {
	if !m.CanRedo() || m.history[m.cursor].req != r {
		return m.rejectOrder("redo", r, m.State(r))
	}
	return m.redoNext(context.Background())
}

func (m *Manager) redoNext(ctx context.Context) (err error) {
	e := m.history[m.cursor]
	_, span := m.tracer.Start(ctx, "txn.redo", trace.WithAttributes(attribute.String("request.type", e.req.Type())))
	start := time.Now()
	defer func() {
		m.metrics.observe("redo", e.req.Type(), start, err)
		endSpan(span, err)
	}()
	if err = e.req.OnRedo(); err != nil {
		return fmt.Errorf("redo %s: %w", e.req.Type(), err)
	}
	e.state = StateCommitted
	m.setState(e.req, StateCommitted)
	m.cursor++
	m.metrics.depth(m.cursor)
	m.logger.Debug("request redone", "type", e.req.Type(), "depth", m.cursor)
	m.redone.Dispatch(e.req)
	return nil
}

// History returns every entry in commit order, including the redo tail.
func (m *Manager) History() []Request {
	out := make([]Request, len(m.history))
	for i, e := range m.history {
		out[i] = e.req
	}
	return out
}

// Cursor reports how many history entries are committed.
func (m *Manager) Cursor() int { return m.cursor }

// Clear drops the history, disposing every entry.
func (m *Manager) Clear() {
	for _, e := range m.history {
		m.dispose(e.req)
	}
	m.history = nil
	m.cursor = 0
	m.metrics.depth(0)
}

func (m *Manager) rejectOrder(op string, r Request, st State) error {
	meta := map[string]any{"op": op, "state": st.String()}
	if r != nil {
		meta["type"] = r.Type()
	}
	m.reporter.Assert(diag.KindInvalidOrder, op+" rejected", meta)
	m.metrics.reject("order")
	return fmt.Errorf("%w: %s in state %s", ErrInvalidOrder, op, st)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
