// Package core wires the document model into a running service: one
// document with its transaction and command managers, the installed plugins
// and the archive that saves and reopens revisions.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"designcore/internal/archive"
	"designcore/internal/command"
	"designcore/internal/config"
	"designcore/internal/txn"
	"designcore/pkg/codec"
	"designcore/pkg/diag"
	"designcore/pkg/domain"
)

// DefaultDocumentID names the document when none is configured.
const DefaultDocumentID = "default"

// Service owns one open document. Archive calls are serialised; the model
// itself stays single-writer.
type Service struct {
	mu sync.Mutex

	registry   *domain.Registry
	rules      *txn.RulesEngine
	store      archive.Store
	logger     *slog.Logger
	reporter   diag.Reporter
	metrics    *txn.Metrics
	tracer     trace.Tracer
	limit      int
	documentID string

	doc      *domain.Document
	txn      *txn.Manager
	commands *command.Manager

	requests map[string]txn.Factory
	plugins  map[string]PluginMetadata
}

// Option customises a Service.
type Option func(*Service)

// WithArchive sets the archive store. The default is an in-memory archive.
func WithArchive(s archive.Store) Option {
	return func(svc *Service) { svc.store = s }
}

// WithLogger sets the service logger; diagnostics are reported through it.
func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// WithReporter overrides the diagnostics reporter built from the logger.
func WithReporter(r diag.Reporter) Option {
	return func(svc *Service) { svc.reporter = r }
}

// WithMetrics records transaction metrics.
func WithMetrics(m *txn.Metrics) Option {
	return func(svc *Service) { svc.metrics = m }
}

// WithTracer traces commits, undos and redos.
func WithTracer(t trace.Tracer) Option {
	return func(svc *Service) { svc.tracer = t }
}

// WithHistoryLimit bounds the undo history.
func WithHistoryLimit(n int) Option {
	return func(svc *Service) { svc.limit = n }
}

// WithDocumentID names the open document in the archive.
func WithDocumentID(id string) Option {
	return func(svc *Service) {
		if id != "" {
			svc.documentID = id
		}
	}
}

// WithRules replaces the default rules engine.
func WithRules(engine *txn.RulesEngine) Option {
	return func(svc *Service) {
		if engine != nil {
			svc.rules = engine
		}
	}
}

// NewService builds a service around a fresh document using the built-in
// entity and association classes.
func NewService(opts ...Option) (*Service, error) {
	reg := domain.NewRegistry()
	if err := domain.RegisterBuiltins(reg); err != nil {
		return nil, fmt.Errorf("register builtins: %w", err)
	}
	svc := &Service{
		registry:   reg,
		rules:      txn.NewDefaultRulesEngine(),
		logger:     slog.New(slog.DiscardHandler),
		documentID: DefaultDocumentID,
		requests:   make(map[string]txn.Factory),
		plugins:    make(map[string]PluginMetadata),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.store == nil {
		svc.store = archive.NewMemory()
	}
	if svc.reporter == nil {
		svc.reporter = diag.NewSlogReporter(svc.logger)
	}
	if err := svc.attach(domain.NewDocument(reg, domain.WithReporter(svc.reporter))); err != nil {
		return nil, err
	}
	return svc, nil
}

// FromConfig opens the configured archive and builds a service logging to w.
// promReg may be nil to skip metrics.
func FromConfig(ctx context.Context, cfg config.Config, w io.Writer, promReg prometheus.Registerer) (*Service, error) {
	store, err := archive.Open(ctx, cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	opts := []Option{
		WithArchive(store),
		WithLogger(cfg.Logger(w)),
		WithHistoryLimit(cfg.History.Limit),
	}
	if promReg != nil {
		metrics, err := txn.NewMetrics(promReg, cfg.Metrics.Namespace)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		opts = append(opts, WithMetrics(metrics))
	}
	return NewService(opts...)
}

// attach makes doc the open document with fresh managers. Plugin request
// types are re-registered on the new transaction manager.
func (s *Service) attach(doc *domain.Document) error {
	if s.commands != nil {
		s.commands.Cancel()
	}
	opts := []txn.Option{
		txn.WithRules(s.rules),
		txn.WithLogger(s.logger),
		txn.WithReporter(s.reporter),
		txn.WithHistoryLimit(s.limit),
	}
	if s.metrics != nil {
		opts = append(opts, txn.WithMetrics(s.metrics))
	}
	if s.tracer != nil {
		opts = append(opts, txn.WithTracer(s.tracer))
	}
	tm := txn.NewManager(doc, opts...)
	for _, typ := range sortedKeys(s.requests) {
		if err := tm.RegisterRequest(typ, s.requests[typ]); err != nil {
			return err
		}
	}
	s.doc = doc
	s.txn = tm
	s.commands = command.NewManager(tm, command.WithLogger(s.logger), command.WithReporter(s.reporter))
	return nil
}

// Registry returns the entity registry.
func (s *Service) Registry() *domain.Registry { return s.registry }

// Document returns the open document.
func (s *Service) Document() *domain.Document { return s.doc }

// Transactions returns the transaction manager of the open document.
func (s *Service) Transactions() *txn.Manager { return s.txn }

// Commands returns the command manager of the open document.
func (s *Service) Commands() *command.Manager { return s.commands }

// Rules returns the rules engine shared by every opened document.
func (s *Service) Rules() *txn.RulesEngine { return s.rules }

// Archive returns the archive store.
func (s *Service) Archive() archive.Store { return s.store }

// DocumentID returns the archive id of the open document.
func (s *Service) DocumentID() string { return s.documentID }

// Save archives the open document as its next revision. A running command
// is not included; its previews are transient.
func (s *Service) Save(ctx context.Context, label string) (archive.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := archive.SaveDocument(ctx, s.store, s.documentID, s.doc, label)
	if err != nil {
		return archive.Snapshot{}, fmt.Errorf("save %s: %w", s.documentID, err)
	}
	s.logger.Info("document saved",
		"document", snap.DocumentID, "revision", snap.Revision, "bytes", snap.Size, "driver", string(s.store.Driver()))
	return snap, nil
}

// Open loads revision rev of documentID (the latest when rev <= 0) and makes
// it the open document. History and any running command are discarded.
func (s *Service) Open(ctx context.Context, documentID string, rev int) (*codec.LoadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, report, snap, err := archive.LoadDocument(ctx, s.store, documentID, rev, s.registry, s.reporter)
	if err != nil {
		return report, fmt.Errorf("open %s: %w", documentID, err)
	}
	if err := s.attach(doc); err != nil {
		return report, err
	}
	s.documentID = documentID
	s.logger.Info("document opened",
		"document", documentID, "revision", snap.Revision, "entities", report.Entities, "load_errors", len(report.Errors))
	return report, nil
}

// Import decodes a serialized document, makes it the open document under
// documentID and saves it as that document's next revision.
func (s *Service) Import(ctx context.Context, documentID string, data []byte, label string) (archive.Snapshot, *codec.LoadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, report, err := archive.Decode(archive.Snapshot{DocumentID: documentID, Payload: data}, s.registry, s.reporter)
	if err != nil {
		return archive.Snapshot{}, report, fmt.Errorf("import %s: %w", documentID, err)
	}
	if err := s.attach(doc); err != nil {
		return archive.Snapshot{}, report, err
	}
	s.documentID = documentID
	snap, err := archive.SaveDocument(ctx, s.store, documentID, doc, label)
	if err != nil {
		return archive.Snapshot{}, report, fmt.Errorf("save %s: %w", documentID, err)
	}
	s.logger.Info("document imported",
		"document", documentID, "revision", snap.Revision, "entities", report.Entities, "load_errors", len(report.Errors))
	return snap, report, nil
}

// Revisions lists the archived revisions of the open document.
func (s *Service) Revisions(ctx context.Context) ([]archive.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Revisions(ctx, s.documentID)
}

// InstallPlugin registers a plugin, wiring its contributions into the
// registry, the rules engine and the transaction manager. Contributions are
// validated against a clone of the registry first, so a rejected plugin
// leaves the service unchanged.
func (s *Service) InstallPlugin(plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, errors.New("plugin cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plugins[plugin.Name()]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", plugin.Name())
	}
	registry := NewPluginRegistry()
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, fmt.Errorf("plugin %s: %w", plugin.Name(), err)
	}
	known := s.txn.RequestTypes()
	for _, typ := range registry.RequestTypes() {
		if slices.Contains(known, typ) {
			return PluginMetadata{}, fmt.Errorf("plugin %s: request type %s already registered", plugin.Name(), typ)
		}
	}
	if err := registry.apply(s.registry.Clone()); err != nil {
		return PluginMetadata{}, fmt.Errorf("plugin %s: %w", plugin.Name(), err)
	}
	if err := registry.apply(s.registry); err != nil {
		return PluginMetadata{}, fmt.Errorf("plugin %s: %w", plugin.Name(), err)
	}
	for _, typ := range registry.RequestTypes() {
		f := registry.requests[typ]
		if err := s.txn.RegisterRequest(typ, f); err != nil {
			return PluginMetadata{}, fmt.Errorf("plugin %s: %w", plugin.Name(), err)
		}
		s.requests[typ] = f
	}
	for _, rule := range registry.Rules() {
		s.rules.Register(rule)
	}
	meta := registry.metadata(plugin)
	s.plugins[plugin.Name()] = meta
	s.logger.Debug("plugin installed", "plugin", meta.Name, "version", meta.Version)
	return meta, nil
}

// RegisteredPlugins returns metadata describing installed plugins, sorted by
// name.
func (s *Service) RegisteredPlugins() []PluginMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close releases the archive when it holds resources.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commands != nil {
		s.commands.Cancel()
	}
	if c, ok := s.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
