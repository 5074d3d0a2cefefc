// Package diag provides the structured assert/report facility used by the
// document model. Reports carry a kind, a message and optional metadata and are
// written through log/slog; callers above the model decide what to surface.
package diag

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Kind classifies a report.
type Kind string

// Report kinds.
const (
	KindIdentityConflict   Kind = "identity_conflict"
	KindUnknownType        Kind = "unknown_type"
	KindUnresolvedRef      Kind = "unresolved_reference"
	KindInvalidField       Kind = "invalid_field"
	KindInvalidOrder       Kind = "invalid_request_order"
	KindCleanupFailure     Kind = "cleanup_failure"
	KindRuleViolation      Kind = "rule_violation"
	KindInvalidAssociation Kind = "invalid_association"
	KindSignalPanic        Kind = "signal_panic"
)

// Entry is a single structured report.
type Entry struct {
	Kind    Kind
	Message string
	Meta    map[string]any
}

// Reporter receives assertions raised by the model.
type Reporter interface {
	Assert(kind Kind, message string, meta map[string]any)
}

// SlogReporter writes reports to a slog.Logger at warn level.
type SlogReporter struct {
	logger *slog.Logger
}

// NewSlogReporter wraps logger. A nil logger falls back to slog.Default().
func NewSlogReporter(logger *slog.Logger) *SlogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogReporter{logger: logger}
}

// Assert implements Reporter.
func (r *SlogReporter) Assert(kind Kind, message string, meta map[string]any) {
	attrs := make([]slog.Attr, 0, len(meta)+1)
	attrs = append(attrs, slog.String("kind", string(kind)))
	for k, v := range meta {
		attrs = append(attrs, slog.Any(k, v))
	}
	r.logger.LogAttrs(context.Background(), slog.LevelWarn, message, attrs...)
}

// Logger exposes the wrapped logger.
func (r *SlogReporter) Logger() *slog.Logger { return r.logger }

type nopReporter struct{}

func (nopReporter) Assert(Kind, string, map[string]any) {}

// Nop returns a Reporter that discards everything.
func Nop() Reporter { return nopReporter{} }

// OrNop returns r, or a discarding reporter when r is nil.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return nopReporter{}
	}
	return r
}

// Recorder collects reports in memory. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// Assert implements Reporter.
func (r *Recorder) Assert(kind Kind, message string, meta map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(map[string]any, len(meta))
	for k, v := range meta {
		cp[k] = v
	}
	r.entries = append(r.entries, Entry{Kind: kind, Message: message, Meta: cp})
}

// Entries returns a copy of the recorded reports.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns how many reports of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Reset drops recorded reports.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

// NewLogger builds a slog.Logger from a textual level ("debug", "info", "warn",
// "error") and format ("text" or "json").
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
