package diag_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"designcore/pkg/diag"
)

func TestSlogReporterWritesKindAndMeta(t *testing.T) {
	var buf bytes.Buffer
	logger := diag.NewLogger(&buf, "debug", "json")
	r := diag.NewSlogReporter(logger)

	r.Assert(diag.KindUnknownType, "skipped record", map[string]any{"path": "entities[2]"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "skipped record", line["msg"])
	assert.Equal(t, "unknown_type", line["kind"])
	assert.Equal(t, "entities[2]", line["path"])
	assert.Equal(t, "WARN", line["level"])
}

func TestRecorderCopiesMeta(t *testing.T) {
	var rec diag.Recorder
	meta := map[string]any{"id": "a"}
	rec.Assert(diag.KindInvalidOrder, "undo without commit", meta)
	meta["id"] = "mutated"

	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Meta["id"])
	assert.Equal(t, 1, rec.Count(diag.KindInvalidOrder))
	assert.Zero(t, rec.Count(diag.KindUnknownType))

	rec.Reset()
	assert.Empty(t, rec.Entries())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, diag.ParseLevel(in), in)
	}
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, diag.OrNop(nil))
	rec := &diag.Recorder{}
	assert.Same(t, rec, diag.OrNop(rec))
	diag.Nop().Assert(diag.KindCleanupFailure, "ignored", nil)
}
