package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"designcore/internal/archive/archivetest"
	core "designcore/internal/archive/core"
)

func TestStoreContract(t *testing.T) {
	archivetest.Run(t, func(t *testing.T) core.Store {
		s, err := New(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestStoreLayoutOnDisk(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	assert.Equal(t, core.DriverFilesystem, s.Driver())
	assert.Equal(t, root, s.Root())

	_, err = s.Save(context.Background(), core.Snapshot{DocumentID: "kitchen", Payload: []byte("{}")})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "kitchen", "000001.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "kitchen", "000001.json.meta"))
	require.NoError(t, err)
}

func TestSanitizeID(t *testing.T) {
	for _, id := range []string{"", "  ", "../up", "a/b", `a\b`} {
		_, err := sanitizeID(id)
		assert.True(t, errors.Is(err, core.ErrInvalidSnapshot), "id %q", id)
	}
	got, err := sanitizeID("plan-1")
	require.NoError(t, err)
	assert.Equal(t, "plan-1", got)
}

func TestRevisionDetectsTamperedPayload(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = s.Save(ctx, core.Snapshot{DocumentID: "doc", Payload: []byte("original")})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "doc", "000001.json"), []byte("tampered"), 0o600))

	_, err = s.Revision(ctx, "doc", 1)
	assert.True(t, errors.Is(err, core.ErrInvalidSnapshot))
}

func TestRevisionsIgnoreForeignFiles(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = s.Save(ctx, core.Snapshot{DocumentID: "doc", Payload: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "doc", "notes.json"), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "doc", "README"), []byte("hi"), 0o600))

	revs, err := s.Revisions(ctx, "doc")
	require.NoError(t, err)
	assert.Len(t, revs, 1)
}
