package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"designcore/internal/archive/archivetest"
	core "designcore/internal/archive/core"
)

func TestStoreContract(t *testing.T) {
	archivetest.Run(t, func(t *testing.T) core.Store {
		s, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "archive.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStoreReopenKeepsRevisions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "archive.db")
	s, err := NewStore(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	assert.Equal(t, core.DriverSQLite, s.Driver())
	_, err = s.Save(ctx, core.Snapshot{DocumentID: "doc", Payload: []byte("one"), Metadata: map[string]string{"a": "b"}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	next, err := s.Save(ctx, core.Snapshot{DocumentID: "doc", Payload: []byte("two")})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Revision)

	first, err := s.Revision(ctx, "doc", 1)
	require.NoError(t, err)
	assert.Equal(t, "b", first.Metadata["a"])
	assert.Equal(t, []byte("one"), first.Payload)
}

func TestStoreInMemory(t *testing.T) {
	s, err := NewStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	_, err = s.Save(context.Background(), core.Snapshot{DocumentID: "doc", Payload: []byte("x")})
	require.NoError(t, err)
	revs, err := s.Revisions(context.Background(), "doc")
	require.NoError(t, err)
	assert.Len(t, revs, 1)
}
