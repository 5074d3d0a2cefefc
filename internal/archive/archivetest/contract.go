// Package archivetest holds the behavioural contract every archive driver
// must satisfy.
package archivetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "designcore/internal/archive/core"
)

// Run exercises open's store against the archive contract. Each subtest gets
// a fresh store.
func Run(t *testing.T, open func(t *testing.T) core.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("save assigns increasing revisions", func(t *testing.T) {
		s := open(t)
		first, err := s.Save(ctx, core.Snapshot{DocumentID: "doc-a", Label: "first", Payload: []byte(`{"v":1}`)})
		require.NoError(t, err)
		second, err := s.Save(ctx, core.Snapshot{DocumentID: "doc-a", Payload: []byte(`{"v":2}`), Metadata: map[string]string{"author": "ana"}})
		require.NoError(t, err)
		other, err := s.Save(ctx, core.Snapshot{DocumentID: "doc-b", Payload: []byte(`{"v":9}`)})
		require.NoError(t, err)

		assert.Equal(t, 1, first.Revision)
		assert.Equal(t, 2, second.Revision)
		assert.Equal(t, 1, other.Revision)
		assert.NotEmpty(t, first.ID)
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, core.Checksum([]byte(`{"v":1}`)), first.Checksum)
		assert.EqualValues(t, 7, first.Size)
		assert.False(t, first.CreatedAt.IsZero())
	})

	t.Run("latest and revision return payloads", func(t *testing.T) {
		s := open(t)
		_, err := s.Save(ctx, core.Snapshot{DocumentID: "doc", Label: "draft", Payload: []byte("one")})
		require.NoError(t, err)
		_, err = s.Save(ctx, core.Snapshot{DocumentID: "doc", Payload: []byte("two"), Metadata: map[string]string{"k": "v"}})
		require.NoError(t, err)

		latest, err := s.Latest(ctx, "doc")
		require.NoError(t, err)
		assert.Equal(t, 2, latest.Revision)
		assert.Equal(t, []byte("two"), latest.Payload)
		assert.Equal(t, "v", latest.Metadata["k"])

		first, err := s.Revision(ctx, "doc", 1)
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), first.Payload)
		assert.Equal(t, "draft", first.Label)
		require.NoError(t, core.Verify(first))
	})

	t.Run("revisions list metadata oldest first", func(t *testing.T) {
		s := open(t)
		for _, p := range []string{"a", "b", "c"} {
			_, err := s.Save(ctx, core.Snapshot{DocumentID: "doc", Payload: []byte(p)})
			require.NoError(t, err)
		}
		revs, err := s.Revisions(ctx, "doc")
		require.NoError(t, err)
		require.Len(t, revs, 3)
		for i, r := range revs {
			assert.Equal(t, i+1, r.Revision)
			assert.Nil(t, r.Payload)
			assert.Equal(t, "doc", r.DocumentID)
		}
	})

	t.Run("missing documents report not found", func(t *testing.T) {
		s := open(t)
		_, err := s.Latest(ctx, "ghost")
		assert.True(t, errors.Is(err, core.ErrNotFound), "latest: %v", err)
		_, err = s.Revisions(ctx, "ghost")
		assert.True(t, errors.Is(err, core.ErrNotFound), "revisions: %v", err)
		_, err = s.Save(ctx, core.Snapshot{DocumentID: "doc", Payload: []byte("x")})
		require.NoError(t, err)
		_, err = s.Revision(ctx, "doc", 7)
		assert.True(t, errors.Is(err, core.ErrNotFound), "revision: %v", err)
	})

	t.Run("invalid snapshots are rejected", func(t *testing.T) {
		s := open(t)
		_, err := s.Save(ctx, core.Snapshot{Payload: []byte("x")})
		assert.True(t, errors.Is(err, core.ErrInvalidSnapshot), "no document: %v", err)
		_, err = s.Save(ctx, core.Snapshot{DocumentID: "doc"})
		assert.True(t, errors.Is(err, core.ErrInvalidSnapshot), "no payload: %v", err)
	})

	t.Run("delete removes every revision", func(t *testing.T) {
		s := open(t)
		for i := 0; i < 2; i++ {
			_, err := s.Save(ctx, core.Snapshot{DocumentID: "doc", Payload: []byte("x")})
			require.NoError(t, err)
		}
		_, err := s.Save(ctx, core.Snapshot{DocumentID: "keep", Payload: []byte("y")})
		require.NoError(t, err)

		n, err := s.Delete(ctx, "doc")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		_, err = s.Latest(ctx, "doc")
		assert.True(t, errors.Is(err, core.ErrNotFound))
		_, err = s.Latest(ctx, "keep")
		require.NoError(t, err)

		n, err = s.Delete(ctx, "doc")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
