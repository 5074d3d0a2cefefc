package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"designcore/pkg/diag"
	"designcore/pkg/domain"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cases := []struct {
		cfg  Config
		want Driver
	}{
		{Config{}, DriverMemory},
		{Config{Driver: DriverMemory}, DriverMemory},
		{Config{Driver: DriverFilesystem, FSRoot: filepath.Join(dir, "fs")}, DriverFilesystem},
		{Config{Driver: DriverSQLite, SQLitePath: filepath.Join(dir, "db", "archive.db")}, DriverSQLite},
	}
	for _, tc := range cases {
		s, err := Open(ctx, tc.cfg)
		require.NoError(t, err, "driver %q", tc.cfg.Driver)
		assert.Equal(t, tc.want, s.Driver())
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "tape"})
	require.Error(t, err)
	_, err = Open(context.Background(), Config{Driver: DriverS3})
	require.Error(t, err, "s3 without bucket")
}

func newRegistry(t *testing.T) *domain.Registry {
	t.Helper()
	reg := domain.NewRegistry()
	require.NoError(t, domain.RegisterBuiltins(reg))
	return reg
}

func TestSaveAndLoadDocument(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	doc := domain.NewDocument(reg, domain.WithRootID("root"))
	wall, err := doc.Create("Wl", "W1")
	require.NoError(t, err)
	require.NoError(t, domain.Attach(doc.Root(), wall, -1))
	door, err := doc.Create("Dr", "D1")
	require.NoError(t, err)
	require.NoError(t, domain.Attach(wall, door, -1))
	host, err := doc.Associate(domain.TypeHostAssociation, door, "H1")
	require.NoError(t, err)
	host.Bind(wall)

	s := NewMemory()
	first, err := SaveDocument(ctx, s, "plan", doc, "initial")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Revision)

	door.(*domain.Opening).SetPosition(domain.Vec3{X: 2})
	second, err := SaveDocument(ctx, s, "plan", doc, "")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Revision)

	rec := &diag.Recorder{}
	loaded, report, snap, err := LoadDocument(ctx, s, "plan", 0, reg, rec)
	require.NoError(t, err)
	require.True(t, report.OK())
	assert.Equal(t, 2, snap.Revision)
	got, ok := loaded.Lookup("D1")
	require.True(t, ok)
	assert.Equal(t, 2.0, got.(*domain.Opening).Transform().Position.X)
	a, ok := loaded.Associations().OfType("D1", domain.TypeHostAssociation)
	require.True(t, ok)
	assert.Equal(t, "W1", a.FirstTarget().ID())

	old, _, snap, err := LoadDocument(ctx, s, "plan", 1, reg, rec)
	require.NoError(t, err)
	assert.Equal(t, "initial", snap.Label)
	got, _ = old.Lookup("D1")
	assert.Zero(t, got.(*domain.Opening).Transform().Position.X)
}

func TestLoadDocumentErrors(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	s := NewMemory()
	_, _, _, err := LoadDocument(ctx, s, "missing", 0, reg, nil)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.Save(ctx, Snapshot{DocumentID: "junk", Payload: []byte("not json")})
	require.NoError(t, err)
	_, _, snap, err := LoadDocument(ctx, s, "junk", 0, reg, nil)
	require.Error(t, err)
	assert.Equal(t, 1, snap.Revision)
}
