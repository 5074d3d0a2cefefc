package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"designcore/pkg/codec"
	"designcore/pkg/domain"
)

func writePayload(t *testing.T) string {
	t.Helper()
	reg := domain.NewRegistry()
	require.NoError(t, domain.RegisterBuiltins(reg))
	doc := domain.NewDocument(reg, domain.WithRootID("root"))
	wall, err := doc.Create("Wl", "W1")
	require.NoError(t, err)
	require.NoError(t, domain.Attach(doc.Root(), wall, -1))
	door, err := doc.Create("Dr", "D1")
	require.NoError(t, err)
	require.NoError(t, domain.Attach(wall, door, -1))
	p, err := codec.DumpDocument(doc)
	require.NoError(t, err)
	data, err := codec.Marshal(p)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func useFSArchive(t *testing.T) {
	t.Helper()
	t.Setenv("DESIGNCORE_CONFIG", "")
	t.Setenv("DESIGNCORE_ARCHIVE_DRIVER", "fs")
	t.Setenv("DESIGNCORE_ARCHIVE_FS_ROOT", filepath.Join(t.TempDir(), "archive"))
	t.Setenv("DESIGNCORE_LOG_LEVEL", "error")
}

func TestValidate(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"validate", "-file", writePayload(t)}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "entities: 3")
	assert.Contains(t, out.String(), domain.TypeDoor)
}

func TestValidateRejectsBrokenPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1}`), 0o600))
	var out, errOut bytes.Buffer
	assert.Equal(t, 1, run([]string{"validate", "-file", path}, &out, &errOut))
	assert.Contains(t, errOut.String(), "designctl validate")

	errOut.Reset()
	assert.Equal(t, 1, run([]string{"validate"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "-file is required")
}

func TestImportInspectRevisions(t *testing.T) {
	useFSArchive(t)
	payload := writePayload(t)
	var out, errOut bytes.Buffer

	require.Equal(t, 0, run([]string{"import", "-file", payload, "-doc", "kitchen", "-label", "first"}, &out, &errOut), errOut.String())
	assert.Contains(t, out.String(), "saved kitchen revision 1")
	require.Equal(t, 0, run([]string{"import", "-file", payload, "-doc", "kitchen"}, &out, &errOut), errOut.String())
	assert.Contains(t, out.String(), "saved kitchen revision 2")

	out.Reset()
	require.Equal(t, 0, run([]string{"inspect", "-doc", "kitchen", "-rev", "1"}, &out, &errOut), errOut.String())
	assert.Contains(t, out.String(), domain.TypeWall)

	out.Reset()
	require.Equal(t, 0, run([]string{"revisions", "-doc", "kitchen"}, &out, &errOut), errOut.String())
	assert.Contains(t, out.String(), "first")
	assert.Contains(t, out.String(), "   2  ")
}

func TestInspectMissingDocument(t *testing.T) {
	useFSArchive(t)
	var out, errOut bytes.Buffer
	assert.Equal(t, 1, run([]string{"inspect", "-doc", "ghost"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "not found")
	assert.Equal(t, 1, run([]string{"inspect"}, &out, &errOut))
}

func TestUsageErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, run(nil, &out, &errOut))
	assert.Equal(t, 2, run([]string{"frobnicate"}, &out, &errOut))
	assert.Equal(t, 2, run([]string{"validate", "-nope"}, &out, &errOut))
}

func TestMainUsesExitFunc(t *testing.T) {
	var got int
	prev, prevArgs := exitFunc, os.Args
	exitFunc = func(code int) { got = code }
	os.Args = []string{"designctl"}
	t.Cleanup(func() { exitFunc, os.Args = prev, prevArgs })
	main()
	assert.Equal(t, 2, got)
}
