package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		pred func(string) bool
		in   string
		want bool
	}{
		{CodecImportForbidden, "designcore/pkg/codec", true},
		{CodecImportForbidden, "designcore/pkg/codec@v1", true},
		{CodecImportForbidden, "designcore/pkg/codecs", false},
		{MutationImportForbidden, "designcore/internal/txn", true},
		{MutationImportForbidden, "designcore/internal/command", true},
		{MutationImportForbidden, "designcore/internal/config", false},
		{InternalImportForbidden, "designcore/internal/x", true},
		{InternalImportForbidden, "designcore/pkg/x", false},
		{Any(CodecImportForbidden, InternalImportForbidden), "designcore/internal/core", true},
		{Any(), "designcore/internal/core", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Fatalf("predicate(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport \"fmt\"\nimport \"designcore/pkg/codec\"\nfunc X(){fmt.Println(codec.X)}")
	writeFile(t, dir, "a_test.go", "package tmp\nimport \"designcore/internal/txn\"\n")
	writeFile(t, dir, "notes.txt", "import \"designcore/internal/txn\"")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "sub"), "s.go", "package sub\nimport \"designcore/internal/txn\"\n")

	viols, err := directImportViolations(dir, Any(CodecImportForbidden, MutationImportForbidden))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "designcore/pkg/codec") {
		t.Fatalf("unexpected violations %v", viols)
	}

	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}

func TestDirectImportViolationsMissingDir(t *testing.T) {
	if _, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), CodecImportForbidden); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfViolations(t *testing.T) {
	var rec recordingFatal
	failIfViolations(&rec, "direct imports", "layering", nil)
	if rec.msg != "" {
		t.Fatalf("unexpected failure %q", rec.msg)
	}
	failIfViolations(&rec, "direct imports", "layering", []string{"a", "b"})
	if !strings.Contains(rec.msg, "layering") || !strings.Contains(rec.msg, "a\nb") {
		t.Fatalf("unexpected message %q", rec.msg)
	}
}

func TestTransitiveDependencyViolationsWalksGraph(t *testing.T) {
	orig := loadPackages
	t.Cleanup(func() { loadPackages = orig })

	leaf := &packages.Package{PkgPath: "designcore/pkg/codec"}
	mid := &packages.Package{PkgPath: "designcore/pkg/diag", Imports: map[string]*packages.Package{"c": leaf}}
	root := &packages.Package{PkgPath: "designcore/pkg/domain", Imports: map[string]*packages.Package{
		"d": mid,
		"c": leaf,
	}}
	loadPackages = func(string) ([]*packages.Package, error) { return []*packages.Package{root}, nil }

	viols, err := transitiveDependencyViolations("designcore/pkg/domain", CodecImportForbidden)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(viols) != 1 || viols[0] != "designcore/pkg/codec" {
		t.Fatalf("unexpected violations %v", viols)
	}
}
