// Package fs archives document revisions on the local filesystem. Each
// revision is a payload file with a JSON metadata sidecar:
//
//	<root>/<document>/000001.json
//	<root>/<document>/000001.json.meta
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	core "designcore/internal/archive/core"
)

const (
	payloadExt = ".json"
	metaExt    = ".meta"
)

// Store implements core.Store on a directory tree. Writers within one
// process are serialised; concurrent processes sharing a root are not.
type Store struct {
	root string
	mu   sync.Mutex
}

// New returns a filesystem archive rooted at root, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./archive"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &Store{root: root}, nil
}

// Driver implements core.Store.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// Root returns the archive directory.
func (s *Store) Root() string { return s.root }

// sanitizeID keeps document ids inside the root: no traversal, no
// separators, no absolute paths.
func sanitizeID(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: empty document id", core.ErrInvalidSnapshot)
	}
	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: invalid document id %q", core.ErrInvalidSnapshot, id)
	}
	return id, nil
}

func (s *Store) dir(documentID string) (string, error) {
	id, err := sanitizeID(documentID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, id), nil
}

func revisionFile(dir string, rev int) string {
	return filepath.Join(dir, fmt.Sprintf("%06d%s", rev, payloadExt))
}

// revisions lists the revision numbers present in dir, ascending.
func revisions(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var revs []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, payloadExt) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, payloadExt))
		if err != nil || n <= 0 {
			continue
		}
		revs = append(revs, n)
	}
	sort.Ints(revs)
	return revs, nil
}

// Save implements core.Store.
func (s *Store) Save(_ context.Context, snap core.Snapshot) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir, err := s.dir(snap.DocumentID)
	if err != nil {
		return core.Snapshot{}, err
	}
	revs, err := revisions(dir)
	if err != nil {
		return core.Snapshot{}, err
	}
	next := 1
	if len(revs) > 0 {
		next = revs[len(revs)-1] + 1
	}
	snap, err = core.Prepare(snap, next)
	if err != nil {
		return core.Snapshot{}, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return core.Snapshot{}, err
	}
	dataPath := revisionFile(dir, snap.Revision)
	// The sidecar goes first so a listed payload always has metadata.
	if err := writeJSON(dataPath+metaExt, snap.Info()); err != nil {
		return core.Snapshot{}, err
	}
	if err := writeAtomic(dataPath, snap.Payload); err != nil {
		_ = os.Remove(dataPath + metaExt)
		return core.Snapshot{}, err
	}
	return snap, nil
}

// Latest implements core.Store.
func (s *Store) Latest(ctx context.Context, documentID string) (core.Snapshot, error) {
	dir, err := s.dir(documentID)
	if err != nil {
		return core.Snapshot{}, err
	}
	revs, err := revisions(dir)
	if err != nil {
		return core.Snapshot{}, err
	}
	if len(revs) == 0 {
		return core.Snapshot{}, core.NotFound(documentID, 0)
	}
	return s.Revision(ctx, documentID, revs[len(revs)-1])
}

// Revision implements core.Store.
func (s *Store) Revision(_ context.Context, documentID string, rev int) (core.Snapshot, error) {
	dir, err := s.dir(documentID)
	if err != nil {
		return core.Snapshot{}, err
	}
	dataPath := revisionFile(dir, rev)
	snap, err := readMeta(dataPath + metaExt)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Snapshot{}, core.NotFound(documentID, rev)
	}
	if err != nil {
		return core.Snapshot{}, err
	}
	payload, err := os.ReadFile(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Snapshot{}, core.NotFound(documentID, rev)
	}
	if err != nil {
		return core.Snapshot{}, err
	}
	snap.Payload = payload
	if err := core.Verify(snap); err != nil {
		return core.Snapshot{}, err
	}
	return snap, nil
}

// Revisions implements core.Store.
func (s *Store) Revisions(_ context.Context, documentID string) ([]core.Snapshot, error) {
	dir, err := s.dir(documentID)
	if err != nil {
		return nil, err
	}
	revs, err := revisions(dir)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, core.NotFound(documentID, 0)
	}
	out := make([]core.Snapshot, 0, len(revs))
	for _, rev := range revs {
		snap, err := readMeta(revisionFile(dir, rev) + metaExt)
		if err != nil {
			return nil, fmt.Errorf("read revision %d: %w", rev, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// Delete implements core.Store.
func (s *Store) Delete(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir, err := s.dir(documentID)
	if err != nil {
		return 0, err
	}
	revs, err := revisions(dir)
	if err != nil {
		return 0, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, err
	}
	return len(revs), nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeJSON(path string, v any) error {
	b, err := jsonMarshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func readMeta(path string) (core.Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return core.Snapshot{}, err
	}
	var snap core.Snapshot
	if err := jsonUnmarshal(b, &snap); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return snap, nil
}

var (
	jsonMarshal   = func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") }
	jsonUnmarshal = func(b []byte, v any) error { return json.Unmarshal(b, v) }
)
