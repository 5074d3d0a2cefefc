// Package memory provides an in-memory archive store for tests and
// ephemeral sessions.
package memory

import (
	"context"
	"sync"

	core "designcore/internal/archive/core"
)

// Store keeps every revision in process memory.
type Store struct {
	mu   sync.RWMutex
	docs map[string][]core.Snapshot
	next map[string]int
}

// New returns an empty Store.
func New() *Store {
	return &Store{docs: make(map[string][]core.Snapshot), next: make(map[string]int)}
}

// Driver implements core.Store.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Save implements core.Store.
func (s *Store) Save(_ context.Context, snap core.Snapshot) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := core.Prepare(snap, s.next[snap.DocumentID]+1)
	if err != nil {
		return core.Snapshot{}, err
	}
	s.next[snap.DocumentID] = snap.Revision
	s.docs[snap.DocumentID] = append(s.docs[snap.DocumentID], snap)
	return clone(snap), nil
}

// Latest implements core.Store.
func (s *Store) Latest(_ context.Context, documentID string) (core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	revs := s.docs[documentID]
	if len(revs) == 0 {
		return core.Snapshot{}, core.NotFound(documentID, 0)
	}
	return clone(revs[len(revs)-1]), nil
}

// Revision implements core.Store.
func (s *Store) Revision(_ context.Context, documentID string, rev int) (core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, snap := range s.docs[documentID] {
		if snap.Revision == rev {
			return clone(snap), nil
		}
	}
	return core.Snapshot{}, core.NotFound(documentID, rev)
}

// Revisions implements core.Store.
func (s *Store) Revisions(_ context.Context, documentID string) ([]core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	revs := s.docs[documentID]
	if len(revs) == 0 {
		return nil, core.NotFound(documentID, 0)
	}
	out := make([]core.Snapshot, len(revs))
	for i, snap := range revs {
		out[i] = snap.Info()
	}
	return out, nil
}

// Delete implements core.Store.
func (s *Store) Delete(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.docs[documentID])
	delete(s.docs, documentID)
	delete(s.next, documentID)
	return n, nil
}

func clone(snap core.Snapshot) core.Snapshot {
	snap.Payload = append([]byte(nil), snap.Payload...)
	return snap
}
