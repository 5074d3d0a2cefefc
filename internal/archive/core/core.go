// Package core defines the archive contract shared by the snapshot drivers
// and the higher-level archive package.
package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Driver identifies a concrete archive backend.
type Driver string

const (
	// DriverMemory keeps snapshots in process memory (tests).
	DriverMemory Driver = "memory"
	// DriverFilesystem writes one JSON file per revision with a metadata sidecar.
	DriverFilesystem Driver = "fs"
	// DriverS3 stores revisions as objects in an S3 compatible bucket.
	DriverS3 Driver = "s3"
	// DriverSQLite stores revisions in a local SQLite database.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres stores revisions in Postgres.
	DriverPostgres Driver = "postgres"
)

// Snapshot is one archived revision of a serialized document. Payload holds
// the codec output and is opaque to the archive.
type Snapshot struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Revision   int               `json:"revision"`
	Label      string            `json:"label,omitempty"`
	Checksum   string            `json:"checksum"`
	Size       int64             `json:"size_bytes"`
	CreatedAt  time.Time         `json:"created_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Payload    []byte            `json:"payload,omitempty"`
}

// Info returns s without its payload.
func (s Snapshot) Info() Snapshot {
	s.Payload = nil
	return s
}

// Store archives document revisions. Save assigns the next revision number
// for the document; revisions are never reused while the document exists.
// Revisions lists snapshots without payloads, oldest first.
type Store interface {
	Save(ctx context.Context, s Snapshot) (Snapshot, error)
	Latest(ctx context.Context, documentID string) (Snapshot, error)
	Revision(ctx context.Context, documentID string, rev int) (Snapshot, error)
	Revisions(ctx context.Context, documentID string) ([]Snapshot, error)
	Delete(ctx context.Context, documentID string) (int, error)
	Driver() Driver
}

var (
	// ErrNotFound is returned when a document or revision is not archived.
	ErrNotFound = errors.New("archive: snapshot not found")
	// ErrInvalidSnapshot is returned when a snapshot cannot be saved.
	ErrInvalidSnapshot = errors.New("archive: invalid snapshot")
)

// NotFound wraps ErrNotFound with the missing document and revision.
func NotFound(documentID string, rev int) error {
	if rev <= 0 {
		return fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	return fmt.Errorf("%w: document %s revision %d", ErrNotFound, documentID, rev)
}

var now = func() time.Time { return time.Now().UTC() }

// Prepare validates s and stamps it as revision rev. Drivers call it with
// the revision they reserved before writing.
func Prepare(s Snapshot, rev int) (Snapshot, error) {
	if strings.TrimSpace(s.DocumentID) == "" {
		return Snapshot{}, fmt.Errorf("%w: document id required", ErrInvalidSnapshot)
	}
	if len(s.Payload) == 0 {
		return Snapshot{}, fmt.Errorf("%w: empty payload", ErrInvalidSnapshot)
	}
	if rev <= 0 {
		return Snapshot{}, fmt.Errorf("%w: revision %d", ErrInvalidSnapshot, rev)
	}
	s.ID = uuid.NewString()
	s.Revision = rev
	s.Size = int64(len(s.Payload))
	s.Checksum = Checksum(s.Payload)
	s.CreatedAt = now()
	if len(s.Metadata) > 0 {
		md := make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			md[k] = v
		}
		s.Metadata = md
	}
	s.Payload = append([]byte(nil), s.Payload...)
	return s, nil
}

// Checksum returns the hex SHA-256 of payload.
func Checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether s still matches its recorded checksum.
func Verify(s Snapshot) error {
	if s.Checksum != "" && Checksum(s.Payload) != s.Checksum {
		return fmt.Errorf("%w: checksum mismatch for %s revision %d", ErrInvalidSnapshot, s.DocumentID, s.Revision)
	}
	return nil
}
