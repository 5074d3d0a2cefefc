// Package sqlstore implements the archive on database/sql. The sqlite and
// postgres drivers share it and differ only in their Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	core "designcore/internal/archive/core"
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	Driver core.Driver
	// Numbered placeholders ($1, $2) instead of '?'.
	Numbered bool
	// PayloadType is the column type for the raw payload.
	PayloadType string
}

// Store persists snapshots in a single table.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New prepares the schema on db and returns a Store.
func New(ctx context.Context, db *sql.DB, d Dialect) (*Store, error) {
	s := &Store{db: db, dialect: d}
	for _, stmt := range s.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create snapshots schema: %w", err)
		}
	}
	return s, nil
}

func (s *Store) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		revision INTEGER NOT NULL,
		label TEXT NOT NULL,
		checksum TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		created_at TEXT NOT NULL,
		metadata TEXT NOT NULL,
		payload ` + s.dialect.PayloadType + ` NOT NULL,
		UNIQUE (document_id, revision)
	)`,
		`CREATE INDEX IF NOT EXISTS snapshots_document_idx ON snapshots (document_id, revision)`,
	}
}

// Driver implements core.Store.
func (s *Store) Driver() core.Driver { return s.dialect.Driver }

// DB exposes the underlying handle for tests and maintenance.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// rebind rewrites '?' placeholders for dialects with numbered parameters.
func (s *Store) rebind(query string) string {
	if !s.dialect.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const columns = `id, document_id, revision, label, checksum, size_bytes, created_at, metadata`

// Save implements core.Store. The next revision is read and inserted in one
// transaction; the unique key rejects a concurrent writer.
func (s *Store) Save(ctx context.Context, snap core.Snapshot) (retSnap core.Snapshot, retErr error) {
	if strings.TrimSpace(snap.DocumentID) == "" {
		return core.Snapshot{}, fmt.Errorf("%w: document id required", core.ErrInvalidSnapshot)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	var last sql.NullInt64
	row := tx.QueryRowContext(ctx, s.rebind(`SELECT MAX(revision) FROM snapshots WHERE document_id = ?`), snap.DocumentID)
	if err := row.Scan(&last); err != nil {
		return core.Snapshot{}, fmt.Errorf("select revision: %w", err)
	}
	snap, err = core.Prepare(snap, int(last.Int64)+1)
	if err != nil {
		return core.Snapshot{}, err
	}
	md, err := json.Marshal(snap.Metadata)
	if err != nil {
		return core.Snapshot{}, err
	}
	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO snapshots (`+columns+`, payload) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		snap.ID, snap.DocumentID, snap.Revision, snap.Label, snap.Checksum, snap.Size,
		snap.CreatedAt.Format(time.RFC3339Nano), string(md), snap.Payload)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Snapshot{}, fmt.Errorf("commit: %w", err)
	}
	return snap, nil
}

// Latest implements core.Store.
func (s *Store) Latest(ctx context.Context, documentID string) (core.Snapshot, error) {
	q := `SELECT ` + columns + `, payload FROM snapshots WHERE document_id = ? ORDER BY revision DESC LIMIT 1`
	snap, err := scanOne(s.db.QueryRowContext(ctx, s.rebind(q), documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Snapshot{}, core.NotFound(documentID, 0)
	}
	return snap, err
}

// Revision implements core.Store.
func (s *Store) Revision(ctx context.Context, documentID string, rev int) (core.Snapshot, error) {
	q := `SELECT ` + columns + `, payload FROM snapshots WHERE document_id = ? AND revision = ?`
	snap, err := scanOne(s.db.QueryRowContext(ctx, s.rebind(q), documentID, rev))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Snapshot{}, core.NotFound(documentID, rev)
	}
	return snap, err
}

// Revisions implements core.Store.
func (s *Store) Revisions(ctx context.Context, documentID string) ([]core.Snapshot, error) {
	q := `SELECT ` + columns + ` FROM snapshots WHERE document_id = ? ORDER BY revision`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), documentID)
	if err != nil {
		return nil, fmt.Errorf("select revisions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []core.Snapshot
	for rows.Next() {
		snap, err := scan(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, core.NotFound(documentID, 0)
	}
	return out, nil
}

// Delete implements core.Store.
func (s *Store) Delete(ctx context.Context, documentID string) (int, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM snapshots WHERE document_id = ?`), documentID)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner) (core.Snapshot, error) {
	snap, err := scan(row, true)
	if err != nil {
		return core.Snapshot{}, err
	}
	if err := core.Verify(snap); err != nil {
		return core.Snapshot{}, err
	}
	return snap, nil
}

func scan(row scanner, withPayload bool) (core.Snapshot, error) {
	var (
		snap    core.Snapshot
		created string
		md      string
	)
	dest := []any{&snap.ID, &snap.DocumentID, &snap.Revision, &snap.Label, &snap.Checksum, &snap.Size, &created, &md}
	if withPayload {
		dest = append(dest, &snap.Payload)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Snapshot{}, err
		}
		return core.Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("parse created_at: %w", err)
	}
	snap.CreatedAt = t.UTC()
	if md != "" && md != "null" {
		if err := json.Unmarshal([]byte(md), &snap.Metadata); err != nil {
			return core.Snapshot{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return snap, nil
}
