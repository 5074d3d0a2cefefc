// Package archive stores serialized document revisions. It re-exports the
// driver contract from archive/core and selects a backend from
// configuration; callers depend on this package, never on infra drivers.
package archive

import (
	"context"
	"fmt"

	core "designcore/internal/archive/core"
	fsarchive "designcore/internal/infra/archive/fs"
	memarchive "designcore/internal/infra/archive/memory"
	pgarchive "designcore/internal/infra/archive/postgres"
	s3archive "designcore/internal/infra/archive/s3"
	sqlitearchive "designcore/internal/infra/archive/sqlite"
)

type (
	// Store is the archive contract.
	Store = core.Store
	// Snapshot is one archived revision.
	Snapshot = core.Snapshot
	// Driver names a backend.
	Driver = core.Driver
)

// Drivers.
const (
	DriverMemory     = core.DriverMemory
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverSQLite     = core.DriverSQLite
	DriverPostgres   = core.DriverPostgres
)

var (
	// ErrNotFound is returned for a missing document or revision.
	ErrNotFound = core.ErrNotFound
	// ErrInvalidSnapshot is returned for snapshots that cannot be saved.
	ErrInvalidSnapshot = core.ErrInvalidSnapshot
)

// S3Config configures the s3 driver.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Config selects and configures a driver. An empty Driver means memory.
type Config struct {
	Driver      Driver   `yaml:"driver"`
	FSRoot      string   `yaml:"fs_root"`
	SQLitePath  string   `yaml:"sqlite_path"`
	PostgresDSN string   `yaml:"postgres_dsn"`
	S3          S3Config `yaml:"s3"`
}

// Open returns the Store selected by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return memarchive.New(), nil
	case DriverFilesystem:
		return fsarchive.New(cfg.FSRoot)
	case DriverS3:
		return s3archive.New(ctx, s3archive.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Prefix:    cfg.S3.Prefix,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	case DriverSQLite:
		return sqlitearchive.NewStore(ctx, cfg.SQLitePath)
	case DriverPostgres:
		return pgarchive.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memarchive.New() }
