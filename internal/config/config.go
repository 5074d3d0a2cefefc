// Package config loads process configuration from an optional YAML file
// overlaid with DESIGNCORE_* environment variables. Environment values win.
//
//	DESIGNCORE_CONFIG            path to a YAML file
//	DESIGNCORE_LOG_LEVEL         debug|info|warn|error (default info)
//	DESIGNCORE_LOG_FORMAT        text|json (default text)
//	DESIGNCORE_HISTORY_LIMIT     undo history entries (default 100)
//	DESIGNCORE_METRICS_NAMESPACE prometheus namespace (default designcore)
//	DESIGNCORE_ARCHIVE_DRIVER    memory|fs|s3|sqlite|postgres (default memory)
//	DESIGNCORE_ARCHIVE_FS_ROOT   directory when driver=fs (default ./archive)
//	DESIGNCORE_SQLITE_PATH       database file when driver=sqlite
//	DESIGNCORE_POSTGRES_DSN      DSN when driver=postgres
//	DESIGNCORE_S3_BUCKET, DESIGNCORE_S3_REGION, DESIGNCORE_S3_PREFIX,
//	DESIGNCORE_S3_ENDPOINT, DESIGNCORE_S3_PATH_STYLE
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"designcore/internal/archive"
	"designcore/pkg/diag"
)

// EnvPrefix prefixes every recognised environment variable.
const EnvPrefix = "DESIGNCORE_"

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HistoryConfig bounds the undo history.
type HistoryConfig struct {
	Limit int `yaml:"limit"`
}

// MetricsConfig names the prometheus namespace.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Config is the full process configuration.
type Config struct {
	Log     LogConfig      `yaml:"log"`
	History HistoryConfig  `yaml:"history"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Archive archive.Config `yaml:"archive"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:     LogConfig{Level: "info", Format: "text"},
		History: HistoryConfig{Limit: 100},
		Metrics: MetricsConfig{Namespace: "designcore"},
		Archive: archive.Config{Driver: archive.DriverMemory, FSRoot: "./archive"},
	}
}

// Load reads configuration from the process environment, including the
// YAML file named by DESIGNCORE_CONFIG.
func Load() (Config, error) {
	return LoadWith(os.LookupEnv, os.Getenv(EnvPrefix+"CONFIG"))
}

// LoadWith builds a Config from defaults, the YAML file at path (skipped
// when empty) and the variables visible through lookup, in that order.
func LoadWith(lookup func(string) (string, bool), path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("METRICS_NAMESPACE", &c.Metrics.Namespace)
	var driver string
	str("ARCHIVE_DRIVER", &driver)
	if driver != "" {
		c.Archive.Driver = archive.Driver(driver)
	}
	str("ARCHIVE_FS_ROOT", &c.Archive.FSRoot)
	str("SQLITE_PATH", &c.Archive.SQLitePath)
	str("POSTGRES_DSN", &c.Archive.PostgresDSN)
	str("S3_BUCKET", &c.Archive.S3.Bucket)
	str("S3_REGION", &c.Archive.S3.Region)
	str("S3_PREFIX", &c.Archive.S3.Prefix)
	str("S3_ENDPOINT", &c.Archive.S3.Endpoint)
	if v, ok := lookup(EnvPrefix + "S3_PATH_STYLE"); ok && v != "" {
		c.Archive.S3.PathStyle = strings.EqualFold(v, "true") || v == "1"
	}
	if v, ok := lookup(EnvPrefix + "HISTORY_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sHISTORY_LIMIT: %w", EnvPrefix, err)
		}
		c.History.Limit = n
	}
	return nil
}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid")

// Validate checks field ranges and driver requirements.
func (c Config) Validate() error {
	var errs []error
	if c.History.Limit < 0 {
		errs = append(errs, fmt.Errorf("history limit %d is negative", c.History.Limit))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q", c.Log.Format))
	}
	switch c.Archive.Driver {
	case "", archive.DriverMemory, archive.DriverFilesystem, archive.DriverSQLite, archive.DriverPostgres:
	case archive.DriverS3:
		if c.Archive.S3.Bucket == "" {
			errs = append(errs, errors.New("s3 archive requires a bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("archive driver %q", c.Archive.Driver))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Logger builds the configured slog logger writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	return diag.NewLogger(w, c.Log.Level, c.Log.Format)
}
