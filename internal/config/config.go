// Package config loads the rxdoc YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rxdoc/internal/store"
	"github.com/roach88/rxdoc/internal/telemetry"
)

// Config is the top-level configuration.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Collection CollectionConfig `yaml:"collection"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path string `yaml:"path" validate:"required"`

	// BusyTimeout is how long a write waits on a locked database, e.g. "5s".
	BusyTimeout time.Duration `yaml:"busy_timeout" validate:"gte=0"`

	Synchronous string `yaml:"synchronous" validate:"oneof=OFF NORMAL FULL EXTRA"`
}

// CollectionConfig names the collection and its schema.
type CollectionConfig struct {
	Name string `yaml:"name" validate:"required,max=64"`

	// Schema is the path of the CUE schema source.
	Schema string `yaml:"schema" validate:"required"`

	// SchemaID defaults to the collection name.
	SchemaID string `yaml:"schema_id"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
	Output string `yaml:"output" validate:"required"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace" validate:"omitempty,alphanum"`

	// ListenAddress serves /metrics when set, e.g. "127.0.0.1:9464".
	ListenAddress string `yaml:"listen_address" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Storage:    StorageConfig{Path: "rxdoc.db", BusyTimeout: 5 * time.Second, Synchronous: "NORMAL"},
		Collection: CollectionConfig{Name: "documents", Schema: "schema.cue"},
		Logging:    LoggingConfig{Level: "info", Format: "json", Output: "stderr"},
		Metrics:    MetricsConfig{Namespace: "rxdoc"},
	}
}

// Load reads path, fills defaults for omitted fields and validates.
// Relative storage and schema paths resolve against the file's directory.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	cfg.Storage.Path = resolve(dir, cfg.Storage.Path)
	cfg.Collection.Schema = resolve(dir, cfg.Collection.Schema)
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Collection.SchemaID == "" {
		cfg.Collection.SchemaID = cfg.Collection.Name
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fieldPath(fe.Namespace()), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Telemetry returns the logging and metrics settings for package telemetry.
func (c Config) Telemetry() (telemetry.LoggingConfig, telemetry.MetricsConfig) {
	return telemetry.LoggingConfig{
			Level:  c.Logging.Level,
			Format: c.Logging.Format,
			Output: c.Logging.Output,
		}, telemetry.MetricsConfig{
			Enabled:   c.Metrics.Enabled,
			Namespace: c.Metrics.Namespace,
		}
}

// StoreOptions returns the store.Open options for the storage settings.
func (c Config) StoreOptions() []store.Option {
	return []store.Option{
		store.WithBusyTimeout(c.Storage.BusyTimeout),
		store.WithSynchronous(c.Storage.Synchronous),
	}
}

// fieldPath turns "Config.Logging.Level" into "logging.level".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, ".")
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
