// Package config loads the cadence configuration file.
//
// The file is YAML. A missing file is created with defaults on first run.
// Values may be overridden by CADENCE_* environment variables, optionally
// read from a .env file, and the result is checked against an embedded CUE
// schema before use.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	// Driver is "sqlite3" or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is a file path for sqlite3 or a connection string for postgres.
	DSN string `yaml:"dsn" json:"dsn"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Listen       string   `yaml:"listen" json:"listen"`
	AllowOrigins []string `yaml:"allow_origins" json:"allow_origins"`
}

// MaterializeConfig controls occurrence generation.
type MaterializeConfig struct {
	// Mode is "sync" or "async".
	Mode string `yaml:"mode" json:"mode"`

	// HorizonDays bounds how far ahead unbounded rules are expanded.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// MaxOccurrences caps the children created by one run.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	// Refresh is a cron spec for the horizon extension job. Empty disables
	// the job.
	Refresh string `yaml:"refresh" json:"refresh"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Config is the top-level application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Timezone is the IANA zone rules are expanded in (e.g. "America/New_York").
	Timezone string `yaml:"timezone" json:"timezone"`

	HTTP        HTTPConfig        `yaml:"http" json:"http"`
	Materialize MaterializeConfig `yaml:"materialize" json:"materialize"`
	Log         LogConfig         `yaml:"log" json:"log"`
}

const (
	defaultDriver         = "sqlite3"
	defaultDSN            = "cadence.db"
	defaultTimezone       = "UTC"
	defaultListen         = "127.0.0.1:8080"
	defaultMode           = "sync"
	defaultHorizonDays    = 365
	defaultMaxOccurrences = 500
	defaultRefresh        = "0 3 * * *"
	defaultLevel          = "info"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: defaultDriver, DSN: defaultDSN},
		Timezone: defaultTimezone,
		HTTP:     HTTPConfig{Listen: defaultListen, AllowOrigins: []string{}},
		Materialize: MaterializeConfig{
			Mode:           defaultMode,
			HorizonDays:    defaultHorizonDays,
			MaxOccurrences: defaultMaxOccurrences,
			Refresh:        defaultRefresh,
		},
		Log: LogConfig{Level: defaultLevel},
	}
}

// Normalize fills in missing values so that partially-filled files still
// behave correctly. Enumerated values are lower-cased; anything else is left
// for Validate to reject.
func (c *Config) Normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = defaultDriver
	}
	if c.Database.DSN == "" && c.Database.Driver == defaultDriver {
		c.Database.DSN = defaultDSN
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = defaultListen
	}
	if c.HTTP.AllowOrigins == nil {
		c.HTTP.AllowOrigins = []string{}
	}
	c.Materialize.Mode = strings.ToLower(strings.TrimSpace(c.Materialize.Mode))
	if c.Materialize.Mode == "" {
		c.Materialize.Mode = defaultMode
	}
	if c.Materialize.HorizonDays == 0 {
		c.Materialize.HorizonDays = defaultHorizonDays
	}
	if c.Materialize.MaxOccurrences == 0 {
		c.Materialize.MaxOccurrences = defaultMaxOccurrences
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = defaultLevel
	}
}

// Location loads the configured zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// LogLevel maps log.level onto a slog level. Unknown values mean info.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is read and defaults are filled in.
//
// Load does not apply environment overrides or validate; see Resolve.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, fmt.Errorf("write default config: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Resolve loads the file at path, applies the environment (after reading
// envFile if it exists) and validates the result.
func Resolve(path, envFile string) (*Config, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename. The parent
// directory is created with 0700 and the file ends up 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".cadence-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
