package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cadence.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_PartialFileGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: Postgres
  dsn: postgres://localhost/cadence
timezone: America/New_York
materialize:
  mode: ASYNC
  horizon_days: 90
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "async", cfg.Materialize.Mode)
	assert.Equal(t, 90, cfg.Materialize.HorizonDays)
	assert.Equal(t, defaultMaxOccurrences, cfg.Materialize.MaxOccurrences)
	assert.Equal(t, defaultListen, cfg.HTTP.Listen)
	assert.Equal(t, []string{}, cfg.HTTP.AllowOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unterminated"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSave_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.yaml")
	cfg := DefaultConfig()
	cfg.HTTP.AllowOrigins = []string{"https://app.example.com"}
	require.NoError(t, Save(path, cfg))

	cfg.Timezone = "Europe/Berlin"
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", got.Timezone)
	assert.Equal(t, []string{"https://app.example.com"}, got.HTTP.AllowOrigins)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")

	assert.Error(t, Save(path, nil))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CADENCE_DATABASE_DRIVER":             "postgres",
		"CADENCE_DATABASE_DSN":                "postgres://db/cadence",
		"CADENCE_HTTP_ALLOW_ORIGINS":          " https://a.example , ,https://b.example",
		"CADENCE_MATERIALIZE_HORIZON_DAYS":    "30",
		"CADENCE_MATERIALIZE_MAX_OCCURRENCES": "50",
		"CADENCE_LOG_LEVEL":                   "DEBUG",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://db/cadence", cfg.Database.DSN)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowOrigins)
	assert.Equal(t, 30, cfg.Materialize.HorizonDays)
	assert.Equal(t, 50, cfg.Materialize.MaxOccurrences)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
	assert.Equal(t, defaultTimezone, cfg.Timezone, "unset variables keep file values")

	env["CADENCE_MATERIALIZE_HORIZON_DAYS"] = "a year"
	assert.Error(t, DefaultConfig().ApplyEnv(lookup))
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(""))
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CADENCE_TEST_ENV_FILE=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CADENCE_TEST_ENV_FILE") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("CADENCE_TEST_ENV_FILE"))
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("CADENCE_TIMEZONE=Asia/Tokyo\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CADENCE_TIMEZONE") })

	cfg, err := Resolve(filepath.Join(dir, "cadence.yaml"), envPath)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", cfg.Timezone)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, ""},
		{"empty dsn", func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "" }, ""},
		{"unknown mode", func(c *Config) { c.Materialize.Mode = "eventually" }, ""},
		{"negative horizon", func(c *Config) { c.Materialize.HorizonDays = -1 }, ""},
		{"huge cap", func(c *Config) { c.Materialize.MaxOccurrences = 1_000_000 }, ""},
		{"unknown level", func(c *Config) { c.Log.Level = "chatty" }, ""},
		{"bad zone", func(c *Config) { c.Timezone = "Mars/Olympus_Mons" }, "timezone"},
		{"bad cron", func(c *Config) { c.Materialize.Refresh = "every night" }, "materialize.refresh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.NotEmpty(t, verr.Problems)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestValidate_EmptyRefreshDisablesJob(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Materialize.Refresh = ""
	assert.NoError(t, cfg.Validate())
}
