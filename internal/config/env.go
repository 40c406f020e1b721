package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "CADENCE_"

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// LoadEnvFile reads a .env file into the process environment. Variables
// already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides file values with CADENCE_* variables. The variable
// name is the upper-cased key path joined with underscores, e.g.
// CADENCE_MATERIALIZE_HORIZON_DAYS. CADENCE_HTTP_ALLOW_ORIGINS is a comma
// separated list.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_DSN", &c.Database.DSN)
	str("TIMEZONE", &c.Timezone)
	str("HTTP_LISTEN", &c.HTTP.Listen)
	if v, ok := lookup(EnvPrefix + "HTTP_ALLOW_ORIGINS"); ok {
		c.HTTP.AllowOrigins = splitList(v)
	}
	str("MATERIALIZE_MODE", &c.Materialize.Mode)
	if err := num("MATERIALIZE_HORIZON_DAYS", &c.Materialize.HorizonDays); err != nil {
		return err
	}
	if err := num("MATERIALIZE_MAX_OCCURRENCES", &c.Materialize.MaxOccurrences); err != nil {
		return err
	}
	str("MATERIALIZE_REFRESH", &c.Materialize.Refresh)
	str("LOG_LEVEL", &c.Log.Level)

	c.Normalize()
	return nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
