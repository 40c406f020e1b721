// Package testutil holds helpers shared by package tests and the scenario
// harness: deterministic ids and step numbers, and throwaway stores.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/store"
)

// Location loads an IANA zone or fails the test.
func Location(t testing.TB, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

// Wall parses a wall-clock time such as "2024-01-08T10:00" in loc.
func Wall(t testing.TB, loc *time.Location, s string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02T15:04", s, loc)
	require.NoError(t, err)
	return ts
}

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewStore opens a SQLite store in a temporary directory that is removed
// when the test ends.
func NewStore(t testing.TB, loc *time.Location, now time.Time) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cadence.db"),
		store.WithLocation(loc),
		store.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// NewEngine builds a synchronous engine over a fresh store with its clock
// stopped at now. Extra options are applied last.
func NewEngine(t testing.TB, loc *time.Location, now time.Time, opts ...engine.Option) (*engine.Engine, *engine.FixedClock) {
	t.Helper()
	clock := engine.NewFixedClock(now)
	base := []engine.Option{
		engine.WithLocation(loc),
		engine.WithClock(clock),
		engine.WithJobIDs(NewFixedJobID("")),
		engine.WithLogger(QuietLogger()),
	}
	return engine.New(NewStore(t, loc, now), append(base, opts...)...), clock
}
