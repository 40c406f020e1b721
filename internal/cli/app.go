package cli

import (
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cadence/internal/config"
	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/store"
)

// app is everything a command needs, built from the config file.
type app struct {
	cfg    *config.Config
	loc    *time.Location
	log    *slog.Logger
	store  *store.Store
	engine *engine.Engine
	out    *OutputFormatter
}

// openApp resolves the config, opens the store and builds the engine.
//
// Only a serving process runs the background worker, so one-shot commands
// always materialize synchronously whatever materialize.mode says.
func openApp(opts *RootOptions, cmd *cobra.Command, serving bool) (*app, error) {
	out := opts.formatter(cmd)

	cfg, err := config.Resolve(opts.ConfigPath, opts.EnvFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	log := newLogger(cmd.ErrOrStderr(), cfg, opts.Verbose)

	mode := engine.ModeSync
	if serving {
		if mode, err = engine.ParseMode(cfg.Materialize.Mode); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}

	log.Debug("opening database", "driver", cfg.Database.Driver)
	st, err := store.OpenDriver(cfg.Database.Driver, cfg.Database.DSN, store.WithLocation(loc))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	eng := engine.New(st,
		engine.WithLocation(loc),
		engine.WithMode(mode),
		engine.WithHorizonDays(cfg.Materialize.HorizonDays),
		engine.WithMaxOccurrences(cfg.Materialize.MaxOccurrences),
		engine.WithLogger(log),
	)

	return &app{cfg: cfg, loc: loc, log: log, store: st, engine: eng, out: out}, nil
}

// Close releases the store.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Error("error closing database", "error", err)
	}
}

// newLogger builds the text logger on w. --verbose forces debug.
func newLogger(w io.Writer, cfg *config.Config, verbose bool) *slog.Logger {
	level := cfg.LogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
