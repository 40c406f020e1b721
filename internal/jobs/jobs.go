// Package jobs runs the periodic horizon extension.
//
// Unbounded series are only materialized a fixed number of days ahead. The
// scheduler wakes on a cron spec and asks the engine to extend every series
// whose horizon has fallen behind.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Extender extends materialization horizons and reports how many series
// were scheduled for extension.
type Extender interface {
	ExtendHorizons(ctx context.Context) (int, error)
}

// Scheduler calls an Extender on a cron schedule. Overlapping runs are
// skipped.
type Scheduler struct {
	cron    *cron.Cron
	ext     Extender
	log     *slog.Logger
	timeout time.Duration
	entry   cron.EntryID
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTimeout bounds a single run. Default: 5 minutes.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New parses spec (standard five-field cron or a descriptor such as
// "@hourly") and returns a stopped Scheduler. Times are interpreted in loc.
func New(ext Extender, spec string, loc *time.Location, opts ...Option) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		ext:     ext,
		log:     slog.Default(),
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}

	logger := cronLogger{s.log}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins firing in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("horizon job scheduled", "next", s.Next())
}

// Stop prevents further runs and waits for a running one to finish or for
// ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports when the job fires next. Zero until Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// RunOnce extends horizons immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	started := time.Now()
	n, err := s.ext.ExtendHorizons(ctx)
	if err != nil {
		s.log.Error("horizon extension failed", "error", err)
		return n, err
	}
	s.log.Info("horizon extension", "series", n, "elapsed", time.Since(started))
	return n, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
