package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/store"
)

// Mode selects where occurrences are materialized.
type Mode string

const (
	// ModeSync materializes inside the creating transaction.
	ModeSync Mode = "sync"

	// ModeAsync returns the root immediately and leaves materialization to
	// the background worker.
	ModeAsync Mode = "async"
)

// ParseMode maps a config token onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSync, "":
		return ModeSync, nil
	case ModeAsync:
		return ModeAsync, nil
	}
	return "", fmt.Errorf("unknown materialize mode %q", s)
}

const (
	// DefaultHorizonDays bounds how far ahead unbounded rules are
	// materialized.
	DefaultHorizonDays = 365

	// DefaultMaxOccurrences bounds the children created by one run.
	DefaultMaxOccurrences = 500
)

// Engine applies scheduling operations to a store.
//
// Every mutating operation runs in one store transaction. Series-changing
// operations first cancel the series' background job and wait for it, then
// re-read the target under lock; a target that moved to another series in
// between yields a CONCURRENCY_CONFLICT error.
//
// Thread-safety model:
//   - all operations: safe from any goroutine
//   - Run(): must be called from exactly one goroutine in async mode
type Engine struct {
	store  *store.Store
	loc    *time.Location
	clock  Clock
	dir    Directory
	jobIDs JobIDGenerator
	log    *slog.Logger

	mode           Mode
	horizon        time.Duration
	maxOccurrences int

	worker *Worker
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithLocation sets the zone rules are expanded in and views are rendered
// in. Default: the store's location.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithDirectory sets the lookup used to check referenced ids.
// Default: AllowAll.
func WithDirectory(d Directory) Option {
	return func(e *Engine) {
		if d != nil {
			e.dir = d
		}
	}
}

// WithMode selects sync or async materialization. Default: ModeSync.
func WithMode(m Mode) Option {
	return func(e *Engine) {
		e.mode = m
	}
}

// WithHorizonDays bounds materialization of unbounded rules to now plus
// days. Default: 365.
func WithHorizonDays(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.horizon = time.Duration(days) * 24 * time.Hour
		}
	}
}

// WithMaxOccurrences caps the children one run creates. Default: 500.
func WithMaxOccurrences(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxOccurrences = n
		}
	}
}

// WithJobIDs sets the job id generator. Default: UUIDv7Generator.
func WithJobIDs(g JobIDGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.jobIDs = g
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an Engine over s.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		loc:            s.Location(),
		clock:          SystemClock{},
		dir:            AllowAll{},
		jobIDs:         UUIDv7Generator{},
		log:            slog.Default(),
		mode:           ModeSync,
		horizon:        DefaultHorizonDays * 24 * time.Hour,
		maxOccurrences: DefaultMaxOccurrences,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.worker = NewWorker(e.runJob, e.log.With("component", "worker"))
	return e
}

// Run processes background jobs until ctx is cancelled or Stop is called.
// It is only needed in async mode, but harmless in sync mode.
func (e *Engine) Run(ctx context.Context) error {
	return e.worker.Run(ctx)
}

// Stop makes Run return.
func (e *Engine) Stop() {
	e.worker.Stop()
}

// Drain waits until no background job is queued or running.
func (e *Engine) Drain(ctx context.Context) error {
	return e.worker.Drain(ctx)
}

// Location returns the zone the engine works in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Mode returns the materialization mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// view renders ev, attaching the series state of roots.
func (e *Engine) view(ctx context.Context, ev calendar.Event) (calendar.View, error) {
	if !ev.IsRoot() {
		return calendar.NewView(ev, e.loc, nil), nil
	}
	st, err := e.store.GetSeriesState(ctx, ev.ID)
	if err != nil {
		if store.IsConflict(err) {
			return calendar.View{}, err
		}
		return calendar.NewView(ev, e.loc, nil), nil
	}
	return calendar.NewView(ev, e.loc, &st), nil
}

// cancelJob stops background work on a series before a restructuring
// operation opens its transaction.
func (e *Engine) cancelJob(ctx context.Context, rootID int64) error {
	if rootID == 0 {
		return nil
	}
	if _, err := e.worker.Cancel(ctx, rootID); err != nil {
		return fmt.Errorf("cancel job for series %d: %w", rootID, err)
	}
	return nil
}
