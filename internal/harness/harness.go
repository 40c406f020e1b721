package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/httpapi"
	"github.com/roach88/cadence/internal/store"
	"github.com/roach88/cadence/internal/testutil"
)

// Harness executes one scenario against a real engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	clock  *engine.FixedClock
	seq    *testutil.Sequence
	loc    *time.Location
	names  map[string]int64
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a stopped clock
// and synchronous materialization. An error is returned when the scenario
// cannot be executed at all (a setup step failed, a name is unbound);
// failed expectations are reported in the result instead.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	loc := time.UTC
	if scenario.Timezone != "" {
		l, err := time.LoadLocation(scenario.Timezone)
		if err != nil {
			return nil, fmt.Errorf("failed to load timezone: %w", err)
		}
		loc = l
	}
	now, err := time.Parse(time.RFC3339, scenario.Now)
	if err != nil {
		return nil, fmt.Errorf("invalid now: %w", err)
	}
	clock := engine.NewFixedClock(now)

	st, err := store.Open(":memory:", store.WithLocation(loc), store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := []engine.Option{
		engine.WithLocation(loc),
		engine.WithClock(clock),
		engine.WithMode(engine.ModeSync),
		engine.WithJobIDs(testutil.NewFixedJobID(scenario.JobID)),
		engine.WithLogger(logger),
	}
	if scenario.HorizonDays > 0 {
		opts = append(opts, engine.WithHorizonDays(scenario.HorizonDays))
	}
	if scenario.MaxOccurrences > 0 {
		opts = append(opts, engine.WithMaxOccurrences(scenario.MaxOccurrences))
	}

	h := &Harness{
		store:  st,
		engine: engine.New(st, opts...),
		clock:  clock,
		seq:    testutil.NewSequence(),
		loc:    loc,
		names:  make(map[string]int64),
		logger: logger,
	}

	result := NewResult()
	for i, step := range scenario.Setup {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("setup[%d] %s: %w", i, step.Op, err)
		}
		result.AddTrace(ev)
		if ev.Outcome != outcomeOK {
			return nil, fmt.Errorf("setup[%d] %s: failed with %s", i, step.Op, ev.Outcome)
		}
	}

	for i, step := range scenario.Flow {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("flow[%d] %s: %w", i, step.Op, err)
		}
		result.AddTrace(ev)
		for _, msg := range checkExpect(step.Expect, ev) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Op, msg))
		}
	}

	actx := &AssertionContext{Ctx: ctx, Store: st, Engine: h.engine, Location: loc, Names: h.names}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	cal, err := RenderCalendar(ctx, st, loc)
	if err != nil {
		return nil, err
	}
	result.Calendar = cal
	return result, nil
}

// execute runs one step. Engine errors become the step's outcome; the
// returned error is for steps the harness cannot carry out.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	ev := TraceEvent{
		Op:     step.Op,
		As:     step.As,
		Target: step.Target,
		On:     step.On,
		Scope:  step.Scope,
		Args:   step.Args,
	}

	out, bound, err := h.dispatch(ctx, step)
	ev.Seq = h.seq.Next()

	var harnessErr *stepError
	switch {
	case err == nil:
		ev.Outcome = outcomeOK
	case errors.As(err, &harnessErr):
		return ev, harnessErr.err
	default:
		ev.Outcome = string(engine.CodeOf(err))
		if ev.Outcome == "" {
			ev.Outcome = "ERROR"
		}
	}

	if err == nil {
		if step.As != "" && bound != 0 {
			h.names[step.As] = bound
		}
		if out != nil {
			norm, nerr := normalize(out)
			if nerr != nil {
				return ev, nerr
			}
			ev.Result = norm
		}
	}

	h.logger.Info("step executed",
		"seq", ev.Seq,
		"op", step.Op,
		"target", step.Target,
		"outcome", ev.Outcome,
	)
	return ev, nil
}

// dispatch calls the engine for step. It returns the JSON-able result and,
// for steps that yield an event, that event's id.
func (h *Harness) dispatch(ctx context.Context, step Step) (any, int64, error) {
	switch step.Op {
	case OpCreate:
		var req httpapi.EventRequest
		if err := decodeArgs(step.Args, &req); err != nil {
			return nil, 0, err
		}
		d, err := req.Draft(h.loc)
		if err != nil {
			return nil, 0, err
		}
		v, err := h.engine.CreateSeries(ctx, d)
		return v, v.ID, err

	case OpGet:
		id, err := h.resolve(ctx, step.Target, step.On)
		if err != nil {
			return nil, 0, err
		}
		v, err := h.engine.GetEvent(ctx, id)
		return v, v.ID, err

	case OpEdit:
		id, err := h.resolve(ctx, step.Target, step.On)
		if err != nil {
			return nil, 0, err
		}
		scope, err := engine.ParseEditScope(step.Scope)
		if err != nil {
			return nil, 0, err
		}
		var req httpapi.PatchRequest
		if err := decodeArgs(step.Args, &req); err != nil {
			return nil, 0, err
		}
		patch, err := req.Patch(h.loc)
		if err != nil {
			return nil, 0, err
		}
		v, err := h.engine.EditEvent(ctx, id, scope, patch)
		return v, v.ID, err

	case OpDelete:
		id, err := h.resolve(ctx, step.Target, step.On)
		if err != nil {
			return nil, 0, err
		}
		scope, err := engine.ParseDeleteScope(step.Scope)
		if err != nil {
			return nil, 0, err
		}
		res, err := h.engine.DeleteEvent(ctx, id, scope)
		return res, res.PromotedID, err

	case OpPromote:
		id, err := h.resolve(ctx, step.Target, step.On)
		if err != nil {
			return nil, 0, err
		}
		v, err := h.engine.Promote(ctx, id)
		return v, v.ID, err

	case OpReconcile:
		id, err := h.resolve(ctx, step.Target, step.On)
		if err != nil {
			return nil, 0, err
		}
		res, err := h.engine.ReconcileRule(ctx, id, step.Rule)
		return res, 0, err

	case OpExtend:
		n, err := h.engine.ExtendHorizons(ctx)
		return map[string]int{"series": n}, 0, err

	case OpAdvance:
		d, err := time.ParseDuration(step.By)
		if err != nil {
			return nil, 0, &stepError{err}
		}
		h.clock.Advance(d)
		return map[string]string{"now": h.clock.Now().In(h.loc).Format(time.RFC3339)}, 0, nil

	case OpCheck:
		vs, err := h.engine.Check(ctx)
		return vs, 0, err
	}
	return nil, 0, &stepError{fmt.Errorf("unknown op %q", step.Op)}
}

// resolve maps a bound name, and optionally a date in its series, onto an
// event id.
func (h *Harness) resolve(ctx context.Context, name, on string) (int64, error) {
	return resolveName(ctx, h.engine, h.loc, h.names, name, on)
}

func resolveName(ctx context.Context, eng *engine.Engine, loc *time.Location, names map[string]int64, name, on string) (int64, error) {
	id, ok := names[name]
	if !ok {
		return 0, &stepError{fmt.Errorf("unknown target %q", name)}
	}
	if on == "" {
		return id, nil
	}

	s, err := eng.Series(ctx, id)
	if err != nil {
		return 0, err
	}
	for _, m := range s.Members() {
		if m.Start.In(loc).Format(calendar.OccurrenceDateLayout) == on {
			return m.ID, nil
		}
	}
	for _, m := range s.Members() {
		if m.OccurrenceDate == on {
			return m.ID, nil
		}
	}
	return 0, &stepError{fmt.Errorf("series of %q has no member on %s", name, on)}
}

// stepError marks failures of the harness itself rather than the engine.
type stepError struct {
	err error
}

func (e *stepError) Error() string { return e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

// decodeArgs converts YAML step args into a request body through JSON, so
// scenarios use the same field names as the HTTP API.
func decodeArgs(args map[string]any, v any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return &stepError{fmt.Errorf("encode args: %w", err)}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &stepError{fmt.Errorf("decode args: %w", err)}
	}
	return nil
}

// normalize round-trips v through JSON so YAML expectations and results
// compare as the same types.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &stepError{fmt.Errorf("encode result: %w", err)}
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &stepError{fmt.Errorf("decode result: %w", err)}
	}
	return out, nil
}

// checkExpect compares a step's outcome with its expect clause.
func checkExpect(want *Expect, got TraceEvent) []string {
	if want == nil {
		if got.Outcome != outcomeOK {
			return []string{fmt.Sprintf("unexpected error %s", got.Outcome)}
		}
		return nil
	}

	wantOutcome := outcomeOK
	if want.Error != "" {
		wantOutcome = want.Error
	}
	if got.Outcome != wantOutcome {
		return []string{fmt.Sprintf("outcome %s, want %s", got.Outcome, wantOutcome)}
	}
	if len(want.Result) == 0 {
		return nil
	}

	exp, err := normalize(want.Result)
	if err != nil {
		return []string{err.Error()}
	}
	return mismatches("result", exp, got.Result)
}
