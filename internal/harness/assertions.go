package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}
	return buf.String()
}

// AssertionContext provides what store-level assertions need.
type AssertionContext struct {
	Ctx      context.Context
	Store    *store.Store
	Engine   *engine.Engine
	Location *time.Location
	Names    map[string]int64
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState, AssertOccurrences, AssertExceptions, AssertGraphValid:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertFinalState:
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			case AssertOccurrences:
				err = assertSeriesDates(actx, assertion, occurrenceDates)
			case AssertExceptions:
				err = assertSeriesDates(actx, assertion, exceptionDates)
			case AssertGraphValid:
				err = assertGraphValid(actx.Ctx, actx.Store)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// matchesStep reports whether event satisfies the op/target/outcome filter
// of assertion. Empty filter fields match anything.
func matchesStep(event TraceEvent, assertion Assertion) bool {
	if event.Op != assertion.Op {
		return false
	}
	if assertion.Target != "" && event.Target != assertion.Target && event.As != assertion.Target {
		return false
	}
	if assertion.Outcome != "" && event.Outcome != assertion.Outcome {
		return false
	}
	return true
}

// assertTraceContains checks that some step matches the assertion.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchesStep(event, assertion) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("step %s target=%q outcome=%q", assertion.Op, assertion.Target, assertion.Outcome),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if ops appear in the specified order.
// Ops don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.Ops) && event.Op == assertion.Ops[next] {
			next++
		}
	}
	if next == len(assertion.Ops) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
		Actual:   fmt.Sprintf("matched only %v", assertion.Ops[:next]),
		Trace:    trace,
	}
}

// assertTraceCount checks that exactly Count steps match.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matchesStep(event, assertion) {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d steps %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d steps", count),
			Trace:    trace,
		}
	}
	return nil
}

// seriesDates extracts dates from a loaded series.
type seriesDates func(s *calendar.Series, loc *time.Location) []string

func occurrenceDates(s *calendar.Series, loc *time.Location) []string {
	members := s.Members()
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.Start.In(loc).Format(calendar.OccurrenceDateLayout)
	}
	return out
}

func exceptionDates(s *calendar.Series, loc *time.Location) []string {
	out := make([]string, len(s.Exceptions))
	for i, x := range s.Exceptions {
		out[i] = x.In(loc).Format(calendar.OccurrenceDateLayout)
	}
	return out
}

// assertSeriesDates compares the dates extract finds in target's series
// with assertion.Dates.
func assertSeriesDates(actx *AssertionContext, assertion Assertion, extract seriesDates) error {
	id, err := resolveName(actx.Ctx, actx.Engine, actx.Location, actx.Names, assertion.Target, "")
	if err != nil {
		return fmt.Errorf("%s: %w", assertion.Type, err)
	}
	s, err := actx.Engine.Series(actx.Ctx, id)
	if err != nil {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("series of %s", assertion.Target),
			Actual:   err.Error(),
		}
	}

	got := extract(s, actx.Location)
	want := assertion.Dates
	if want == nil {
		want = []string{}
	}
	if !reflect.DeepEqual(got, want) {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("%s: %v", assertion.Target, want),
			Actual:   fmt.Sprintf("%s: %v", assertion.Target, got),
		}
	}
	return nil
}

// assertGraphValid fails when the store holds any series-graph violation.
func assertGraphValid(ctx context.Context, st *store.Store) error {
	vs, err := st.CheckGraph(ctx)
	if err != nil {
		return err
	}
	if len(vs) == 0 {
		return nil
	}
	lines := make([]string, len(vs))
	for i, v := range vs {
		lines[i] = v.String()
	}
	return &AssertionError{
		Type:     AssertGraphValid,
		Expected: "no violations",
		Actual:   strings.Join(lines, "; "),
	}
}

// assertFinalState checks that exactly one row of the table matches Where
// and that it carries the Expect values (subset semantics).
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	keys := sortedKeys(assertion.Expect)
	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}
	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are
// sorted for determinism; a nil value becomes IS NULL.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	clauses := make([]string, 0, len(where))
	args := make([]any, 0, len(where))
	for _, key := range sortedKeys(where) {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		if where[key] == nil {
			clauses = append(clauses, key+" IS NULL")
			continue
		}
		clauses = append(clauses, key+" = ?")
		args = append(args, where[key])
	}
	return strings.Join(clauses, " AND "), args, nil
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stateValuesEqual compares a YAML value with a value scanned from SQLite,
// which returns integers as int64 and booleans as 0/1.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch exp := expected.(type) {
	case string:
		switch a := actual.(type) {
		case string:
			return exp == a
		case []byte:
			return exp == string(a)
		}
		return false
	case int:
		if a, ok := actual.(int64); ok {
			return int64(exp) == a
		}
		return false
	case int64:
		if a, ok := actual.(int64); ok {
			return exp == a
		}
		return false
	case bool:
		switch a := actual.(type) {
		case bool:
			return exp == a
		case int64:
			return exp == (a != 0)
		}
		return false
	}
	return reflect.DeepEqual(expected, actual)
}

// mismatches lists the paths at which got does not contain want. Maps are
// compared as subsets; everything else must be equal.
func mismatches(path string, want, got any) []string {
	wm, ok := want.(map[string]any)
	if !ok {
		if reflect.DeepEqual(want, got) {
			return nil
		}
		return []string{fmt.Sprintf("%s = %v, want %v", path, got, want)}
	}

	gm, ok := got.(map[string]any)
	if !ok {
		return []string{fmt.Sprintf("%s = %v, want an object", path, got)}
	}
	var out []string
	for _, k := range sortedKeys(wm) {
		gv, exists := gm[k]
		if !exists {
			out = append(out, fmt.Sprintf("%s.%s is missing", path, k))
			continue
		}
		out = append(out, mismatches(path+"."+k, wm[k], gv)...)
	}
	return out
}
