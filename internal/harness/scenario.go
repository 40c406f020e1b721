package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cadence/internal/calendar"
)

// Scenario is a scripted sequence of engine operations plus the checks to
// run on the result.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario covers.
	Description string `yaml:"description"`

	// Timezone is the IANA zone rules expand in. Defaults to UTC.
	Timezone string `yaml:"timezone,omitempty"`

	// Now is the RFC 3339 instant the clock is stopped at.
	Now string `yaml:"now"`

	// HorizonDays and MaxOccurrences override the engine defaults when
	// positive.
	HorizonDays    int `yaml:"horizon_days,omitempty"`
	MaxOccurrences int `yaml:"max_occurrences,omitempty"`

	// JobID is the id given to every materialization job.
	JobID string `yaml:"job_id,omitempty"`

	// Setup steps run first and must all succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps are checked against their expect clauses.
	Flow []Step `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions"`
}

// Step is one engine operation.
type Step struct {
	// Op is one of the operation names below.
	Op string `yaml:"op"`

	// As binds the id of the event the step returns to a name.
	As string `yaml:"as,omitempty"`

	// Target names the event the step acts on.
	Target string `yaml:"target,omitempty"`

	// On selects the member of Target's series on this local date.
	On string `yaml:"on,omitempty"`

	// Scope is the edit or delete scope.
	Scope string `yaml:"scope,omitempty"`

	// Rule is the new rule for reconcile.
	Rule string `yaml:"rule,omitempty"`

	// By is the duration for advance, e.g. "720h".
	By string `yaml:"by,omitempty"`

	// Args is the request body for create and edit, with the same field
	// names as the HTTP API.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect checks the outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected outcome of a flow step.
type Expect struct {
	// Error is the expected engine error code. Empty means success.
	Error string `yaml:"error,omitempty"`

	// Result holds fields the JSON result must contain (subset match).
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion checks the trace or the final store.
type Assertion struct {
	Type string `yaml:"type"`

	// Op, Target and Outcome select trace steps (trace_contains, trace_count).
	Op      string `yaml:"op,omitempty"`
	Target  string `yaml:"target,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Ops is the expected order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number of matching steps (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect describe one row (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Dates are local dates, oldest first (occurrences, exceptions).
	Dates []string `yaml:"dates,omitempty"`
}

// Operation names.
const (
	OpCreate    = "create"
	OpGet       = "get"
	OpEdit      = "edit"
	OpDelete    = "delete"
	OpPromote   = "promote"
	OpReconcile = "reconcile"
	OpExtend    = "extend"
	OpAdvance   = "advance"
	OpCheck     = "check"
)

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertOccurrences   = "occurrences"
	AssertExceptions    = "exceptions"
	AssertGraphValid    = "graph_valid"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := time.Parse(time.RFC3339, s.Now); err != nil {
		return fmt.Errorf("now must be an RFC 3339 instant: %w", err)
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: setup steps cannot carry expect", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Op {
	case OpCreate:
		if step.Args == nil {
			return fmt.Errorf("create requires args")
		}
		if step.Target != "" {
			return fmt.Errorf("create takes no target")
		}
	case OpEdit:
		if step.Args == nil {
			return fmt.Errorf("edit requires args")
		}
		if step.Target == "" || step.Scope == "" {
			return fmt.Errorf("edit requires a target and a scope")
		}
	case OpDelete:
		if step.Target == "" || step.Scope == "" {
			return fmt.Errorf("delete requires a target and a scope")
		}
	case OpGet, OpPromote:
		if step.Target == "" {
			return fmt.Errorf("%s requires a target", step.Op)
		}
	case OpReconcile:
		if step.Target == "" || step.Rule == "" {
			return fmt.Errorf("reconcile requires a target and a rule")
		}
	case OpAdvance:
		if _, err := time.ParseDuration(step.By); err != nil {
			return fmt.Errorf("advance requires a duration in by: %w", err)
		}
	case OpExtend, OpCheck:
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	if step.On != "" {
		if _, err := time.Parse(calendar.OccurrenceDateLayout, step.On); err != nil {
			return fmt.Errorf("on must be a date (YYYY-MM-DD): %w", err)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertOccurrences, AssertExceptions:
		if a.Target == "" {
			return fmt.Errorf("assertions[%d]: target is required for %s", index, a.Type)
		}
	case AssertGraphValid:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
