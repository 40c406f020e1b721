package harness

import (
	"fmt"
	"strings"
)

// Outcome of a step that succeeded.
const outcomeOK = "ok"

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int64          `json:"seq"`
	Op      string         `json:"op"`
	As      string         `json:"as,omitempty"`
	Target  string         `json:"target,omitempty"`
	On      string         `json:"on,omitempty"`
	Scope   string         `json:"scope,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Outcome string         `json:"outcome"` // "ok" or an engine error code
	Result  any            `json:"result,omitempty"`
}

// String renders the event as one trace line. Args and results are left
// out; golden files compare the final calendar instead.
func (e TraceEvent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s", e.Seq, e.Op)
	for _, kv := range [][2]string{{"as", e.As}, {"target", e.Target}, {"on", e.On}, {"scope", e.Scope}} {
		if kv[1] != "" {
			fmt.Fprintf(&b, " %s=%s", kv[0], kv[1])
		}
	}
	fmt.Fprintf(&b, " -> %s", e.Outcome)
	return b.String()
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists setup and flow steps in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors explains each failed expectation. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Calendar is the text rendering of every event left in the store.
	Calendar string `json:"calendar"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an executed step.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
