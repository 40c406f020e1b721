package recurrence

import "time"

// Preview is the result of validating a rule against a start instant, as
// shown to a user composing a series.
type Preview struct {
	Rule      string      `json:"rule"`
	Summary   string      `json:"summary"`
	Bounded   bool        `json:"bounded"`
	Instants  []time.Time `json:"instants"`
	Truncated bool        `json:"truncated"`
}

// Validate parses s, binds it to start and returns its first n instants.
func Validate(s string, start time.Time, n int) (*Preview, error) {
	r, err := Parse(s)
	if err != nil {
		return nil, err
	}
	seq, err := r.Sequence(start)
	if err != nil {
		return nil, err
	}

	instants := seq.Take(n + 1)
	truncated := len(instants) > n
	if truncated {
		instants = instants[:n]
	}
	return &Preview{
		Rule:      r.String(),
		Summary:   r.Summary(),
		Bounded:   r.Bounded(),
		Instants:  instants,
		Truncated: truncated,
	}, nil
}
