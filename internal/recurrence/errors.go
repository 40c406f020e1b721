package recurrence

import (
	"errors"
	"fmt"
)

// InvalidRuleError reports a recurrence rule that cannot be parsed or
// expanded.
type InvalidRuleError struct {
	// Fragment is the part of the rule string that failed, e.g. "BYSETPOS=9".
	// Empty when the failure concerns the rule as a whole.
	Fragment string

	// Reason is a human-readable description.
	Reason string
}

// Error implements the error interface.
func (e *InvalidRuleError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("invalid recurrence rule: %s", e.Reason)
	}
	return fmt.Sprintf("invalid recurrence rule at %q: %s", e.Fragment, e.Reason)
}

// IsInvalidRule reports whether err carries an *InvalidRuleError.
func IsInvalidRule(err error) bool {
	var re *InvalidRuleError
	return errors.As(err, &re)
}

func invalid(fragment, format string, args ...any) *InvalidRuleError {
	return &InvalidRuleError{Fragment: fragment, Reason: fmt.Sprintf(format, args...)}
}
