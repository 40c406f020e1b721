package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/recurrence"
	"github.com/roach88/cadence/internal/store"
)

// Error is returned by every engine operation that fails for a reason the
// caller can act on.
//
// Error carries structured fields for diagnostics and for mapping onto
// transport status codes. The wrapped cause, if any, stays reachable via
// errors.Is / errors.As.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// EventID identifies the affected event, when known.
	EventID int64

	// Field names the offending input field, when known.
	Field string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidRule indicates a recurrence rule failed to parse.
	ErrCodeInvalidRule ErrorCode = "INVALID_RULE"

	// ErrCodeInvalidScope indicates an unknown edit or delete scope token.
	ErrCodeInvalidScope ErrorCode = "INVALID_SCOPE"

	// ErrCodeNotFound indicates the event or a referenced directory entry
	// does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeValidation indicates the resulting event would break a field
	// or kind invariant.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeConcurrencyConflict indicates the series changed underneath
	// the operation or the database was busy.
	ErrCodeConcurrencyConflict ErrorCode = "CONCURRENCY_CONFLICT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.EventID != 0 {
		return fmt.Sprintf("%s: %s (event=%d)", e.Code, msg, e.EventID)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsInvalidRuleError reports whether err is an invalid-rule error.
// Uses errors.As to handle wrapped errors.
func IsInvalidRuleError(err error) bool {
	return CodeOf(err) == ErrCodeInvalidRule || recurrence.IsInvalidRule(err)
}

// IsInvalidScopeError reports whether err is an invalid-scope error.
func IsInvalidScopeError(err error) bool {
	return CodeOf(err) == ErrCodeInvalidScope
}

// IsNotFoundError reports whether err is a not-found error.
func IsNotFoundError(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsValidationError reports whether err is a validation error.
func IsValidationError(err error) bool {
	return CodeOf(err) == ErrCodeValidation
}

// IsConflictError reports whether err is a concurrency conflict.
func IsConflictError(err error) bool {
	return CodeOf(err) == ErrCodeConcurrencyConflict
}

// NewInvalidRuleError wraps a rule parse failure.
func NewInvalidRuleError(err error) *Error {
	out := &Error{Code: ErrCodeInvalidRule, Message: err.Error(), Field: "recurrence_rule", Err: err}
	var ire *recurrence.InvalidRuleError
	if errors.As(err, &ire) {
		out.Message = ire.Error()
	}
	return out
}

// NewInvalidScopeError reports an unknown or missing scope token.
func NewInvalidScopeError(token string, allowed []string) *Error {
	msg := fmt.Sprintf("unknown scope %q (want one of %v)", token, allowed)
	if strings.TrimSpace(token) == "" {
		msg = fmt.Sprintf("scope is required (one of %v)", allowed)
	}
	return &Error{Code: ErrCodeInvalidScope, Message: msg, Field: "scope"}
}

// NewNotFoundError reports a missing event.
func NewNotFoundError(eventID int64) *Error {
	return &Error{Code: ErrCodeNotFound, Message: "event not found", EventID: eventID}
}

// NewReferenceNotFoundError reports a missing directory entry.
func NewReferenceNotFoundError(field string, id int64) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("no entry with id %d", id), Field: field}
}

// NewValidationError reports an invalid field.
func NewValidationError(field, message string) *Error {
	return &Error{Code: ErrCodeValidation, Message: message, Field: field}
}

// NewConflictError reports a concurrent modification.
func NewConflictError(eventID int64, err error) *Error {
	msg := "series changed concurrently; retry"
	return &Error{Code: ErrCodeConcurrencyConflict, Message: msg, EventID: eventID, Err: err}
}

// classify maps lower-level failures onto engine errors. Errors already
// classified, context errors and unknown failures pass through unchanged.
func classify(err error, eventID int64) error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if fe, ok := calendar.AsFieldError(err); ok {
		return &Error{Code: ErrCodeValidation, Message: fe.Message, Field: fe.Field, EventID: eventID, Err: err}
	}
	if recurrence.IsInvalidRule(err) {
		out := NewInvalidRuleError(err)
		out.EventID = eventID
		return out
	}
	if errors.Is(err, store.ErrNotFound) {
		out := NewNotFoundError(eventID)
		out.Err = err
		return out
	}
	if store.IsConflict(err) || errors.Is(err, store.ErrNotRoot) {
		return NewConflictError(eventID, err)
	}
	return err
}
