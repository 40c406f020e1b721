package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/recurrence"
	"github.com/roach88/cadence/internal/store"
)

func TestClassify(t *testing.T) {
	_, ruleErr := recurrence.Parse("FREQ=SOMETIMES")
	require.Error(t, ruleErr)

	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"field error", fmt.Errorf("write: %w", &calendar.FieldError{Field: "end", Message: "must be after start"}), ErrCodeValidation},
		{"rule error", ruleErr, ErrCodeInvalidRule},
		{"missing row", fmt.Errorf("get: %w", store.ErrNotFound), ErrCodeNotFound},
		{"stale version", fmt.Errorf("update: %w", store.ErrConflict), ErrCodeConcurrencyConflict},
		{"moved series", store.ErrNotRoot, ErrCodeConcurrencyConflict},
		{"already classified", NewValidationError("role", "bad"), ErrCodeValidation},
		{"unknown", errors.New("disk on fire"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err, 42)
			assert.Equal(t, tt.want, CodeOf(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.ErrorIs(t, classify(context.Canceled, 1), context.Canceled)
	assert.Empty(t, CodeOf(classify(context.Canceled, 1)))
	assert.NoError(t, classify(nil, 1))
}

func TestError_Message(t *testing.T) {
	err := classify(&calendar.FieldError{Field: "client_id", Message: "is required for appointments"}, 9)
	assert.Equal(t, "VALIDATION: client_id: is required for appointments (event=9)", err.Error())

	assert.Equal(t, "NOT_FOUND: event not found (event=3)", NewNotFoundError(3).Error())
}

func TestParseScopes(t *testing.T) {
	edit := map[string]EditScope{"single": EditSingle, "SINGLE": EditSingle, " occurrence ": EditOccurrence, "Series": EditSeries}
	for token, want := range edit {
		got, err := ParseEditScope(token)
		require.NoError(t, err, token)
		assert.Equal(t, want, got)
	}
	for _, token := range []string{"", "  ", "all"} {
		_, err := ParseEditScope(token)
		assert.True(t, IsInvalidScopeError(err), "edit scope %q", token)
	}

	del := map[string]DeleteScope{"Single": DeleteSingle, "occurrence": DeleteOccurrence, "SERIES": DeleteSeries, "all": DeleteAll}
	for token, want := range del {
		got, err := ParseDeleteScope(token)
		require.NoError(t, err, token)
		assert.Equal(t, want, got)
	}
	for _, token := range []string{"", "future"} {
		_, err := ParseDeleteScope(token)
		assert.True(t, IsInvalidScopeError(err), "delete scope %q", token)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSync, m)

	m, err = ParseMode("async")
	require.NoError(t, err)
	assert.Equal(t, ModeAsync, m)

	_, err = ParseMode("eventually")
	assert.Error(t, err)
}
