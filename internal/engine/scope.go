package engine

import "strings"

// EditScope selects which members of a series an edit touches.
type EditScope string

const (
	// EditSingle updates the target in place; the series is untouched.
	EditSingle EditScope = "single"

	// EditOccurrence detaches the target from its series before updating it.
	EditOccurrence EditScope = "occurrence"

	// EditSeries splits the series at the target and updates the target and
	// every later member.
	EditSeries EditScope = "series"
)

// DeleteScope selects which members of a series a delete removes.
type DeleteScope string

const (
	// DeleteSingle removes only the target.
	DeleteSingle DeleteScope = "single"

	// DeleteOccurrence removes only the target; same as DeleteSingle.
	DeleteOccurrence DeleteScope = "occurrence"

	// DeleteSeries removes the target and every later member.
	DeleteSeries DeleteScope = "series"

	// DeleteAll removes the whole series.
	DeleteAll DeleteScope = "all"
)

var (
	editScopes   = []string{string(EditSingle), string(EditOccurrence), string(EditSeries)}
	deleteScopes = []string{string(DeleteSingle), string(DeleteOccurrence), string(DeleteSeries), string(DeleteAll)}
)

// ParseEditScope maps a scope token onto an EditScope. Tokens are
// case-insensitive. There is no default: an empty token is rejected.
func ParseEditScope(token string) (EditScope, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "single":
		return EditSingle, nil
	case "occurrence":
		return EditOccurrence, nil
	case "series":
		return EditSeries, nil
	}
	return "", NewInvalidScopeError(token, editScopes)
}

// ParseDeleteScope maps a scope token onto a DeleteScope. Tokens are
// case-insensitive. There is no default: an empty token is rejected.
func ParseDeleteScope(token string) (DeleteScope, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "single":
		return DeleteSingle, nil
	case "occurrence":
		return DeleteOccurrence, nil
	case "series":
		return DeleteSeries, nil
	case "all":
		return DeleteAll, nil
	}
	return "", NewInvalidScopeError(token, deleteScopes)
}
