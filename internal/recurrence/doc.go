// Package recurrence parses and expands the iCalendar-style recurrence rules
// stored on series roots.
//
// A rule string is a semicolon-separated list of KEY=VALUE segments:
//
//	FREQ=WEEKLY;INTERVAL=1;BYDAY=MO,WE;COUNT=10
//	FREQ=MONTHLY;BYDAY=FR;BYSETPOS=-1;UNTIL=20241231
//
// Parsing is two-staged. Tokenize splits the string into typed tokens and
// rejects malformed segments; Parse validates the token set and produces a
// Rule. Both stages report failures as *InvalidRuleError carrying the
// offending fragment, so UI-facing validation and the expander share exactly
// one grammar.
//
// Expansion is lazy. Rule.Sequence binds a rule to a start instant and
// returns a restartable Sequence; each call to Sequence.Iterator walks the
// instants from the beginning. The first instant is always the start
// instant itself, and COUNT includes it. Unbounded rules never terminate on
// their own, so callers must consume them through Take, Through, or an
// explicit cap.
package recurrence
