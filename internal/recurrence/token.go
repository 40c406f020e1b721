package recurrence

import (
	"strings"
)

// Key identifies a rule segment.
type Key string

const (
	KeyFreq       Key = "FREQ"
	KeyInterval   Key = "INTERVAL"
	KeyCount      Key = "COUNT"
	KeyUntil      Key = "UNTIL"
	KeyByDay      Key = "BYDAY"
	KeyByMonthDay Key = "BYMONTHDAY"
	KeyBySetPos   Key = "BYSETPOS"
)

var knownKeys = map[Key]bool{
	KeyFreq:       true,
	KeyInterval:   true,
	KeyCount:      true,
	KeyUntil:      true,
	KeyByDay:      true,
	KeyByMonthDay: true,
	KeyBySetPos:   true,
}

// Token is one KEY=VALUE segment of a rule string.
type Token struct {
	Key   Key
	Value string

	// Raw is the segment as written, used in error fragments.
	Raw string
}

// Tokenize splits a rule string into tokens.
//
// A leading "RRULE:" prefix is stripped. Keys are case-insensitive and
// normalized to upper case; values are trimmed. Empty segments (a trailing
// semicolon, for instance) are skipped. Unknown keys, duplicate keys and
// segments without exactly one '=' are rejected.
func Tokenize(s string) ([]Token, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 6 && strings.EqualFold(s[:6], "RRULE:") {
		s = s[6:]
	}
	if s == "" {
		return nil, invalid("", "empty rule")
	}

	seen := make(map[Key]bool)
	var tokens []Token
	for _, seg := range strings.Split(s, ";") {
		raw := strings.TrimSpace(seg)
		if raw == "" {
			continue
		}

		name, value, ok := strings.Cut(raw, "=")
		if !ok || strings.Contains(value, "=") {
			return nil, invalid(raw, "segment must have the form KEY=VALUE")
		}

		key := Key(strings.ToUpper(strings.TrimSpace(name)))
		if !knownKeys[key] {
			return nil, invalid(raw, "unsupported key %q", string(key))
		}
		if seen[key] {
			return nil, invalid(raw, "duplicate key %q", string(key))
		}
		seen[key] = true

		value = strings.TrimSpace(value)
		if value == "" {
			return nil, invalid(raw, "empty value")
		}

		tokens = append(tokens, Token{Key: key, Value: value, Raw: raw})
	}

	if len(tokens) == 0 {
		return nil, invalid("", "empty rule")
	}
	return tokens, nil
}
