package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/cadence/internal/queryir"
)

// Placeholder selects the bind-parameter syntax of a backend.
type Placeholder int

const (
	// Question emits ? placeholders (SQLite).
	Question Placeholder = iota
	// Dollar emits $1, $2, ... placeholders (Postgres).
	Dollar
)

// SQLCompiler compiles QueryIR to parameterized SQL.
//
// CRITICAL: ALL queries include ORDER BY with the primary key as the final
// tiebreaker, so results are deterministic.
// CRITICAL: All values are parameterized (never interpolated).
type SQLCompiler struct {
	Placeholder Placeholder

	// Schema is the set of tables and columns queries may reference.
	Schema queryir.Schema
}

// NewSQLCompiler creates a compiler for the given placeholder style.
func NewSQLCompiler(p Placeholder, schema queryir.Schema) *SQLCompiler {
	return &SQLCompiler{Placeholder: p, Schema: schema}
}

// Compile converts a query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if res := queryir.Validate(q, c.Schema); !res.IsValid {
		return "", nil, res.Err()
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	var whereClause string
	var params []any
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		whereClause = " WHERE " + filterSQL
		params = filterParams
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		strings.Join(q.Columns, ", "),
		q.From,
		whereClause,
		stableOrderKey(q.OrderBy))

	if q.Limit > 0 {
		sql += " LIMIT " + strconv.Itoa(q.Limit)
	}
	if q.ForUpdate && c.Placeholder == Dollar {
		sql += " FOR UPDATE"
	}

	return Rebind(c.Placeholder, sql), params, nil
}

// stableOrderKey returns the ORDER BY list. The primary key is appended
// unless already present.
func stableOrderKey(orderBy []string) string {
	keys := make([]string, 0, len(orderBy)+1)
	hasID := false
	for _, col := range orderBy {
		if col == "id" {
			hasID = true
		}
		keys = append(keys, col+" ASC")
	}
	if !hasID {
		keys = append(keys, "id ASC")
	}
	return strings.Join(keys, ", ")
}

// compilePredicate compiles a predicate to a WHERE clause fragment.
// Values are NEVER interpolated.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return pred.Field + " = ?", []any{pred.Value}, nil

	case queryir.Range:
		var parts []string
		var params []any
		if pred.From != nil {
			parts = append(parts, pred.Field+" >= ?")
			params = append(params, *pred.From)
		}
		if pred.To != nil {
			parts = append(parts, pred.Field+" < ?")
			params = append(params, *pred.To)
		}
		return strings.Join(parts, " AND "), params, nil

	case queryir.IsNull:
		if pred.Not {
			return pred.Field + " IS NOT NULL", nil, nil
		}
		return pred.Field + " IS NULL", nil, nil

	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		var sqlParts []string
		var allParams []any
		for _, sub := range pred.Predicates {
			sql, params, err := c.compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			sqlParts = append(sqlParts, sql)
			allParams = append(allParams, params...)
		}
		return strings.Join(sqlParts, " AND "), allParams, nil

	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// Rebind rewrites ? placeholders for the target backend. Queries handed to
// Rebind must not contain literal question marks.
func Rebind(p Placeholder, query string) string {
	if p != Dollar {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
