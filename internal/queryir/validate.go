package queryir

import (
	"fmt"
	"strings"
)

// Schema lists the columns each table exposes to queries.
type Schema map[string][]string

// ValidationResult contains the problems found in a query.
type ValidationResult struct {
	// IsValid is true when Problems is empty.
	IsValid bool

	// Problems lists every violation, in traversal order.
	Problems []string
}

// Err returns the problems as a single error, or nil.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return fmt.Errorf("invalid query: %s", strings.Join(r.Problems, "; "))
}

// Validate checks that a query only references known tables and columns,
// names explicit columns, and uses supported literal types.
//
// Validate is a pure function with no side effects.
func Validate(query Query, schema Schema) ValidationResult {
	v := &validator{schema: schema}
	v.validateQuery(query)
	return ValidationResult{
		IsValid:  len(v.problems) == 0,
		Problems: v.problems,
	}
}

type validator struct {
	schema   Schema
	columns  map[string]bool
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addProblem("nil query")
			return
		}
		v.validateSelect(*query)
	case nil:
		v.addProblem("nil query")
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	cols, ok := v.schema[sel.From]
	if !ok {
		v.addProblem("unknown table %q", sel.From)
		return
	}
	v.columns = make(map[string]bool, len(cols))
	for _, c := range cols {
		v.columns[c] = true
	}

	if len(sel.Columns) == 0 {
		v.addProblem("explicit columns are required")
	}
	for _, c := range sel.Columns {
		v.checkColumn(c)
	}
	for _, c := range sel.OrderBy {
		v.checkColumn(c)
	}
	if sel.Limit < 0 {
		v.addProblem("negative limit %d", sel.Limit)
	}
	v.validatePredicate(sel.Filter)
}

func (v *validator) checkColumn(name string) {
	if !v.columns[name] {
		v.addProblem("unknown column %q", name)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.checkColumn(pred.Field)
		switch pred.Value.(type) {
		case int64, string, bool:
		case float32, float64:
			v.addProblem("field %q compared to a float; use integer units", pred.Field)
		case nil:
			v.addProblem("field %q compared to NULL; use IsNull", pred.Field)
		default:
			v.addProblem("field %q has unsupported value type %T", pred.Field, pred.Value)
		}
	case Range:
		v.checkColumn(pred.Field)
		if pred.From == nil && pred.To == nil {
			v.addProblem("range on %q has no bounds", pred.Field)
		}
		if pred.From != nil && pred.To != nil && *pred.To < *pred.From {
			v.addProblem("range on %q ends before it starts", pred.Field)
		}
	case IsNull:
		v.checkColumn(pred.Field)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}
