package queryir

// Query represents an abstract query.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode()
}

// Predicate represents a filter condition.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = value
//   - Range: from <= field < to
//   - IsNull: field IS NULL (or IS NOT NULL when negated)
//   - And: all predicates must be true
type Predicate interface {
	predicateNode()
}

// Select reads rows of one table.
//
// Semantics:
//
//	SELECT <columns> FROM <from> WHERE <filter> ORDER BY <order_by>, id
//
// Example:
//
//	Select{
//	  From:    "events",
//	  Columns: []string{"id", "start_at"},
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: "clinician_id", Value: int64(7)},
//	    Range{Field: "start_at", From: 1704085200, To: 1706763600},
//	  }},
//	  OrderBy: []string{"start_at"},
//	}
type Select struct {
	From    string    // Table name
	Columns []string  // Explicit column list (required)
	Filter  Predicate // WHERE conditions (nil = no filter)
	OrderBy []string  // Sort columns, ascending; "id" is always appended
	Limit   int       // 0 = no limit

	// ForUpdate requests row locks on backends that support them.
	ForUpdate bool
}

func (Select) queryNode() {}

// Equals is a field-equals-literal predicate. Value is int64, string or
// bool.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// Range is the half-open interval predicate From <= Field < To over int64
// values. A nil bound is open.
type Range struct {
	Field string
	From  *int64
	To    *int64
}

func (Range) predicateNode() {}

// IsNull tests a nullable column. Not inverts it.
type IsNull struct {
	Field string
	Not   bool
}

func (IsNull) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
// An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Bound returns a pointer to v, for Range bounds.
func Bound(v int64) *int64 {
	return &v
}
