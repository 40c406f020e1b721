// Package queryir provides the query intermediate representation used to
// read events from the store.
//
// The IR is the boundary between callers that describe *which* events they
// want (the scheduling query service, the horizon job, graph checks) and the
// SQL backend that knows how to fetch them for a given dialect:
//
//	[engine.Query] → [Query IR] → [querysql] → SQLite / Postgres
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package implement them, so backends can switch on them
// exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case Range:
//	case IsNull:
//	case And:
//	}
//
// VALUES:
//
// Literal values are restricted to int64, string and bool. Instants are
// stored as unix seconds, so time ranges are int64 ranges. Floats are
// rejected: fees are integer cents and nothing in the schema is fractional.
//
// ORDERING:
//
// Every Select names its ordering. The backend always appends the primary
// key as a final tiebreaker so results are deterministic.
package queryir
