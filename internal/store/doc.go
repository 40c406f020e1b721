// Package store provides durable storage for events, their service lines
// and series bookkeeping, on SQLite (default) or Postgres.
//
// # Tables
//
//   - events: standalone events, series roots and their occurrences
//   - event_service_lines: billable lines owned by an event
//   - series_exceptions: instants a root's rule produces but which must not
//     be materialized again
//   - series_state: background materialization marker per root
//
// # Critical Patterns
//
// Series graph: parent_id always names a root. Writes that would point an
// event at an occurrence fail with ErrNotRoot, so nesting deeper than one
// level cannot be stored.
//
// Deterministic results: every list query orders by its sort key with id as
// the final tiebreaker. Queries are built as queryir values and compiled by
// querysql, which binds all values as parameters.
//
// Optimistic versions: every write bumps events.version and UpdateEvent
// refuses a stale version with ErrConflict.
//
// Time: instants are stored as UTC unix seconds and returned in the store's
// configured location.
//
// # Database Configuration
//
// SQLite:
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: Transactions take the write lock at BEGIN
//
// Postgres: pooled connections; LockEvent and Tx.LoadSeries use
// SELECT ... FOR UPDATE, root first, then occurrences in id order.
package store
