// Package engine implements the Cadence scheduling operations.
//
// The engine owns every structural change to the event graph: creating a
// series, editing or deleting with a scope, promoting an occurrence, and
// reconciling a series after its rule changes. Each operation runs in one
// store transaction, so a failure leaves the graph exactly as it was.
//
// ARCHITECTURE:
//
// Series Graph:
// A series is a root event that carries the recurrence rule plus the
// occurrences materialized from it. Occurrences point at the root and never
// have children of their own. Occurrences removed from a series are recorded
// as exceptions on the root so they are not produced again.
//
// Operation Flow:
//  1. Parse scope and rule tokens; reject bad input before touching storage
//  2. Cancel the series' background job and wait for it to stop
//  3. Open a transaction and lock the series root, then its occurrences
//  4. Re-check that the target still belongs where it was read
//  5. Restructure, validate and write
//  6. Settle every surviving root: materialize inline (sync) or mark it
//     pending and queue a job after commit (async)
//
// Materialization:
// Unbounded rules are expanded up to now plus the horizon; bounded rules up
// to their end. One run creates at most max_occurrences occurrences. A run
// that stops early leaves the series "partial"; ExtendHorizons picks those
// up again.
//
// CRITICAL PATTERNS:
//
// Occurrence identity:
// Rules repeat at most daily, so an occurrence is identified by its date in
// the series zone (OccurrenceDate). Exceptions and reconciliation compare by
// that date, not by start instant, so occurrences moved by a single edit
// still match the instant they were created for.
//
// Lock order:
// Root first, then occurrences by id. A target re-read under lock whose
// root changed yields CONCURRENCY_CONFLICT.
package engine
