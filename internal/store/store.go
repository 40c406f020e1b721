package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/cadence/internal/queryir"
	"github.com/roach88/cadence/internal/querysql"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// Schema version tracking (SQLite user_version):
// 0 - empty database
// 1 - events, service lines, series exceptions and series state
// 2 - events.series_start
const currentSchemaVersion = 2

// Driver names a supported database/sql driver.
type Driver string

const (
	SQLite   Driver = "sqlite3"
	Postgres Driver = "postgres"
)

// eventColumns is the column order every event scan expects.
var eventColumns = []string{
	"id", "kind", "start_at", "end_at", "all_day",
	"clinician_id", "location_id", "client_id", "status_id",
	"title", "notes", "appointment_total", "cancel_appointments", "notify_clients",
	"is_recurring", "recurrence_rule", "parent_id", "occurrence_date", "series_start",
	"version", "created_at", "updated_at",
}

var stateColumns = []string{"root_id", "status", "horizon_at", "job_id", "error", "updated_at"}

// querySchema is what list queries may reference.
var querySchema = queryir.Schema{
	"events":       eventColumns,
	"series_state": stateColumns,
}

// Store provides durable storage for events and series.
//
// SQLite runs with a single connection and IMMEDIATE transactions, so every
// read inside a transaction must go through the Tx. Postgres runs a pooled
// connection and locks rows with SELECT ... FOR UPDATE.
type Store struct {
	db       *sql.DB
	driver   Driver
	compiler *querysql.SQLCompiler
	loc      *time.Location
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the zone instants are returned in. Default UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock sets the source of created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//   - IMMEDIATE transactions, so the write lock is taken at BEGIN
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open(string(SQLite), path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return newStore(db, SQLite, opts), nil
}

// OpenPostgres connects to a Postgres database and creates the schema if
// it is missing.
func OpenPostgres(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open(string(Postgres), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return newStore(db, Postgres, opts), nil
}

// OpenDriver opens a store for the named driver.
func OpenDriver(driver, dsn string, opts ...Option) (*Store, error) {
	switch Driver(driver) {
	case SQLite, "sqlite", "":
		return Open(dsn, opts...)
	case Postgres, "postgresql":
		return OpenPostgres(dsn, opts...)
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

func newStore(db *sql.DB, driver Driver, opts []Option) *Store {
	placeholder := querysql.Question
	if driver == Postgres {
		placeholder = querysql.Dollar
	}
	s := &Store{
		db:       db,
		driver:   driver,
		compiler: querysql.NewSQLCompiler(placeholder, querySchema),
		loc:      time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver reports the backend in use.
func (s *Store) Driver() Driver {
	return s.driver
}

// Location returns the zone instants are returned in.
func (s *Store) Location() *time.Location {
	return s.loc
}

func (s *Store) rebind(query string) string {
	return querysql.Rebind(s.compiler.Placeholder, query)
}

func (s *Store) stamp() int64 {
	return s.now().Unix()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	// Version 1 databases predate series_start; fresh ones get it from the
	// embedded schema.
	if version == 1 {
		if _, err := db.Exec("ALTER TABLE events ADD COLUMN series_start INTEGER"); err != nil {
			return fmt.Errorf("migrate to version 2: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
