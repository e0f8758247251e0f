// ABOUTME: SQLite implementation of the timechamp repositories
// ABOUTME: Opens modernc.org/sqlite (or mattn/go-sqlite3) with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverModernc = "sqlite"  // pure Go, modernc.org/sqlite
	DriverMattn   = "sqlite3" // cgo, github.com/mattn/go-sqlite3
)

// schemaVersion is recorded in schema_meta after migrations run.
const schemaVersion = "3"

// SQLiteStore implements every repository interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Options configures how the database is opened.
type Options struct {
	Driver          string
	Path            string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	Logger          *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path using the pure Go driver.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return Open(Options{Path: path})
}

// Open opens the database described by opts, creating the schema and running migrations.
func Open(opts Options) (*SQLiteStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	driver := opts.Driver
	if driver == "" {
		driver = DriverModernc
	}

	inMemory := opts.Path == ":memory:"
	if !inMemory {
		// Ensure parent directory exists
		dir := filepath.Dir(opts.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn, err := buildDSN(driver, opts.Path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to :memory: would see its own empty database
	if inMemory {
		db.SetMaxOpenConns(1)
	} else if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", opts.Path, "driver", driver)
	return s, nil
}

// buildDSN appends per-connection pragmas. PRAGMA statements run through db.Exec
// only reach a single pooled connection, so foreign keys must be set in the DSN.
func buildDSN(driver, path string) (string, error) {
	switch driver {
	case DriverModernc:
		return path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	case DriverMattn:
		return path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS schema_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			password_salt TEXT NOT NULL,
			permission    TEXT NOT NULL,
			display_name  TEXT NOT NULL DEFAULT '',
			employee_id   TEXT NOT NULL DEFAULT '',
			department    TEXT NOT NULL DEFAULT '',
			last_login_at TEXT,
			created_at    TEXT NOT NULL,

			CHECK (permission IN ('read', 'read_write', 'manage'))
		);

		CREATE TABLE IF NOT EXISTS user_settings (
			user_id                 TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			hours_monday            REAL NOT NULL DEFAULT 0,
			hours_tuesday           REAL NOT NULL DEFAULT 0,
			hours_wednesday         REAL NOT NULL DEFAULT 0,
			hours_thursday          REAL NOT NULL DEFAULT 0,
			hours_friday            REAL NOT NULL DEFAULT 0,
			hours_saturday          REAL NOT NULL DEFAULT 0,
			hours_sunday            REAL NOT NULL DEFAULT 0,
			vacation_days           REAL NOT NULL DEFAULT 0,
			auto_break              INTEGER NOT NULL DEFAULT 0,
			break_duration_minutes  INTEGER NOT NULL DEFAULT 0,
			break_threshold_minutes INTEGER NOT NULL DEFAULT 0,
			break_start_time        TEXT NOT NULL DEFAULT '',
			updated_at              TEXT NOT NULL
		);

		-- Browser sessions (cookie-based)
		CREATE TABLE IF NOT EXISTS sessions (
			id             TEXT PRIMARY KEY,
			session_key    TEXT UNIQUE NOT NULL,
			user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			user_agent     TEXT NOT NULL DEFAULT '',
			last_access_ip TEXT NOT NULL DEFAULT '',
			last_access_at TEXT NOT NULL,
			created_at     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

		CREATE TABLE IF NOT EXISTS api_keys (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			secret         TEXT UNIQUE NOT NULL,
			permission     TEXT NOT NULL,
			last_access_at TEXT,
			created_at     TEXT NOT NULL,

			CHECK (permission IN ('read', 'read_write', 'manage'))
		);

		CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id);

		CREATE TABLE IF NOT EXISTS time_entries (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			start_time       TEXT NOT NULL,
			end_time         TEXT,
			worktime_seconds INTEGER,
			type             TEXT NOT NULL,
			workplace        TEXT NOT NULL,
			description      TEXT,
			created_at       TEXT NOT NULL,

			CHECK (type IN ('vacation', 'holiday', 'worktime', 'sick_leave', 'other')),
			CHECK (workplace IN ('office', 'work_from_home', 'customer', 'business_trip', 'other'))
		);

		CREATE INDEX IF NOT EXISTS idx_time_entries_user_start ON time_entries(user_id, start_time DESC);

		-- At most one running entry per user
		CREATE UNIQUE INDEX IF NOT EXISTS idx_time_entries_active
			ON time_entries(user_id) WHERE end_time IS NULL;

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id      TEXT PRIMARY KEY,
			actor_user_id TEXT NOT NULL,
			action        TEXT NOT NULL,
			target_type   TEXT NOT NULL,
			target_id     TEXT NOT NULL,
			ts            TEXT NOT NULL,
			detail_json   TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor_user_id);
		CREATE INDEX IF NOT EXISTS idx_audit_target ON audit_log(target_type, target_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "users",
			column: "display_name",
			apply:  `ALTER TABLE users ADD COLUMN display_name TEXT NOT NULL DEFAULT ''`,
		},
		{
			table:  "users",
			column: "employee_id",
			apply:  `ALTER TABLE users ADD COLUMN employee_id TEXT NOT NULL DEFAULT ''`,
		},
		{
			table:  "users",
			column: "department",
			apply:  `ALTER TABLE users ADD COLUMN department TEXT NOT NULL DEFAULT ''`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	_, err := s.db.Exec(`
		INSERT INTO schema_meta (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, schemaVersion)
	if err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}

	return nil
}

// SchemaVersion returns the schema version recorded in the database.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&v)
	if err != nil {
		return "", fmt.Errorf("querying schema version: %w", err)
	}
	return v, nil
}

// Ping checks that the database is reachable. Used by the readiness endpoint.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
