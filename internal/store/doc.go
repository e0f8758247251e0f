// Package store provides persistent storage for timechamp using SQLite.
//
// # Architecture
//
// Each entity has its own narrow repository interface:
//
//   - UserRepository: accounts, password hashes and permissions
//   - SessionRepository: browser sessions keyed by an opaque session key
//   - APIKeyRepository: programmatic credentials keyed by a secret
//   - SettingsRepository: per-user working time settings
//   - TimeEntryRepository: tracked time spans
//   - AuditRepository: administrative audit log
//
// SQLiteStore implements all of them in a single struct, so callers can
// depend on exactly the interface they need.
//
// # SQLite Configuration
//
// Two drivers are supported. "sqlite" (modernc.org/sqlite, pure Go) is the
// default; "sqlite3" (github.com/mattn/go-sqlite3) requires cgo. Foreign keys,
// WAL mode and a busy timeout are set in the DSN so that every pooled
// connection gets them.
//
// Deleting a user cascades to its settings, sessions, API keys and time
// entries through ON DELETE CASCADE.
//
// # Error Handling
//
// Lookups return sentinel errors (ErrUserNotFound, ErrSessionNotFound,
// ErrAPIKeyNotFound, ...) when a row does not exist. Any other error is a
// wrapped driver error and means the database is unavailable or misbehaving.
//
// All methods accept context.Context for cancellation support.
package store
