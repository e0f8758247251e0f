// ABOUTME: Store interfaces, shared errors, and entity types for timechamp persistence
// ABOUTME: One repository interface per entity; SQLiteStore implements all of them

package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrUserNotFound is returned when a user doesn't exist.
var ErrUserNotFound = errors.New("user not found")

// ErrSessionNotFound is returned when a session doesn't exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrAPIKeyNotFound is returned when an API key doesn't exist.
var ErrAPIKeyNotFound = errors.New("api key not found")

// ErrTimeEntryNotFound is returned when a time entry doesn't exist.
var ErrTimeEntryNotFound = errors.New("time entry not found")

// ErrSettingsNotFound is returned when a user has no settings row.
var ErrSettingsNotFound = errors.New("user settings not found")

// ErrUsernameExists is returned when trying to create a user with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// ErrDuplicateKey is returned when a generated session key or API key secret
// collides with an existing one.
var ErrDuplicateKey = errors.New("duplicate credential key")

// ErrActiveTimeEntryExists is returned when starting a second active time entry.
var ErrActiveTimeEntryExists = errors.New("user already has an active time entry")

// User is an account that can log in and own sessions, API keys and time entries.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	PasswordSalt string
	Permission   Permission
	DisplayName  string
	EmployeeID   string
	Department   string
	LastLoginAt  *time.Time
	CreatedAt    time.Time
}

// Session is a logged-in browser identified by an opaque session key.
type Session struct {
	ID           string
	Key          string
	UserID       string
	UserAgent    string
	LastAccessIP string
	LastAccessAt time.Time
	CreatedAt    time.Time

	// Permission is the owning user's current permission, read with the session.
	Permission Permission
}

// APIKey is a long-lived programmatic credential with its own permission.
type APIKey struct {
	ID           string
	Name         string
	UserID       string
	Secret       string
	Permission   Permission
	LastAccessAt *time.Time
	CreatedAt    time.Time
}

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	CountUsers(ctx context.Context) (int, error)
	UpdateUserPassword(ctx context.Context, id, hash, salt string) error
	UpdateUserPermission(ctx context.Context, id string, permission Permission) error
	UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error
}

// SessionRepository persists sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	GetSessionByKey(ctx context.Context, key string) (*Session, error)
	ListSessionsByUser(ctx context.Context, userID string) ([]*Session, error)
	TouchSession(ctx context.Context, id string, at time.Time, ip string) error
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionByKey(ctx context.Context, key string) error
	DeleteSessionsByUser(ctx context.Context, userID string) (int, error)
}

// APIKeyRepository persists API keys.
type APIKeyRepository interface {
	CreateAPIKey(ctx context.Context, key *APIKey) error
	GetAPIKey(ctx context.Context, id string) (*APIKey, error)
	GetAPIKeyBySecret(ctx context.Context, secret string) (*APIKey, error)
	ListAPIKeysByUser(ctx context.Context, userID string) ([]*APIKey, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
	UpdateAPIKeyPermission(ctx context.Context, id string, permission Permission) error
	DeleteAPIKey(ctx context.Context, id string) error
	DeleteAPIKeysByUser(ctx context.Context, userID string) (int, error)
}

// Ensure SQLiteStore implements the credential repositories.
var (
	_ UserRepository    = (*SQLiteStore)(nil)
	_ SessionRepository = (*SQLiteStore)(nil)
	_ APIKeyRepository  = (*SQLiteStore)(nil)
)

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}

// isForeignKeyError checks if an error is a foreign key constraint violation.
func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// formatTime stores timestamps as RFC3339 UTC text.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// formatOptionalTime returns nil for a nil time so the column stays NULL.
func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// parseOptionalTime parses a nullable RFC3339 column.
func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
