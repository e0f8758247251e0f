// ABOUTME: Shared fixtures for auth tests: a temporary SQLite store,
// ABOUTME: seeded users, and repositories that simulate database failures

package auth

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bluemedia/timechamp/internal/store"
)

var errDiskIO = errors.New("disk I/O error")

func setupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *store.SQLiteStore, username string, perm store.Permission) *store.User {
	t.Helper()
	user := &store.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: "unused",
		PasswordSalt: "unused",
		Permission:   perm,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}

// fixedClock returns a settable clock for stores under test.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fixedClock {
	return &fixedClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

// failingSessions simulates a database that is down.
type failingSessions struct {
	store.SessionRepository
}

func (failingSessions) GetSessionByKey(context.Context, string) (*store.Session, error) {
	return nil, errDiskIO
}

func (failingSessions) CreateSession(context.Context, *store.Session) error {
	return errDiskIO
}

// failingAPIKeys simulates a database that is down.
type failingAPIKeys struct {
	store.APIKeyRepository
}

func (failingAPIKeys) GetAPIKeyBySecret(context.Context, string) (*store.APIKey, error) {
	return nil, errDiskIO
}

// duplicateOnceSessions reports a key collision on the first insert.
type duplicateOnceSessions struct {
	store.SessionRepository
	calls int
}

func (d *duplicateOnceSessions) CreateSession(ctx context.Context, session *store.Session) error {
	d.calls++
	if d.calls == 1 {
		return store.ErrDuplicateKey
	}
	return d.SessionRepository.CreateSession(ctx, session)
}

// countingSessions counts key lookups that reach the repository.
type countingSessions struct {
	store.SessionRepository
	lookups int
}

func (c *countingSessions) GetSessionByKey(ctx context.Context, key string) (*store.Session, error) {
	c.lookups++
	return c.SessionRepository.GetSessionByKey(ctx, key)
}

// gatedSessions pauses the next armed key lookup after it has read the row,
// until release is closed.
type gatedSessions struct {
	store.SessionRepository
	armed   atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func newGatedSessions(repo store.SessionRepository) *gatedSessions {
	return &gatedSessions{
		SessionRepository: repo,
		loaded:            make(chan struct{}),
		release:           make(chan struct{}),
	}
}

func (g *gatedSessions) GetSessionByKey(ctx context.Context, key string) (*store.Session, error) {
	session, err := g.SessionRepository.GetSessionByKey(ctx, key)
	if g.armed.CompareAndSwap(true, false) {
		close(g.loaded)
		<-g.release
	}
	return session, err
}
