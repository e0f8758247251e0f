// ABOUTME: Tests for session issue, validation, refresh throttling and revocation
// ABOUTME: Runs against a temporary SQLite store with a controllable clock

package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluemedia/timechamp/internal/store"
)

func newTestSessionStore(t *testing.T, repo store.SessionRepository, cacheSize int) (*SessionStore, *fixedClock) {
	t.Helper()
	clock := newClock()
	s := NewSessionStore(repo, SessionStoreConfig{CacheSize: cacheSize})
	s.now = clock.now
	t.Cleanup(s.Close)
	return s, clock
}

func TestSessionIssueAndValidate(t *testing.T) {
	db := setupTestStore(t)
	user := createUser(t, db, "alice", store.PermissionReadWrite)
	sessions, _ := newTestSessionStore(t, db, 100)
	ctx := context.Background()

	key, issued, err := sessions.Issue(ctx, user.ID, "Firefox on Linux", "10.0.0.1")
	require.NoError(t, err)
	assert.Len(t, key, SessionKeyLength)
	assert.Equal(t, user.ID, issued.UserID)
	assert.Equal(t, store.PermissionReadWrite, issued.Permission)

	got, err := sessions.Validate(ctx, key, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, issued.ID, got.ID)
	assert.Equal(t, store.PermissionReadWrite, got.Permission)
}

func TestSessionValidateUnknownKey(t *testing.T) {
	db := setupTestStore(t)
	sessions, _ := newTestSessionStore(t, db, 100)

	_, err := sessions.Validate(context.Background(), strings.Repeat("x", SessionKeyLength), "10.0.0.1")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = sessions.Validate(context.Background(), "short", "10.0.0.1")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSessionRefreshThrottle(t *testing.T) {
	for _, cacheSize := range []int{0, 100} {
		t.Run(map[int]string{0: "uncached", 100: "cached"}[cacheSize], func(t *testing.T) {
			db := setupTestStore(t)
			user := createUser(t, db, "bob", store.PermissionRead)
			sessions, clock := newTestSessionStore(t, db, cacheSize)
			ctx := context.Background()

			key, issued, err := sessions.Issue(ctx, user.ID, "ua", "10.0.0.1")
			require.NoError(t, err)
			start := issued.LastAccessAt

			// Within the interval and same IP: no write
			clock.advance(4 * time.Minute)
			_, err = sessions.Validate(ctx, key, "10.0.0.1")
			require.NoError(t, err)
			row, err := db.GetSession(ctx, issued.ID)
			require.NoError(t, err)
			assert.True(t, row.LastAccessAt.Equal(start))

			// Past the interval: written
			clock.advance(2 * time.Minute)
			_, err = sessions.Validate(ctx, key, "10.0.0.1")
			require.NoError(t, err)
			row, err = db.GetSession(ctx, issued.ID)
			require.NoError(t, err)
			assert.True(t, row.LastAccessAt.Equal(clock.t))

			// New IP inside the interval: written
			clock.advance(time.Minute)
			got, err := sessions.Validate(ctx, key, "192.168.1.7")
			require.NoError(t, err)
			assert.Equal(t, "192.168.1.7", got.LastAccessIP)
			row, err = db.GetSession(ctx, issued.ID)
			require.NoError(t, err)
			assert.Equal(t, "192.168.1.7", row.LastAccessIP)
			assert.True(t, row.LastAccessAt.Equal(clock.t))
		})
	}
}

func TestSessionRevoke(t *testing.T) {
	db := setupTestStore(t)
	user := createUser(t, db, "carol", store.PermissionRead)
	sessions, _ := newTestSessionStore(t, db, 100)
	ctx := context.Background()

	key, _, err := sessions.Issue(ctx, user.ID, "ua", "10.0.0.1")
	require.NoError(t, err)
	_, err = sessions.Validate(ctx, key, "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, sessions.Revoke(ctx, key))

	_, err = sessions.Validate(ctx, key, "10.0.0.1")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	assert.ErrorIs(t, sessions.Revoke(ctx, key), store.ErrSessionNotFound)
}

func TestSessionRevokeByID(t *testing.T) {
	db := setupTestStore(t)
	user := createUser(t, db, "dave", store.PermissionRead)
	sessions, _ := newTestSessionStore(t, db, 100)
	ctx := context.Background()

	key, issued, err := sessions.Issue(ctx, user.ID, "ua", "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, sessions.RevokeByID(ctx, issued.ID))
	_, err = sessions.Validate(ctx, key, "10.0.0.1")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = sessions.Get(ctx, issued.ID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestSessionRevokeAllForUser(t *testing.T) {
	db := setupTestStore(t)
	alice := createUser(t, db, "alice", store.PermissionRead)
	bob := createUser(t, db, "bob", store.PermissionRead)
	sessions, _ := newTestSessionStore(t, db, 100)
	ctx := context.Background()

	k1, _, err := sessions.Issue(ctx, alice.ID, "ua", "10.0.0.1")
	require.NoError(t, err)
	k2, _, err := sessions.Issue(ctx, alice.ID, "ua", "10.0.0.2")
	require.NoError(t, err)
	kb, _, err := sessions.Issue(ctx, bob.ID, "ua", "10.0.0.3")
	require.NoError(t, err)

	n, err := sessions.RevokeAllForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, key := range []string{k1, k2} {
		_, err := sessions.Validate(ctx, key, "10.0.0.1")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	}
	_, err = sessions.Validate(ctx, kb, "10.0.0.3")
	assert.NoError(t, err)

	list, err := sessions.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)
}

func TestSessionPermissionFollowsUser(t *testing.T) {
	db := setupTestStore(t)
	user := createUser(t, db, "erin", store.PermissionRead)
	sessions, _ := newTestSessionStore(t, db, 0)
	ctx := context.Background()

	key, _, err := sessions.Issue(ctx, user.ID, "ua", "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, db.UpdateUserPermission(ctx, user.ID, store.PermissionManage))

	got, err := sessions.Validate(ctx, key, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, store.PermissionManage, got.Permission)
}

func TestSessionDeletedUser(t *testing.T) {
	db := setupTestStore(t)
	user := createUser(t, db, "frank", store.PermissionRead)
	sessions, _ := newTestSessionStore(t, db, 100)
	ctx := context.Background()

	key, _, err := sessions.Issue(ctx, user.ID, "ua", "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, db.DeleteUser(ctx, user.ID))
	assert.Equal(t, 1, sessions.EvictUser(user.ID))

	_, err = sessions.Validate(ctx, key, "10.0.0.1")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSessionStoreUnavailable(t *testing.T) {
	sessions, _ := newTestSessionStore(t, failingSessions{}, 100)
	ctx := context.Background()

	_, err := sessions.Validate(ctx, strings.Repeat("a", SessionKeyLength), "10.0.0.1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, errDiskIO)
	assert.NotErrorIs(t, err, ErrUnauthenticated)

	_, _, err = sessions.Issue(ctx, "user", "ua", "10.0.0.1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestSessionIssueRetriesCollision(t *testing.T) {
	db := setupTestStore(t)
	user := createUser(t, db, "gina", store.PermissionRead)
	repo := &duplicateOnceSessions{SessionRepository: db}
	sessions, _ := newTestSessionStore(t, repo, 100)

	key, _, err := sessions.Issue(context.Background(), user.ID, "ua", "10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.Equal(t, 2, repo.calls)
}

func TestSessionCacheAvoidsLookups(t *testing.T) {
	db := setupTestStore(t)
	user := createUser(t, db, "hank", store.PermissionRead)
	repo := &countingSessions{SessionRepository: db}
	sessions, _ := newTestSessionStore(t, repo, 100)
	ctx := context.Background()

	key, _, err := sessions.Issue(ctx, user.ID, "ua", "10.0.0.1")
	require.NoError(t, err)
	issueLookups := repo.lookups

	for i := 0; i < 5; i++ {
		_, err := sessions.Validate(ctx, key, "10.0.0.1")
		require.NoError(t, err)
	}
	assert.Equal(t, issueLookups, repo.lookups)
}

func TestSessionConcurrentValidate(t *testing.T) {
	db := setupTestStore(t)
	user := createUser(t, db, "ivy", store.PermissionRead)
	sessions, _ := newTestSessionStore(t, db, 100)
	ctx := context.Background()

	key, _, err := sessions.Issue(ctx, user.ID, "ua", "10.0.0.1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sessions.Validate(ctx, key, "10.0.0.1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestSessionRevokeDuringLoad(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		revoke func(t *testing.T, sessions *SessionStore, db *store.SQLiteStore, key string, issued *store.Session)
	}{
		{"by key", func(t *testing.T, sessions *SessionStore, _ *store.SQLiteStore, key string, _ *store.Session) {
			require.NoError(t, sessions.Revoke(ctx, key))
		}},
		{"by id", func(t *testing.T, sessions *SessionStore, _ *store.SQLiteStore, _ string, issued *store.Session) {
			require.NoError(t, sessions.RevokeByID(ctx, issued.ID))
		}},
		{"all for user", func(t *testing.T, sessions *SessionStore, _ *store.SQLiteStore, _ string, issued *store.Session) {
			n, err := sessions.RevokeAllForUser(ctx, issued.UserID)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		}},
		{"user deleted", func(t *testing.T, sessions *SessionStore, db *store.SQLiteStore, _ string, issued *store.Session) {
			require.NoError(t, db.DeleteUser(ctx, issued.UserID))
			sessions.EvictUser(issued.UserID)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestStore(t)
			user := createUser(t, db, "judy", store.PermissionReadWrite)
			issuer, _ := newTestSessionStore(t, db, 100)
			key, issued, err := issuer.Issue(ctx, user.ID, "ua", "10.0.0.1")
			require.NoError(t, err)

			repo := newGatedSessions(db)
			sessions, _ := newTestSessionStore(t, repo, 100)

			// Cold cache: the load reads the row, then the revoke lands
			repo.armed.Store(true)
			done := make(chan struct{})
			go func() {
				defer close(done)
				_, _ = sessions.Validate(ctx, key, "10.0.0.1")
			}()
			<-repo.loaded
			tt.revoke(t, sessions, db, key, issued)
			close(repo.release)
			<-done

			_, err = db.GetSession(ctx, issued.ID)
			require.ErrorIs(t, err, store.ErrSessionNotFound)

			_, cached := sessions.cache.Get(key)
			assert.False(t, cached)
			_, err = sessions.Validate(ctx, key, "10.0.0.1")
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestSessionLoadIgnoresCallerCancellation(t *testing.T) {
	db := setupTestStore(t)
	user := createUser(t, db, "kate", store.PermissionRead)
	issuer, _ := newTestSessionStore(t, db, 100)
	key, issued, err := issuer.Issue(context.Background(), user.ID, "ua", "10.0.0.1")
	require.NoError(t, err)

	sessions, _ := newTestSessionStore(t, db, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := sessions.Validate(ctx, key, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, issued.ID, got.ID)
}
