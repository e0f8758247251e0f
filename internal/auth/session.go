// ABOUTME: Session lifecycle: issue, validate with throttled refresh, and revoke
// ABOUTME: Write-through over the session repository with an in-memory cache

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/bluemedia/timechamp/internal/sessioncache"
	"github.com/bluemedia/timechamp/internal/store"
)

// DefaultRefreshInterval is how stale a session's last access time may become
// before a request from the same IP rewrites it.
const DefaultRefreshInterval = 5 * time.Minute

// SessionStoreConfig configures a SessionStore.
type SessionStoreConfig struct {
	CacheSize       int           // 0 disables the cache
	CacheTTL        time.Duration // 0 keeps entries until evicted
	RefreshInterval time.Duration // defaults to DefaultRefreshInterval
	Logger          *slog.Logger
}

// SessionStore issues, validates and revokes browser sessions.
type SessionStore struct {
	repo     store.SessionRepository
	cache    *sessioncache.Cache
	tokens   *TokenGenerator
	loads    singleflight.Group
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSessionStore creates a SessionStore backed by repo.
func NewSessionStore(repo store.SessionRepository, cfg SessionStoreConfig) *SessionStore {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &SessionStore{
		repo:     repo,
		cache:    sessioncache.New(cfg.CacheTTL, cfg.CacheSize),
		tokens:   NewTokenGenerator(),
		interval: interval,
		logger:   logger.With("component", "sessions"),
		now:      time.Now,
	}
}

// Issue creates a session for userID and returns its opaque key. The key is
// the only way to use the session and is not returned again.
func (s *SessionStore) Issue(ctx context.Context, userID, userAgent, clientIP string) (string, *store.Session, error) {
	now := s.now().UTC().Truncate(time.Second)
	gen := s.cache.Generation()

	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		key, err := s.tokens.SessionKey()
		if err != nil {
			return "", nil, fmt.Errorf("generating session key: %w", err)
		}

		session := &store.Session{
			ID:           uuid.New().String(),
			Key:          key,
			UserID:       userID,
			UserAgent:    userAgent,
			LastAccessIP: clientIP,
			LastAccessAt: now,
			CreatedAt:    now,
		}

		err = s.repo.CreateSession(ctx, session)
		if errors.Is(err, store.ErrDuplicateKey) {
			s.logger.Warn("session key collision, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("creating session: %w: %w", ErrStoreUnavailable, err)
		}

		// Read back so the cached copy carries the owner's permission
		stored, err := s.repo.GetSessionByKey(ctx, key)
		if err != nil {
			return "", nil, fmt.Errorf("reading new session: %w: %w", ErrStoreUnavailable, err)
		}
		s.cache.PutIfUnchanged(gen, stored)

		s.logger.Info("session issued", "session_id", stored.ID, "user_id", userID, "ip", clientIP)
		return key, stored, nil
	}

	return "", nil, fmt.Errorf("creating session: %w: %w", ErrStoreUnavailable, store.ErrDuplicateKey)
}

// Validate resolves a session key. Unknown or malformed keys return
// ErrUnauthenticated. The last access time and IP are rewritten only when the
// previous write is older than the refresh interval or the IP changed.
func (s *SessionStore) Validate(ctx context.Context, key, clientIP string) (*store.Session, error) {
	if !wellFormed(key, SessionKeyLength) {
		return nil, ErrUnauthenticated
	}

	gen := s.cache.Generation()
	session, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if now.Sub(session.LastAccessAt) <= s.interval && session.LastAccessIP == clientIP {
		return session, nil
	}

	at := now.Truncate(time.Second)
	err = s.repo.TouchSession(ctx, session.ID, at, clientIP)
	if errors.Is(err, store.ErrSessionNotFound) {
		// Revoked between lookup and touch
		s.cache.Delete(key)
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("refreshing session: %w: %w", ErrStoreUnavailable, err)
	}

	if session.LastAccessIP != clientIP {
		s.logger.Debug("session used from new address", "session_id", session.ID, "old_ip", session.LastAccessIP, "ip", clientIP)
	}
	session.LastAccessAt = at
	session.LastAccessIP = clientIP
	s.cache.PutIfUnchanged(gen, session)
	return session, nil
}

// lookup returns a private copy of the session for key, from the cache or the
// repository. Concurrent misses for the same key share one query, which is
// detached from the first caller's cancellation. A load that overlaps a
// revoke is returned to its callers but not cached.
func (s *SessionStore) lookup(ctx context.Context, key string) (*store.Session, error) {
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	v, err, _ := s.loads.Do(key, func() (any, error) {
		gen := s.cache.Generation()
		session, err := s.repo.GetSessionByKey(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		s.cache.PutIfUnchanged(gen, session)
		return session, nil
	})
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w: %w", ErrStoreUnavailable, err)
	}

	session := *v.(*store.Session)
	return &session, nil
}

// Revoke deletes the session with the given key. The row goes first so a
// concurrent load either misses it or sees the eviction.
func (s *SessionStore) Revoke(ctx context.Context, key string) error {
	err := s.repo.DeleteSessionByKey(ctx, key)
	s.cache.Delete(key)
	s.loads.Forget(key)
	if err != nil {
		return classify("revoking session", err, store.ErrSessionNotFound)
	}
	return nil
}

// RevokeByID deletes the session with the given ID.
func (s *SessionStore) RevokeByID(ctx context.Context, id string) error {
	err := s.repo.DeleteSession(ctx, id)
	s.cache.DeleteByID(id)
	if err != nil {
		return classify("revoking session", err, store.ErrSessionNotFound)
	}
	return nil
}

// RevokeAllForUser deletes every session of userID and evicts them from the cache.
func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.DeleteSessionsByUser(ctx, userID)
	s.cache.DeleteByUser(userID)
	if err != nil {
		return 0, fmt.Errorf("revoking sessions: %w: %w", ErrStoreUnavailable, err)
	}
	return n, nil
}

// EvictUser drops cached sessions of userID without touching the repository.
// Used after the owner was deleted and the rows went with it.
func (s *SessionStore) EvictUser(userID string) int {
	return s.cache.DeleteByUser(userID)
}

// Get returns a session by ID.
func (s *SessionStore) Get(ctx context.Context, id string) (*store.Session, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, classify("getting session", err, store.ErrSessionNotFound)
	}
	return session, nil
}

// ListForUser returns all sessions of userID.
func (s *SessionStore) ListForUser(ctx context.Context, userID string) ([]*store.Session, error) {
	sessions, err := s.repo.ListSessionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w: %w", ErrStoreUnavailable, err)
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	return sessions, nil
}

// Close stops the cache's background cleanup.
func (s *SessionStore) Close() {
	s.cache.Close()
}

// classify passes expected not-found errors through unchanged and marks
// everything else as a store failure.
func classify(op string, err error, notFound error) error {
	if errors.Is(err, notFound) {
		return notFound
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
