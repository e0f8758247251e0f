// ABOUTME: API key lifecycle: create, validate bearer secrets, update and revoke
// ABOUTME: Only MANAGE principals may create or raise a key to MANAGE

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bluemedia/timechamp/internal/store"
)

// bearerPrefix precedes the secret in the X-API-Key header.
const bearerPrefix = "Bearer "

// APIKeyStore manages API keys.
type APIKeyStore struct {
	repo   store.APIKeyRepository
	tokens *TokenGenerator
	logger *slog.Logger
	now    func() time.Time
}

// NewAPIKeyStore creates an APIKeyStore backed by repo.
func NewAPIKeyStore(repo store.APIKeyRepository, logger *slog.Logger) *APIKeyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyStore{
		repo:   repo,
		tokens: NewTokenGenerator(),
		logger: logger.With("component", "apikeys"),
		now:    time.Now,
	}
}

// Create issues a new key for ownerID. Requesting MANAGE without holding
// MANAGE returns ErrForbidden and creates nothing.
func (s *APIKeyStore) Create(ctx context.Context, ownerID, name string, requested, ownerPermission store.Permission) (*store.APIKey, error) {
	if !requested.Valid() {
		return nil, fmt.Errorf("invalid permission %q", requested)
	}
	if !CanGrant(ownerPermission, requested) {
		return nil, ErrForbidden
	}

	now := s.now().UTC().Truncate(time.Second)
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		secret, err := s.tokens.APIKeySecret()
		if err != nil {
			return nil, fmt.Errorf("generating api key secret: %w", err)
		}

		key := &store.APIKey{
			ID:         uuid.New().String(),
			Name:       name,
			UserID:     ownerID,
			Secret:     secret,
			Permission: requested,
			CreatedAt:  now,
		}

		err = s.repo.CreateAPIKey(ctx, key)
		if errors.Is(err, store.ErrDuplicateKey) {
			s.logger.Warn("api key secret collision, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating api key: %w: %w", ErrStoreUnavailable, err)
		}
		return key, nil
	}

	return nil, fmt.Errorf("creating api key: %w: %w", ErrStoreUnavailable, store.ErrDuplicateKey)
}

// StripBearer removes the "Bearer " prefix from an X-API-Key header value.
func StripBearer(header string) string {
	return strings.TrimPrefix(strings.TrimSpace(header), bearerPrefix)
}

// Validate resolves an X-API-Key header value and records the access.
func (s *APIKeyStore) Validate(ctx context.Context, header string) (*store.APIKey, error) {
	secret := StripBearer(header)
	if !wellFormed(secret, APIKeySecretLength) {
		return nil, ErrUnauthenticated
	}

	key, err := s.repo.GetAPIKeyBySecret(ctx, secret)
	if errors.Is(err, store.ErrAPIKeyNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("loading api key: %w: %w", ErrStoreUnavailable, err)
	}

	now := s.now().UTC().Truncate(time.Second)
	err = s.repo.TouchAPIKey(ctx, key.ID, now)
	if errors.Is(err, store.ErrAPIKeyNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("touching api key: %w: %w", ErrStoreUnavailable, err)
	}
	key.LastAccessAt = &now
	return key, nil
}

// Get returns a key by ID.
func (s *APIKeyStore) Get(ctx context.Context, id string) (*store.APIKey, error) {
	key, err := s.repo.GetAPIKey(ctx, id)
	if err != nil {
		return nil, classify("getting api key", err, store.ErrAPIKeyNotFound)
	}
	return key, nil
}

// ListForOwner returns all keys of ownerID.
func (s *APIKeyStore) ListForOwner(ctx context.Context, ownerID string) ([]*store.APIKey, error) {
	keys, err := s.repo.ListAPIKeysByUser(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w: %w", ErrStoreUnavailable, err)
	}
	if keys == nil {
		keys = []*store.APIKey{}
	}
	return keys, nil
}

// UpdatePermission changes a key's permission. Raising a key to MANAGE
// requires the requester to hold MANAGE. Callers must separately reject a key
// changing its own permission.
func (s *APIKeyStore) UpdatePermission(ctx context.Context, id string, permission, requesterPermission store.Permission) (*store.APIKey, error) {
	if !permission.Valid() {
		return nil, fmt.Errorf("invalid permission %q", permission)
	}
	if !CanGrant(requesterPermission, permission) {
		return nil, ErrForbidden
	}
	if err := s.repo.UpdateAPIKeyPermission(ctx, id, permission); err != nil {
		return nil, classify("updating api key permission", err, store.ErrAPIKeyNotFound)
	}
	return s.Get(ctx, id)
}

// Revoke deletes a key by ID.
func (s *APIKeyStore) Revoke(ctx context.Context, id string) error {
	if err := s.repo.DeleteAPIKey(ctx, id); err != nil {
		return classify("revoking api key", err, store.ErrAPIKeyNotFound)
	}
	return nil
}

// RevokeAllForOwner deletes every key of ownerID.
func (s *APIKeyStore) RevokeAllForOwner(ctx context.Context, ownerID string) (int, error) {
	n, err := s.repo.DeleteAPIKeysByUser(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("revoking api keys: %w: %w", ErrStoreUnavailable, err)
	}
	return n, nil
}
