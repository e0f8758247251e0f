// ABOUTME: API key repository methods on SQLiteStore
// ABOUTME: Secrets are unique and looked up directly when a key authenticates

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const apiKeyColumns = `id, name, user_id, secret, permission, last_access_at, created_at`

// CreateAPIKey persists a new API key.
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	query := `
		INSERT INTO api_keys (` + apiKeyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		key.ID,
		key.Name,
		key.UserID,
		key.Secret,
		key.Permission,
		formatOptionalTime(key.LastAccessAt),
		formatTime(key.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("inserting api key: %w", err)
	}

	s.logger.Info("created api key", "id", key.ID, "user_id", key.UserID, "permission", key.Permission)
	return nil
}

// GetAPIKey retrieves an API key by ID.
func (s *SQLiteStore) GetAPIKey(ctx context.Context, id string) (*APIKey, error) {
	key, err := scanAPIKey(s.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	return key, nil
}

// GetAPIKeyBySecret retrieves an API key by its secret.
func (s *SQLiteStore) GetAPIKeyBySecret(ctx context.Context, secret string) (*APIKey, error) {
	key, err := scanAPIKey(s.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE secret = ?`, secret))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key by secret: %w", err)
	}
	return key, nil
}

// ListAPIKeysByUser returns all API keys of a user ordered by creation time.
func (s *SQLiteStore) ListAPIKeysByUser(ctx context.Context, userID string) ([]*APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = ? ORDER BY created_at ASC, name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying api keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []*APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api keys: %w", err)
	}
	return keys, nil
}

// TouchAPIKey records the last time a key was used.
func (s *SQLiteStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_access_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("updating api key access: %w", err)
	}
	return checkAPIKeyAffected(result)
}

// UpdateAPIKeyPermission changes the permission of a key.
func (s *SQLiteStore) UpdateAPIKeyPermission(ctx context.Context, id string, permission Permission) error {
	result, err := s.db.ExecContext(ctx, `UPDATE api_keys SET permission = ? WHERE id = ?`, permission, id)
	if err != nil {
		return fmt.Errorf("updating api key permission: %w", err)
	}
	return checkAPIKeyAffected(result)
}

// DeleteAPIKey deletes a key by ID.
func (s *SQLiteStore) DeleteAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	if err := checkAPIKeyAffected(result); err != nil {
		return err
	}

	s.logger.Info("deleted api key", "id", id)
	return nil
}

// DeleteAPIKeysByUser deletes every key of a user and returns how many were removed.
func (s *SQLiteStore) DeleteAPIKeysByUser(ctx context.Context, userID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting api keys of user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(rows), nil
}

func checkAPIKeyAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

func scanAPIKey(row rowScanner) (*APIKey, error) {
	var key APIKey
	var lastAccess *string
	var createdAtStr string

	err := row.Scan(
		&key.ID,
		&key.Name,
		&key.UserID,
		&key.Secret,
		&key.Permission,
		&lastAccess,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	key.LastAccessAt, err = parseOptionalTime(lastAccess)
	if err != nil {
		return nil, fmt.Errorf("parsing last_access_at: %w", err)
	}
	key.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &key, nil
}
