// ABOUTME: Session repository methods on SQLiteStore
// ABOUTME: Sessions are read together with the owning user's current permission

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sessionSelect = `
	SELECT s.id, s.session_key, s.user_id, s.user_agent, s.last_access_ip,
	       s.last_access_at, s.created_at, u.permission
	FROM sessions s
	JOIN users u ON u.id = s.user_id
`

// CreateSession persists a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (id, session_key, user_id, user_agent, last_access_ip, last_access_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.Key,
		session.UserID,
		session.UserAgent,
		session.LastAccessIP,
		formatTime(session.LastAccessAt),
		formatTime(session.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("created session", "id", session.ID, "user_id", session.UserID)
	return nil
}

// GetSession retrieves a session by its ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, sessionSelect+` WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return session, nil
}

// GetSessionByKey retrieves a session by its opaque key.
func (s *SQLiteStore) GetSessionByKey(ctx context.Context, key string) (*Session, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, sessionSelect+` WHERE s.session_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session by key: %w", err)
	}
	return session, nil
}

// ListSessionsByUser returns all sessions of a user, most recently used first.
func (s *SQLiteStore) ListSessionsByUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, sessionSelect+` WHERE s.user_id = ? ORDER BY s.last_access_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// TouchSession records the last access time and client IP.
func (s *SQLiteStore) TouchSession(ctx context.Context, id string, at time.Time, ip string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_access_at = ?, last_access_ip = ? WHERE id = ?`,
		formatTime(at), ip, id,
	)
	if err != nil {
		return fmt.Errorf("updating session access: %w", err)
	}
	return checkSessionAffected(result)
}

// DeleteSession deletes a session by ID.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return checkSessionAffected(result)
}

// DeleteSessionByKey deletes a session by its opaque key.
func (s *SQLiteStore) DeleteSessionByKey(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting session by key: %w", err)
	}
	return checkSessionAffected(result)
}

// DeleteSessionsByUser deletes every session of a user and returns how many were removed.
func (s *SQLiteStore) DeleteSessionsByUser(ctx context.Context, userID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting sessions of user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	s.logger.Info("deleted sessions of user", "user_id", userID, "count", rows)
	return int(rows), nil
}

func checkSessionAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func scanSession(row rowScanner) (*Session, error) {
	var session Session
	var lastAccessStr, createdAtStr string

	err := row.Scan(
		&session.ID,
		&session.Key,
		&session.UserID,
		&session.UserAgent,
		&session.LastAccessIP,
		&lastAccessStr,
		&createdAtStr,
		&session.Permission,
	)
	if err != nil {
		return nil, err
	}

	session.LastAccessAt, err = time.Parse(time.RFC3339, lastAccessStr)
	if err != nil {
		return nil, fmt.Errorf("parsing last_access_at: %w", err)
	}
	session.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &session, nil
}
