// ABOUTME: Time entry types and repository methods on SQLiteStore
// ABOUTME: Enforces one running entry per user and rejects overlapping finished entries

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrTimeEntryCollision is returned when a finished entry overlaps an existing one.
var ErrTimeEntryCollision = errors.New("time entry collides with another one")

// TimeEntryType classifies what a time entry records.
type TimeEntryType string

const (
	TimeEntryVacation  TimeEntryType = "vacation"
	TimeEntryHoliday   TimeEntryType = "holiday"
	TimeEntryWorktime  TimeEntryType = "worktime"
	TimeEntrySickLeave TimeEntryType = "sick_leave"
	TimeEntryOther     TimeEntryType = "other"
)

// Valid reports whether t is a known entry type.
func (t TimeEntryType) Valid() bool {
	switch t {
	case TimeEntryVacation, TimeEntryHoliday, TimeEntryWorktime, TimeEntrySickLeave, TimeEntryOther:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown entry types.
func (t *TimeEntryType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("type must be a string: %w", err)
	}
	if !TimeEntryType(s).Valid() {
		return fmt.Errorf("unknown time entry type %q", s)
	}
	*t = TimeEntryType(s)
	return nil
}

// Workplace is where the time was spent.
type Workplace string

const (
	WorkplaceOffice       Workplace = "office"
	WorkplaceWorkFromHome Workplace = "work_from_home"
	WorkplaceCustomer     Workplace = "customer"
	WorkplaceBusinessTrip Workplace = "business_trip"
	WorkplaceOther        Workplace = "other"
)

// Valid reports whether w is a known workplace.
func (w Workplace) Valid() bool {
	switch w {
	case WorkplaceOffice, WorkplaceWorkFromHome, WorkplaceCustomer, WorkplaceBusinessTrip, WorkplaceOther:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown workplaces.
func (w *Workplace) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("workplace must be a string: %w", err)
	}
	if !Workplace(s).Valid() {
		return fmt.Errorf("unknown workplace %q", s)
	}
	*w = Workplace(s)
	return nil
}

// TimeEntry is a span of tracked time. An entry without End is running.
type TimeEntry struct {
	ID          string
	UserID      string
	Start       time.Time
	End         *time.Time
	Worktime    *time.Duration
	Type        TimeEntryType
	Workplace   Workplace
	Description *string
	CreatedAt   time.Time
}

// Active reports whether the entry is still running.
func (e *TimeEntry) Active() bool {
	return e.End == nil
}

// Finish sets the end time and derives the worktime.
func (e *TimeEntry) Finish(end time.Time) {
	e.End = &end
	d := end.Sub(e.Start)
	e.Worktime = &d
}

// TimeEntryQuery selects a page of finished entries.
type TimeEntryQuery struct {
	UserID string
	Before *time.Time // only entries starting strictly before this time
	Limit  int
}

// TimeEntryRepository persists time entries.
type TimeEntryRepository interface {
	CreateTimeEntry(ctx context.Context, e *TimeEntry) error
	GetTimeEntry(ctx context.Context, userID, id string) (*TimeEntry, error)
	GetActiveTimeEntry(ctx context.Context, userID string) (*TimeEntry, error)
	FinishTimeEntry(ctx context.Context, id string, end time.Time) (*TimeEntry, error)
	ListTimeEntries(ctx context.Context, q TimeEntryQuery) ([]*TimeEntry, error)
	DeleteTimeEntry(ctx context.Context, userID, id string) error
}

var _ TimeEntryRepository = (*SQLiteStore)(nil)

const timeEntryColumns = `id, user_id, start_time, end_time, worktime_seconds, type, workplace, description, created_at`

// overlapQuery finds any entry of the user intersecting [start, end).
// A running entry extends indefinitely.
const overlapQuery = `
	SELECT id FROM time_entries
	WHERE user_id = ?
	  AND start_time < ?
	  AND (end_time IS NULL OR end_time > ?)
	LIMIT 1
`

// CreateTimeEntry persists a new entry. A running entry fails with
// ErrActiveTimeEntryExists when the user already has one. A finished entry
// fails with ErrTimeEntryCollision when it overlaps an existing entry.
func (s *SQLiteStore) CreateTimeEntry(ctx context.Context, e *TimeEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if e.End != nil {
		var collidingID string
		err := tx.QueryRowContext(ctx, overlapQuery, e.UserID, formatTime(*e.End), formatTime(e.Start)).Scan(&collidingID)
		switch {
		case err == nil:
			return ErrTimeEntryCollision
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("checking time entry overlap: %w", err)
		}
	}

	query := `
		INSERT INTO time_entries (` + timeEntryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		e.ID,
		e.UserID,
		formatTime(e.Start),
		formatOptionalTime(e.End),
		worktimeSeconds(e.Worktime),
		e.Type,
		e.Workplace,
		e.Description,
		formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrActiveTimeEntryExists
		}
		if isForeignKeyError(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("inserting time entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing time entry: %w", err)
	}

	s.logger.Debug("created time entry", "id", e.ID, "user_id", e.UserID, "active", e.Active())
	return nil
}

// GetTimeEntry retrieves an entry owned by the given user.
func (s *SQLiteStore) GetTimeEntry(ctx context.Context, userID, id string) (*TimeEntry, error) {
	query := `SELECT ` + timeEntryColumns + ` FROM time_entries WHERE user_id = ? AND id = ?`

	e, err := scanTimeEntry(s.db.QueryRowContext(ctx, query, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTimeEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying time entry: %w", err)
	}
	return e, nil
}

// GetActiveTimeEntry returns the running entry of a user.
func (s *SQLiteStore) GetActiveTimeEntry(ctx context.Context, userID string) (*TimeEntry, error) {
	query := `SELECT ` + timeEntryColumns + ` FROM time_entries WHERE user_id = ? AND end_time IS NULL`

	e, err := scanTimeEntry(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTimeEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying active time entry: %w", err)
	}
	return e, nil
}

// FinishTimeEntry stops a running entry and returns it with end and worktime set.
func (s *SQLiteStore) FinishTimeEntry(ctx context.Context, id string, end time.Time) (*TimeEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + timeEntryColumns + ` FROM time_entries WHERE id = ? AND end_time IS NULL`
	e, err := scanTimeEntry(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTimeEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying time entry: %w", err)
	}

	e.Finish(end.UTC().Truncate(time.Second))

	_, err = tx.ExecContext(ctx,
		`UPDATE time_entries SET end_time = ?, worktime_seconds = ? WHERE id = ?`,
		formatOptionalTime(e.End), worktimeSeconds(e.Worktime), id,
	)
	if err != nil {
		return nil, fmt.Errorf("finishing time entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing time entry: %w", err)
	}
	return e, nil
}

// ListTimeEntries returns finished entries of a user, newest first.
func (s *SQLiteStore) ListTimeEntries(ctx context.Context, q TimeEntryQuery) ([]*TimeEntry, error) {
	query := `
		SELECT ` + timeEntryColumns + `
		FROM time_entries
		WHERE user_id = ?
		  AND end_time IS NOT NULL
		  AND (? IS NULL OR start_time < ?)
		ORDER BY start_time DESC
		LIMIT ?
	`

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	before := formatOptionalTime(q.Before)

	rows, err := s.db.QueryContext(ctx, query, q.UserID, before, before, limit)
	if err != nil {
		return nil, fmt.Errorf("querying time entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []*TimeEntry{}
	for rows.Next() {
		e, err := scanTimeEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning time entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating time entries: %w", err)
	}
	return entries, nil
}

// DeleteTimeEntry deletes an entry owned by the given user.
func (s *SQLiteStore) DeleteTimeEntry(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM time_entries WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("deleting time entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrTimeEntryNotFound
	}
	return nil
}

func worktimeSeconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	secs := int64(d.Seconds())
	return &secs
}

func scanTimeEntry(row rowScanner) (*TimeEntry, error) {
	var e TimeEntry
	var startStr, createdAtStr string
	var endStr *string
	var worktime *int64

	err := row.Scan(
		&e.ID,
		&e.UserID,
		&startStr,
		&endStr,
		&worktime,
		&e.Type,
		&e.Workplace,
		&e.Description,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	e.Start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		return nil, fmt.Errorf("parsing start_time: %w", err)
	}
	e.End, err = parseOptionalTime(endStr)
	if err != nil {
		return nil, fmt.Errorf("parsing end_time: %w", err)
	}
	if worktime != nil {
		d := time.Duration(*worktime) * time.Second
		e.Worktime = &d
	}
	e.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &e, nil
}
