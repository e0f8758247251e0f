// ABOUTME: Per-user working time settings and their repository methods
// ABOUTME: One settings row per user, created together with the account

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UserSettings holds a user's weekly target hours and break rules.
type UserSettings struct {
	UserID                string
	HoursMonday           float64
	HoursTuesday          float64
	HoursWednesday        float64
	HoursThursday         float64
	HoursFriday           float64
	HoursSaturday         float64
	HoursSunday           float64
	VacationDays          float64
	AutoBreak             bool
	BreakDurationMinutes  int
	BreakThresholdMinutes int
	BreakStartTime        string // "HH:MM", empty when unset
	UpdatedAt             time.Time
}

// DefaultUserSettings returns the settings a new user starts with:
// eight hours Monday to Friday and no automatic break.
func DefaultUserSettings(userID string) *UserSettings {
	return &UserSettings{
		UserID:         userID,
		HoursMonday:    8,
		HoursTuesday:   8,
		HoursWednesday: 8,
		HoursThursday:  8,
		HoursFriday:    8,
		UpdatedAt:      time.Now().UTC(),
	}
}

// SettingsRepository persists user settings.
type SettingsRepository interface {
	GetUserSettings(ctx context.Context, userID string) (*UserSettings, error)
	SaveUserSettings(ctx context.Context, settings *UserSettings) error
}

var _ SettingsRepository = (*SQLiteStore)(nil)

// GetUserSettings returns the settings of a user.
func (s *SQLiteStore) GetUserSettings(ctx context.Context, userID string) (*UserSettings, error) {
	query := `
		SELECT user_id, hours_monday, hours_tuesday, hours_wednesday, hours_thursday,
		       hours_friday, hours_saturday, hours_sunday, vacation_days, auto_break,
		       break_duration_minutes, break_threshold_minutes, break_start_time, updated_at
		FROM user_settings
		WHERE user_id = ?
	`

	var st UserSettings
	var autoBreak int
	var updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&st.UserID,
		&st.HoursMonday,
		&st.HoursTuesday,
		&st.HoursWednesday,
		&st.HoursThursday,
		&st.HoursFriday,
		&st.HoursSaturday,
		&st.HoursSunday,
		&st.VacationDays,
		&autoBreak,
		&st.BreakDurationMinutes,
		&st.BreakThresholdMinutes,
		&st.BreakStartTime,
		&updatedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user settings: %w", err)
	}

	st.AutoBreak = autoBreak != 0
	st.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &st, nil
}

// SaveUserSettings inserts or replaces the settings of a user.
func (s *SQLiteStore) SaveUserSettings(ctx context.Context, st *UserSettings) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO user_settings (
			user_id, hours_monday, hours_tuesday, hours_wednesday, hours_thursday,
			hours_friday, hours_saturday, hours_sunday, vacation_days, auto_break,
			break_duration_minutes, break_threshold_minutes, break_start_time, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			hours_monday = excluded.hours_monday,
			hours_tuesday = excluded.hours_tuesday,
			hours_wednesday = excluded.hours_wednesday,
			hours_thursday = excluded.hours_thursday,
			hours_friday = excluded.hours_friday,
			hours_saturday = excluded.hours_saturday,
			hours_sunday = excluded.hours_sunday,
			vacation_days = excluded.vacation_days,
			auto_break = excluded.auto_break,
			break_duration_minutes = excluded.break_duration_minutes,
			break_threshold_minutes = excluded.break_threshold_minutes,
			break_start_time = excluded.break_start_time,
			updated_at = excluded.updated_at
	`

	autoBreak := 0
	if st.AutoBreak {
		autoBreak = 1
	}

	_, err := s.db.ExecContext(ctx, query,
		st.UserID,
		st.HoursMonday,
		st.HoursTuesday,
		st.HoursWednesday,
		st.HoursThursday,
		st.HoursFriday,
		st.HoursSaturday,
		st.HoursSunday,
		st.VacationDays,
		autoBreak,
		st.BreakDurationMinutes,
		st.BreakThresholdMinutes,
		st.BreakStartTime,
		formatTime(st.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("saving user settings: %w", err)
	}
	return nil
}
