// ABOUTME: Time tracking service: start/stop the running entry, manual entries,
// ABOUTME: paged listing and deletion, all scoped to the calling user

package timetrack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bluemedia/timechamp/internal/apierr"
	"github.com/bluemedia/timechamp/internal/auth"
	"github.com/bluemedia/timechamp/internal/store"
)

// PageSize is the number of entries returned by List.
const PageSize = 50

// Service tracks working time.
type Service struct {
	repo   store.TimeEntryRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(repo store.TimeEntryRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger.With("component", "timetrack"),
		now:    time.Now,
	}
}

// EntryRequest describes a time entry supplied by a client.
type EntryRequest struct {
	Start       *time.Time
	End         *time.Time
	Type        store.TimeEntryType
	Workplace   store.Workplace
	Description *string
}

// Start opens a worktime entry at the current time.
func (s *Service) Start(ctx context.Context, userID string, workplace store.Workplace, description *string) (*store.TimeEntry, error) {
	if workplace == "" {
		workplace = store.WorkplaceOffice
	}

	_, err := s.repo.GetActiveTimeEntry(ctx, userID)
	switch {
	case err == nil:
		return nil, apierr.ErrHasActiveTimeEntry
	case !errors.Is(err, store.ErrTimeEntryNotFound):
		return nil, fmt.Errorf("checking active entry: %w: %w", auth.ErrStoreUnavailable, err)
	}

	now := s.now().UTC().Truncate(time.Second)
	entry := &store.TimeEntry{
		ID:          uuid.New().String(),
		UserID:      userID,
		Start:       now,
		Type:        store.TimeEntryWorktime,
		Workplace:   workplace,
		Description: trimDescription(description),
		CreatedAt:   now,
	}
	if err := s.create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Stop finishes the running entry at the current time.
func (s *Service) Stop(ctx context.Context, userID string) (*store.TimeEntry, error) {
	active, err := s.repo.GetActiveTimeEntry(ctx, userID)
	if errors.Is(err, store.ErrTimeEntryNotFound) {
		return nil, apierr.ErrNoActiveTimeEntry
	}
	if err != nil {
		return nil, fmt.Errorf("getting active entry: %w: %w", auth.ErrStoreUnavailable, err)
	}

	entry, err := s.repo.FinishTimeEntry(ctx, active.ID, s.now())
	if errors.Is(err, store.ErrTimeEntryNotFound) {
		// Stopped concurrently
		return nil, apierr.ErrNoActiveTimeEntry
	}
	if err != nil {
		return nil, fmt.Errorf("finishing entry: %w: %w", auth.ErrStoreUnavailable, err)
	}
	return entry, nil
}

// Active returns the running entry or store.ErrTimeEntryNotFound.
func (s *Service) Active(ctx context.Context, userID string) (*store.TimeEntry, error) {
	entry, err := s.repo.GetActiveTimeEntry(ctx, userID)
	if err != nil {
		return nil, storeError("getting active entry", err)
	}
	return entry, nil
}

// Create records a finished entry. It fails with store.ErrTimeEntryCollision
// when the span overlaps another entry of the user.
func (s *Service) Create(ctx context.Context, userID string, req EntryRequest) (*store.TimeEntry, error) {
	if req.Start == nil || req.End == nil {
		return nil, apierr.InvalidRequest("startTime and endTime are required")
	}
	start := req.Start.UTC().Truncate(time.Second)
	end := req.End.UTC().Truncate(time.Second)
	if !end.After(start) {
		return nil, apierr.InvalidRequest("endTime must be after startTime")
	}

	entryType := req.Type
	if entryType == "" {
		entryType = store.TimeEntryWorktime
	}
	workplace := req.Workplace
	if workplace == "" {
		workplace = store.WorkplaceOffice
	}

	entry := &store.TimeEntry{
		ID:          uuid.New().String(),
		UserID:      userID,
		Start:       start,
		Type:        entryType,
		Workplace:   workplace,
		Description: trimDescription(req.Description),
		CreatedAt:   s.now().UTC().Truncate(time.Second),
	}
	entry.Finish(end)

	if err := s.create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) create(ctx context.Context, entry *store.TimeEntry) error {
	err := s.repo.CreateTimeEntry(ctx, entry)
	switch {
	case err == nil:
		s.logger.Debug("time entry created", "id", entry.ID, "user_id", entry.UserID)
		return nil
	case errors.Is(err, store.ErrActiveTimeEntryExists):
		return apierr.ErrHasActiveTimeEntry
	case errors.Is(err, store.ErrTimeEntryCollision), errors.Is(err, store.ErrUserNotFound):
		return err
	default:
		return fmt.Errorf("creating entry: %w: %w", auth.ErrStoreUnavailable, err)
	}
}

// List returns up to PageSize finished entries starting before the cursor,
// newest first. A nil cursor starts at the newest entry.
func (s *Service) List(ctx context.Context, userID string, before *time.Time) ([]*store.TimeEntry, error) {
	entries, err := s.repo.ListTimeEntries(ctx, store.TimeEntryQuery{
		UserID: userID,
		Before: before,
		Limit:  PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w: %w", auth.ErrStoreUnavailable, err)
	}
	return entries, nil
}

// Delete removes an entry of the user.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteTimeEntry(ctx, userID, id); err != nil {
		return storeError("deleting entry", err)
	}
	return nil
}

func trimDescription(d *string) *string {
	if d == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*d)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func storeError(op string, err error) error {
	if errors.Is(err, store.ErrTimeEntryNotFound) {
		return store.ErrTimeEntryNotFound
	}
	return fmt.Errorf("%s: %w: %w", op, auth.ErrStoreUnavailable, err)
}
