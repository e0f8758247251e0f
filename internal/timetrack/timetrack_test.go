// ABOUTME: Tests for the time tracking service
// ABOUTME: Start/stop rules, manual entry collisions, paging and scoped deletes

package timetrack

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluemedia/timechamp/internal/apierr"
	"github.com/bluemedia/timechamp/internal/store"
)

func setup(t *testing.T) (*Service, *store.SQLiteStore, *time.Time) {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "time.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	svc := NewService(db, nil)
	svc.now = func() time.Time { return clock }
	return svc, db, &clock
}

func createUser(t *testing.T, db *store.SQLiteStore, name string) string {
	t.Helper()
	user := &store.User{
		ID:           uuid.New().String(),
		Username:     name,
		PasswordHash: "h",
		PasswordSalt: "s",
		Permission:   store.PermissionReadWrite,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, db.CreateUser(context.Background(), user))
	return user.ID
}

func at(hour, minute int) *time.Time {
	t := time.Date(2026, 5, 1, hour, minute, 0, 0, time.UTC)
	return &t
}

func TestStartStop(t *testing.T) {
	svc, db, clock := setup(t)
	ctx := context.Background()
	userID := createUser(t, db, "alice")

	entry, err := svc.Start(ctx, userID, "", nil)
	require.NoError(t, err)
	assert.True(t, entry.Active())
	assert.Equal(t, store.TimeEntryWorktime, entry.Type)
	assert.Equal(t, store.WorkplaceOffice, entry.Workplace)

	_, err = svc.Start(ctx, userID, store.WorkplaceWorkFromHome, nil)
	assert.ErrorIs(t, err, apierr.ErrHasActiveTimeEntry)

	active, err := svc.Active(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, active.ID)

	*clock = clock.Add(90 * time.Minute)
	stopped, err := svc.Stop(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, stopped.Worktime)
	assert.Equal(t, 90*time.Minute, *stopped.Worktime)

	_, err = svc.Stop(ctx, userID)
	assert.ErrorIs(t, err, apierr.ErrNoActiveTimeEntry)

	_, err = svc.Active(ctx, userID)
	assert.ErrorIs(t, err, store.ErrTimeEntryNotFound)
}

func TestCreateManualEntry(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	userID := createUser(t, db, "bob")
	desc := "  planning  "

	entry, err := svc.Create(ctx, userID, EntryRequest{
		Start:       at(9, 0),
		End:         at(12, 0),
		Type:        store.TimeEntryVacation,
		Description: &desc,
	})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, *entry.Worktime)
	assert.Equal(t, "planning", *entry.Description)
	assert.Equal(t, store.WorkplaceOffice, entry.Workplace)

	_, err = svc.Create(ctx, userID, EntryRequest{Start: at(11, 0), End: at(13, 0)})
	assert.ErrorIs(t, err, store.ErrTimeEntryCollision)

	// Touching boundaries do not collide
	_, err = svc.Create(ctx, userID, EntryRequest{Start: at(12, 0), End: at(13, 0)})
	assert.NoError(t, err)
}

func TestCreateManualEntryValidation(t *testing.T) {
	svc, db, _ := setup(t)
	userID := createUser(t, db, "carol")

	tests := []struct {
		name string
		req  EntryRequest
	}{
		{"missing start", EntryRequest{End: at(10, 0)}},
		{"missing end", EntryRequest{Start: at(10, 0)}},
		{"end before start", EntryRequest{Start: at(10, 0), End: at(9, 0)}},
		{"empty span", EntryRequest{Start: at(10, 0), End: at(10, 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), userID, tt.req)
			apiErr, internal := apierr.From(err)
			assert.False(t, internal)
			assert.Equal(t, apierr.CodeInvalidRequest, apiErr.Code)
		})
	}
}

func TestListPaging(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	userID := createUser(t, db, "dave")

	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < PageSize+5; i++ {
		start := base.Add(time.Duration(i) * 24 * time.Hour)
		end := start.Add(time.Hour)
		_, err := svc.Create(ctx, userID, EntryRequest{Start: &start, End: &end})
		require.NoError(t, err)
	}

	first, err := svc.List(ctx, userID, nil)
	require.NoError(t, err)
	require.Len(t, first, PageSize)
	assert.True(t, first[0].Start.After(first[1].Start))

	cursor := first[len(first)-1].Start
	second, err := svc.List(ctx, userID, &cursor)
	require.NoError(t, err)
	assert.Len(t, second, 5)
}

func TestDeleteScopedToOwner(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	entry, err := svc.Create(ctx, alice, EntryRequest{Start: at(8, 0), End: at(9, 0)})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, bob, entry.ID), store.ErrTimeEntryNotFound)
	require.NoError(t, svc.Delete(ctx, alice, entry.ID))
	assert.ErrorIs(t, svc.Delete(ctx, alice, entry.ID), store.ErrTimeEntryNotFound)
}
