// ABOUTME: Tests for time entry persistence
// ABOUTME: Covers the single running entry rule, overlap detection and paging

package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func newFinishedEntry(userID string, start, end time.Time) *TimeEntry {
	e := &TimeEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Start:     start,
		Type:      TimeEntryWorktime,
		Workplace: WorkplaceOffice,
		CreatedAt: baseTime,
	}
	e.Finish(end)
	return e
}

func TestTimeEntry_StartAndFinish(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, "alice", PermissionReadWrite)

	_, err := store.GetActiveTimeEntry(ctx, user.ID)
	assert.ErrorIs(t, err, ErrTimeEntryNotFound)

	active := &TimeEntry{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Start:     baseTime,
		Type:      TimeEntryWorktime,
		Workplace: WorkplaceOffice,
		CreatedAt: baseTime,
	}
	require.NoError(t, store.CreateTimeEntry(ctx, active))

	second := *active
	second.ID = uuid.New().String()
	assert.ErrorIs(t, store.CreateTimeEntry(ctx, &second), ErrActiveTimeEntryExists)

	got, err := store.GetActiveTimeEntry(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)
	assert.True(t, got.Active())
	assert.Nil(t, got.Worktime)

	finished, err := store.FinishTimeEntry(ctx, active.ID, baseTime.Add(90*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, finished.Worktime)
	assert.Equal(t, 90*time.Minute, *finished.Worktime)

	_, err = store.GetActiveTimeEntry(ctx, user.ID)
	assert.ErrorIs(t, err, ErrTimeEntryNotFound)

	_, err = store.FinishTimeEntry(ctx, active.ID, baseTime.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrTimeEntryNotFound)
}

func TestTimeEntry_Collision(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, "alice", PermissionReadWrite)
	other := createTestUser(t, store, "bob", PermissionReadWrite)

	require.NoError(t, store.CreateTimeEntry(ctx, newFinishedEntry(user.ID, baseTime, baseTime.Add(4*time.Hour))))

	tests := []struct {
		name    string
		start   time.Time
		end     time.Time
		collide bool
	}{
		{"inside", baseTime.Add(time.Hour), baseTime.Add(2 * time.Hour), true},
		{"enclosing", baseTime.Add(-time.Hour), baseTime.Add(5 * time.Hour), true},
		{"overlapping start", baseTime.Add(-time.Hour), baseTime.Add(time.Hour), true},
		{"overlapping end", baseTime.Add(3 * time.Hour), baseTime.Add(5 * time.Hour), true},
		{"adjacent before", baseTime.Add(-time.Hour), baseTime, false},
		{"adjacent after", baseTime.Add(4 * time.Hour), baseTime.Add(5 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A second user never collides with the first user's entries
			require.NoError(t, store.CreateTimeEntry(ctx, newFinishedEntry(other.ID, tt.start, tt.end)))
			_, err := store.db.ExecContext(ctx, `DELETE FROM time_entries WHERE user_id = ?`, other.ID)
			require.NoError(t, err)

			e := newFinishedEntry(user.ID, tt.start, tt.end)
			err = store.CreateTimeEntry(ctx, e)
			if tt.collide {
				assert.ErrorIs(t, err, ErrTimeEntryCollision)
				return
			}
			require.NoError(t, err)
			require.NoError(t, store.DeleteTimeEntry(ctx, user.ID, e.ID))
		})
	}
}

func TestTimeEntry_CollidesWithRunningEntry(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, "alice", PermissionReadWrite)

	require.NoError(t, store.CreateTimeEntry(ctx, &TimeEntry{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Start:     baseTime,
		Type:      TimeEntryWorktime,
		Workplace: WorkplaceOffice,
		CreatedAt: baseTime,
	}))

	err := store.CreateTimeEntry(ctx, newFinishedEntry(user.ID, baseTime.Add(24*time.Hour), baseTime.Add(25*time.Hour)))
	assert.ErrorIs(t, err, ErrTimeEntryCollision)

	err = store.CreateTimeEntry(ctx, newFinishedEntry(user.ID, baseTime.Add(-2*time.Hour), baseTime.Add(-time.Hour)))
	assert.NoError(t, err)
}

func TestTimeEntry_ListPaging(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, "alice", PermissionReadWrite)

	for i := 0; i < 5; i++ {
		start := baseTime.Add(time.Duration(i) * 24 * time.Hour)
		require.NoError(t, store.CreateTimeEntry(ctx, newFinishedEntry(user.ID, start, start.Add(8*time.Hour))))
	}

	entries, err := store.ListTimeEntries(ctx, TimeEntryQuery{UserID: user.ID, Limit: 3})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].Start.After(entries[1].Start))

	before := entries[2].Start
	rest, err := store.ListTimeEntries(ctx, TimeEntryQuery{UserID: user.ID, Before: &before, Limit: 3})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.True(t, rest[0].Start.Before(before))

	none, err := store.ListTimeEntries(ctx, TimeEntryQuery{UserID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTimeEntry_DeleteScopedToOwner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, store, "alice", PermissionReadWrite)
	bob := createTestUser(t, store, "bob", PermissionReadWrite)

	e := newFinishedEntry(alice.ID, baseTime, baseTime.Add(time.Hour))
	require.NoError(t, store.CreateTimeEntry(ctx, e))

	assert.ErrorIs(t, store.DeleteTimeEntry(ctx, bob.ID, e.ID), ErrTimeEntryNotFound)
	_, err := store.GetTimeEntry(ctx, bob.ID, e.ID)
	assert.ErrorIs(t, err, ErrTimeEntryNotFound)

	require.NoError(t, store.DeleteTimeEntry(ctx, alice.ID, e.ID))
}

func TestTimeEntryType_UnmarshalJSON(t *testing.T) {
	var typ TimeEntryType
	require.NoError(t, json.Unmarshal([]byte(`"sick_leave"`), &typ))
	assert.Equal(t, TimeEntrySickLeave, typ)
	assert.Error(t, json.Unmarshal([]byte(`"party"`), &typ))

	var wp Workplace
	require.NoError(t, json.Unmarshal([]byte(`"work_from_home"`), &wp))
	assert.Equal(t, WorkplaceWorkFromHome, wp)
	assert.Error(t, json.Unmarshal([]byte(`"beach"`), &wp))
}
