// ABOUTME: Tests for the account service: login, user administration and settings
// ABOUTME: Runs against a temporary SQLite store with real credential stores

package account

import (
	"context"
	"crypto/sha1"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluemedia/timechamp/internal/apierr"
	"github.com/bluemedia/timechamp/internal/auth"
	"github.com/bluemedia/timechamp/internal/store"
)

type fixture struct {
	db       *store.SQLiteStore
	sessions *auth.SessionStore
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "account.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sessions := auth.NewSessionStore(db, auth.SessionStoreConfig{CacheSize: 100})
	t.Cleanup(sessions.Close)
	apiKeys := auth.NewAPIKeyStore(db, nil)
	hasher := auth.NewPasswordHasherWith(sha1.New, 1000)

	return &fixture{
		db:       db,
		sessions: sessions,
		svc:      NewService(db, sessions, apiKeys, hasher, nil),
	}
}

func manager(id string) *auth.Principal {
	return &auth.Principal{UserID: id, Permission: store.PermissionManage, Method: auth.MethodSession}
}

func (f *fixture) mustCreate(t *testing.T, username string, perm store.Permission) *store.User {
	t.Helper()
	user, err := f.svc.CreateUser(context.Background(), manager("root"), CreateUserRequest{
		Username:   username,
		Password:   "pw-" + username,
		Permission: perm,
	})
	require.NoError(t, err)
	return user
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.mustCreate(t, "alice", store.PermissionReadWrite)

	got, key, err := f.svc.Login(ctx, "alice", "pw-alice", "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	require.NotNil(t, got.LastLoginAt)

	session, err := f.sessions.Validate(ctx, key, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
	assert.Equal(t, "Firefox on Linux", session.UserAgent)

	stored, err := f.db.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "alice", store.PermissionRead)

	_, _, err := f.svc.Login(context.Background(), "alice", "wrong", "", "10.0.0.1")
	assert.ErrorIs(t, err, apierr.ErrInvalidCredentials)

	_, _, err = f.svc.Login(context.Background(), "nobody", "pw", "", "10.0.0.1")
	assert.ErrorIs(t, err, apierr.ErrInvalidCredentials)
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.mustCreate(t, "bob", store.PermissionRead)

	assert.NotEmpty(t, user.PasswordHash)
	assert.NotEqual(t, "pw-bob", user.PasswordHash)

	settings, err := f.db.GetUserSettings(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 8.0, settings.HoursMonday)

	_, err = f.svc.CreateUser(ctx, manager("root"), CreateUserRequest{Username: "bob", Password: "x", Permission: store.PermissionRead})
	assert.ErrorIs(t, err, store.ErrUsernameExists)

	entries, err := f.svc.AuditLog(ctx, store.AuditFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, store.AuditCreateUser, entries[0].Action)
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  CreateUserRequest
	}{
		{"missing username", CreateUserRequest{Password: "x", Permission: store.PermissionRead}},
		{"missing password", CreateUserRequest{Username: "x", Permission: store.PermissionRead}},
		{"bad permission", CreateUserRequest{Username: "x", Password: "x", Permission: "ROOT"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateUser(context.Background(), manager("root"), tt.req)
			apiErr, internal := apierr.From(err)
			assert.False(t, internal)
			assert.Equal(t, apierr.CodeInvalidRequest, apiErr.Code)
		})
	}
}

func TestCreateManageUserRequiresManage(t *testing.T) {
	f := newFixture(t)
	actor := &auth.Principal{UserID: "rw", Permission: store.PermissionReadWrite}

	_, err := f.svc.CreateUser(context.Background(), actor, CreateUserRequest{
		Username: "boss", Password: "x", Permission: store.PermissionManage,
	})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.db.GetUserByUsername(context.Background(), "boss")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestUpdatePermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.mustCreate(t, "admin", store.PermissionManage)
	user := f.mustCreate(t, "carol", store.PermissionRead)

	key, _, err := f.sessions.Issue(ctx, user.ID, "ua", "10.0.0.1")
	require.NoError(t, err)

	updated, err := f.svc.UpdatePermission(ctx, manager(admin.ID), user.ID, store.PermissionReadWrite)
	require.NoError(t, err)
	assert.Equal(t, store.PermissionReadWrite, updated.Permission)

	// The target's sessions are gone
	_, err = f.sessions.Validate(ctx, key, "10.0.0.1")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestUpdatePermissionRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.mustCreate(t, "admin", store.PermissionManage)

	_, err := f.svc.UpdatePermission(ctx, manager(admin.ID), admin.ID, store.PermissionRead)
	assert.ErrorIs(t, err, apierr.ErrCantChangeOwnPermission)

	_, err = f.svc.UpdatePermission(ctx, manager(admin.ID), "missing", store.PermissionRead)
	assert.ErrorIs(t, err, store.ErrUserNotFound)

	_, err = f.svc.UpdatePermission(ctx, manager(admin.ID), "missing", "ROOT")
	apiErr, _ := apierr.From(err)
	assert.Equal(t, apierr.CodeInvalidRequest, apiErr.Code)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.mustCreate(t, "dave", store.PermissionReadWrite)
	self := &auth.Principal{UserID: user.ID, Permission: user.Permission, Method: auth.MethodSession}

	require.NoError(t, f.svc.ChangePassword(ctx, self, user.ID, "new-secret"))

	_, _, err := f.svc.Login(ctx, "dave", "pw-dave", "", "10.0.0.1")
	assert.ErrorIs(t, err, apierr.ErrInvalidCredentials)
	_, _, err = f.svc.Login(ctx, "dave", "new-secret", "", "10.0.0.1")
	assert.NoError(t, err)
}

func TestChangePasswordAPIKeyOnManageUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.mustCreate(t, "admin", store.PermissionManage)

	rwKey := &auth.Principal{UserID: admin.ID, Permission: store.PermissionReadWrite, Method: auth.MethodAPIKey, KeyID: "k"}
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, rwKey, admin.ID, "x"), auth.ErrForbidden)

	manageKey := &auth.Principal{UserID: admin.ID, Permission: store.PermissionManage, Method: auth.MethodAPIKey, KeyID: "k"}
	assert.NoError(t, f.svc.ChangePassword(ctx, manageKey, admin.ID, "x"))
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.mustCreate(t, "admin", store.PermissionManage)
	user := f.mustCreate(t, "erin", store.PermissionRead)

	key, _, err := f.sessions.Issue(ctx, user.ID, "ua", "10.0.0.1")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteUser(ctx, manager(admin.ID), admin.ID), apierr.ErrCantDeleteOwnUser)

	require.NoError(t, f.svc.DeleteUser(ctx, manager(admin.ID), user.ID))
	_, err = f.sessions.Validate(ctx, key, "10.0.0.1")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = f.svc.GetUser(ctx, user.ID)
	assert.ErrorIs(t, err, store.ErrUserNotFound)

	assert.ErrorIs(t, f.svc.DeleteUser(ctx, manager(admin.ID), user.ID), store.ErrUserNotFound)
}

func TestBootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, password, err := f.svc.Bootstrap(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, store.PermissionManage, user.Permission)
	assert.Len(t, password, 24)

	_, _, err = f.svc.Login(ctx, "root", password, "", "10.0.0.1")
	assert.NoError(t, err)

	_, _, err = f.svc.Bootstrap(ctx, "again")
	assert.ErrorIs(t, err, ErrAlreadyBootstrapped)
}

func TestSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.mustCreate(t, "frank", store.PermissionReadWrite)

	settings, err := f.svc.Settings(ctx, user.ID)
	require.NoError(t, err)
	settings.HoursFriday = 6
	settings.BreakStartTime = "12:30"
	require.NoError(t, f.svc.SaveSettings(ctx, user.ID, settings))

	got, err := f.svc.Settings(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 6.0, got.HoursFriday)
	assert.Equal(t, "12:30", got.BreakStartTime)

	bad := *got
	bad.HoursMonday = 25
	assert.Error(t, f.svc.SaveSettings(ctx, user.ID, &bad))

	bad = *got
	bad.BreakStartTime = "noon"
	assert.Error(t, f.svc.SaveSettings(ctx, user.ID, &bad))
}
