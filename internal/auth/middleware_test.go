// ABOUTME: Tests for the authentication and permission middleware
// ABOUTME: Covers credential precedence, 401/403/500 responses and cookie handling

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluemedia/timechamp/internal/store"
)

type middlewareFixture struct {
	db       *store.SQLiteStore
	sessions *SessionStore
	apiKeys  *APIKeyStore
	auth     *Authenticator
}

func newMiddlewareFixture(t *testing.T, opts Options) *middlewareFixture {
	t.Helper()
	db := setupTestStore(t)
	sessions := NewSessionStore(db, SessionStoreConfig{CacheSize: 100})
	t.Cleanup(sessions.Close)
	apiKeys := NewAPIKeyStore(db, nil)
	return &middlewareFixture{
		db:       db,
		sessions: sessions,
		apiKeys:  apiKeys,
		auth:     NewAuthenticator(sessions, apiKeys, opts, nil, nil),
	}
}

// principalEcho responds 200 with the principal it saw.
func principalEcho(t *testing.T, got **Principal) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

func TestRequireAuthenticationSession(t *testing.T) {
	f := newMiddlewareFixture(t, Options{})
	user := createUser(t, f.db, "alice", store.PermissionReadWrite)
	key, session, err := f.sessions.Issue(context.Background(), user.ID, "ua", "192.0.2.1")
	require.NoError(t, err)

	var got *Principal
	handler := Chain(principalEcho(t, &got), f.auth.RequireAuthentication())

	req := httptest.NewRequest(http.MethodGet, "/time", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: key})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.UserID)
	assert.Equal(t, store.PermissionReadWrite, got.Permission)
	assert.Equal(t, MethodSession, got.Method)
	assert.Equal(t, session.ID, got.KeyID)
}

func TestRequireAuthenticationAPIKeyPrecedence(t *testing.T) {
	f := newMiddlewareFixture(t, Options{})
	ctx := context.Background()
	owner := createUser(t, f.db, "owner", store.PermissionManage)
	other := createUser(t, f.db, "other", store.PermissionRead)

	apiKey, err := f.apiKeys.Create(ctx, owner.ID, "ci", store.PermissionRead, owner.Permission)
	require.NoError(t, err)
	sessionKey, _, err := f.sessions.Issue(ctx, other.ID, "ua", "192.0.2.1")
	require.NoError(t, err)

	t.Run("header wins over cookie", func(t *testing.T) {
		var got *Principal
		handler := Chain(principalEcho(t, &got), f.auth.RequireAuthentication())

		req := httptest.NewRequest(http.MethodGet, "/time", nil)
		req.Header.Set(APIKeyHeader, "Bearer "+apiKey.Secret)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionKey})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, MethodAPIKey, got.Method)
		assert.Equal(t, owner.ID, got.UserID)
		// The key's permission, not the owner's
		assert.Equal(t, store.PermissionRead, got.Permission)
		assert.Equal(t, apiKey.ID, got.KeyID)
	})

	t.Run("bad header does not fall back to cookie", func(t *testing.T) {
		var got *Principal
		handler := Chain(principalEcho(t, &got), f.auth.RequireAuthentication())

		req := httptest.NewRequest(http.MethodGet, "/time", nil)
		req.Header.Set(APIKeyHeader, "Bearer "+strings.Repeat("q", APIKeySecretLength))
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionKey})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, got)
	})
}

func TestRequireAuthenticationRejects(t *testing.T) {
	f := newMiddlewareFixture(t, Options{})

	tests := []struct {
		name   string
		cookie string
		header string
	}{
		{"no credentials", "", ""},
		{"unknown cookie", strings.Repeat("a", SessionKeyLength), ""},
		{"malformed cookie", "abc", ""},
		{"unknown api key", "", "Bearer " + strings.Repeat("a", APIKeySecretLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}), f.auth.RequireAuthentication())

			req := httptest.NewRequest(http.MethodGet, "/time", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(APIKeyHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "not_authenticated", decodeError(t, rec)["error"])

			cleared := sessionCookie(rec)
			require.NotNil(t, cleared, "session cookie should be cleared")
			assert.Empty(t, cleared.Value)
			assert.Less(t, cleared.MaxAge, 0)
		})
	}
}

func TestRequireAuthenticationStoreFailure(t *testing.T) {
	sessions := NewSessionStore(failingSessions{}, SessionStoreConfig{})
	t.Cleanup(sessions.Close)
	apiKeys := NewAPIKeyStore(failingAPIKeys{}, nil)
	authn := NewAuthenticator(sessions, apiKeys, Options{}, nil, nil)

	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}), authn.RequireAuthentication())

	t.Run("session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/time", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: strings.Repeat("a", SessionKeyLength)})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "database_error", decodeError(t, rec)["error"])
		assert.Nil(t, sessionCookie(rec), "cookie must be left alone on store failure")
	})

	t.Run("api key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/time", nil)
		req.Header.Set(APIKeyHeader, "Bearer "+strings.Repeat("a", APIKeySecretLength))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "database_error", decodeError(t, rec)["error"])
	})
}

func TestRequirePermission(t *testing.T) {
	f := newMiddlewareFixture(t, Options{})
	ctx := context.Background()

	reader := createUser(t, f.db, "reader", store.PermissionRead)
	writer := createUser(t, f.db, "writer", store.PermissionReadWrite)
	readerKey, _, err := f.sessions.Issue(ctx, reader.ID, "ua", "192.0.2.1")
	require.NoError(t, err)
	writerKey, _, err := f.sessions.Issue(ctx, writer.ID, "ua", "192.0.2.1")
	require.NoError(t, err)

	handler := Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }),
		f.auth.RequireAuthentication(),
		f.auth.RequirePermission(store.PermissionReadWrite, store.PermissionManage),
	)

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"read denied", readerKey, http.StatusForbidden},
		{"read write allowed", writerKey, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/time/start", nil)
			req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.key})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "insufficient_permissions", decodeError(t, rec)["error"])
			}
		})
	}
}

func TestRequirePermissionWithoutPrincipal(t *testing.T) {
	f := newMiddlewareFixture(t, Options{})
	handler := f.auth.RequirePermission(store.PermissionRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionCookieAttributes(t *testing.T) {
	f := newMiddlewareFixture(t, Options{CookieSecure: true})

	rec := httptest.NewRecorder()
	f.auth.SetSessionCookie(rec, "k")
	c := sessionCookie(rec)
	require.NotNil(t, c)
	assert.Equal(t, "k", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int(DefaultCookieMaxAge.Seconds()), c.MaxAge)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:51234"
	req.Header.Set("X-Real-IP", "203.0.113.9")

	assert.Equal(t, "198.51.100.4", ClientIP(req, false))
	assert.Equal(t, "203.0.113.9", ClientIP(req, true))

	req.Header.Del("X-Real-IP")
	assert.Equal(t, "198.51.100.4", ClientIP(req, true))

	req.RemoteAddr = "not-an-address"
	assert.Equal(t, "not-an-address", ClientIP(req, false))
}

func TestDescribeUserAgent(t *testing.T) {
	firefox := "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0"
	assert.Equal(t, "Firefox on Windows", DescribeUserAgent(firefox))
	assert.Equal(t, "Unknown on Unknown", DescribeUserAgent(""))
}
