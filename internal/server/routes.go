// ABOUTME: REST route table with per-route authentication and permission chains
// ABOUTME: Uses Go 1.22 method and wildcard patterns on http.ServeMux

package server

import (
	"net/http"

	"github.com/bluemedia/timechamp/internal/auth"
	"github.com/bluemedia/timechamp/internal/store"
)

// registerRoutes mounts every endpoint on mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	authed := func(h http.HandlerFunc) http.Handler {
		return auth.Chain(h, s.authn.RequireAuthentication())
	}
	writer := func(h http.HandlerFunc) http.Handler {
		return auth.Chain(h,
			s.authn.RequireAuthentication(),
			s.authn.RequirePermission(auth.WritePermission...),
		)
	}
	manager := func(h http.HandlerFunc) http.Handler {
		return auth.Chain(h,
			s.authn.RequireAuthentication(),
			s.authn.RequirePermission(auth.ManagePermission...),
		)
	}

	// Public
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)
	mux.HandleFunc("GET /docs", s.handleDocs)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	if s.provider != nil && s.config.Metrics.Enabled {
		if h := s.provider.Handler(); h != nil {
			mux.Handle("GET "+s.config.Metrics.Path, h)
		}
	}

	// Current principal
	mux.Handle("GET /auth/logout", authed(s.handleLogout))
	mux.Handle("GET /auth/me", authed(s.handleMe))
	mux.Handle("PUT /auth/password", writer(s.handleChangeOwnPassword))

	// API keys
	mux.Handle("POST /auth/api-key", writer(s.handleCreateAPIKey))
	mux.Handle("GET /auth/api-key", authed(s.handleListAPIKeys))
	mux.Handle("GET /auth/api-key/{id}", authed(s.handleGetAPIKey))
	mux.Handle("GET /auth/api-key/{id}/secret", writer(s.handleGetAPIKeySecret))
	mux.Handle("PUT /auth/api-key/{id}/permission", writer(s.handleUpdateAPIKeyPermission))
	mux.Handle("DELETE /auth/api-key/{id}", writer(s.handleDeleteAPIKey))

	// Sessions
	mux.Handle("GET /auth/session", authed(s.handleListSessions))
	mux.Handle("DELETE /auth/session", writer(s.handleDeleteAllSessions))
	mux.Handle("GET /auth/session/{id}", authed(s.handleGetSession))
	mux.Handle("DELETE /auth/session/{id}", writer(s.handleDeleteSession))

	// Users
	mux.Handle("POST /user", manager(s.handleCreateUser))
	mux.Handle("GET /user", manager(s.handleListUsers))
	mux.Handle("GET /user/settings", authed(s.handleGetSettings))
	mux.Handle("PUT /user/settings", writer(s.handleSaveSettings))
	mux.Handle("GET /user/{id}", manager(s.handleGetUser))
	mux.Handle("PUT /user/{id}/password", manager(s.handleSetUserPassword))
	mux.Handle("PUT /user/{id}/permission", manager(s.handleUpdateUserPermission))
	mux.Handle("DELETE /user/{id}", manager(s.handleDeleteUser))

	// Time tracking
	mux.Handle("POST /time/start", writer(s.handleStartTime))
	mux.Handle("POST /time/stop", writer(s.handleStopTime))
	mux.Handle("GET /time/active", authed(s.handleActiveTime))
	mux.Handle("POST /time", writer(s.handleCreateTimeEntry))
	mux.Handle("GET /time", authed(s.handleListTimeEntries))
	mux.Handle("DELETE /time/{id}", writer(s.handleDeleteTimeEntry))

	// Audit
	mux.Handle("GET /audit", manager(s.handleAuditLog))
}

// targetUser resolves the ?user= query parameter. Callers without MANAGE may
// only name themselves; MANAGE callers may name any existing user.
func (s *Server) targetUser(r *http.Request, p *auth.Principal) (string, error) {
	userID := r.URL.Query().Get("user")
	if userID == "" || userID == p.UserID {
		return p.UserID, nil
	}
	if p.Permission != store.PermissionManage {
		return "", auth.ErrForbidden
	}
	if _, err := s.accounts.GetUser(r.Context(), userID); err != nil {
		return "", err
	}
	return userID, nil
}

// canAccess reports whether p may see a resource owned by ownerID.
func canAccess(p *auth.Principal, ownerID string) bool {
	return p.UserID == ownerID || p.Permission == store.PermissionManage
}
