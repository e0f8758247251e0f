// ABOUTME: Login, logout, password change and current principal endpoints
// ABOUTME: Login accepts multipart or urlencoded forms and sets the session cookie

package server

import (
	"errors"
	"net/http"

	"github.com/bluemedia/timechamp/internal/apierr"
	"github.com/bluemedia/timechamp/internal/auth"
	"github.com/bluemedia/timechamp/internal/observe"
	"github.com/bluemedia/timechamp/internal/store"
)

// handleLogin handles POST /auth/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	// PostFormValue parses both multipart and urlencoded bodies
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		s.metrics.RecordAuth(r.Context(), "password", observe.OutcomeFailure)
		apierr.WriteError(w, apierr.ErrInvalidCredentials)
		return
	}

	user, key, err := s.accounts.Login(r.Context(), username, password, r.UserAgent(), s.authn.ClientIP(r))
	if err != nil {
		outcome := observe.OutcomeFailure
		if errors.Is(err, auth.ErrStoreUnavailable) {
			outcome = observe.OutcomeError
		}
		s.metrics.RecordAuth(r.Context(), "password", outcome)
		s.fail(w, r, err)
		return
	}

	s.metrics.RecordAuth(r.Context(), "password", observe.OutcomeSuccess)
	s.authn.SetSessionCookie(w, key)
	apierr.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// handleLogout handles GET /auth/logout. API key callers have nothing to
// revoke and get the same empty response.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	if p.Method == auth.MethodSession {
		err := s.sessions.RevokeByID(r.Context(), p.KeyID)
		if err != nil && !errors.Is(err, store.ErrSessionNotFound) {
			s.fail(w, r, err)
			return
		}
		s.authn.ClearSessionCookie(w)
	}
	apierr.WriteEmpty(w)
}

// handleMe handles GET /auth/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	user, err := s.accounts.GetUser(r.Context(), p.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, meResponse{
		User:         toUserResponse(user),
		AuthMethod:   p.Method,
		Permission:   p.Permission,
		CredentialID: p.KeyID,
	})
}

type passwordRequest struct {
	Password string `json:"password"`
}

// handleChangeOwnPassword handles PUT /auth/password.
func (s *Server) handleChangeOwnPassword(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	var req passwordRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.accounts.ChangePassword(r.Context(), p, p.UserID, req.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteEmpty(w)
}
