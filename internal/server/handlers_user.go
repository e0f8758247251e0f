// ABOUTME: User management and per-user settings endpoints
// ABOUTME: Management routes require MANAGE; settings always address the caller

package server

import (
	"net/http"

	"github.com/bluemedia/timechamp/internal/account"
	"github.com/bluemedia/timechamp/internal/apierr"
	"github.com/bluemedia/timechamp/internal/auth"
	"github.com/bluemedia/timechamp/internal/store"
)

type createUserRequest struct {
	Username   string           `json:"username"`
	Password   string           `json:"password"`
	Permission store.Permission `json:"permission"`
	Name       string           `json:"name"`
	EmployeeID string           `json:"employeeId"`
	Department string           `json:"department"`
}

// handleCreateUser handles POST /user.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())

	var req createUserRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.accounts.CreateUser(r.Context(), p, account.CreateUserRequest{
		Username:    req.Username,
		Password:    req.Password,
		Permission:  req.Permission,
		DisplayName: req.Name,
		EmployeeID:  req.EmployeeID,
		Department:  req.Department,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusCreated, toUserResponse(user))
}

// handleListUsers handles GET /user.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.accounts.ListUsers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, toUserResponses(users))
}

// handleGetUser handles GET /user/{id}.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.accounts.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// handleSetUserPassword handles PUT /user/{id}/password.
func (s *Server) handleSetUserPassword(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	var req passwordRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.accounts.ChangePassword(r.Context(), p, r.PathValue("id"), req.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteEmpty(w)
}

// handleUpdateUserPermission handles PUT /user/{id}/permission.
func (s *Server) handleUpdateUserPermission(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	var req permissionRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.accounts.UpdatePermission(r.Context(), p, r.PathValue("id"), req.Permission)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// handleDeleteUser handles DELETE /user/{id}.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	if err := s.accounts.DeleteUser(r.Context(), p, r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteEmpty(w)
}

// handleGetSettings handles GET /user/settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	settings, err := s.accounts.Settings(r.Context(), p.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, toSettingsBody(settings))
}

// handleSaveSettings handles PUT /user/settings.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	var body settingsBody
	if err := decodeJSON(w, r, &body, false); err != nil {
		s.fail(w, r, err)
		return
	}
	settings := body.toStore(p.UserID)
	if err := s.accounts.SaveSettings(r.Context(), p.UserID, settings); err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, toSettingsBody(settings))
}
