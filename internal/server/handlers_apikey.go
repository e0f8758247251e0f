// ABOUTME: API key management endpoints under /auth/api-key
// ABOUTME: Keys of other users are invisible (404) unless the caller holds MANAGE; only owners update

package server

import (
	"net/http"
	"strings"

	"github.com/bluemedia/timechamp/internal/apierr"
	"github.com/bluemedia/timechamp/internal/auth"
	"github.com/bluemedia/timechamp/internal/store"
)

type createAPIKeyRequest struct {
	Name       string           `json:"name"`
	Permission store.Permission `json:"permission"`
}

type permissionRequest struct {
	Permission store.Permission `json:"permission"`
}

// handleCreateAPIKey handles POST /auth/api-key. The secret is returned only here.
func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())

	var req createAPIKeyRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.fail(w, r, apierr.InvalidRequest("name is required"))
		return
	}
	if !req.Permission.Valid() {
		s.fail(w, r, apierr.InvalidRequest("permission is required"))
		return
	}

	key, err := s.apiKeys.Create(r.Context(), p.UserID, req.Name, req.Permission, p.Permission)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.accounts.Audit(r.Context(), p.UserID, store.AuditCreateAPIKey, store.AuditTargetAPIKey, key.ID, map[string]any{
		"name":       key.Name,
		"permission": string(key.Permission),
	})

	resp := toAPIKeyResponse(key)
	resp.Secret = key.Secret
	apierr.WriteJSON(w, http.StatusCreated, resp)
}

// handleListAPIKeys handles GET /auth/api-key.
func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	userID, err := s.targetUser(r, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	keys, err := s.apiKeys.ListForOwner(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, toAPIKeyResponses(keys))
}

// visibleAPIKey loads the key named by the {id} path value, hiding keys the
// caller may not see behind apikey_not_found.
func (s *Server) visibleAPIKey(r *http.Request, p *auth.Principal) (*store.APIKey, error) {
	key, err := s.apiKeys.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	if !canAccess(p, key.UserID) {
		return nil, apierr.ErrAPIKeyNotFound
	}
	return key, nil
}

// handleGetAPIKey handles GET /auth/api-key/{id}.
func (s *Server) handleGetAPIKey(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	key, err := s.visibleAPIKey(r, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, toAPIKeyResponse(key))
}

// handleGetAPIKeySecret handles GET /auth/api-key/{id}/secret. Reading the
// secret of a MANAGE key requires MANAGE.
func (s *Server) handleGetAPIKeySecret(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	key, err := s.visibleAPIKey(r, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if key.Permission == store.PermissionManage && p.Permission != store.PermissionManage {
		s.fail(w, r, auth.ErrForbidden)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, secretResponse{Secret: key.Secret})
}

// handleUpdateAPIKeyPermission handles PUT /auth/api-key/{id}/permission.
// Only the owner may change a key's permission, MANAGE included.
func (s *Server) handleUpdateAPIKeyPermission(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := r.PathValue("id")

	var req permissionRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	if !req.Permission.Valid() {
		s.fail(w, r, apierr.InvalidRequest("permission is required"))
		return
	}
	if p.IsAPIKey() && p.KeyID == id {
		s.fail(w, r, apierr.ErrCantChangeOwnPermission)
		return
	}

	key, err := s.apiKeys.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if key.UserID != p.UserID {
		s.fail(w, r, apierr.ErrAPIKeyNotFound)
		return
	}
	previous := key.Permission

	updated, err := s.apiKeys.UpdatePermission(r.Context(), key.ID, req.Permission, p.Permission)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.accounts.Audit(r.Context(), p.UserID, store.AuditUpdateAPIKeyPermission, store.AuditTargetAPIKey, key.ID, map[string]any{
		"from": string(previous),
		"to":   string(updated.Permission),
	})
	apierr.WriteJSON(w, http.StatusOK, toAPIKeyResponse(updated))
}

// handleDeleteAPIKey handles DELETE /auth/api-key/{id}.
func (s *Server) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	key, err := s.visibleAPIKey(r, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.apiKeys.Revoke(r.Context(), key.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.accounts.Audit(r.Context(), p.UserID, store.AuditDeleteAPIKey, store.AuditTargetAPIKey, key.ID, map[string]any{
		"owner": key.UserID,
	})
	apierr.WriteEmpty(w)
}
