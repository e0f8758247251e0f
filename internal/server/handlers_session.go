// ABOUTME: Session listing and revocation endpoints under /auth/session
// ABOUTME: Revoking the caller's own session also clears its cookie

package server

import (
	"net/http"

	"github.com/bluemedia/timechamp/internal/apierr"
	"github.com/bluemedia/timechamp/internal/auth"
	"github.com/bluemedia/timechamp/internal/store"
)

// currentSessionID returns the session that authenticated p, if any.
func currentSessionID(p *auth.Principal) string {
	if p.Method == auth.MethodSession {
		return p.KeyID
	}
	return ""
}

// handleListSessions handles GET /auth/session.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	userID, err := s.targetUser(r, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sessions, err := s.sessions.ListForUser(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	current := currentSessionID(p)
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionResponse(sess, current))
	}
	apierr.WriteJSON(w, http.StatusOK, out)
}

// handleDeleteAllSessions handles DELETE /auth/session.
func (s *Server) handleDeleteAllSessions(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	userID, err := s.targetUser(r, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.sessions.RevokeAllForUser(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.accounts.Audit(r.Context(), p.UserID, store.AuditRevokeSessions, store.AuditTargetUser, userID, map[string]any{
		"count": n,
	})

	if userID == p.UserID && p.Method == auth.MethodSession {
		s.authn.ClearSessionCookie(w)
	}
	apierr.WriteEmpty(w)
}

// visibleSession loads the session named by the {id} path value.
func (s *Server) visibleSession(r *http.Request, p *auth.Principal) (*store.Session, error) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	if !canAccess(p, sess.UserID) {
		return nil, apierr.ErrSessionNotFound
	}
	return sess, nil
}

// handleGetSession handles GET /auth/session/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	sess, err := s.visibleSession(r, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, toSessionResponse(sess, currentSessionID(p)))
}

// handleDeleteSession handles DELETE /auth/session/{id}.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	sess, err := s.visibleSession(r, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.sessions.RevokeByID(r.Context(), sess.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.accounts.Audit(r.Context(), p.UserID, store.AuditDeleteSession, store.AuditTargetSession, sess.ID, map[string]any{
		"owner": sess.UserID,
	})

	if sess.ID == currentSessionID(p) {
		s.authn.ClearSessionCookie(w)
	}
	apierr.WriteEmpty(w)
}
