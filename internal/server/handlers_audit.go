// ABOUTME: Audit log endpoint for MANAGE principals
// ABOUTME: Query parameters narrow by actor, action, target and time range

package server

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/bluemedia/timechamp/internal/apierr"
	"github.com/bluemedia/timechamp/internal/store"
)

// parseAuditFilter builds a filter from the query string.
func parseAuditFilter(r *http.Request) (store.AuditFilter, error) {
	q := r.URL.Query()
	var f store.AuditFilter

	optional := func(name string) *string {
		if v := q.Get(name); v != "" {
			return &v
		}
		return nil
	}
	f.ActorUserID = optional("actor")
	f.TargetType = optional("target_type")
	f.TargetID = optional("target_id")

	if v := q.Get("action"); v != "" {
		action := store.AuditAction(v)
		if !slices.Contains(store.ValidAuditActions, action) {
			return f, apierr.InvalidRequest("unknown audit action %q", v)
		}
		f.Action = &action
	}

	for name, dst := range map[string]**time.Time{"since": &f.Since, "until": &f.Until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, apierr.ErrInvalidDate
		}
		*dst = &t
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, apierr.InvalidRequest("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

// handleAuditLog handles GET /audit.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	f, err := parseAuditFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.accounts.AuditLog(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, toAuditResponses(entries))
}
