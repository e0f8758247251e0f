// ABOUTME: Time tracking endpoints: start/stop, manual entries, paging and delete
// ABOUTME: Every operation is scoped to the authenticated user's own entries

package server

import (
	"net/http"
	"time"

	"github.com/bluemedia/timechamp/internal/apierr"
	"github.com/bluemedia/timechamp/internal/auth"
	"github.com/bluemedia/timechamp/internal/store"
	"github.com/bluemedia/timechamp/internal/timetrack"
)

type startRequest struct {
	Workplace   store.Workplace `json:"workplace"`
	Description *string         `json:"description"`
}

type timeEntryRequest struct {
	StartTime   *time.Time          `json:"startTime"`
	EndTime     *time.Time          `json:"endTime"`
	Type        store.TimeEntryType `json:"type"`
	Workplace   store.Workplace     `json:"workplace"`
	Description *string             `json:"description"`
}

// handleStartTime handles POST /time/start. The body is optional.
func (s *Server) handleStartTime(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	var req startRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		s.fail(w, r, err)
		return
	}
	entry, err := s.timer.Start(r.Context(), p.UserID, req.Workplace, req.Description)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusCreated, toTimeEntryResponse(entry))
}

// handleStopTime handles POST /time/stop.
func (s *Server) handleStopTime(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	entry, err := s.timer.Stop(r.Context(), p.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, toTimeEntryResponse(entry))
}

// handleActiveTime handles GET /time/active.
func (s *Server) handleActiveTime(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	entry, err := s.timer.Active(r.Context(), p.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, toTimeEntryResponse(entry))
}

// handleCreateTimeEntry handles POST /time.
func (s *Server) handleCreateTimeEntry(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	var req timeEntryRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	entry, err := s.timer.Create(r.Context(), p.UserID, timetrack.EntryRequest{
		Start:       req.StartTime,
		End:         req.EndTime,
		Type:        req.Type,
		Workplace:   req.Workplace,
		Description: req.Description,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusCreated, toTimeEntryResponse(entry))
}

// handleListTimeEntries handles GET /time. Pages are walked with
// ?before=<RFC3339 start time of the last entry seen>.
func (s *Server) handleListTimeEntries(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.fail(w, r, apierr.ErrInvalidDate)
			return
		}
		before = &t
	}

	entries, err := s.timer.List(r.Context(), p.UserID, before)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]timeEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toTimeEntryResponse(e))
	}
	apierr.WriteJSON(w, http.StatusOK, out)
}

// handleDeleteTimeEntry handles DELETE /time/{id}.
func (s *Server) handleDeleteTimeEntry(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	if err := s.timer.Delete(r.Context(), p.UserID, r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteEmpty(w)
}
