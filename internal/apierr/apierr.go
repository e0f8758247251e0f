// ABOUTME: JSON error envelope shared by every HTTP handler
// ABOUTME: Maps domain sentinels to status codes and hides internal failures

package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bluemedia/timechamp/internal/auth"
	"github.com/bluemedia/timechamp/internal/store"
)

// Error codes returned in the "error" field.
const (
	CodeInvalidCredentials      = "invalid_credentials"
	CodeNotAuthenticated        = "not_authenticated"
	CodeInsufficientPermissions = "insufficient_permissions"
	CodeCantChangeOwnPermission = "cant_change_own_permission"
	CodeCantDeleteOwnUser       = "cant_delete_own_user"
	CodeAPIKeyNotFound          = "apikey_not_found"
	CodeUserNotFound            = "user_not_found"
	CodeSessionNotFound         = "session_not_found"
	CodeTimeEntryNotFound       = "time_entry_not_found"
	CodeUsernameExists          = "username_already_existing"
	CodeHasActiveTimeEntry      = "has_active_time_entry"
	CodeNoActiveTimeEntry       = "no_active_time_entry"
	CodeTimeEntryCollision      = "time_entry_collision"
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidDate             = "invalid_date"
	CodeDatabaseError           = "database_error"
	CodeInternalError           = "internal_error"
)

// Error is an HTTP-facing error with a stable code.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// New returns an Error without a message.
func New(status int, code string) *Error {
	return &Error{Status: status, Code: code}
}

// Newf returns an Error with a formatted message.
func Newf(status int, code, format string, args ...any) *Error {
	return &Error{Status: status, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Common errors.
var (
	ErrInvalidCredentials      = New(http.StatusUnauthorized, CodeInvalidCredentials)
	ErrNotAuthenticated        = New(http.StatusUnauthorized, CodeNotAuthenticated)
	ErrInsufficientPermissions = New(http.StatusForbidden, CodeInsufficientPermissions)
	ErrCantChangeOwnPermission = New(http.StatusBadRequest, CodeCantChangeOwnPermission)
	ErrCantDeleteOwnUser       = New(http.StatusBadRequest, CodeCantDeleteOwnUser)
	ErrAPIKeyNotFound          = New(http.StatusNotFound, CodeAPIKeyNotFound)
	ErrUserNotFound            = New(http.StatusNotFound, CodeUserNotFound)
	ErrSessionNotFound         = New(http.StatusNotFound, CodeSessionNotFound)
	ErrTimeEntryNotFound       = New(http.StatusNotFound, CodeTimeEntryNotFound)
	ErrUsernameExists          = New(http.StatusBadRequest, CodeUsernameExists)
	ErrHasActiveTimeEntry      = New(http.StatusBadRequest, CodeHasActiveTimeEntry)
	ErrNoActiveTimeEntry       = New(http.StatusBadRequest, CodeNoActiveTimeEntry)
	ErrTimeEntryCollision      = New(http.StatusNotAcceptable, CodeTimeEntryCollision)
	ErrInvalidDate             = New(http.StatusBadRequest, CodeInvalidDate)
)

// InvalidRequest returns a 400 invalid_request error with message.
func InvalidRequest(format string, args ...any) *Error {
	return Newf(http.StatusBadRequest, CodeInvalidRequest, format, args...)
}

// body is the wire form of an Error.
type body struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// From converts err into an Error. Known domain sentinels map to their codes;
// anything else becomes a 500 and reports internal=true so the caller logs it.
func From(err error) (apiErr *Error, internal bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, false
	}

	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return ErrNotAuthenticated, false
	case errors.Is(err, auth.ErrForbidden):
		return ErrInsufficientPermissions, false
	case errors.Is(err, store.ErrUserNotFound):
		return ErrUserNotFound, false
	case errors.Is(err, store.ErrAPIKeyNotFound):
		return ErrAPIKeyNotFound, false
	case errors.Is(err, store.ErrSessionNotFound):
		return ErrSessionNotFound, false
	case errors.Is(err, store.ErrTimeEntryNotFound):
		return ErrTimeEntryNotFound, false
	case errors.Is(err, store.ErrUsernameExists):
		return ErrUsernameExists, false
	case errors.Is(err, store.ErrActiveTimeEntryExists):
		return ErrHasActiveTimeEntry, false
	case errors.Is(err, store.ErrTimeEntryCollision):
		return ErrTimeEntryCollision, false
	case errors.Is(err, auth.ErrStoreUnavailable):
		return Newf(http.StatusInternalServerError, CodeDatabaseError, "the database is currently unavailable"), true
	default:
		return New(http.StatusInternalServerError, CodeInternalError), true
	}
}

// Write maps err to an HTTP response. Unexpected errors are logged with their
// cause and answered with a generic body.
func Write(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	apiErr, internal := From(err)
	if internal {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	WriteError(w, apiErr)
}

// WriteError writes e as the response.
func WriteError(w http.ResponseWriter, e *Error) {
	WriteJSON(w, e.Status, body{Error: e.Code, Message: e.Message})
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteEmpty writes the empty JSON array used by delete endpoints.
func WriteEmpty(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, []struct{}{})
}
