// ABOUTME: HTTP middleware resolving the caller from an API key or session cookie
// ABOUTME: and gating routes on the caller's permission

package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bluemedia/timechamp/internal/observe"
	"github.com/bluemedia/timechamp/internal/store"
)

// Credential transport names.
const (
	SessionCookieName = "tsess"
	APIKeyHeader      = "X-API-Key"
)

// DefaultCookieMaxAge is the lifetime of the session cookie in the browser.
const DefaultCookieMaxAge = 90 * 24 * time.Hour

// Options configures an Authenticator.
type Options struct {
	ReverseProxy bool          // trust X-Real-IP for the client address
	CookieSecure bool          // mark the session cookie Secure
	CookieMaxAge time.Duration // defaults to DefaultCookieMaxAge
}

// Authenticator resolves request credentials into a Principal.
type Authenticator struct {
	sessions *SessionStore
	apiKeys  *APIKeyStore
	opts     Options
	logger   *slog.Logger
	metrics  observe.Metrics
}

// NewAuthenticator creates an Authenticator. A nil metrics records nothing.
func NewAuthenticator(sessions *SessionStore, apiKeys *APIKeyStore, opts Options, logger *slog.Logger, metrics observe.Metrics) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observe.NopMetrics()
	}
	if opts.CookieMaxAge <= 0 {
		opts.CookieMaxAge = DefaultCookieMaxAge
	}
	return &Authenticator{
		sessions: sessions,
		apiKeys:  apiKeys,
		opts:     opts,
		logger:   logger.With("component", "authenticator"),
		metrics:  metrics,
	}
}

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain wraps h so that mws run in the order given.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RequireAuthentication resolves the caller and stores the Principal in the
// request context. X-API-Key takes precedence over the session cookie.
func (a *Authenticator) RequireAuthentication() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, method, err := a.authenticate(r)
			switch {
			case err == nil:
				a.metrics.RecordAuth(r.Context(), string(method), observe.OutcomeSuccess)
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))

			case errors.Is(err, ErrStoreUnavailable):
				a.metrics.RecordAuth(r.Context(), string(method), observe.OutcomeError)
				a.logger.Error("credential lookup failed",
					"method", r.Method,
					"path", r.URL.Path,
					"error", err,
				)
				writeError(w, http.StatusInternalServerError, "database_error", "the database is currently unavailable")

			default:
				a.metrics.RecordAuth(r.Context(), string(method), observe.OutcomeFailure)
				a.ClearSessionCookie(w)
				writeError(w, http.StatusUnauthorized, "not_authenticated", "")
			}
		})
	}
}

// authenticate returns the principal for r and which credential was tried.
func (a *Authenticator) authenticate(r *http.Request) (*Principal, Method, error) {
	if header := r.Header.Get(APIKeyHeader); header != "" {
		key, err := a.apiKeys.Validate(r.Context(), header)
		if err != nil {
			return nil, MethodAPIKey, err
		}
		return &Principal{
			UserID:     key.UserID,
			Permission: key.Permission,
			Method:     MethodAPIKey,
			KeyID:      key.ID,
		}, MethodAPIKey, nil
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, MethodSession, ErrUnauthenticated
	}

	session, err := a.sessions.Validate(r.Context(), cookie.Value, a.ClientIP(r))
	if err != nil {
		return nil, MethodSession, err
	}
	return &Principal{
		UserID:     session.UserID,
		Permission: session.Permission,
		Method:     MethodSession,
		KeyID:      session.ID,
	}, MethodSession, nil
}

// RequirePermission rejects callers whose permission is not in perms. It must
// run after RequireAuthentication.
func (a *Authenticator) RequirePermission(perms ...store.Permission) Middleware {
	required := PermissionSet(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := FromContext(r.Context())
			if principal == nil {
				writeError(w, http.StatusUnauthorized, "not_authenticated", "")
				return
			}
			if !Authorize(principal.Permission, required) {
				a.logger.Debug("permission denied",
					"user_id", principal.UserID,
					"permission", principal.Permission,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusForbidden, "insufficient_permissions", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the caller's address for r.
func (a *Authenticator) ClientIP(r *http.Request) string {
	return ClientIP(r, a.opts.ReverseProxy)
}

// SetSessionCookie stores a session key in the browser.
func (a *Authenticator) SetSessionCookie(w http.ResponseWriter, key string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    key,
		Path:     "/",
		MaxAge:   int(a.opts.CookieMaxAge / time.Second),
		Expires:  time.Now().Add(a.opts.CookieMaxAge),
		HttpOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie tells the browser to drop the session cookie.
func (a *Authenticator) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeError writes the JSON error envelope. Handlers use apierr; this copy
// exists because apierr depends on this package.
func writeError(w http.ResponseWriter, status int, code, message string) {
	body := map[string]string{"error": code}
	if message != "" {
		body["message"] = message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
