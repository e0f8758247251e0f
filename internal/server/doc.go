// Package server orchestrates the timechamp HTTP server components.
//
// # Overview
//
// The server package is the central coordinator of timechamp. It opens the
// store, builds the session and API key stores, the account and time tracking
// services, and the metrics provider, then serves the REST API on the
// configured listeners.
//
// # Server Struct
//
// The Server struct is the main entry point:
//
//	type Server struct {
//	    config   *config.Config
//	    store    *store.SQLiteStore
//	    sessions *auth.SessionStore
//	    apiKeys  *auth.APIKeyStore
//	    authn    *auth.Authenticator
//	    accounts *account.Service
//	    timer    *timetrack.Service
//	    provider *observe.Provider
//	    // ... listeners and http.Servers
//	}
//
// # Routes
//
// Routes are registered in routes.go with Go 1.22 method patterns. Each route
// wraps its handler in an auth.Chain:
//
//   - public: /auth/login, /health, /health/ready, /docs, /metrics
//   - authenticated: RequireAuthentication only
//   - writer: RequireAuthentication + RequirePermission(read_write, manage)
//   - manager: RequireAuthentication + RequirePermission(manage)
//
// The full endpoint reference is embedded from docs/api.md and served as
// HTML at /docs.
//
// # Listeners
//
// Without Tailscale the server listens on server.http_addr and, when
// configured, server.https_addr with the given certificate. With
// server.redirect_http the plain listener only redirects to HTTPS.
//
// With Tailscale enabled the server joins the tailnet through tsnet and
// listens on :80, on :443 with tailnet certificates, or on a Funnel.
//
// # Lifecycle
//
//	srv, err := server.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx) // blocks until ctx is canceled
//
// Run performs a graceful shutdown with a five second deadline: HTTP servers
// drain, the tailnet node stops, the session cache and metrics provider are
// closed, and the database is closed last.
package server
