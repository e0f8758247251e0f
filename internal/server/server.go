// ABOUTME: Server orchestrator wiring the store, credential stores and HTTP handlers
// ABOUTME: Manages HTTP/HTTPS/Tailscale listeners and graceful shutdown

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/bluemedia/timechamp/internal/account"
	"github.com/bluemedia/timechamp/internal/auth"
	"github.com/bluemedia/timechamp/internal/config"
	"github.com/bluemedia/timechamp/internal/observe"
	"github.com/bluemedia/timechamp/internal/store"
	"github.com/bluemedia/timechamp/internal/timetrack"
)

// Version is reported by /health and in metrics. Set by the CLI at startup.
var Version = "dev"

// shutdownTimeout bounds graceful shutdown after the context is canceled.
const shutdownTimeout = 5 * time.Second

// Server runs the timechamp HTTP API.
type Server struct {
	config   *config.Config
	store    *store.SQLiteStore
	sessions *auth.SessionStore
	apiKeys  *auth.APIKeyStore
	authn    *auth.Authenticator
	accounts *account.Service
	timer    *timetrack.Service
	provider *observe.Provider
	metrics  observe.Metrics
	docs     []byte
	logger   *slog.Logger

	handler        http.Handler
	httpServer     *http.Server
	httpsServer    *http.Server
	redirectServer *http.Server
	tsnetServer    *tsnet.Server
}

// initStore opens the database described by cfg.
func initStore(cfg *config.Config, logger *slog.Logger) (*store.SQLiteStore, error) {
	s, err := store.Open(store.Options{
		Driver:          cfg.Database.Driver,
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return s, nil
}

// initMetrics builds the metrics pipeline, or a no-op when disabled.
func initMetrics(cfg *config.Config) (*observe.Provider, observe.Metrics, error) {
	if !cfg.Metrics.Enabled {
		return nil, observe.NopMetrics(), nil
	}
	provider, err := observe.NewProvider(observe.Config{
		ServiceName: "timechamp",
		Version:     Version,
		Exporter:    cfg.Metrics.Exporter,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating metrics provider: %w", err)
	}
	return provider, provider.Metrics(), nil
}

// cookieSecure reports whether the session cookie should carry the Secure flag.
func cookieSecure(cfg *config.Config) bool {
	ts := cfg.Server.Tailscale
	if ts.Enabled {
		return ts.HTTPS || ts.Funnel
	}
	return cfg.Server.HTTPSAddr != ""
}

// New creates a Server from configuration. The database is opened and
// migrated; listeners are not created until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sqlStore, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	provider, metrics, err := initMetrics(cfg)
	if err != nil {
		_ = sqlStore.Close()
		return nil, err
	}

	docs, err := renderDocs()
	if err != nil {
		_ = sqlStore.Close()
		return nil, fmt.Errorf("rendering api docs: %w", err)
	}

	sessions := auth.NewSessionStore(sqlStore, auth.SessionStoreConfig{
		CacheSize:       cfg.Auth.CacheSize(),
		CacheTTL:        cfg.Auth.SessionCacheTTL,
		RefreshInterval: cfg.Auth.SessionRefreshInterval,
		Logger:          logger,
	})
	apiKeys := auth.NewAPIKeyStore(sqlStore, logger)
	authn := auth.NewAuthenticator(sessions, apiKeys, auth.Options{
		ReverseProxy: cfg.Server.ReverseProxy,
		CookieSecure: cookieSecure(cfg),
		CookieMaxAge: cfg.Auth.CookieMaxAge,
	}, logger, metrics)

	s := &Server{
		config:   cfg,
		store:    sqlStore,
		sessions: sessions,
		apiKeys:  apiKeys,
		authn:    authn,
		accounts: account.NewService(sqlStore, sessions, apiKeys, auth.NewPasswordHasher(), logger),
		timer:    timetrack.NewService(sqlStore, logger),
		provider: provider,
		metrics:  metrics,
		docs:     docs,
		logger:   logger.With("component", "server"),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = s.accessLog(mux)

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
	if cfg.Server.HTTPSAddr != "" {
		s.httpsServer = &http.Server{
			Handler:           s.handler,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		}
	}
	if cfg.Server.RedirectHTTP {
		s.redirectServer = &http.Server{
			Handler:           redirectToHTTPS(cfg.Server.HTTPSAddr),
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		}
	}

	return s, nil
}

// Handler returns the root HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Accounts returns the account service, used by the CLI bootstrap command.
func (s *Server) Accounts() *account.Service {
	return s.accounts
}

// listeners holds the sockets Run serves on. Any of them may be nil.
type listeners struct {
	http     net.Listener
	https    net.Listener
	redirect net.Listener
}

func (s *Server) setupTCPListeners() (*listeners, error) {
	srv := s.config.Server
	s.logger.Info("starting server",
		"http_addr", srv.HTTPAddr,
		"https_addr", srv.HTTPSAddr,
		"redirect_http", srv.RedirectHTTP,
	)

	ls := &listeners{}
	closeAll := func() {
		for _, ln := range []net.Listener{ls.http, ls.https, ls.redirect} {
			if ln != nil {
				_ = ln.Close()
			}
		}
	}

	if srv.HTTPSAddr != "" {
		cert, err := tls.LoadX509KeyPair(srv.TLS.CertFile, srv.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading TLS certificate: %w", err)
		}
		ln, err := net.Listen("tcp", srv.HTTPSAddr)
		if err != nil {
			return nil, fmt.Errorf("listening on HTTPS address: %w", err)
		}
		ls.https = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}

	if srv.HTTPAddr != "" {
		ln, err := net.Listen("tcp", srv.HTTPAddr)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("listening on HTTP address: %w", err)
		}
		// With redirect_http the plain listener only redirects
		if srv.RedirectHTTP {
			ls.redirect = ln
		} else {
			ls.http = ln
		}
	}

	return ls, nil
}

// warnIgnoredAddresses logs a warning if server addresses are configured but Tailscale is enabled.
func (s *Server) warnIgnoredAddresses() {
	if s.config.Server.HTTPAddr != "" || s.config.Server.HTTPSAddr != "" {
		s.logger.Warn("server.http_addr and server.https_addr are ignored when tailscale is enabled",
			"http_addr", s.config.Server.HTTPAddr,
			"https_addr", s.config.Server.HTTPSAddr,
		)
	}
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (s *Server) setupListeners(ctx context.Context) (*listeners, error) {
	if s.config.Server.Tailscale.Enabled {
		s.warnIgnoredAddresses()
		return s.setupTailscaleListeners(ctx)
	}
	return s.setupTCPListeners()
}

// startServers serves each listener in its own goroutine, returning an error channel.
func (s *Server) startServers(ls *listeners) chan error {
	errCh := make(chan error, 3)

	serve := func(name string, srv *http.Server, ln net.Listener) {
		if ln == nil || srv == nil {
			return
		}
		go func() {
			s.logger.Info(name+" server listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s server: %w", name, err)
			}
		}()
	}

	serve("HTTP", s.httpServer, ls.http)
	serve("HTTPS", s.httpsServer, ls.https)
	serve("redirect", s.redirectServer, ls.redirect)

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		s.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (s *Server) drainErrors(errCh chan error) {
	for {
		select {
		case additionalErr := <-errCh:
			s.logger.Error("additional server error", "error", additionalErr)
		default:
			return
		}
	}
}

// Run starts the servers and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if a server fails.
func (s *Server) Run(ctx context.Context) error {
	ls, err := s.setupListeners(ctx)
	if err != nil {
		_ = s.Shutdown(context.Background())
		return err
	}

	errCh := s.startServers(ls)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The original context is already canceled at this point.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set server.tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "timechamp", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set server.tailscale.auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners joins the tailnet and returns the API listener.
func (s *Server) setupTailscaleListeners(ctx context.Context) (*listeners, error) {
	tsCfg := s.config.Server.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		s.tsnetServer = nil
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := s.createTailscaleListener(tsCfg)
	if err != nil {
		return nil, err
	}
	return &listeners{http: ln}, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleListener creates the appropriate listener based on config.
func (s *Server) createTailscaleListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		s.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := s.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return s.createTailscaleTLSListener()
	default:
		ln, err := s.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (s *Server) createTailscaleTLSListener() (net.Listener, error) {
	s.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := s.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := s.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the servers, then closes the session cache, metrics and store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	for _, srv := range []*http.Server{s.httpServer, s.httpsServer, s.redirectServer} {
		if srv != nil {
			errs = appendCloseError(errs, "HTTP shutdown", srv.Shutdown(ctx))
		}
	}

	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}

	s.sessions.Close()

	if s.provider != nil {
		errs = appendCloseError(errs, "metrics shutdown", s.provider.Shutdown(ctx))
	}
	errs = appendCloseError(errs, "store close", s.store.Close())

	return errors.Join(errs...)
}
