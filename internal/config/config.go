// ABOUTME: Configuration loading and parsing for timechamp
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied to unset fields.
const (
	DefaultHTTPAddr               = ":8080"
	DefaultDatabaseDriver         = "sqlite"
	DefaultDatabasePath           = "timechamp.db"
	DefaultSessionCacheSize       = 10000
	DefaultSessionCacheTTL        = 10 * time.Minute
	DefaultSessionRefreshInterval = 5 * time.Minute
	DefaultCookieMaxAge           = 90 * 24 * time.Hour
	DefaultReadHeaderTimeout      = 10 * time.Second
	DefaultMetricsPath            = "/metrics"
)

// DatabasePathEnv overrides database.path when set.
const DatabasePathEnv = "TIMECHAMP_DB_PATH"

// Config represents the complete timechamp configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	HTTPAddr     string          `yaml:"http_addr" toml:"http_addr"`
	HTTPSAddr    string          `yaml:"https_addr" toml:"https_addr"`
	TLS          TLSConfig       `yaml:"tls" toml:"tls"`
	RedirectHTTP bool            `yaml:"redirect_http" toml:"redirect_http"` // answer plain HTTP with a redirect to HTTPS
	ReverseProxy bool            `yaml:"reverse_proxy" toml:"reverse_proxy"` // trust X-Real-IP
	Tailscale    TailscaleConfig `yaml:"tailscale" toml:"tailscale"`

	ReadHeaderTimeout    time.Duration `yaml:"-" toml:"-"`
	ReadHeaderTimeoutRaw string        `yaml:"read_header_timeout" toml:"read_header_timeout"`
}

// TLSConfig holds certificate paths for the HTTPS listener
type TLSConfig struct {
	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve TLS with the tailnet certificate
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // expose publicly, implies HTTPS
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver       string `yaml:"driver" toml:"driver"` // sqlite (pure Go) or sqlite3 (cgo)
	Path         string `yaml:"path" toml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns" toml:"max_open_conns"`

	ConnMaxLifetime    time.Duration `yaml:"-" toml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime" toml:"conn_max_lifetime"`
}

// AuthConfig holds session and cookie configuration
type AuthConfig struct {
	SessionCacheSize *int `yaml:"session_cache_size" toml:"session_cache_size"` // 0 disables the cache

	SessionCacheTTL        time.Duration `yaml:"-" toml:"-"`
	SessionRefreshInterval time.Duration `yaml:"-" toml:"-"`
	CookieMaxAge           time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	SessionCacheTTLRaw        string `yaml:"session_cache_ttl" toml:"session_cache_ttl"`
	SessionRefreshIntervalRaw string `yaml:"session_refresh_interval" toml:"session_refresh_interval"`
	CookieMaxAgeRaw           string `yaml:"cookie_max_age" toml:"cookie_max_age"`
}

// CacheSize returns the configured session cache size, or the default.
func (a *AuthConfig) CacheSize() int {
	if a.SessionCacheSize == nil {
		return DefaultSessionCacheSize
	}
	return *a.SessionCacheSize
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Path     string `yaml:"path" toml:"path"`
	Exporter string `yaml:"exporter" toml:"exporter"` // prometheus, stdout or none
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes configuration data, applies defaults and environment
// overrides, and validates the result.
func Parse(data []byte, isTOML bool) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" && c.Server.HTTPSAddr == "" && !c.Server.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDatabaseDriver
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Auth.SessionCacheTTLRaw == "" {
		c.Auth.SessionCacheTTL = DefaultSessionCacheTTL
	}
	if c.Auth.SessionRefreshInterval == 0 {
		c.Auth.SessionRefreshInterval = DefaultSessionRefreshInterval
	}
	if c.Auth.CookieMaxAge == 0 {
		c.Auth.CookieMaxAge = DefaultCookieMaxAge
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Enabled && c.Metrics.Exporter == "" {
		c.Metrics.Exporter = "prometheus"
	}
}

func (c *Config) applyEnv() {
	if path := os.Getenv(DatabasePathEnv); path != "" {
		c.Database.Path = path
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" && c.Server.HTTPSAddr == "" && !c.Server.Tailscale.Enabled {
		return fmt.Errorf("server.http_addr or server.https_addr is required (or enable tailscale)")
	}

	if c.Server.HTTPSAddr != "" && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required with server.https_addr")
	}

	if c.Server.RedirectHTTP && (c.Server.HTTPAddr == "" || c.Server.HTTPSAddr == "") {
		return fmt.Errorf("server.redirect_http needs both server.http_addr and server.https_addr")
	}

	// Tailscale requires a hostname
	if c.Server.Tailscale.Enabled && c.Server.Tailscale.Hostname == "" {
		return fmt.Errorf("server.tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
	}

	if c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database.max_open_conns must not be negative")
	}

	if c.Auth.SessionCacheSize != nil && *c.Auth.SessionCacheSize < 0 {
		return fmt.Errorf("auth.session_cache_size must not be negative")
	}

	if c.Auth.SessionCacheTTL < 0 {
		return fmt.Errorf("auth.session_cache_ttl must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	switch c.Metrics.Exporter {
	case "", "prometheus", "stdout", "none":
	default:
		return fmt.Errorf("metrics.exporter must be prometheus, stdout or none, got %q", c.Metrics.Exporter)
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.read_header_timeout", cfg.Server.ReadHeaderTimeoutRaw, &cfg.Server.ReadHeaderTimeout},
		{"database.conn_max_lifetime", cfg.Database.ConnMaxLifetimeRaw, &cfg.Database.ConnMaxLifetime},
		{"auth.session_cache_ttl", cfg.Auth.SessionCacheTTLRaw, &cfg.Auth.SessionCacheTTL},
		{"auth.session_refresh_interval", cfg.Auth.SessionRefreshIntervalRaw, &cfg.Auth.SessionRefreshInterval},
		{"auth.cookie_max_age", cfg.Auth.CookieMaxAgeRaw, &cfg.Auth.CookieMaxAge},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
