// Package config handles configuration loading for timechamp.
//
// # Overview
//
// Configuration is loaded from a YAML file, or a TOML file when the path ends
// in .toml, with environment variable expansion. Unset fields receive
// defaults and the result is validated before use.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from TIMECHAMP_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/timechamp/config.yaml
//  3. ~/.config/timechamp/config.yaml
//
// TIMECHAMP_DB_PATH overrides database.path after parsing.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	server:
//	  tailscale:
//	    auth_key: "${TS_AUTHKEY}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  session_cache_ttl: "10m"
//	  session_refresh_interval: "5m"
//	  cookie_max_age: "2160h"
//
// # Example Configuration
//
//	server:
//	  http_addr: ":8080"
//	  https_addr: ":8443"
//	  redirect_http: true
//	  reverse_proxy: false
//	  tls:
//	    cert_file: "/etc/timechamp/tls.crt"
//	    key_file: "/etc/timechamp/tls.key"
//
//	database:
//	  driver: "sqlite"
//	  path: "/var/lib/timechamp/timechamp.db"
//	  max_open_conns: 4
//	  conn_max_lifetime: "1h"
//
//	auth:
//	  session_cache_size: 10000
//	  session_cache_ttl: "10m"
//
//	logging:
//	  level: "info"
//	  format: "text"
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//	  exporter: "prometheus"
//
// # Validation
//
// Validate reports the first problem found: missing listeners, HTTPS without
// certificates, an unknown database driver, log level or metrics exporter.
package config
