// ABOUTME: Entry point for the timechamp time tracking server
// ABOUTME: Dispatches the serve, init, bootstrap and health commands

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/bluemedia/timechamp/internal/account"
	"github.com/bluemedia/timechamp/internal/auth"
	"github.com/bluemedia/timechamp/internal/config"
	"github.com/bluemedia/timechamp/internal/server"
	"github.com/bluemedia/timechamp/internal/store"
)

// version is set at build time.
var version = "dev"

const banner = `
  _   _                     _
 | |_(_)_ __ ___   ___  ___| |__   __ _ _ __ ___  _ __
 | __| | '_ ' _ \ / _ \/ __| '_ \ / _' | '_ ' _ \| '_ \
 | |_| | | | | | |  __/ (__| | | | (_| | | | | | | |_) |
  \__|_|_| |_| |_|\___|\___|_| |_|\__,_|_| |_| |_| .__/
                                                 |_|
`

// getConfigPath returns the path to the config file.
// Priority: TIMECHAMP_CONFIG env var > XDG_CONFIG_HOME/timechamp/config.yaml > ~/.config/timechamp/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TIMECHAMP_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "timechamp", "config.yaml")
}

// getDataPath returns the directory holding the database.
// Priority: XDG_DATA_HOME/timechamp > ~/.local/share/timechamp
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "timechamp")
}

func usage() {
	fmt.Println("Usage: timechamp <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                      Start the API server")
	fmt.Println("  init                       Create a new config file interactively")
	fmt.Println("  bootstrap --username NAME  Create the first manage user")
	fmt.Println("  health                     Check server health")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin)
	case "bootstrap":
		err = runBootstrap(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s (%s)\n", cfg.Database.Path, cfg.Database.Driver)

	ts := cfg.Server.Tailscale
	if ts.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(ts.Hostname)
		if ts.Funnel {
			yellow.Print(" [funnel]")
		} else if ts.HTTPS {
			yellow.Print(" [https]")
		}
		if ts.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		if cfg.Server.HTTPAddr != "" {
			green.Print("    ▶ ")
			fmt.Printf("HTTP:      %s", cfg.Server.HTTPAddr)
			if cfg.Server.RedirectHTTP {
				gray.Print(" (redirect)")
			}
			fmt.Println()
		}
		if cfg.Server.HTTPSAddr != "" {
			green.Print("    ▶ ")
			fmt.Printf("HTTPS:     %s\n", cfg.Server.HTTPSAddr)
		}
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s (%s)\n", cfg.Metrics.Path, cfg.Metrics.Exporter)
	}

	fmt.Println()

	logger.Info("starting timechamp",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"https_addr", cfg.Server.HTTPSAddr,
	)

	server.Version = version
	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

// healthURL derives the local health endpoint from the configured listeners.
func healthURL(cfg *config.Config) (string, error) {
	scheme, addr := "http", cfg.Server.HTTPAddr
	if addr == "" || cfg.Server.RedirectHTTP {
		scheme, addr = "https", cfg.Server.HTTPSAddr
	}
	if addr == "" {
		return "", fmt.Errorf("no local listener configured")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("parsing listen address %q: %w", addr, err)
	}
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s://%s/health", scheme, net.JoinHostPort(host, port)), nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url, err := healthURL(cfg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// parseUsernameFlag reads --username from args.
// Supports both "--username value" and "--username=value" formats.
func parseUsernameFlag(args []string) (string, error) {
	var username string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--username" || arg == "-u":
			if i+1 >= len(args) {
				return "", fmt.Errorf("--username requires a value")
			}
			username = args[i+1]
			i++
		case strings.HasPrefix(arg, "--username="):
			username = strings.TrimPrefix(arg, "--username=")
		case strings.HasPrefix(arg, "-u="):
			username = strings.TrimPrefix(arg, "-u=")
		case strings.HasPrefix(arg, "-"):
			return "", fmt.Errorf("unknown flag: %s", arg)
		default:
			return "", fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return "", fmt.Errorf("--username flag is required")
	}
	if len(username) > 100 {
		return "", fmt.Errorf("username exceeds maximum length of 100 characters")
	}
	return username, nil
}

// runBootstrap creates the first manage user and prints its generated password.
func runBootstrap(ctx context.Context, args []string) error {
	username, err := parseUsernameFlag(args)
	if err != nil {
		return err
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config (run 'timechamp init' first): %w", err)
	}
	logger := setupLogger(cfg.Logging)

	s, err := store.Open(store.Options{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	sessions := auth.NewSessionStore(s, auth.SessionStoreConfig{Logger: logger})
	defer sessions.Close()
	accounts := account.NewService(s, sessions, auth.NewAPIKeyStore(s, logger), auth.NewPasswordHasher(), logger)

	user, password, err := accounts.Bootstrap(ctx, username)
	if err != nil {
		return fmt.Errorf("bootstrapping: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)
	green.Printf("  ✓ Created manage user: %s\n", user.Username)
	fmt.Println()
	cyan.Println("  Initial User")
	cyan.Println("  ------------")
	fmt.Printf("  ID:         %s\n", user.ID)
	fmt.Printf("  Username:   %s\n", user.Username)
	fmt.Printf("  Permission: %s\n", user.Permission)
	fmt.Printf("  Password:   %s\n", password)
	fmt.Println()
	yellow.Println("  The password is shown only once. Change it after the first login.")
	fmt.Println()

	return nil
}
