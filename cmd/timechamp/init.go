// ABOUTME: Interactive "timechamp init" command writing a YAML config file
// ABOUTME: Prompts for listeners, database, Tailscale, logging and metrics

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// initAnswers holds the values collected by runInit.
type initAnswers struct {
	httpAddr  string
	httpsAddr string
	certFile  string
	keyFile   string
	redirect  bool
	dbPath    string

	tailscale   bool
	tsHostname  string
	tsAuthKey   string
	tsEphemeral bool
	tsFunnel    bool

	logLevel  string
	logFormat string
	metrics   bool
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("timechamp configuration setup")
	fmt.Println("=============================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Println("\n--- Server Configuration ---")
	a.httpAddr = prompt(reader, "HTTP address", "localhost:8080")
	a.httpsAddr = prompt(reader, "HTTPS address (leave empty to disable)", "")
	if a.httpsAddr != "" {
		a.certFile = prompt(reader, "TLS certificate file", "")
		a.keyFile = prompt(reader, "TLS key file", "")
		a.redirect = yes(prompt(reader, "Redirect HTTP to HTTPS?", "yes"))
	}

	fmt.Println("\n--- Database Configuration ---")
	a.dbPath = prompt(reader, "SQLite database path", filepath.Join(getDataPath(), "timechamp.db"))

	fmt.Println("\n--- Tailscale Configuration ---")
	a.tailscale = yes(prompt(reader, "Enable Tailscale?", "no"))
	if a.tailscale {
		a.tsHostname = prompt(reader, "Tailscale hostname", "timechamp")
		a.tsAuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		a.tsEphemeral = yes(prompt(reader, "Ephemeral node?", "no"))
		a.tsFunnel = yes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	a.logLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.logFormat = prompt(reader, "Log format (text/json)", "text")

	fmt.Println("\n--- Metrics Configuration ---")
	a.metrics = yes(prompt(reader, "Expose Prometheus metrics?", "no"))

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file may hold a Tailscale auth key
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(a.dbPath)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nNext steps:")
	fmt.Println("  timechamp bootstrap --username admin")
	fmt.Println("  timechamp serve")

	return nil
}

// renderConfig produces the YAML config file for a.
func renderConfig(a initAnswers) string {
	var b strings.Builder
	b.WriteString("# timechamp configuration\n")
	b.WriteString("# Generated by timechamp init\n\n")

	b.WriteString("server:\n")
	if a.tailscale {
		b.WriteString("  tailscale:\n")
		b.WriteString("    enabled: true\n")
		fmt.Fprintf(&b, "    hostname: %q\n", a.tsHostname)
		if a.tsAuthKey != "" {
			fmt.Fprintf(&b, "    auth_key: %q\n", a.tsAuthKey)
		}
		fmt.Fprintf(&b, "    ephemeral: %t\n", a.tsEphemeral)
		fmt.Fprintf(&b, "    funnel: %t\n", a.tsFunnel)
	} else {
		fmt.Fprintf(&b, "  http_addr: %q\n", a.httpAddr)
		if a.httpsAddr != "" {
			fmt.Fprintf(&b, "  https_addr: %q\n", a.httpsAddr)
			fmt.Fprintf(&b, "  redirect_http: %t\n", a.redirect)
			b.WriteString("  tls:\n")
			fmt.Fprintf(&b, "    cert_file: %q\n", a.certFile)
			fmt.Fprintf(&b, "    key_file: %q\n", a.keyFile)
		}
	}
	b.WriteString("\n")

	b.WriteString("database:\n")
	b.WriteString("  driver: \"sqlite\"\n")
	fmt.Fprintf(&b, "  path: %q\n", a.dbPath)
	b.WriteString("\n")

	b.WriteString("auth:\n")
	b.WriteString("  session_cache_size: 10000\n")
	b.WriteString("  session_cache_ttl: \"10m\"\n")
	b.WriteString("  session_refresh_interval: \"5m\"\n")
	b.WriteString("\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", a.logLevel)
	fmt.Fprintf(&b, "  format: %q\n", a.logFormat)
	b.WriteString("\n")

	b.WriteString("metrics:\n")
	fmt.Fprintf(&b, "  enabled: %t\n", a.metrics)
	b.WriteString("  path: \"/metrics\"\n")
	b.WriteString("  exporter: \"prometheus\"\n")

	return b.String()
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}

	if input == "" {
		return defaultVal
	}
	return input
}
