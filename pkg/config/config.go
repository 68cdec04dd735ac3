// Package config loads trapline's runtime configuration from environment
// variables and defines the decoy identity presented to connected clients.
//
// Every knob has a default that produces a working local deployment, so a
// bare `trapline` invocation comes up listening on :5000 with a SQLite file
// in the working directory. Invalid numeric values are logged and replaced
// with their defaults rather than aborting startup.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Decoy identity advertised over the MCP handshake. These are deliberately
// NOT the real application name or version; connected clients must only ever
// see a plausible internal tool platform.
const (
	ServerName      = "internal-devops-tools"
	ServerVersion   = "2.4.1"
	ProtocolVersion = "2025-11-25"
)

// Config holds all runtime settings.
type Config struct {
	// Server
	Host  string
	Port  int
	Debug bool

	// Persistence
	DBPath string

	// Session lifecycle
	SessionTTL time.Duration

	// Rate limiting (requests per window)
	MCPRateLimit        int
	MCPRateWindow       time.Duration
	DashboardRateLimit  int
	DashboardRateWindow time.Duration

	// Dashboard surface
	CORSOrigin      string
	DashboardAPIKey string
	DashboardURL    string

	// Honey-token retention (0 days disables purging)
	TokenRetentionDays int
	CleanupInterval    time.Duration

	// Slack alerting (empty token or channel disables it)
	SlackToken          string
	SlackChannel        string
	EscalationThreshold int
}

// Load reads configuration from the environment, applying defaults for
// anything unset and warning about values that fail to parse.
func Load() *Config {
	return &Config{
		Host:  envString("HONEYPOT_HOST", "0.0.0.0"),
		Port:  envInt("HONEYPOT_PORT", 5000),
		Debug: envBool("HONEYPOT_DEBUG", false),

		DBPath: envString("HONEYPOT_DB_PATH", "./honeypot.db"),

		SessionTTL: envSeconds("HONEYPOT_SESSION_TTL", 3600),

		MCPRateLimit:        envInt("HONEYPOT_MCP_RATE_LIMIT", 60),
		MCPRateWindow:       envSeconds("HONEYPOT_MCP_RATE_WINDOW", 60),
		DashboardRateLimit:  envInt("HONEYPOT_DASHBOARD_RATE_LIMIT", 120),
		DashboardRateWindow: envSeconds("HONEYPOT_DASHBOARD_RATE_WINDOW", 60),

		CORSOrigin:      envString("HONEYPOT_CORS_ORIGIN", ""),
		DashboardAPIKey: envString("DASHBOARD_API_KEY", ""),
		DashboardURL:    envString("HONEYPOT_DASHBOARD_URL", "http://localhost:5173"),

		TokenRetentionDays: envInt("HONEYPOT_TOKEN_RETENTION_DAYS", 0),
		CleanupInterval:    envSeconds("HONEYPOT_CLEANUP_INTERVAL", 3600),

		SlackToken:          envString("SLACK_BOT_TOKEN", ""),
		SlackChannel:        envString("HONEYPOT_SLACK_CHANNEL", ""),
		EscalationThreshold: envInt("HONEYPOT_SLACK_ESCALATION_THRESHOLD", 3),
	}
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate rejects configurations that cannot produce a working server.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be in [1, 65535]", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.MCPRateLimit < 1 || c.DashboardRateLimit < 1 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.MCPRateWindow <= 0 || c.DashboardRateWindow <= 0 {
		return fmt.Errorf("rate windows must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default",
			"key", key,
			"value", v,
			"default", def,
			"error", err)
		return def
	}
	return n
}

func envSeconds(key string, defSecs int) time.Duration {
	return time.Duration(envInt(key, defSecs)) * time.Second
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("Invalid boolean in environment, using default",
			"key", key,
			"value", v,
			"default", def,
			"error", err)
		return def
	}
	return b
}
