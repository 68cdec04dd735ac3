// Trapline honeypot server: answers MCP traffic with a fabricated DevOps
// tool surface and exposes the recorded attacker activity to analysts.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/trapline-sec/trapline/pkg/api"
	"github.com/trapline-sec/trapline/pkg/cleanup"
	"github.com/trapline-sec/trapline/pkg/config"
	"github.com/trapline-sec/trapline/pkg/database"
	"github.com/trapline-sec/trapline/pkg/engagement"
	"github.com/trapline-sec/trapline/pkg/events"
	"github.com/trapline-sec/trapline/pkg/mcp"
	"github.com/trapline-sec/trapline/pkg/metrics"
	"github.com/trapline-sec/trapline/pkg/session"
	"github.com/trapline-sec/trapline/pkg/simulators"
	"github.com/trapline-sec/trapline/pkg/slack"
	"github.com/trapline-sec/trapline/pkg/tokens"
	"github.com/trapline-sec/trapline/pkg/version"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to environment file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load env file, continuing with existing environment",
			"path", *envFile, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envFile)
	}

	ctx := context.Background()

	// 1. Configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
	slog.Info("Starting trapline",
		"build", version.Full(),
		"addr", cfg.Addr(),
		"decoy_name", config.ServerName,
		"decoy_version", config.ServerVersion)

	// 2. Database
	dbClient, err := database.NewClient(ctx, database.DefaultConfig(cfg.DBPath))
	if err != nil {
		slog.Error("Failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	store := database.NewStore(dbClient)
	slog.Info("Database ready", "path", cfg.DBPath)

	// 3. Metrics registry
	promRegistry := metrics.NewRegistry()
	m := metrics.NewMetrics(promRegistry)

	// 4. Event bus and session manager. The publish hook must be installed
	// before any component can publish.
	bus := events.NewBus()
	sessions := session.NewManager(store, bus, cfg.SessionTTL)
	bus.OnPublish(func(ev events.Event) {
		m.RecordEventPublished(ev.Type)
		m.SetCachedSessions(sessions.CachedCount())
	})
	sessions.Start(ctx)

	// 5. Tool simulators
	engine := engagement.NewEngine()
	sink := simulators.NewTokenSink(tokens.NewGenerator(), store, m)
	simRegistry := simulators.NewRegistry(sessions, store, bus, engine, m)
	simRegistry.RegisterDefaults(sink)
	slog.Info("Simulators registered", "tools", len(simRegistry.ListTools()))

	// 6. MCP protocol handler
	protocol := mcp.NewHandler(sessions, simRegistry, m)

	// 7. Slack escalation alerts (nil when unconfigured; Start is a no-op then)
	alerter := slack.NewService(slack.ServiceConfig{
		Token:        cfg.SlackToken,
		Channel:      cfg.SlackChannel,
		DashboardURL: cfg.DashboardURL,
		Threshold:    cfg.EscalationThreshold,
	})
	alerter.Start(bus)

	// 8. Honey-token retention worker
	retention := cleanup.NewService(store, cfg.TokenRetentionDays, cfg.CleanupInterval)
	retention.Start(ctx)

	// 9. Start HTTP server (non-blocking)
	httpServer := api.NewServer(cfg, store, sessions, bus, protocol, m, promRegistry)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Addr())
		if err := httpServer.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Trapline started successfully")

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown: stop intake first so the workers drain a fixed
	// backlog, then stop the workers.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	alerter.Stop()
	retention.Stop()
	sessions.Stop()

	slog.Info("Shutdown complete")
}
