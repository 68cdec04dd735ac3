// Package api exposes the honeypot over HTTP: the MCP JSON-RPC endpoint
// attackers talk to, the dashboard REST API, a live SSE event stream, and
// Prometheus metrics.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trapline-sec/trapline/pkg/config"
	"github.com/trapline-sec/trapline/pkg/database"
	"github.com/trapline-sec/trapline/pkg/events"
	"github.com/trapline-sec/trapline/pkg/mcp"
	"github.com/trapline-sec/trapline/pkg/metrics"
	"github.com/trapline-sec/trapline/pkg/session"
)

// Server wires the gin engine, both rate limiters, and the live-stream
// bookkeeping around the honeypot's components.
type Server struct {
	cfg      *config.Config
	store    *database.Store
	sessions *session.Manager
	bus      *events.Bus
	protocol *mcp.Handler
	metrics  *metrics.Metrics
	log      *slog.Logger

	engine *gin.Engine

	mcpLimiter       *RateLimiter
	dashboardLimiter *RateLimiter

	streamMu      sync.Mutex
	streamClients int

	httpMu     sync.Mutex
	httpServer *http.Server
}

// NewServer builds the engine with all routes and middleware registered.
// Metrics are served from gatherer; pass nil to disable the /metrics route.
func NewServer(cfg *config.Config, store *database.Store, sessions *session.Manager, bus *events.Bus, protocol *mcp.Handler, m *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:              cfg,
		store:            store,
		sessions:         sessions,
		bus:              bus,
		protocol:         protocol,
		metrics:          m,
		log:              slog.Default().With("component", "api"),
		engine:           gin.New(),
		mcpLimiter:       NewRateLimiter(cfg.MCPRateLimit, cfg.MCPRateWindow),
		dashboardLimiter: NewRateLimiter(cfg.DashboardRateLimit, cfg.DashboardRateWindow),
	}
	s.registerRoutes(gatherer)
	return s
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.engine.Use(gin.Recovery())
	s.engine.Use(securityHeaders(s.cfg.CORSOrigin))

	s.engine.GET("/health", s.healthHandler)
	s.engine.POST("/mcp", s.mcpHandler)

	if gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	dashboard := s.engine.Group("/api")
	dashboard.Use(requireAPIKey(s.cfg.DashboardAPIKey))
	dashboard.Use(s.rateLimit(s.dashboardLimiter, "dashboard"))
	dashboard.GET("/health", s.dashboardHealthHandler)
	dashboard.GET("/stats", s.statsHandler)
	dashboard.GET("/sessions", s.listSessionsHandler)
	dashboard.GET("/sessions/:id", s.getSessionHandler)
	dashboard.GET("/sessions/:id/interactions", s.sessionInteractionsHandler)
	dashboard.GET("/sessions/:id/tokens", s.sessionTokensHandler)
	dashboard.GET("/tokens", s.listTokensHandler)
	dashboard.GET("/events", s.eventsHandler)
	dashboard.GET("/events/live", s.streamHandler)
}

// Handler exposes the engine for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves HTTP on addr, blocking until the listener fails or Shutdown
// is called, in which case it returns http.ErrServerClosed. No write timeout
// is set because the SSE stream holds its connection open for minutes.
func (s *Server) Start(addr string) error {
	s.httpMu.Lock()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv
	s.httpMu.Unlock()

	return srv.ListenAndServe()
}

// StartWithListener serves on an existing listener. Tests use it to bind
// port 0 and read the assigned address back.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpMu.Lock()
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv
	s.httpMu.Unlock()

	return srv.Serve(ln)
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpMu.Lock()
	srv := s.httpServer
	s.httpMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
