package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trapline-sec/trapline/pkg/config"
)

// healthHandler handles GET /health. The response is deliberately bland so
// the service scans like an ordinary internal tool.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"server":  config.ServerName,
		"version": config.ServerVersion,
	})
}

// dashboardHealthHandler handles GET /api/health, the authenticated
// diagnostics counterpart to the decoy /health. Attackers never see this;
// it rides behind the dashboard auth and rate limiter.
func (s *Server) dashboardHealthHandler(c *gin.Context) {
	health := s.store.Health(c.Request.Context())
	code := http.StatusOK
	if health.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, health)
}
