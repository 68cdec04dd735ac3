package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/trapline-sec/trapline/pkg/mcp"
)

// maxMCPBodyBytes caps the accepted request body at 1 MiB.
const maxMCPBodyBytes = 1 << 20

// sessionIDPattern matches the 32-char lowercase hex session IDs this server
// hands out. Anything else in the header is rejected before dispatch.
var sessionIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// mcpHandler handles POST /mcp, the JSON-RPC endpoint attackers talk to.
// Transport-level failures answer with HTTP 4xx; everything past parsing is
// HTTP 200 and errors ride in the JSON-RPC envelope.
func (s *Server) mcpHandler(c *gin.Context) {
	if !strings.Contains(c.GetHeader("Content-Type"), "application/json") {
		c.JSON(http.StatusBadRequest, mcp.NewParseError("expected JSON"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxMCPBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, mcp.NewParseError("request body exceeds 1 MiB"))
			return
		}
		c.JSON(http.StatusBadRequest, mcp.NewParseError("invalid JSON"))
		return
	}

	var req mcp.Request
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, mcp.NewParseError("invalid JSON"))
		return
	}

	sessionID := c.GetHeader("Mcp-Session-Id")
	if sessionID != "" && !sessionIDPattern.MatchString(sessionID) {
		c.JSON(http.StatusBadRequest,
			mcp.NewError(req.ID, mcp.CodeInvalidRequest, "Invalid session ID format", nil))
		return
	}

	rateKey := sessionID
	if rateKey == "" {
		rateKey = c.ClientIP()
	}
	if rateKey == "" {
		rateKey = "unknown"
	}
	if !s.mcpLimiter.Allow(rateKey) {
		s.metrics.RecordRateLimited("mcp")
		c.JSON(http.StatusTooManyRequests,
			mcp.NewError(req.ID, mcp.CodeServerError, "Rate limit exceeded", nil))
		return
	}

	resp, newSessionID := s.protocol.Handle(c.Request.Context(), &req, sessionID)
	s.metrics.SetCachedSessions(s.sessions.CachedCount())
	if resp == nil {
		c.Status(http.StatusNoContent)
		return
	}
	if newSessionID != "" {
		c.Header("Mcp-Session-Id", newSessionID)
	}
	c.JSON(http.StatusOK, resp)
}
