package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trapline-sec/trapline/pkg/models"
)

// Pagination bounds shared by the dashboard list endpoints.
const (
	maxPageLimit                = 200
	defaultSessionPageLimit     = 50
	defaultInteractionPageLimit = 100
	defaultTokenPageLimit       = 50
)

// pageLimit parses ?limit and clamps it to [1, maxPageLimit].
func pageLimit(c *gin.Context, def int) int {
	limit := def
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return limit
}

// pageOffset parses ?offset and clamps it to >= 0.
func pageOffset(c *gin.Context) int {
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// statsHandler handles GET /api/stats.
func (s *Server) statsHandler(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// listSessionsHandler handles GET /api/sessions. Supported filters:
// escalation_level (exact), since (RFC 3339, matched against last activity),
// limit, offset.
func (s *Server) listSessionsHandler(c *gin.Context) {
	filters := models.SessionFilters{
		Limit:  pageLimit(c, defaultSessionPageLimit),
		Offset: pageOffset(c),
	}
	if v := c.Query("escalation_level"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters.EscalationLevel = &n
		}
	}
	if v := c.Query("since"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filters.Since = &ts
		}
	}

	result, err := s.store.ListSessions(c.Request.Context(), filters)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// getSessionHandler handles GET /api/sessions/:id.
func (s *Server) getSessionHandler(c *gin.Context) {
	id := c.Param("id")

	snap, err := s.store.GetSession(c.Request.Context(), id)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	tokenCount, err := s.store.TokenCount(c.Request.Context(), id)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionDetail(snap, tokenCount))
}

// sessionDetail renders the dashboard's full view of one session.
func sessionDetail(snap models.RestoredSession, tokenCount int) gin.H {
	return gin.H{
		"id":                     snap.ID,
		"client_info":            snap.ClientInfo,
		"started_at":             snap.StartedAt.UTC().Format(time.RFC3339),
		"last_seen_at":           snap.LastSeenAt.UTC().Format(time.RFC3339),
		"escalation_level":       snap.EscalationLevel,
		"discovered_hosts":       snap.Hosts,
		"discovered_ports":       snap.Ports,
		"discovered_files":       snap.Files,
		"discovered_credentials": snap.Credentials,
		"interaction_count":      snap.InteractionCount,
		"token_count":            tokenCount,
		"metadata":               snap.Metadata,
	}
}

// sessionInteractionsHandler handles GET /api/sessions/:id/interactions.
func (s *Server) sessionInteractionsHandler(c *gin.Context) {
	id := c.Param("id")

	snap, err := s.store.GetSession(c.Request.Context(), id)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}

	limit := pageLimit(c, defaultInteractionPageLimit)
	offset := pageOffset(c)

	rows, err := s.store.SessionInteractions(c.Request.Context(), id, limit, offset)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"interactions": rows,
		"total":        snap.InteractionCount,
		"limit":        limit,
		"offset":       offset,
	})
}

// sessionTokensHandler handles GET /api/sessions/:id/tokens.
func (s *Server) sessionTokensHandler(c *gin.Context) {
	id := c.Param("id")

	if _, err := s.store.GetSession(c.Request.Context(), id); err != nil {
		s.respondStoreError(c, err)
		return
	}
	tokens, err := s.store.SessionTokens(c.Request.Context(), id)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens, "total": len(tokens)})
}

// listTokensHandler handles GET /api/tokens. Supported filters: token_type
// (exact), limit, offset.
func (s *Server) listTokensHandler(c *gin.Context) {
	filters := models.TokenFilters{
		TokenType: c.Query("token_type"),
		Limit:     pageLimit(c, defaultTokenPageLimit),
		Offset:    pageOffset(c),
	}
	tokens, total, err := s.store.ListTokens(c.Request.Context(), filters)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tokens": tokens,
		"total":  total,
		"limit":  filters.Limit,
		"offset": filters.Offset,
	})
}

// eventsHandler handles GET /api/events, a polling fallback for dashboard
// clients that cannot hold an SSE connection open. since_id pages through
// the bus's retained ring.
func (s *Server) eventsHandler(c *gin.Context) {
	var sinceID int64
	if v := c.Query("since_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			sinceID = n
		}
	}

	evs := s.bus.EventsSince(sinceID)
	lastID := sinceID
	if len(evs) > 0 {
		lastID = evs[len(evs)-1].ID
	}
	c.JSON(http.StatusOK, gin.H{"events": evs, "last_id": lastID})
}
