package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trapline-sec/trapline/pkg/database"
)

// respondStoreError maps a store failure to a dashboard HTTP response.
func (s *Server) respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	s.log.Error("Dashboard query failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
