package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trapline-sec/trapline/pkg/events"
)

const (
	// maxStreamClients caps concurrent SSE subscribers per process.
	maxStreamClients = 10

	// streamLifetime is the hard cap on one SSE connection. Clients are told
	// to reconnect afterwards so half-dead connections cannot pile up behind
	// proxies that never signal the close.
	streamLifetime = 5 * time.Minute

	// streamWakePeriod bounds how long the drain loop waits for new events
	// before emitting a heartbeat comment.
	streamWakePeriod = time.Second
)

// streamHandler handles GET /api/events/live, the dashboard's SSE feed.
func (s *Server) streamHandler(c *gin.Context) {
	s.runStream(c, streamLifetime)
}

// runStream owns one SSE connection end to end. The subscriber handle and
// the slot counter are released on every exit path, including client
// disconnects delivered through the request context.
func (s *Server) runStream(c *gin.Context, lifetime time.Duration) {
	if !s.acquireStreamSlot() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many concurrent streams"})
		return
	}
	defer s.releaseStreamSlot()

	sub, lastID := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	// A numeric Last-Event-ID resumes from where the client dropped, as far
	// back as the ring still reaches.
	if v := c.GetHeader("Last-Event-ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			lastID = n
		}
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	if stats, err := s.store.Stats(c.Request.Context()); err == nil {
		data, merr := json.Marshal(stats)
		if merr == nil {
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", events.EventTypeStats, data)
		}
	} else {
		s.log.Warn("Skipping stats snapshot for stream", "error", err)
	}
	lastID = s.drainEvents(c, lastID)
	c.Writer.Flush()

	ctx := c.Request.Context()
	deadline := time.NewTimer(lifetime)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", events.EventTypeReconnect)
			c.Writer.Flush()
			return
		case <-sub.Notify():
			lastID = s.drainEvents(c, lastID)
			c.Writer.Flush()
		case <-time.After(streamWakePeriod):
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		}
	}
}

// drainEvents writes every retained event newer than lastID as an SSE frame
// and returns the advanced cursor.
func (s *Server) drainEvents(c *gin.Context, lastID int64) int64 {
	for _, ev := range s.bus.EventsSince(lastID) {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			lastID = ev.ID
			continue
		}
		fmt.Fprintf(c.Writer, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
		lastID = ev.ID
	}
	return lastID
}

func (s *Server) acquireStreamSlot() bool {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.streamClients >= maxStreamClients {
		return false
	}
	s.streamClients++
	s.metrics.SetSSESubscribers(s.streamClients)
	return true
}

func (s *Server) releaseStreamSlot() {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	s.streamClients--
	s.metrics.SetSSESubscribers(s.streamClients)
}
