// Package slack posts escalation alerts to a Slack channel. The first time
// a session crosses the configured escalation threshold a channel alert
// goes out; later escalations of the same session are threaded under it,
// located via a per-session fingerprint when the process has restarted in
// between.
package slack

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/trapline-sec/trapline/pkg/events"
)

// alertPostTimeout bounds each Slack API call so a slow workspace cannot
// stall the alert loop.
const alertPostTimeout = 5 * time.Second

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
	Threshold    int
}

// Service consumes bus events on its own goroutine and turns escalation
// changes into Slack messages. Nil-safe: all methods are no-ops when the
// service is nil. Fail-open: delivery failures are logged, never
// propagated.
type Service struct {
	client       *Client
	dashboardURL string
	threshold    int
	log          *slog.Logger

	mu      sync.Mutex
	threads map[string]string // session id -> parent message ts

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewService creates the alerting service. Returns nil if Token or Channel
// is empty, which disables alerting entirely.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return newService(NewClient(cfg.Token, cfg.Channel), cfg.DashboardURL, cfg.Threshold)
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string, threshold int) *Service {
	return newService(client, dashboardURL, threshold)
}

func newService(client *Client, dashboardURL string, threshold int) *Service {
	if threshold < 1 {
		threshold = 1
	}
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		threshold:    threshold,
		log:          slog.Default().With("component", "slack-service"),
		threads:      make(map[string]string),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start subscribes to the bus and launches the alert loop.
func (s *Service) Start(bus *events.Bus) {
	if s == nil || s.started {
		return
	}
	s.started = true

	sub, lastID := bus.Subscribe()
	go s.run(bus, sub, lastID)

	s.log.Info("Slack alerting started", "threshold", s.threshold)
}

// Stop signals the alert loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s == nil || !s.started {
		return
	}
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	s.log.Info("Slack alerting stopped")
}

func (s *Service) run(bus *events.Bus, sub *events.Subscriber, lastID int64) {
	defer close(s.done)
	defer bus.Unsubscribe(sub)

	for {
		select {
		case <-s.stop:
			return
		case <-sub.Notify():
			for _, ev := range bus.EventsSince(lastID) {
				lastID = ev.ID
				s.handleEvent(context.Background(), ev)
			}
		}
	}
}

// handleEvent reacts to escalation changes at or above the threshold;
// every other event is ignored.
func (s *Service) handleEvent(ctx context.Context, ev events.Event) {
	if ev.Type != events.EventTypeSessionUpdate {
		return
	}
	data, ok := ev.Data.(map[string]any)
	if !ok {
		return
	}
	sessionID, _ := data["session_id"].(string)
	level, ok := asInt(data["escalation_level"])
	if sessionID == "" || !ok || level < s.threshold {
		return
	}
	interactions, _ := asInt(data["interaction_count"])

	s.notifyEscalation(ctx, Alert{
		SessionID:        sessionID,
		Level:            level,
		InteractionCount: interactions,
	})
}

func (s *Service) notifyEscalation(ctx context.Context, a Alert) {
	s.mu.Lock()
	threadTS, seen := s.threads[a.SessionID]
	s.mu.Unlock()

	if seen {
		s.postUpdate(ctx, a, threadTS)
		return
	}

	// A parent alert may already exist, posted before a restart.
	threadTS, err := s.client.FindMessageByFingerprint(ctx, Fingerprint(a.SessionID))
	if err != nil {
		s.log.Warn("Slack history lookup failed",
			"session_id", a.SessionID,
			"error", err)
	}
	if threadTS != "" {
		s.remember(a.SessionID, threadTS)
		s.postUpdate(ctx, a, threadTS)
		return
	}

	text, blocks := BuildEscalationAlert(a, s.dashboardURL)
	ts, err := s.client.PostMessage(ctx, text, blocks, "", alertPostTimeout)
	if err != nil {
		// Not remembered, so the next escalation retries the parent.
		s.log.Error("Failed to post Slack escalation alert",
			"session_id", a.SessionID,
			"level", a.Level,
			"error", err)
		return
	}
	s.remember(a.SessionID, ts)
}

func (s *Service) postUpdate(ctx context.Context, a Alert, threadTS string) {
	text, blocks := BuildEscalationUpdate(a)
	if _, err := s.client.PostMessage(ctx, text, blocks, threadTS, alertPostTimeout); err != nil {
		s.log.Error("Failed to post Slack escalation update",
			"session_id", a.SessionID,
			"level", a.Level,
			"error", err)
	}
}

func (s *Service) remember(sessionID, threadTS string) {
	s.mu.Lock()
	s.threads[sessionID] = threadTS
	s.mu.Unlock()
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
