// Package events provides the in-process event bus feeding the dashboard's
// live stream. Events are held in a bounded ring buffer with strictly
// increasing IDs, so SSE clients can resume from their last seen ID and
// polling clients can page with events_since semantics.
//
// Events are deliberately process-local and never persisted: a restart
// resets IDs, and clients resuming with a stale cursor simply receive the
// whole ring again.
package events

import "time"

// Event types published by the honeypot.
const (
	// EventTypeSessionNew fires when an attacker completes initialize.
	EventTypeSessionNew = "session_new"

	// EventTypeInteraction fires after every dispatched tool call.
	EventTypeInteraction = "interaction"

	// EventTypeTokenDeployed fires when a tool call handed out at least one
	// fabricated credential.
	EventTypeTokenDeployed = "token_deployed"

	// EventTypeSessionUpdate fires when a session's escalation level rises.
	EventTypeSessionUpdate = "session_update"

	// EventTypeStats is the snapshot pushed to SSE clients on connect.
	EventTypeStats = "stats"

	// EventTypeReconnect asks an SSE client to reconnect once its stream
	// reaches the per-connection lifetime.
	EventTypeReconnect = "reconnect"
)

// Event is one bus entry. Data holds the type-specific payload.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
