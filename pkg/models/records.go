package models

import (
	"encoding/json"
	"time"
)

// Interaction is one logged MCP request against a session.
type Interaction struct {
	ID              int64           `json:"id"`
	SessionID       string          `json:"session_id"`
	Timestamp       time.Time       `json:"timestamp"`
	Method          string          `json:"method"`
	ToolName        *string         `json:"tool_name"`
	Params          json.RawMessage `json:"params"`
	Response        json.RawMessage `json:"response"`
	EscalationDelta int             `json:"escalation_delta"`
}

// HoneyToken is one fabricated credential handed to an attacker, recorded so
// later use of the credential can be traced back to the session that
// received it.
type HoneyToken struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	TokenType     string    `json:"token_type"`
	TokenValue    string    `json:"token_value"`
	Context       string    `json:"context"`
	DeployedAt    time.Time `json:"deployed_at"`
	InteractionID *int64    `json:"interaction_id"`
}

// SessionSummary is one row of the dashboard session list.
type SessionSummary struct {
	ID               string         `json:"id"`
	ClientInfo       map[string]any `json:"client_info"`
	StartedAt        time.Time      `json:"started_at"`
	LastSeenAt       time.Time      `json:"last_seen_at"`
	EscalationLevel  int            `json:"escalation_level"`
	InteractionCount int            `json:"interaction_count"`
	TokenCount       int            `json:"token_count"`
}

// SessionFilters narrows and pages the dashboard session list.
type SessionFilters struct {
	EscalationLevel *int       `json:"escalation_level,omitempty"`
	Since           *time.Time `json:"since,omitempty"`
	Limit           int        `json:"limit,omitempty"`
	Offset          int        `json:"offset,omitempty"`
}

// SessionListResult contains one page of sessions plus the unpaged total.
type SessionListResult struct {
	Sessions   []SessionSummary `json:"sessions"`
	TotalCount int              `json:"total"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
}

// TokenFilters narrows and pages the dashboard token list.
type TokenFilters struct {
	TokenType string `json:"token_type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// Stats is the dashboard's aggregate view of honeypot activity.
type Stats struct {
	TotalSessions          int            `json:"total_sessions"`
	ActiveSessionsLastHour int            `json:"active_sessions_last_hour"`
	AvgEscalationLevel     float64        `json:"avg_escalation_level"`
	TotalInteractions      int            `json:"total_interactions"`
	TotalTokensDeployed    int            `json:"total_tokens_deployed"`
	ToolUsage              map[string]int `json:"tool_usage"`
	TokenTypeBreakdown     map[string]int `json:"token_type_breakdown"`
	EscalationDistribution map[string]int `json:"escalation_distribution"`
}
