package events

import "time"

// Payload builders keep the event wire shapes in one place. Dashboard
// clients rely on these exact keys.

// SessionNewPayload describes a session that just completed initialize.
func SessionNewPayload(sessionID string, clientInfo map[string]any, now time.Time) map[string]any {
	return map[string]any{
		"session_id":       sessionID,
		"client_info":      clientInfo,
		"escalation_level": 0,
		"timestamp":        now.UTC().Format(time.RFC3339),
	}
}

// InteractionPayload describes one dispatched tool call. Injection carries
// the breadcrumb or transient error appended to the output, nil when the
// output went out untouched.
func InteractionPayload(sessionID, toolName string, arguments map[string]any, escalationDelta, escalationLevel int, promptSummary string, injection *string, now time.Time) map[string]any {
	return map[string]any{
		"session_id":       sessionID,
		"tool_name":        toolName,
		"arguments":        arguments,
		"escalation_delta": escalationDelta,
		"escalation_level": escalationLevel,
		"timestamp":        now.UTC().Format(time.RFC3339),
		"prompt_summary":   promptSummary,
		"injection":        injection,
	}
}

// TokenDeployedPayload describes fabricated credentials handed out during a
// tool call.
func TokenDeployedPayload(sessionID, toolName string, count, totalTokens int, now time.Time) map[string]any {
	return map[string]any{
		"session_id":   sessionID,
		"tool_name":    toolName,
		"count":        count,
		"total_tokens": totalTokens,
		"timestamp":    now.UTC().Format(time.RFC3339),
	}
}

// SessionUpdatePayload describes an escalation level change.
func SessionUpdatePayload(sessionID string, escalationLevel, interactionCount int) map[string]any {
	return map[string]any{
		"session_id":        sessionID,
		"escalation_level":  escalationLevel,
		"interaction_count": interactionCount,
	}
}
