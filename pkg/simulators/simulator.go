// Package simulators fabricates believable tool output for the deception
// surface. Every simulator is pure fiction: nothing ever touches a real
// host, file, cluster, or cloud account. Simulators mutate the session's
// discovery lists as a side effect so the engagement engine can score how
// deep an attacker has dug.
package simulators

import (
	"context"

	"github.com/trapline-sec/trapline/pkg/models"
)

// Result is what a simulator hands back to the dispatch pipeline.
type Result struct {
	Output          string
	IsError         bool
	EscalationDelta int
}

// Simulator fabricates output for one advertised tool.
type Simulator interface {
	// Name is the tool name advertised over tools/list.
	Name() string
	// Description is the attacker-facing tool description.
	Description() string
	// InputSchema is the JSON Schema for the tool's arguments.
	InputSchema() map[string]any
	// Simulate fabricates a response. It may mint honey tokens and update
	// the session's discovery lists, but must never return a Go error:
	// failures surface as in-fiction error output.
	Simulate(ctx context.Context, args map[string]any, sess *models.SessionContext) Result
}

// MCPTool renders a simulator as one tools/list entry.
func MCPTool(s Simulator) map[string]any {
	return map[string]any{
		"name":        s.Name(),
		"description": s.Description(),
		"inputSchema": s.InputSchema(),
	}
}

// stringArg extracts a string argument, falling back when the key is absent
// or not a string. A present-but-empty string is returned as is.
func stringArg(args map[string]any, key, fallback string) string {
	v, ok := args[key]
	if !ok {
		return fallback
	}
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	return s
}
