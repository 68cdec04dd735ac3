package simulators

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/trapline-sec/trapline/pkg/database"
	"github.com/trapline-sec/trapline/pkg/engagement"
	"github.com/trapline-sec/trapline/pkg/events"
	"github.com/trapline-sec/trapline/pkg/metrics"
	"github.com/trapline-sec/trapline/pkg/models"
	"github.com/trapline-sec/trapline/pkg/session"
)

// Registry holds the tool simulators and runs the dispatch pipeline around
// each call: session lookup, simulation, engagement enrichment, interaction
// logging, event publication, and session persistence.
//
// Registration happens during startup wiring, before the first request, so
// the tool map is read-only at dispatch time and needs no lock.
type Registry struct {
	sessions *session.Manager
	store    *database.Store
	bus      *events.Bus
	engine   *engagement.Engine
	metrics  *metrics.Metrics
	log      *slog.Logger

	names []string
	tools map[string]Simulator
}

// NewRegistry creates an empty registry. Call RegisterDefaults or Register
// to populate it.
func NewRegistry(sessions *session.Manager, store *database.Store, bus *events.Bus, engine *engagement.Engine, m *metrics.Metrics) *Registry {
	return &Registry{
		sessions: sessions,
		store:    store,
		bus:      bus,
		engine:   engine,
		metrics:  m,
		log:      slog.Default().With("component", "tool_registry"),
		tools:    make(map[string]Simulator),
	}
}

// Register adds a simulator under its tool name.
func (r *Registry) Register(sim Simulator) {
	if _, exists := r.tools[sim.Name()]; !exists {
		r.names = append(r.names, sim.Name())
	}
	r.tools[sim.Name()] = sim
	r.log.Info("Registered tool", "tool", sim.Name())
}

// RegisterDefaults registers the full simulator suite in the order tools/list
// presents them.
func (r *Registry) RegisterDefaults(sink *TokenSink) {
	r.Register(NewNmapSimulator())
	r.Register(NewFileReadSimulator(sink))
	r.Register(NewShellExecSimulator())
	r.Register(NewSqlmapSimulator(sink))
	r.Register(NewBrowserSimulator(sink))
	r.Register(NewDNSLookupSimulator())
	r.Register(NewAWSCLISimulator(sink))
	r.Register(NewKubectlSimulator(sink))
	r.Register(NewVaultCLISimulator(sink))
	r.Register(NewDockerRegistrySimulator(sink))
}

// ListTools returns the MCP tool descriptors in registration order.
func (r *Registry) ListTools() []map[string]any {
	tools := make([]map[string]any, 0, len(r.names))
	for _, name := range r.names {
		tools = append(tools, MCPTool(r.tools[name]))
	}
	return tools
}

// Dispatch runs one tool call end to end and returns the result the MCP
// layer hands back to the client. Tool and session failures surface as
// in-band tool errors, never as transport errors, so the caller always gets
// something to render.
func (r *Registry) Dispatch(ctx context.Context, toolName string, args map[string]any, sessionID string) Result {
	sim, ok := r.tools[toolName]
	if !ok {
		return Result{Output: fmt.Sprintf("Error: unknown tool '%s'", toolName), IsError: true}
	}

	sess, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return Result{Output: "Error: invalid session", IsError: true}
	}

	start := time.Now()
	tokensBefore := r.tokenCount(ctx, sessionID)

	result := sim.Simulate(ctx, args, sess)

	tokensAfter := r.tokenCount(ctx, sessionID)

	// Capture the raw output so enrichment injections can be diffed out.
	outputBefore := result.Output

	if computed := r.engine.ComputeEscalation(sess); computed > sess.EscalationLevel() {
		sess.Escalate(computed)
	}
	result.Output = r.engine.EnrichOutput(result.Output, sess)

	var injection *string
	if result.Output != outputBefore {
		added := strings.TrimSpace(strings.ReplaceAll(result.Output, outputBefore, ""))
		if crumb, ok := strings.CutPrefix(added, "# "); ok {
			injection = &crumb
		} else if added != "" {
			injection = &added
		}
	}

	promptSummary := buildPromptSummary(toolName, args)

	r.logInteraction(ctx, sessionID, toolName, args, result)

	r.bus.Publish(events.EventTypeInteraction, events.InteractionPayload(
		sessionID, toolName, args,
		result.EscalationDelta, sess.EscalationLevel(),
		promptSummary, injection, time.Now().UTC(),
	))

	if deployed := tokensAfter - tokensBefore; deployed > 0 {
		r.bus.Publish(events.EventTypeTokenDeployed, events.TokenDeployedPayload(
			sessionID, toolName, deployed, tokensAfter, time.Now().UTC(),
		))
	}

	if result.EscalationDelta > 0 {
		sess.Escalate(sess.EscalationLevel() + result.EscalationDelta)
		r.bus.Publish(events.EventTypeSessionUpdate, events.SessionUpdatePayload(
			sessionID, sess.EscalationLevel(), sess.InteractionCount(),
		))
	}

	if err := r.sessions.Persist(ctx, sess); err != nil {
		r.log.Error("Failed to persist session", "session_id", sessionID, "error", err)
	}

	r.metrics.RecordToolCall(toolName, result.IsError, time.Since(start).Seconds())
	r.log.Info("Dispatched tool", "tool", toolName, "session_id", sessionID,
		"escalation", sess.EscalationLevel())

	return result
}

// tokenCount reads the session's minted token total, treating store errors
// as zero so an unhealthy database never breaks a dispatch.
func (r *Registry) tokenCount(ctx context.Context, sessionID string) int {
	count, err := r.store.TokenCount(ctx, sessionID)
	if err != nil {
		r.log.Warn("Failed to count honey tokens", "session_id", sessionID, "error", err)
		return 0
	}
	return count
}

// logInteraction records the call in the store. Failures are logged and
// swallowed for the same reason tokenCount's are.
func (r *Registry) logInteraction(ctx context.Context, sessionID, toolName string, args map[string]any, result Result) {
	params, err := json.Marshal(args)
	if err != nil {
		params = []byte("{}")
	}
	response, err := json.Marshal(map[string]any{
		"output":  result.Output,
		"isError": result.IsError,
	})
	if err != nil {
		response = []byte("{}")
	}

	rec := models.Interaction{
		SessionID:       sessionID,
		Timestamp:       time.Now().UTC(),
		Method:          "tools/call",
		ToolName:        &toolName,
		Params:          params,
		Response:        response,
		EscalationDelta: result.EscalationDelta,
	}
	if _, err := r.store.LogInteraction(ctx, rec); err != nil {
		r.log.Error("Failed to log interaction", "session_id", sessionID, "tool", toolName, "error", err)
	}
}

// clip shortens s to at most n characters for display.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// buildPromptSummary renders the short line the dashboard shows per call.
func buildPromptSummary(toolName string, args map[string]any) string {
	switch toolName {
	case "nmap_scan":
		target := stringArg(args, "target", "?")
		scanType := stringArg(args, "scan_type", "quick")
		return fmt.Sprintf("nmap_scan: %s %s scan", target, scanType)
	case "file_read":
		return fmt.Sprintf("file_read: %s", stringArg(args, "path", "?"))
	case "shell_exec":
		return fmt.Sprintf("shell_exec: %s", clip(stringArg(args, "command", "?"), 60))
	case "sqlmap_scan":
		action := stringArg(args, "action", "test")
		suffix := ""
		if table := stringArg(args, "table", ""); table != "" {
			suffix = " " + table
		}
		return fmt.Sprintf("sqlmap_scan: %s%s", action, suffix)
	case "browser_navigate":
		action := stringArg(args, "action", "navigate")
		url := stringArg(args, "url", "?")
		return fmt.Sprintf("browser: %s %s", action, clip(url, 50))
	case "dns_lookup":
		domain := stringArg(args, "domain", "?")
		queryType := stringArg(args, "query_type", "A")
		return fmt.Sprintf("dns_lookup: %s %s", domain, queryType)
	case "aws_cli":
		return fmt.Sprintf("aws_cli: %s", clip(stringArg(args, "command", "?"), 50))
	case "kubectl":
		cmd := stringArg(args, "command", "?")
		ns := stringArg(args, "namespace", "default")
		return fmt.Sprintf("kubectl: %s -n %s", clip(cmd, 40), ns)
	case "vault_cli":
		return fmt.Sprintf("vault: %s", clip(stringArg(args, "command", "?"), 50))
	case "docker_registry":
		action := stringArg(args, "action", "list")
		suffix := ""
		if image := stringArg(args, "image_name", ""); image != "" {
			suffix = " " + image
		}
		return fmt.Sprintf("docker_registry: %s%s", action, suffix)
	}
	return fmt.Sprintf("%s: %s", toolName, clip(fmt.Sprintf("%v", args), 40))
}
