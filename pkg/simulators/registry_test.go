package simulators

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trapline-sec/trapline/pkg/database"
	"github.com/trapline-sec/trapline/pkg/engagement"
	"github.com/trapline-sec/trapline/pkg/events"
	"github.com/trapline-sec/trapline/pkg/session"
	"github.com/trapline-sec/trapline/pkg/tokens"
)

type testEnv struct {
	store    *database.Store
	bus      *events.Bus
	sessions *session.Manager
	registry *Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	path := filepath.Join(t.TempDir(), "honeypot.db")
	client, err := database.NewClient(context.Background(), database.DefaultConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := database.NewStore(client)
	bus := events.NewBus()
	sessions := session.NewManager(store, bus, time.Hour)

	registry := NewRegistry(sessions, store, bus, engagement.NewEngine(), nil)
	registry.RegisterDefaults(NewTokenSink(tokens.NewGenerator(), store, nil))

	return &testEnv{store: store, bus: bus, sessions: sessions, registry: registry}
}

func (e *testEnv) newSession(t *testing.T) string {
	t.Helper()
	sess, err := e.sessions.Create(context.Background(), map[string]any{"name": "test-client"})
	require.NoError(t, err)
	return sess.ID()
}

// newSink builds a TokenSink backed by the env's store, for driving
// simulators directly without the dispatch pipeline.
func (e *testEnv) newSink() *TokenSink {
	return NewTokenSink(tokens.NewGenerator(), e.store, nil)
}

// eventsOfType filters the full ring down to one event type.
func (e *testEnv) eventsOfType(eventType string) []events.Event {
	var out []events.Event
	for _, ev := range e.bus.EventsSince(0) {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func TestListToolsReturnsFullSuite(t *testing.T) {
	env := newTestEnv(t)

	tools := env.registry.ListTools()
	require.Len(t, tools, 10)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		assert.Contains(t, tool, "name")
		assert.Contains(t, tool, "description")
		assert.Contains(t, tool, "inputSchema")
		assert.IsType(t, map[string]any{}, tool["inputSchema"])
		names = append(names, tool["name"].(string))
	}

	assert.Equal(t, []string{
		"nmap_scan", "file_read", "shell_exec", "sqlmap_scan", "browser_navigate",
		"dns_lookup", "aws_cli", "kubectl", "vault_cli", "docker_registry",
	}, names)
}

func TestDispatchKnownTool(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "shell_exec",
		map[string]any{"command": "whoami"}, sessionID)

	assert.Contains(t, result.Output, "deploy")
	assert.False(t, result.IsError)
}

func TestDispatchUnknownTool(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "nonexistent",
		map[string]any{}, sessionID)

	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "unknown tool")
}

func TestDispatchInvalidSession(t *testing.T) {
	env := newTestEnv(t)

	result := env.registry.Dispatch(context.Background(), "shell_exec",
		map[string]any{"command": "whoami"}, "bad_session")

	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "invalid session")
}

func TestDispatchLogsInteraction(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)
	ctx := context.Background()

	env.registry.Dispatch(ctx, "shell_exec", map[string]any{"command": "whoami"}, sessionID)

	rows, err := env.store.SessionInteractions(ctx, sessionID, 50, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].ToolName)
	assert.Equal(t, "shell_exec", *rows[0].ToolName)
	assert.Equal(t, "tools/call", rows[0].Method)
	assert.JSONEq(t, `{"command": "whoami"}`, string(rows[0].Params))
}

func TestDispatchPersistsDiscoveries(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)
	ctx := context.Background()

	env.registry.Dispatch(ctx, "nmap_scan", map[string]any{"target": "10.0.1.10"}, sessionID)

	snap, err := env.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Contains(t, snap.Hosts, "10.0.1.10")
	assert.NotEmpty(t, snap.Ports)
}

func TestDispatchEscalatesAdditively(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)
	ctx := context.Background()

	env.registry.Dispatch(ctx, "nmap_scan", map[string]any{"target": "10.0.1.10"}, sessionID)
	sess, err := env.sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.EscalationLevel())

	env.registry.Dispatch(ctx, "nmap_scan", map[string]any{"target": "10.0.1.10"}, sessionID)
	assert.Equal(t, 2, sess.EscalationLevel())
}

func TestDispatchEscalationCapped(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		env.registry.Dispatch(ctx, "nmap_scan", map[string]any{"target": "10.0.1.10"}, sessionID)
	}

	sess, err := env.sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, sess.EscalationLevel())
}

func TestDispatchPublishesInteractionEvent(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	env.registry.Dispatch(context.Background(), "file_read",
		map[string]any{"path": "/etc/passwd"}, sessionID)

	interactions := env.eventsOfType(events.EventTypeInteraction)
	require.Len(t, interactions, 1)

	data, ok := interactions[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, sessionID, data["session_id"])
	assert.Equal(t, "file_read", data["tool_name"])
	assert.Equal(t, "file_read: /etc/passwd", data["prompt_summary"])
	assert.Equal(t, 1, data["escalation_delta"])
}

func TestDispatchPublishesTokenDeployed(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	env.registry.Dispatch(context.Background(), "file_read",
		map[string]any{"path": "/app/.env"}, sessionID)

	deployed := env.eventsOfType(events.EventTypeTokenDeployed)
	require.Len(t, deployed, 1)

	data, ok := deployed[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, sessionID, data["session_id"])
	assert.Equal(t, "file_read", data["tool_name"])
	assert.Equal(t, 3, data["count"])
	assert.Equal(t, 3, data["total_tokens"])
}

func TestDispatchPublishesSessionUpdate(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	env.registry.Dispatch(context.Background(), "nmap_scan",
		map[string]any{"target": "10.0.1.10"}, sessionID)

	updates := env.eventsOfType(events.EventTypeSessionUpdate)
	require.Len(t, updates, 1)

	data, ok := updates[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, sessionID, data["session_id"])
	assert.Equal(t, 1, data["escalation_level"])
}

func TestDispatchErrorResultSkipsEscalationEvents(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "file_read",
		map[string]any{"path": "/etc/shadow"}, sessionID)

	assert.True(t, result.IsError)
	assert.Empty(t, env.eventsOfType(events.EventTypeSessionUpdate))
	assert.Empty(t, env.eventsOfType(events.EventTypeTokenDeployed))
	assert.Len(t, env.eventsOfType(events.EventTypeInteraction), 1)
}

func TestBuildPromptSummary(t *testing.T) {
	tests := []struct {
		name     string
		tool     string
		args     map[string]any
		expected string
	}{
		{"nmap", "nmap_scan", map[string]any{"target": "10.0.1.10", "scan_type": "full"}, "nmap_scan: 10.0.1.10 full scan"},
		{"nmap defaults", "nmap_scan", map[string]any{}, "nmap_scan: ? quick scan"},
		{"file read", "file_read", map[string]any{"path": "/etc/passwd"}, "file_read: /etc/passwd"},
		{"shell", "shell_exec", map[string]any{"command": "whoami"}, "shell_exec: whoami"},
		{"sqlmap with table", "sqlmap_scan", map[string]any{"action": "dump", "table": "users"}, "sqlmap_scan: dump users"},
		{"sqlmap without table", "sqlmap_scan", map[string]any{}, "sqlmap_scan: test"},
		{"browser", "browser_navigate", map[string]any{"url": "http://x/admin", "action": "navigate"}, "browser: navigate http://x/admin"},
		{"dns", "dns_lookup", map[string]any{"domain": "corp.internal", "query_type": "MX"}, "dns_lookup: corp.internal MX"},
		{"aws", "aws_cli", map[string]any{"command": "s3 ls"}, "aws_cli: s3 ls"},
		{"kubectl", "kubectl", map[string]any{"command": "get pods"}, "kubectl: get pods -n default"},
		{"vault", "vault_cli", map[string]any{"command": "status"}, "vault: status"},
		{"docker with image", "docker_registry", map[string]any{"action": "inspect", "image_name": "corp/worker"}, "docker_registry: inspect corp/worker"},
		{"docker without image", "docker_registry", map[string]any{}, "docker_registry: list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildPromptSummary(tt.tool, tt.args))
		})
	}
}

func TestBuildPromptSummaryTruncatesLongCommands(t *testing.T) {
	long := ""
	for i := 0; i < 10; i++ {
		long += "0123456789"
	}

	summary := buildPromptSummary("shell_exec", map[string]any{"command": long})
	assert.Equal(t, "shell_exec: "+long[:60], summary)
}
