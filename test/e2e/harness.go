// Package e2e boots a complete trapline instance and drives it over real
// HTTP, the way a connecting agent would.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trapline-sec/trapline/pkg/api"
	"github.com/trapline-sec/trapline/pkg/config"
	"github.com/trapline-sec/trapline/pkg/database"
	"github.com/trapline-sec/trapline/pkg/engagement"
	"github.com/trapline-sec/trapline/pkg/events"
	"github.com/trapline-sec/trapline/pkg/mcp"
	"github.com/trapline-sec/trapline/pkg/metrics"
	"github.com/trapline-sec/trapline/pkg/session"
	"github.com/trapline-sec/trapline/pkg/simulators"
	"github.com/trapline-sec/trapline/pkg/tokens"
)

// TestApp boots a full trapline instance for e2e testing.
type TestApp struct {
	Config   *config.Config
	Store    *database.Store
	Bus      *events.Bus
	Sessions *session.Manager
	Server   *api.Server

	// BaseURL points at the instance, e.g. "http://127.0.0.1:54321".
	BaseURL string

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	cfg *config.Config
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithConfig sets a custom config.
func WithConfig(cfg *config.Config) TestAppOption {
	return func(c *testAppConfig) { c.cfg = cfg }
}

// NewTestApp creates and starts a full trapline instance on a random port,
// wired exactly as the production entry point wires it. Shutdown is
// registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.cfg == nil {
		tc.cfg = defaultTestConfig(t)
	}
	cfg := tc.cfg

	ctx := context.Background()

	// 1. Database.
	dbClient, err := database.NewClient(ctx, database.DefaultConfig(cfg.DBPath))
	require.NoError(t, err)
	store := database.NewStore(dbClient)

	// 2. Metrics, event bus, session manager.
	promRegistry := metrics.NewRegistry()
	m := metrics.NewMetrics(promRegistry)
	bus := events.NewBus()
	sessions := session.NewManager(store, bus, cfg.SessionTTL)
	bus.OnPublish(func(ev events.Event) {
		m.RecordEventPublished(ev.Type)
		m.SetCachedSessions(sessions.CachedCount())
	})
	sessions.Start(ctx)

	// 3. Simulators and protocol handler.
	sink := simulators.NewTokenSink(tokens.NewGenerator(), store, m)
	registry := simulators.NewRegistry(sessions, store, bus, engagement.NewEngine(), m)
	registry.RegisterDefaults(sink)
	protocol := mcp.NewHandler(sessions, registry, m)

	// 4. HTTP server on a random port.
	server := api.NewServer(cfg, store, sessions, bus, protocol, m, promRegistry)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = server.StartWithListener(ln)
	}()

	app := &TestApp{
		Config:   cfg,
		Store:    store,
		Bus:      bus,
		Sessions: sessions,
		Server:   server,
		BaseURL:  fmt.Sprintf("http://%s", ln.Addr().String()),
		t:        t,
	}

	// Register cleanup in reverse-creation order.
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		sessions.Stop()
		if err := dbClient.Close(); err != nil {
			t.Errorf("closing database client: %v", err)
		}
	})

	return app
}

// defaultTestConfig mirrors production defaults with a throwaway database
// and rate limits high enough that no scenario trips them by accident.
func defaultTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Host:                "127.0.0.1",
		DBPath:              filepath.Join(t.TempDir(), "trapline.db"),
		SessionTTL:          time.Hour,
		MCPRateLimit:        1000,
		MCPRateWindow:       time.Minute,
		DashboardRateLimit:  1000,
		DashboardRateWindow: time.Minute,
		DashboardURL:        "http://localhost:5173",
	}
}

// PostMCP sends a raw JSON-RPC body to /mcp and decodes the response.
// sessionID may be empty for pre-handshake requests. The returned response
// has its body drained; use the decoded map for content assertions.
func (a *TestApp) PostMCP(t *testing.T, sessionID, body string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, a.BaseURL+"/mcp", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "undecodable response body: %s", raw)
	}
	return resp, decoded
}

// Initialize performs the MCP handshake and returns the issued session ID.
func (a *TestApp) Initialize(t *testing.T) string {
	t.Helper()

	resp, _ := a.PostMCP(t, "",
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"clientInfo":{"name":"e2e-agent","version":"0.1.0"}}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sid := resp.Header.Get("Mcp-Session-Id")
	require.Len(t, sid, 32, "handshake must issue a session ID")
	return sid
}

// CallTool invokes tools/call and unwraps the text content and isError flag.
func (a *TestApp) CallTool(t *testing.T, sessionID, name, argsJSON string) (string, bool) {
	t.Helper()

	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":%q,"arguments":%s}}`,
		name, argsJSON)
	resp, decoded := a.PostMCP(t, sessionID, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result, ok := decoded["result"].(map[string]any)
	require.True(t, ok, "expected a result object, got: %v", decoded)
	content, ok := result["content"].([]any)
	require.True(t, ok, "expected content array, got: %v", result)
	require.NotEmpty(t, content)
	first, ok := content[0].(map[string]any)
	require.True(t, ok)

	text, _ := first["text"].(string)
	isError, _ := result["isError"].(bool)
	return text, isError
}

// GetJSON fetches path from the dashboard surface and decodes the response.
func (a *TestApp) GetJSON(t *testing.T, path string) map[string]any {
	t.Helper()

	resp, err := http.Get(a.BaseURL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "GET %s", path)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded
}
