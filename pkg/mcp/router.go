package mcp

import (
	"context"
	"log/slog"

	"github.com/trapline-sec/trapline/pkg/config"
	"github.com/trapline-sec/trapline/pkg/metrics"
	"github.com/trapline-sec/trapline/pkg/session"
	"github.com/trapline-sec/trapline/pkg/simulators"
)

// Handler routes JSON-RPC messages to the protocol methods the honeypot
// serves. It owns no transport concerns; the HTTP layer hands it decoded
// requests plus the session id from the Mcp-Session-Id header and echoes
// back whatever session id Handle returns.
type Handler struct {
	sessions *session.Manager
	registry *simulators.Registry
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewHandler creates a Handler. metrics may be nil.
func NewHandler(sessions *session.Manager, registry *simulators.Registry, m *metrics.Metrics) *Handler {
	return &Handler{
		sessions: sessions,
		registry: registry,
		metrics:  m,
		log:      slog.Default().With("component", "mcp_handler"),
	}
}

// Handle routes one request. The returned response is nil for notifications;
// the returned session id is the new session on initialize and the inbound
// one otherwise.
func (h *Handler) Handle(ctx context.Context, req *Request, sessionID string) (resp *Response, outSessionID string) {
	outSessionID = sessionID

	if req.JSONRPC != "2.0" {
		h.metrics.RecordMCPRequest(req.Method, "error")
		return NewError(req.ID, CodeInvalidRequest, "Invalid Request: requires jsonrpc 2.0", nil), sessionID
	}

	if req.Method == "" {
		h.metrics.RecordMCPRequest("", "error")
		return NewError(req.ID, CodeInvalidRequest, "Invalid Request: missing method", nil), sessionID
	}

	// A panicking handler must never take the transport down with it; the
	// client gets a plain internal error and the honeypot keeps running.
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Handler panicked", "method", req.Method, "panic", r)
			h.metrics.RecordMCPRequest(req.Method, "error")
			outSessionID = sessionID
			if req.IsNotification() {
				resp = nil
			} else {
				resp = NewError(req.ID, CodeInternalError, "Internal error", nil)
			}
		}
	}()

	var result any
	var failure *Response

	switch req.Method {
	case "initialize":
		result, outSessionID, failure = h.handleInitialize(ctx, req)
	case "ping":
		result = map[string]any{}
	case "notifications/initialized":
		h.touch(ctx, sessionID)
		result = map[string]any{}
	case "tools/list":
		h.touch(ctx, sessionID)
		result = map[string]any{"tools": h.registry.ListTools()}
	case "tools/call":
		result = h.handleToolsCall(ctx, req, sessionID)
	default:
		h.metrics.RecordMCPRequest(req.Method, "error")
		if req.IsNotification() {
			return nil, sessionID
		}
		return NewError(req.ID, CodeMethodNotFound, "Method not found: "+req.Method, nil), sessionID
	}

	if failure != nil {
		h.metrics.RecordMCPRequest(req.Method, "error")
		if req.IsNotification() {
			return nil, sessionID
		}
		return failure, sessionID
	}

	h.metrics.RecordMCPRequest(req.Method, "ok")
	if req.IsNotification() {
		return nil, outSessionID
	}
	return NewResponse(req.ID, result), outSessionID
}

// handleInitialize always mints a fresh session, even when the client
// already presents one. Reconnecting scanners start over at escalation zero.
func (h *Handler) handleInitialize(ctx context.Context, req *Request) (any, string, *Response) {
	clientInfo, _ := req.Param("clientInfo").(map[string]any)

	sess, err := h.sessions.Create(ctx, clientInfo)
	if err != nil {
		h.log.Error("Failed to create session", "error", err)
		return nil, "", NewError(req.ID, CodeInternalError, "Internal error", nil)
	}

	clientName := "unknown"
	if name, ok := clientInfo["name"].(string); ok && name != "" {
		clientName = name
	}
	h.log.Info("New session", "session_id", sess.ID(), "client", clientName)

	return map[string]any{
		"protocolVersion": config.ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    config.ServerName,
			"version": config.ServerVersion,
		},
	}, sess.ID(), nil
}

// handleToolsCall validates the call envelope and hands off to the registry.
// Envelope problems come back as in-band tool errors so the client's agent
// loop sees them as tool output rather than protocol failures.
func (h *Handler) handleToolsCall(ctx context.Context, req *Request, sessionID string) any {
	toolName := req.StringParam("name")
	arguments, _ := req.Param("arguments").(map[string]any)
	if arguments == nil {
		arguments = map[string]any{}
	}

	if toolName == "" {
		return toolResult("Error: missing tool name", true)
	}
	if sessionID == "" {
		return toolResult("Error: no active session", true)
	}

	h.touch(ctx, sessionID)
	result := h.registry.Dispatch(ctx, toolName, arguments, sessionID)

	return toolResult(result.Output, result.IsError)
}

// touch bumps the session's interaction count and eviction clock. Unknown or
// empty ids are ignored, matching how pre-handshake probes behave.
func (h *Handler) touch(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	sess, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		return
	}
	h.sessions.Touch(sess)
}
