// Package mcp implements the server side of the Model Context Protocol's
// JSON-RPC 2.0 message layer: request parsing, response shapes, and the
// method router that fronts the tool registry.
//
// The honeypot speaks just enough MCP for real clients to connect, list
// tools, and call them: initialize, ping, notifications/initialized,
// tools/list, and tools/call. Everything else earns a method-not-found.
package mcp

import "encoding/json"

// JSON-RPC 2.0 error codes used by the server.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// Request is one incoming JSON-RPC 2.0 message.
//
// ID is kept raw so it round-trips numbers, strings, and null untouched. A
// nil ID means the id member was absent entirely, which JSON-RPC defines as
// a notification; an explicit "id": null decodes to the literal bytes
// "null" and still gets a response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  map[string]any  `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// IsNotification reports whether the message carried no id member.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Param returns a named parameter, or nil when params or the key is absent.
func (r *Request) Param(key string) any {
	if r.Params == nil {
		return nil
	}
	return r.Params[key]
}

// StringParam returns a string parameter, or "" when absent or not a string.
func (r *Request) StringParam(key string) string {
	s, _ := r.Param(key).(string)
	return s
}

// ErrorObject is the error member of a JSON-RPC error response. Data is
// emitted only when set.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Response is one outgoing JSON-RPC 2.0 message. Exactly one of Result and
// Error is set. A nil ID marshals as null, which is what error responses to
// id-less garbage are supposed to carry.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// NewResponse builds a success response echoing the request id.
func NewResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

// NewError builds an error response echoing the request id.
func NewError(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ErrorObject{Code: code, Message: message, Data: data},
	}
}

// NewParseError builds the response for a body that never parsed into a
// request. There is no id to echo, so it goes out null.
func NewParseError(detail string) *Response {
	return NewError(nil, CodeParseError, "Parse error: "+detail, nil)
}

// textContent renders a tool output string in the MCP content shape.
func textContent(text string) []map[string]any {
	return []map[string]any{{"type": "text", "text": text}}
}

// toolResult renders a tools/call result. Tool failures ride in-band via
// isError; they are never JSON-RPC errors.
func toolResult(text string, isError bool) map[string]any {
	return map[string]any{
		"content": textContent(text),
		"isError": isError,
	}
}
