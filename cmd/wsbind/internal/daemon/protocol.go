// Package daemon serves a loaded workspace over a Unix socket so editors and
// scripts can query bindings while the daemon keeps them current.
package daemon

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/workspace"
)

// JSON-RPC 2.0 version string.
const JSONRPCVersion = "2.0"

// JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603

	// ErrCodeUnknownProject is returned by binding/get for a project that
	// is not loaded.
	ErrCodeUnknownProject = -32001
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"` // nil for notifications
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Notification represents a JSON-RPC 2.0 notification (no ID, no response expected).
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// NewRequest creates a new JSON-RPC request.
func NewRequest(id int64, method string, params any) (*Request, error) {
	raw, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return &Request{JSONRPC: JSONRPCVersion, ID: &id, Method: method, Params: raw}, nil
}

// NewNotification creates a new JSON-RPC notification.
func NewNotification(method string, params any) (*Notification, error) {
	raw, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return &Notification{JSONRPC: JSONRPCVersion, Method: method, Params: raw}, nil
}

// NewResponse creates a successful JSON-RPC response. A nil result is sent
// as null, which JSON-RPC requires on success.
func NewResponse(id int64, result any) (*Response, error) {
	raw, err := marshalOptional(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	if raw == nil {
		raw = json.RawMessage("null")
	}
	return &Response{JSONRPC: JSONRPCVersion, ID: &id, Result: raw}, nil
}

// NewErrorResponse creates an error JSON-RPC response.
func NewErrorResponse(id *int64, code int, message string, data any) *Response {
	resp := &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
	if raw, err := marshalOptional(data); err == nil {
		resp.Error.Data = raw
	}
	return resp
}

func marshalOptional(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// RPC methods.
const (
	MethodPing      = "ping"
	MethodShutdown  = "shutdown"
	MethodStatusGet = "status/get"
	MethodBinding   = "binding/get"
	MethodSyncRun   = "sync/run"
	MethodSubscribe = "events/subscribe"
	MethodEvent     = "workspace/event" // notification from server to client
)

// Event types carried by workspace/event.
const (
	EventSync     = "sync"
	EventShutdown = "shutdown"
)

// PingResult is the response to a ping request.
type PingResult struct {
	Pong      bool   `json:"pong"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	StartTime string `json:"start_time"`
}

// ShutdownResult is the response to a shutdown request.
type ShutdownResult struct {
	Message string `json:"message"`
}

// StatusResult is the response to status/get.
type StatusResult struct {
	Root     string   `json:"root"`
	Projects []string `json:"projects"`
	Problems int      `json:"problems"`
	Watching bool     `json:"watching"`
	LastSync string   `json:"last_sync,omitempty"`
	Clients  int      `json:"clients"`
}

// BindingParams are the parameters for binding/get.
type BindingParams struct {
	Project string `json:"project"`
}

// SyncParams are the parameters for sync/run. Without paths the daemon
// syncs whatever changed on disk since its last sync.
type SyncParams struct {
	Paths []string `json:"paths,omitempty"`
}

// SyncResult is the response to sync/run.
type SyncResult struct {
	Paths    []string `json:"paths"`
	Reloaded []string `json:"reloaded,omitempty"`
	Affected []string `json:"affected,omitempty"`
	Duration string   `json:"duration"`
}

// EventParams are the parameters for workspace/event notifications.
type EventParams struct {
	Type      string   `json:"type"`
	Paths     []string `json:"paths,omitempty"`
	Affected  []string `json:"affected,omitempty"`
	Message   string   `json:"message,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// BindingResult is the response to binding/get.
type BindingResult = workspace.ProjectReport

// IDGenerator generates unique request IDs.
type IDGenerator struct {
	counter atomic.Int64
}

// Next returns the next unique ID.
func (g *IDGenerator) Next() int64 {
	return g.counter.Add(1)
}

func timestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
