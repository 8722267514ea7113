package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/incremental"
	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/watch"
	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/workspace"
	"github.com/albertocavalcante/wsbind/internal/log"
	"github.com/albertocavalcante/wsbind/pkg/resolve"
)

// Handler answers RPC calls against one loaded workspace.
type Handler struct {
	server    *Server
	workspace *workspace.Workspace
	tracker   *incremental.Tracker
	watcher   *watch.Watcher
	logger    *slog.Logger

	mu          sync.RWMutex
	watching    bool
	watchCancel context.CancelFunc
	watchDone   chan struct{}
	lastSync    time.Time
}

// HandlerConfig configures the RPC handler.
type HandlerConfig struct {
	Workspace *workspace.Workspace // must already be loaded
	Tracker   *incremental.Tracker
	Watcher   *watch.Watcher // applies sync/run batches; Start runs it
}

// NewHandler creates a new RPC handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		workspace: cfg.Workspace,
		tracker:   cfg.Tracker,
		watcher:   cfg.Watcher,
		logger:    log.Component("daemon"),
	}
}

// Start runs the watcher in the background until Stop.
func (h *Handler) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watching || h.watcher == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.watchCancel = cancel
	h.watchDone = done
	h.watching = true
	go func() {
		defer close(done)
		if err := h.watcher.Run(ctx); err != nil {
			h.logger.Warn("watcher stopped with error", "error", err)
		}
		h.mu.Lock()
		h.watching = false
		h.mu.Unlock()
	}()
}

// Stop stops the watcher and waits for its last batch.
func (h *Handler) Stop() {
	h.mu.Lock()
	cancel, done := h.watchCancel, h.watchDone
	h.watchCancel, h.watchDone = nil, nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

// OnSync broadcasts an applied batch to subscribed clients. Pass it as the
// watcher's OnSync hook.
func (h *Handler) OnSync(e watch.SyncEvent) {
	h.mu.Lock()
	h.lastSync = time.Now()
	h.mu.Unlock()

	params := EventParams{
		Type:      EventSync,
		Paths:     e.Paths,
		Affected:  projectNames(e.Result.Affected),
		Timestamp: timestamp(time.Now()),
	}
	if e.Err != nil {
		params.Message = e.Err.Error()
	}
	h.broadcast(params)
}

func (h *Handler) broadcast(params EventParams) {
	if h.server == nil {
		return
	}
	notif, err := NewNotification(MethodEvent, params)
	if err != nil {
		return
	}
	h.server.Broadcast(notif)
}

// HandleRequest dispatches a request to the appropriate method.
func (h *Handler) HandleRequest(client *ClientConn, req *Request) *Response {
	h.logger.Debug("handling request", "method", req.Method, "id", req.ID)

	// Notifications get no response.
	if req.ID == nil {
		return nil
	}

	var (
		result any
		rpcErr *Response
	)
	switch req.Method {
	case MethodPing:
		result = h.ping()
	case MethodShutdown:
		result = h.shutdown()
	case MethodStatusGet:
		result = h.Status()
	case MethodBinding, MethodSyncRun:
		if h.workspace == nil {
			return NewErrorResponse(req.ID, ErrCodeInternalError, "No workspace loaded", nil)
		}
		if req.Method == MethodBinding {
			result, rpcErr = h.binding(req)
		} else {
			result, rpcErr = h.sync(req)
		}
	case MethodSubscribe:
		if client != nil {
			client.Subscribe()
		}
		result = map[string]bool{"subscribed": true}
	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
	if rpcErr != nil {
		return rpcErr
	}

	resp, err := NewResponse(*req.ID, result)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to create response", nil)
	}
	return resp
}

func (h *Handler) ping() PingResult {
	result := PingResult{Pong: true}
	if h.server != nil {
		result.Version = h.server.version
		result.Uptime = h.server.Uptime().Round(time.Second).String()
		result.StartTime = timestamp(h.server.startTime)
	}
	return result
}

func (h *Handler) shutdown() ShutdownResult {
	if h.server != nil {
		// Let the response go out first.
		go func() {
			time.Sleep(100 * time.Millisecond)
			h.server.RequestShutdown()
		}()
	}
	return ShutdownResult{Message: "daemon shutting down"}
}

// Status reports the served workspace.
func (h *Handler) Status() StatusResult {
	h.mu.RLock()
	result := StatusResult{Watching: h.watching}
	if !h.lastSync.IsZero() {
		result.LastSync = timestamp(h.lastSync)
	}
	h.mu.RUnlock()

	result.Projects = []string{}
	if h.workspace != nil {
		result.Root = h.workspace.Root
		result.Projects = projectNames(h.workspace.Projects())
		result.Problems = h.workspace.Diagnostics().Count()
	}
	if h.server != nil {
		result.Clients = h.server.ClientCount()
	}
	return result
}

func (h *Handler) binding(req *Request) (any, *Response) {
	var params BindingParams
	if err := decodeParams(req, &params); err != nil || params.Project == "" {
		return nil, NewErrorResponse(req.ID, ErrCodeInvalidParams, "Invalid params: project is required", nil)
	}
	project := resolve.ProjectID(params.Project)
	if _, ok := h.workspace.Manifest(project); !ok {
		return nil, NewErrorResponse(req.ID, ErrCodeUnknownProject, fmt.Sprintf("Unknown project: %s", params.Project), nil)
	}
	return h.workspace.Report(project), nil
}

func (h *Handler) sync(req *Request) (any, *Response) {
	var params SyncParams
	if err := decodeParams(req, &params); err != nil {
		return nil, NewErrorResponse(req.ID, ErrCodeInvalidParams, "Invalid params", err.Error())
	}

	start := time.Now()
	ctx := context.Background()
	paths := params.Paths
	if len(paths) == 0 && h.tracker != nil {
		cs, err := h.tracker.Status(ctx)
		if err != nil {
			return nil, NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to compute changes", err.Error())
		}
		paths = cs.Paths()
	}

	var (
		res workspace.SyncResult
		err error
	)
	if h.watcher != nil {
		res, err = h.watcher.Apply(ctx, paths)
	} else {
		res, err = h.workspace.Sync(ctx, paths)
	}
	if err != nil {
		return nil, NewErrorResponse(req.ID, ErrCodeInternalError, "Sync failed", err.Error())
	}

	return SyncResult{
		Paths:    nonNil(paths),
		Reloaded: projectNames(res.Reloaded),
		Affected: projectNames(res.Affected),
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}, nil
}

func decodeParams(req *Request, v any) error {
	if len(req.Params) == 0 {
		return nil
	}
	return json.Unmarshal(req.Params, v)
}

func projectNames(projects []resolve.ProjectID) []string {
	names := make([]string, 0, len(projects))
	for _, p := range projects {
		names = append(names, string(p))
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
