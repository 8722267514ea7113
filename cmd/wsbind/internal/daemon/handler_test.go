package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/incremental"
	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/watch"
	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/workspace"
	"github.com/albertocavalcante/wsbind/pkg/config"
)

const (
	utilManifest = "exports:\n  - name: com.acme.util\n    version: \"%s\"\n    path: util.jar\n"
	appManifest  = "dependencies:\n  - name: com.acme.util\n    version: \"[1.0,2.0)\"\n"
)

// shortTempDir creates a temp directory short enough for a Unix socket
// path (~104 chars on macOS).
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "ds")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func utilAt(v string) string {
	return fmt.Sprintf(utilManifest, v)
}

// newTestHandler loads a util/app workspace under root and returns a handler
// whose watcher reports batches back to it.
func newTestHandler(t *testing.T, root string) *Handler {
	t.Helper()
	writeFile(t, root, "util/bundle.yaml", utilAt("1.0.0"))
	writeFile(t, root, "app/bundle.yaml", appManifest)

	cfg := config.NewConfig()
	ws, err := workspace.Open(root, cfg, workspace.WithDryRun())
	if err != nil {
		t.Fatalf("workspace.Open() error = %v", err)
	}
	if err := ws.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tracker := incremental.NewTracker(root, incremental.NewMatcher(cfg.Workspace.Manifest, cfg.Workspace.Track, cfg.Workspace.Ignore))
	var h *Handler
	w, err := watch.New(watch.Config{
		Workspace: ws,
		Tracker:   tracker,
		Debounce:  time.Hour,
		Output:    io.Discard,
		NoColor:   true,
		OnSync:    func(e watch.SyncEvent) { h.OnSync(e) },
	})
	if err != nil {
		t.Fatalf("watch.New() error = %v", err)
	}
	h = NewHandler(HandlerConfig{Workspace: ws, Tracker: tracker, Watcher: w})
	t.Cleanup(h.Stop)
	return h
}

func request(t *testing.T, h *Handler, method string, params any) *Response {
	t.Helper()
	req, err := NewRequest(1, method, params)
	if err != nil {
		t.Fatal(err)
	}
	return h.HandleRequest(nil, req)
}

func decodeResult(t *testing.T, resp *Response, v any) {
	t.Helper()
	if resp == nil {
		t.Fatal("nil response")
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if err := json.Unmarshal(resp.Result, v); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
}

func wantError(t *testing.T, resp *Response, code int) {
	t.Helper()
	if resp == nil || resp.Error == nil {
		t.Fatalf("response = %+v, want error %d", resp, code)
	}
	if resp.Error.Code != code {
		t.Errorf("error code = %d, want %d (%s)", resp.Error.Code, code, resp.Error.Message)
	}
}

func TestHandlerPing(t *testing.T) {
	t.Parallel()
	h := NewHandler(HandlerConfig{})
	var result PingResult
	decodeResult(t, request(t, h, MethodPing, nil), &result)
	if !result.Pong {
		t.Error("Pong = false")
	}
}

func TestHandlerNotification(t *testing.T) {
	t.Parallel()
	h := NewHandler(HandlerConfig{})
	if resp := h.HandleRequest(nil, &Request{JSONRPC: JSONRPCVersion, Method: MethodPing}); resp != nil {
		t.Errorf("notification got response %+v", resp)
	}
}

func TestHandlerMethodNotFound(t *testing.T) {
	t.Parallel()
	h := NewHandler(HandlerConfig{})
	wantError(t, request(t, h, "watch/start", nil), ErrCodeMethodNotFound)
}

func TestHandlerWithoutWorkspace(t *testing.T) {
	t.Parallel()
	h := NewHandler(HandlerConfig{})
	wantError(t, request(t, h, MethodBinding, BindingParams{Project: "app"}), ErrCodeInternalError)
	wantError(t, request(t, h, MethodSyncRun, nil), ErrCodeInternalError)

	var status StatusResult
	decodeResult(t, request(t, h, MethodStatusGet, nil), &status)
	if status.Root != "" || len(status.Projects) != 0 || status.Watching {
		t.Errorf("status = %+v, want empty", status)
	}
}

func TestHandlerStatus(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	h := newTestHandler(t, root)

	var status StatusResult
	decodeResult(t, request(t, h, MethodStatusGet, nil), &status)
	if status.Root != root {
		t.Errorf("Root = %q, want %q", status.Root, root)
	}
	if !slices.Equal(status.Projects, []string{"app", "util"}) {
		t.Errorf("Projects = %v, want [app util]", status.Projects)
	}
	if status.Problems != 0 || status.Watching || status.LastSync != "" {
		t.Errorf("status = %+v", status)
	}
}

func TestHandlerBinding(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, t.TempDir())

	var report BindingResult
	decodeResult(t, request(t, h, MethodBinding, BindingParams{Project: "app"}), &report)
	if report.Project != "app" || len(report.Bindings) != 1 {
		t.Fatalf("report = %+v", report)
	}
	b := report.Bindings[0]
	if b.Bundle != "com.acme.util" || b.Version != "1.0.0" || b.Source != "util" || b.Repository != "workspace" {
		t.Errorf("binding = %+v", b)
	}

	tests := []struct {
		name   string
		params any
		code   int
	}{
		{"unknown project", BindingParams{Project: "nope"}, ErrCodeUnknownProject},
		{"missing project", nil, ErrCodeInvalidParams},
		{"malformed params", map[string]int{"project": 1}, ErrCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantError(t, request(t, h, MethodBinding, tt.params), tt.code)
		})
	}
}

func TestHandlerSyncPaths(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	h := newTestHandler(t, root)

	writeFile(t, root, "util/bundle.yaml", utilAt("1.5.0"))
	var result SyncResult
	decodeResult(t, request(t, h, MethodSyncRun, SyncParams{Paths: []string{"util/bundle.yaml"}}), &result)
	if !slices.Equal(result.Reloaded, []string{"util"}) {
		t.Errorf("Reloaded = %v, want [util]", result.Reloaded)
	}
	if !slices.Contains(result.Affected, "app") {
		t.Errorf("Affected = %v, want app", result.Affected)
	}

	var report BindingResult
	decodeResult(t, request(t, h, MethodBinding, BindingParams{Project: "app"}), &report)
	if len(report.Bindings) != 1 || report.Bindings[0].Version != "1.5.0" {
		t.Errorf("bindings after sync = %+v", report.Bindings)
	}

	var status StatusResult
	decodeResult(t, request(t, h, MethodStatusGet, nil), &status)
	if status.LastSync == "" {
		t.Error("LastSync not recorded")
	}
}

func TestHandlerSyncFromDisk(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, t.TempDir())

	// Without stored state every tracked file counts as new.
	var result SyncResult
	decodeResult(t, request(t, h, MethodSyncRun, nil), &result)
	for _, want := range []string{"app/bundle.yaml", "util/bundle.yaml"} {
		if !slices.Contains(result.Paths, want) {
			t.Errorf("Paths = %v, want %s", result.Paths, want)
		}
	}

	// The sync refreshed the tracker, so nothing is left.
	decodeResult(t, request(t, h, MethodSyncRun, nil), &result)
	if len(result.Paths) != 0 || result.Paths == nil {
		t.Errorf("second sync Paths = %#v, want empty", result.Paths)
	}
}

func TestHandlerSyncInvalidParams(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, t.TempDir())
	wantError(t, request(t, h, MethodSyncRun, map[string]string{"paths": "app"}), ErrCodeInvalidParams)
}

func TestHandlerSubscribeWithoutClient(t *testing.T) {
	t.Parallel()
	h := NewHandler(HandlerConfig{})
	var result map[string]bool
	decodeResult(t, request(t, h, MethodSubscribe, nil), &result)
	if !result["subscribed"] {
		t.Errorf("result = %v", result)
	}
}

func TestHandlerStartStop(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, t.TempDir())

	h.Start()
	h.Start()
	if !h.Status().Watching {
		t.Error("Watching = false after Start")
	}
	h.Stop()
	if h.Status().Watching {
		t.Error("Watching = true after Stop")
	}
	h.Stop()
}

func TestHandlerOnSyncWithoutServer(t *testing.T) {
	t.Parallel()
	h := NewHandler(HandlerConfig{})
	h.OnSync(watch.SyncEvent{Paths: []string{"app/bundle.yaml"}})
	if h.Status().LastSync == "" {
		t.Error("LastSync not recorded")
	}
}
