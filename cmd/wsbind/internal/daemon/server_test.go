package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"slices"
	"testing"
	"time"
)

// startTestServer serves a util/app workspace from a short temp dir. The
// returned channel yields Serve's result.
func startTestServer(t *testing.T) (string, *Server, <-chan error) {
	t.Helper()
	root := shortTempDir(t)
	h := newTestHandler(t, root)
	s := NewServer(ServerConfig{Paths: WorkspacePaths(root), Version: "test", Handler: h})
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		done <- s.Serve(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-stopped:
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})
	return root, s, done
}

func connect(t *testing.T, s *Server) *Client {
	t.Helper()
	c, err := Connect(s.paths.Socket)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewServer(t *testing.T) {
	t.Parallel()
	paths := SocketPaths("/tmp/x.sock")
	s := NewServer(ServerConfig{Paths: paths, Version: "1.0.0"})
	if s.paths != paths || s.version != "1.0.0" || s.clients == nil {
		t.Errorf("server = %+v", s)
	}
	if s.handler == nil || s.handler.server != s {
		t.Error("handler not bound to server")
	}
	if s.Uptime() < 0 {
		t.Error("negative uptime")
	}
}

func TestServeWithoutListen(t *testing.T) {
	t.Parallel()
	s := NewServer(ServerConfig{Paths: SocketPaths("/tmp/unused.sock")})
	if err := s.Serve(context.Background()); err == nil {
		t.Error("Serve() before Listen() should fail")
	}
}

func TestServerClientRoundTrip(t *testing.T) {
	t.Parallel()
	root, s, _ := startTestServer(t)
	c := connect(t, s)

	ping, err := c.Ping()
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if !ping.Pong || ping.Version != "test" || ping.StartTime == "" {
		t.Errorf("Ping() = %+v", ping)
	}

	status, err := c.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Root != root || status.Clients != 1 || !status.Watching {
		t.Errorf("Status() = %+v", status)
	}

	report, err := c.Binding("app")
	if err != nil {
		t.Fatalf("Binding() error = %v", err)
	}
	if len(report.Bindings) != 1 || report.Bindings[0].Source != "util" {
		t.Errorf("Binding() = %+v", report)
	}

	_, err = c.Binding("nope")
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != ErrCodeUnknownProject {
		t.Errorf("Binding(unknown) error = %v, want code %d", err, ErrCodeUnknownProject)
	}
}

func TestServerBroadcastsSync(t *testing.T) {
	t.Parallel()
	root, s, _ := startTestServer(t)
	subscriber := connect(t, s)
	other := connect(t, s)

	if err := subscriber.Subscribe(); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	writeFile(t, root, "util/bundle.yaml", utilAt("1.2.0"))
	result, err := other.Sync([]string{"util/bundle.yaml"})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !slices.Equal(result.Reloaded, []string{"util"}) {
		t.Errorf("Reloaded = %v, want [util]", result.Reloaded)
	}

	select {
	case notif := <-subscriber.Events():
		if notif.Method != MethodEvent {
			t.Fatalf("Method = %q, want %q", notif.Method, MethodEvent)
		}
		var params EventParams
		if err := json.Unmarshal(notif.Params, &params); err != nil {
			t.Fatal(err)
		}
		if params.Type != EventSync || !slices.Contains(params.Affected, "app") {
			t.Errorf("event = %+v", params)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no sync event received")
	}

	select {
	case notif := <-other.Events():
		t.Errorf("unsubscribed client got %+v", notif)
	default:
	}
}

func TestServerShutdownViaClient(t *testing.T) {
	t.Parallel()
	_, s, done := startTestServer(t)
	c := connect(t, s)
	if err := c.Subscribe(); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}

	for _, f := range []string{s.paths.Socket, s.paths.PID} {
		if _, err := os.Stat(f); !os.IsNotExist(err) {
			t.Errorf("%s left behind", f)
		}
	}
	if err := s.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}

	// The shutdown event arrives before the connection closes.
	var sawShutdown bool
	for notif := range c.Events() {
		var params EventParams
		if json.Unmarshal(notif.Params, &params) == nil && params.Type == EventShutdown {
			sawShutdown = true
		}
	}
	if !sawShutdown {
		t.Error("no shutdown event received")
	}

	if _, err := c.Ping(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Ping() after shutdown error = %v, want ErrNotConnected", err)
	}
}

func TestListenWhileRunning(t *testing.T) {
	t.Parallel()
	_, s, _ := startTestServer(t)
	second := NewServer(ServerConfig{Paths: s.paths})
	if err := second.Listen(); err == nil {
		t.Error("Listen() on a live socket should fail")
	}
	if !IsRunningAt(s.paths) {
		t.Error("IsRunningAt() = false for the live daemon")
	}
}

func TestServerProtocolErrors(t *testing.T) {
	t.Parallel()
	_, s, _ := startTestServer(t)

	t.Run("unsupported version", func(t *testing.T) {
		conn, err := net.Dial("unix", s.paths.Socket)
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()

		if _, err := conn.Write([]byte(`{"jsonrpc":"1.0","id":1,"method":"ping"}` + "\n")); err != nil {
			t.Fatal(err)
		}
		var resp Response
		if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Error == nil || resp.Error.Code != ErrCodeInvalidRequest {
			t.Errorf("response = %+v, want invalid request", resp)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		conn, err := net.Dial("unix", s.paths.Socket)
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()

		if _, err := conn.Write([]byte("{not json\n")); err != nil {
			t.Fatal(err)
		}
		dec := json.NewDecoder(bufio.NewReader(conn))
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Error == nil || resp.Error.Code != ErrCodeParseError {
			t.Errorf("response = %+v, want parse error", resp)
		}
		if err := dec.Decode(&resp); err == nil {
			t.Error("connection should be closed after a parse error")
		}
	})
}

func TestConnectNotRunning(t *testing.T) {
	t.Parallel()
	paths := WorkspacePaths(shortTempDir(t))
	if _, err := Connect(paths.Socket); !errors.Is(err, ErrDaemonNotRunning) {
		t.Errorf("Connect() error = %v, want ErrDaemonNotRunning", err)
	}
	if IsRunningAt(paths) {
		t.Error("IsRunningAt() = true without a daemon")
	}
}

func TestNilClient(t *testing.T) {
	t.Parallel()
	var c *Client
	if _, err := c.Ping(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Ping() on nil client error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}
