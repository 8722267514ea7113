package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/albertocavalcante/wsbind/internal/log"
)

// shutdownTimeout bounds how long Shutdown waits for client goroutines.
const shutdownTimeout = 5 * time.Second

// Server listens on a Unix socket and hands requests to a Handler.
type Server struct {
	paths     *Paths
	listener  net.Listener
	handler   *Handler
	startTime time.Time
	version   string
	logger    *slog.Logger

	clientsMu sync.RWMutex
	clients   map[*ClientConn]struct{}

	shutdownMu  sync.Mutex
	shutdown    chan struct{}
	isShutdown  bool
	shutdownErr error
	wg          sync.WaitGroup
}

// ClientConn is one connected client.
type ClientConn struct {
	conn       net.Conn
	encoder    *json.Encoder
	decoder    *json.Decoder
	encoderMu  sync.Mutex
	closeMu    sync.Mutex
	closed     bool
	subscribed bool
}

// ServerConfig configures the daemon server.
type ServerConfig struct {
	Paths   *Paths
	Version string
	Handler *Handler
}

// NewServer creates a daemon server and binds the handler to it.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		paths:     cfg.Paths,
		handler:   cfg.Handler,
		version:   cfg.Version,
		startTime: time.Now(),
		logger:    log.Component("daemon"),
		clients:   make(map[*ClientConn]struct{}),
		shutdown:  make(chan struct{}),
	}
	if s.handler == nil {
		s.handler = NewHandler(HandlerConfig{})
	}
	s.handler.server = s
	return s
}

// Listen removes stale files, opens the socket and writes the PID file.
func (s *Server) Listen() error {
	if _, err := CleanupStale(s.paths); err != nil {
		s.logger.Warn("failed to clean up stale files", "error", err)
	}
	if err := s.paths.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create daemon directory: %w", err)
	}

	listener, err := net.Listen("unix", s.paths.Socket)
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	if err := os.Chmod(s.paths.Socket, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}
	if err := s.paths.WritePID(); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	s.listener = listener
	return nil
}

// Serve accepts clients until ctx is cancelled, a signal arrives or a
// client requests shutdown. Listen must have been called.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("daemon: server is not listening")
	}
	s.logger.Info("daemon started", "pid", os.Getpid(), "socket", s.paths.Socket, "version", s.version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	s.handler.Start()

	s.wg.Add(1)
	go s.acceptLoop()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
	case sig := <-sigCh:
		s.logger.Info("received signal, shutting down", "signal", sig)
	case <-s.shutdown:
		s.logger.Info("shutdown requested via RPC")
	}
	return s.Shutdown()
}

// Start listens and serves. It blocks until the server is shut down.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept error", "error", err)
			continue
		}

		client := &ClientConn{
			conn:    conn,
			encoder: json.NewEncoder(conn),
			decoder: json.NewDecoder(bufio.NewReader(conn)),
		}
		s.clientsMu.Lock()
		s.clients[client] = struct{}{}
		count := len(s.clients)
		s.clientsMu.Unlock()
		s.logger.Debug("client connected", "client_count", count)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleClient(client)
		}()
	}
}

func (s *Server) handleClient(client *ClientConn) {
	defer func() {
		client.Close()
		s.clientsMu.Lock()
		delete(s.clients, client)
		count := len(s.clients)
		s.clientsMu.Unlock()
		s.logger.Debug("client disconnected", "client_count", count)
	}()

	for {
		var req Request
		if err := client.decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Debug("failed to decode request", "error", err)
			// The stream is unusable after a syntax error.
			_ = client.Send(NewErrorResponse(nil, ErrCodeParseError, "Parse error", nil))
			return
		}

		if req.JSONRPC != JSONRPCVersion {
			resp := NewErrorResponse(req.ID, ErrCodeInvalidRequest, "Invalid Request: unsupported JSON-RPC version", nil)
			if err := client.Send(resp); err != nil {
				return
			}
			continue
		}

		if resp := s.handler.HandleRequest(client, &req); resp != nil {
			if err := client.Send(resp); err != nil {
				s.logger.Debug("failed to send response", "error", err)
				return
			}
		}
	}
}

func (s *Server) closing() bool {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	return s.isShutdown
}

// Shutdown stops the watcher, disconnects every client and removes the
// daemon files. It is safe to call more than once.
func (s *Server) Shutdown() error {
	s.shutdownMu.Lock()
	if s.isShutdown {
		s.shutdownMu.Unlock()
		return s.shutdownErr
	}
	s.isShutdown = true
	s.shutdownMu.Unlock()

	s.logger.Info("shutting down daemon")

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("failed to close listener", "error", err)
		}
	}

	s.handler.broadcast(EventParams{
		Type:      EventShutdown,
		Message:   "daemon is shutting down",
		Timestamp: timestamp(time.Now()),
	})
	s.handler.Stop()

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clientsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		s.logger.Warn("shutdown timed out waiting for clients")
	}

	if err := s.paths.Cleanup(); err != nil {
		s.logger.Warn("failed to clean up daemon files", "error", err)
		s.shutdownErr = err
	}
	s.logger.Info("daemon stopped")
	return s.shutdownErr
}

// RequestShutdown asks Serve to return.
func (s *Server) RequestShutdown() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}
}

// Broadcast sends a notification to every subscribed client.
func (s *Server) Broadcast(notif *Notification) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for client := range s.clients {
		if client.isSubscribed() {
			_ = client.Send(notif)
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Send writes a message to the client. Safe for concurrent use.
func (c *ClientConn) Send(msg any) error {
	c.closeMu.Lock()
	closed := c.closed
	c.closeMu.Unlock()
	if closed {
		return net.ErrClosed
	}

	c.encoderMu.Lock()
	defer c.encoderMu.Unlock()
	return c.encoder.Encode(msg)
}

// Close closes the client connection.
func (c *ClientConn) Close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close()
}

// Subscribe enables event notifications for this client.
func (c *ClientConn) Subscribe() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	c.subscribed = true
}

func (c *ClientConn) isSubscribed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.subscribed
}
