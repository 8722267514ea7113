package daemon

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"
)

// ErrNotConnected is returned when trying to use a disconnected client.
var ErrNotConnected = errors.New("not connected to daemon")

// ErrDaemonNotRunning is returned when the daemon is not running.
var ErrDaemonNotRunning = errors.New("daemon not running")

// dialTimeout bounds Connect.
const dialTimeout = 5 * time.Second

// Client talks to a daemon. One goroutine reads the connection and routes
// responses to their callers and notifications to Events.
type Client struct {
	conn      net.Conn
	encoder   *json.Encoder
	encoderMu sync.Mutex
	idGen     IDGenerator

	mu      sync.Mutex
	pending map[int64]chan *Response
	err     error // set once the reader stops

	events chan *Notification
	done   chan struct{}
}

// incoming is the union of responses and notifications.
type incoming struct {
	ID     *int64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// Connect connects to the daemon at the given socket path.
func Connect(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		if isNotListening(err) {
			return nil, ErrDaemonNotRunning
		}
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	c := &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		pending: make(map[int64]chan *Response),
		events:  make(chan *Notification, 100),
		done:    make(chan struct{}),
	}
	go c.readLoop(json.NewDecoder(bufio.NewReader(conn)))
	return c, nil
}

// isNotListening reports dial errors meaning nobody is serving the socket.
func isNotListening(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	<-c.done
	return err
}

// Events returns notifications pushed by the daemon. It is closed when the
// connection ends. Notifications are dropped while the buffer is full.
func (c *Client) Events() <-chan *Notification {
	return c.events
}

func (c *Client) readLoop(dec *json.Decoder) {
	defer close(c.done)
	defer close(c.events)

	var err error
	for {
		var msg incoming
		if err = dec.Decode(&msg); err != nil {
			break
		}
		if msg.ID == nil {
			if msg.Method == "" {
				continue // parse error reports carry no ID
			}
			select {
			case c.events <- &Notification{JSONRPC: JSONRPCVersion, Method: msg.Method, Params: msg.Params}:
			default:
			}
			continue
		}

		c.mu.Lock()
		ch := c.pending[*msg.ID]
		delete(c.pending, *msg.ID)
		c.mu.Unlock()
		if ch != nil {
			ch <- &Response{JSONRPC: JSONRPCVersion, ID: msg.ID, Result: msg.Result, Error: msg.Error}
		}
	}

	c.mu.Lock()
	c.err = fmt.Errorf("%w: %w", ErrNotConnected, err)
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// call sends a request and waits for its response.
func (c *Client) call(method string, params any, result any) error {
	if c == nil || c.conn == nil {
		return ErrNotConnected
	}

	id := c.idGen.Next()
	req, err := NewRequest(id, method, params)
	if err != nil {
		return err
	}

	ch := make(chan *Response, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return c.err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.encoderMu.Lock()
	err = c.encoder.Encode(req)
	c.encoderMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("failed to send request: %w", err)
	}

	resp, ok := <-ch
	if !ok {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

// Ping checks that the daemon answers.
func (c *Client) Ping() (*PingResult, error) {
	var result PingResult
	if err := c.call(MethodPing, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown() (*ShutdownResult, error) {
	var result ShutdownResult
	if err := c.call(MethodShutdown, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status returns the served workspace status.
func (c *Client) Status() (*StatusResult, error) {
	var result StatusResult
	if err := c.call(MethodStatusGet, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Binding returns the current resolution of a project.
func (c *Client) Binding(project string) (*BindingResult, error) {
	var result BindingResult
	if err := c.call(MethodBinding, BindingParams{Project: project}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Sync applies changed paths, or everything changed on disk when paths is
// empty.
func (c *Client) Sync(paths []string) (*SyncResult, error) {
	var result SyncResult
	if err := c.call(MethodSyncRun, SyncParams{Paths: paths}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Subscribe asks the daemon to push workspace events to Events.
func (c *Client) Subscribe() error {
	return c.call(MethodSubscribe, nil, nil)
}

// IsRunningAt reports whether a daemon owns the given paths.
func IsRunningAt(paths *Paths) bool {
	return GetStatus(paths).Running
}
