// Package daemon provides the kiroku daemon server and IPC protocol.
package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Client connects to the kiroku daemon over Unix socket.
type Client struct {
	socketPath string

	// timeout bounds one request/response cycle. Defaults to
	// RequestTimeout; tests shorten it.
	timeout time.Duration

	mu sync.Mutex
	// +checklocks:mu
	conn net.Conn
	// +checklocks:mu
	encoder *json.Encoder
	// +checklocks:mu
	decoder *json.Decoder
	// +checklocks:mu
	attached bool

	// ioMu serializes all I/O operations (encode/decode).
	// This prevents concurrent access to the encoder/decoder which can cause panics.
	// Must be acquired AFTER mu if both are needed.
	ioMu sync.Mutex

	reqID atomic.Uint64

	// Event streaming via dedicated connection
	eventMu sync.Mutex
	// +checklocks:eventMu
	eventConn net.Conn
	// +checklocks:eventMu
	eventDone chan struct{}
}

// NewClient creates a new daemon client.
func NewClient(socketPath string) *Client {
	if socketPath == "" {
		socketPath = DefaultSocketPath()
	}
	return &Client{
		socketPath: socketPath,
		timeout:    RequestTimeout,
	}
}

// ConnectTimeout is the default timeout for connecting to the daemon.
const ConnectTimeout = 5 * time.Second

// RequestTimeout is the default timeout for request/response operations.
// Restart requests wait out the stop grace and health gate server-side,
// so this must comfortably exceed the startup timeout.
const RequestTimeout = 60 * time.Second

// Connect establishes a connection to the daemon.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil // Already connected
	}

	conn, err := net.DialTimeout("unix", c.socketPath, ConnectTimeout)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.conn = conn
	c.encoder = json.NewEncoder(conn)
	c.decoder = json.NewDecoder(conn)
	return nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	// Stop event stream first
	c.StopEventStream()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.encoder = nil
	c.decoder = nil
	c.attached = false
	return err
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// SocketPath returns the socket path this client connects to.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// nextID generates the next request ID.
func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.reqID.Add(1))
}

// decodePayload decodes the response payload into the given type.
// Returns a pointer to the decoded value, or an error if decoding fails.
// If payload is nil, returns a pointer to the zero value of T.
func decodePayload[T any](payload any) (*T, error) {
	var result T
	if payload == nil {
		return &result, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &result, nil
}

// Send sends a request and waits for the response.
// This blocks until the response is received or an error occurs.
// On connection errors, the connection is closed so that IsConnected() returns false.
func (c *Client) Send(req *Request) (*Response, error) {
	// Get connection state under mu
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := c.conn
	encoder := c.encoder
	decoder := c.decoder
	c.mu.Unlock()

	// Assign request ID if not set
	if req.ID == "" {
		req.ID = c.nextID()
	}

	// Serialize all I/O operations
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	// Set deadline for this request/response cycle
	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		c.closeConnLocked()
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	defer func() { _ = conn.SetDeadline(time.Time{}) }() // Always clear deadline on exit

	if err := encoder.Encode(req); err != nil {
		c.closeConnLocked()
		if isTimeout(err) {
			return nil, fmt.Errorf("%w after %s", ErrRequestTimeout, c.timeout)
		}
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var resp Response
	if err := decoder.Decode(&resp); err != nil {
		c.closeConnLocked()
		if isTimeout(err) {
			return nil, fmt.Errorf("%w after %s", ErrRequestTimeout, c.timeout)
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &resp, nil
}

// isTimeout reports whether err stems from an expired connection deadline.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// closeConnLocked closes the main connection and clears connection state.
// Caller must NOT hold c.mu (this method acquires it).
func (c *Client) closeConnLocked() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.encoder = nil
		c.decoder = nil
		c.attached = false
	}
}

// Ping sends a ping request to check daemon connectivity.
func (c *Client) Ping() (*PingResponse, error) {
	resp, err := c.Send(&Request{Type: MsgPing})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, NewServerError("ping", resp.Error)
	}
	return decodePayload[PingResponse](resp.Payload)
}

// Shutdown requests the daemon to shut down.
func (c *Client) Shutdown() error {
	resp, err := c.Send(&Request{Type: MsgShutdown})
	if err != nil {
		return err
	}
	if !resp.Success {
		return NewServerError("shutdown", resp.Error)
	}
	return nil
}

// StartService asks the daemon to start the memory service.
func (c *Client) StartService() error {
	resp, err := c.Send(&Request{Type: MsgServiceStart})
	if err != nil {
		return err
	}
	if !resp.Success {
		return NewServerError("service start", resp.Error)
	}
	return nil
}

// StopService asks the daemon to stop the memory service.
func (c *Client) StopService() error {
	resp, err := c.Send(&Request{Type: MsgServiceStop})
	if err != nil {
		return err
	}
	if !resp.Success {
		return NewServerError("service stop", resp.Error)
	}
	return nil
}

// RestartService asks the daemon to restart the memory service.
// The daemon rejects the request if a restart is already in flight.
func (c *Client) RestartService() error {
	resp, err := c.Send(&Request{Type: MsgServiceRestart})
	if err != nil {
		return err
	}
	if !resp.Success {
		return NewServerError("service restart", resp.Error)
	}
	return nil
}

// Status gets the daemon and service status.
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.Send(&Request{Type: MsgStatus})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, NewServerError("status", resp.Error)
	}
	return decodePayload[StatusResponse](resp.Payload)
}

// Health probes the service health endpoint once via the daemon.
func (c *Client) Health() (*HealthResponse, error) {
	resp, err := c.Send(&Request{Type: MsgHealth})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, NewServerError("health", resp.Error)
	}
	return decodePayload[HealthResponse](resp.Payload)
}

// Stats fetches the current memory count via the daemon.
func (c *Client) Stats() (*StatsResponse, error) {
	resp, err := c.Send(&Request{Type: MsgStats})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, NewServerError("stats", resp.Error)
	}
	return decodePayload[StatsResponse](resp.Payload)
}

// Attach subscribes this connection to streaming status notifications.
func (c *Client) Attach() error {
	resp, err := c.Send(&Request{Type: MsgAttach})
	if err != nil {
		return err
	}
	if !resp.Success {
		return NewServerError("attach", resp.Error)
	}

	c.mu.Lock()
	c.attached = true
	c.mu.Unlock()
	return nil
}

// Detach unsubscribes from streaming status notifications.
func (c *Client) Detach() error {
	resp, err := c.Send(&Request{Type: MsgDetach})
	if err != nil {
		return err
	}
	if !resp.Success {
		return NewServerError("detach", resp.Error)
	}

	c.mu.Lock()
	c.attached = false
	c.mu.Unlock()
	return nil
}

// IsAttached returns true if the client is attached for streaming.
func (c *Client) IsAttached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

// EventResult contains either a stream event or an error.
type EventResult struct {
	Event *StreamEvent
	Err   error
}

// StreamEvents opens a dedicated connection for event streaming and returns a channel.
// Events are received on the channel until an error occurs or StopEventStream is called.
func (c *Client) StreamEvents() (<-chan EventResult, error) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()

	// Close any existing event stream
	if c.eventConn != nil {
		c.eventConn.Close()
		if c.eventDone != nil {
			close(c.eventDone)
		}
	}

	// Create a new dedicated connection for events
	conn, err := net.DialTimeout("unix", c.socketPath, ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial daemon for events: %w", err)
	}

	encoder := json.NewEncoder(conn)
	decoder := json.NewDecoder(conn)

	// Send attach request on this connection
	req := &Request{
		ID:   "event-stream",
		Type: MsgAttach,
	}
	if err := encoder.Encode(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("encode attach request: %w", err)
	}

	// Wait for attach response
	var resp Response
	if err := decoder.Decode(&resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("decode attach response: %w", err)
	}
	if !resp.Success {
		conn.Close()
		return nil, NewServerError("attach", resp.Error)
	}

	// Store connection and done channel
	c.eventConn = conn
	c.eventDone = make(chan struct{})
	done := c.eventDone

	// Create channel for events
	events := make(chan EventResult, 16)

	// Start reader goroutine
	go func() {
		defer close(events)
		defer conn.Close()

		for {
			select {
			case <-done:
				return
			default:
			}

			var event StreamEvent
			if err := decoder.Decode(&event); err != nil {
				select {
				case <-done:
					// Clean shutdown, don't send error
				case events <- EventResult{Err: fmt.Errorf("decode event: %w", err)}:
				}
				return
			}

			select {
			case <-done:
				return
			case events <- EventResult{Event: &event}:
			}
		}
	}()

	return events, nil
}

// StopEventStream stops the event streaming goroutine and closes the event connection.
func (c *Client) StopEventStream() {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()

	if c.eventDone != nil {
		close(c.eventDone)
		c.eventDone = nil
	}
	if c.eventConn != nil {
		c.eventConn.Close()
		c.eventConn = nil
	}
}
