package registry

import (
	"sync"
	"time"

	"github.com/mentorlink/relay/src/types"
)

// Client wraps one live WebSocket connection for a principal and manages
// its outbound flow. All writes go through the bounded Send queue drained
// by WritePump, so a slow peer never blocks a sender.
type Client struct {
	Principal   string
	conn        types.Conn
	Send        chan types.Envelope
	connectedAt time.Time

	mu        sync.Mutex
	closed    bool
	closeCode int
	closeText string
	done      chan struct{}
}

// NewClient creates a client wrapper around an accepted connection.
func NewClient(principal string, conn types.Conn, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Client{
		Principal:   principal,
		conn:        conn,
		Send:        make(chan types.Envelope, queueSize),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// ConnectedAt reports when the connection was accepted.
func (c *Client) ConnectedAt() time.Time { return c.connectedAt }

// Enqueue offers an envelope to the outbound queue without blocking.
// It reports false if the client is closed or the queue is full.
func (c *Client) Enqueue(env types.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}

// WritePump drains the send queue onto the socket. It returns when the
// client is closed or a write fails. Call in a goroutine.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case env := <-c.Send:
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-c.done:
			c.mu.Lock()
			code, text := c.closeCode, c.closeText
			c.mu.Unlock()
			if code != 0 {
				_ = c.conn.CloseWithStatus(code, text)
			}
			return
		}
	}
}

// ReadFrame reads the next inbound frame. The caller owns read ordering;
// frames on one connection are consumed sequentially.
func (c *Client) ReadFrame() (types.ClientFrame, error) {
	var frame types.ClientFrame
	err := c.conn.ReadJSON(&frame)
	return frame, err
}

// Close tears the client down. When code is non-zero a close frame with
// that code and reason is sent before the socket closes. Idempotent;
// only the first call wins.
func (c *Client) Close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeText = reason
	close(c.done)
	c.mu.Unlock()
}

// Done is closed once the client has been torn down.
func (c *Client) Done() <-chan struct{} { return c.done }
