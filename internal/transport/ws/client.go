package ws

import (
	"sync"

	"github.com/google/uuid"
)

const defaultSendBuffer = 256

// Client is one socket's slot in a room. Frames are queued on a bounded
// buffer drained by the connection's write loop.
type Client struct {
	id   string
	send chan []byte

	mu     sync.Mutex
	closed bool

	// room is owned by the connection's read loop.
	room *Room
}

func NewClient(buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Client{
		id:   uuid.NewString(),
		send: make(chan []byte, buffer),
	}
}

func (c *Client) ID() string { return c.id }

// Frames is drained by the write loop; it is closed when the client closes.
func (c *Client) Frames() <-chan []byte { return c.send }

// enqueue never blocks. A closed client or a full buffer drops the frame.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
