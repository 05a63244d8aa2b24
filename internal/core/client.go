package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client is one live dashboard connection as seen by the core layer.
// The transport owns the underlying socket; the core only ever pushes
// outbound events into the client's buffered channel. Account binding
// lives in the Registry, not here.
type Client struct {
	ID        string
	CreatedAt time.Time

	mu     sync.Mutex
	closed bool
	events chan *Event
}

// NewClient constructs a client with an outbound buffer of the given size.
func NewClient(buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Client{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		events:    make(chan *Event, buffer),
	}
}

const defaultSendBuffer = 16

// Events exposes the outbound event stream for the transport's write loop.
// The channel is closed when the client is closed.
func (c *Client) Events() <-chan *Event {
	return c.events
}

// TrySend enqueues an event without blocking. It returns false when the
// client is closed or its buffer is full; the caller decides what to do
// with the session in that case.
func (c *Client) TrySend(ev *Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// Close marks the client closed and closes its event channel. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}
