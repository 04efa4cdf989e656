package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/steveyiyo/voxrelay/pkg/types"
)

const writeWait = 10 * time.Second

// Client serializes writes to one connection; gorilla allows a single
// concurrent writer.
type Client struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func NewClient(c *websocket.Conn) *Client {
	return &Client{conn: c}
}

func (c *Client) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Emit stamps ev and writes it.
func (c *Client) Emit(ev types.Event) error {
	if ev.TS == 0 {
		ev.TS = time.Now().UnixMilli()
	}
	return c.WriteJSON(ev)
}

// Ping writes a ping control frame.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close sends a close frame and closes the connection. Safe to call more
// than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}

type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Client
}

func NewHub() *Hub {
	return &Hub{conns: map[string]*Client{}}
}

// Add registers c under id and returns the client it replaced, if any.
func (h *Hub) Add(id string, c *Client) *Client {
	h.mu.Lock()
	prev := h.conns[id]
	h.conns[id] = c
	h.mu.Unlock()
	return prev
}

// Remove unregisters id if it still maps to c.
func (h *Hub) Remove(id string, c *Client) {
	h.mu.Lock()
	if h.conns[id] == c {
		delete(h.conns, id)
	}
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
