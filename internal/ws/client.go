package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// clientConn wraps one live transport channel. gorilla allows a single
// concurrent writer, so every data write goes through the mutex; the close is
// idempotent because both the hub and the read loop may trigger it.
type clientConn struct {
	sid       string
	rawConn   *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
}

func (c *clientConn) write(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteMessage(mt, data) // Text/Binary only
}

func (c *clientConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteJSON(v)
}

func (c *clientConn) close() {
	c.closeOnce.Do(func() { c.rawConn.Close() })
}
