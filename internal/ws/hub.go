package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// RoomResolver resolves a room id to its member session ids. The session
// service implements it; resolution runs under the service lock so a fan-out
// never observes a half-updated membership set.
type RoomResolver interface {
	RoomMembers(room string) []string
}

// Hub keeps the live transport channels keyed by session id and delivers
// outbound events to a scope: all connections, a room, or a single one.
// Delivery is best effort; a failed write closes that connection and is
// swallowed, never surfaced to the caller.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*clientConn
	resolver RoomResolver
}

func NewHub(resolver RoomResolver) *Hub {
	return &Hub{
		conns:    make(map[string]*clientConn),
		resolver: resolver,
	}
}

func (h *Hub) Add(c *clientConn) {
	h.mu.Lock()
	h.conns[c.sid] = c
	h.mu.Unlock()
}

func (h *Hub) Remove(sid string) {
	h.mu.Lock()
	c, ok := h.conns[sid]
	delete(h.conns, sid)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// ToAll delivers the event to every live connection.
func (h *Hub) ToAll(event string, body any) {
	h.mu.RLock()
	conns := make([]*clientConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	h.deliver(conns, event, body)
}

// ToRoom delivers the event to the room's current members. An empty room is a
// no-op.
func (h *Hub) ToRoom(room, event string, body any) {
	h.ToMany(h.resolver.RoomMembers(room), event, body)
}

// ToMany delivers the event to an already-resolved set of session ids.
func (h *Hub) ToMany(sids []string, event string, body any) {
	if len(sids) == 0 {
		return
	}
	h.mu.RLock()
	conns := make([]*clientConn, 0, len(sids))
	for _, sid := range sids {
		if c, ok := h.conns[sid]; ok {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(conns, event, body)
}

// ToOne delivers a direct reply to a single connection.
func (h *Hub) ToOne(sid, event string, body any) {
	h.mu.RLock()
	c, ok := h.conns[sid]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.deliver([]*clientConn{c}, event, body)
}

// deliver serializes the envelope once and writes it to each connection
// outside any shared lock. A connection that fails its write is closed; its
// reader loop runs the teardown.
func (h *Hub) deliver(conns []*clientConn, event string, body any) {
	if len(conns) == 0 {
		return
	}
	payload, err := json.Marshal(outboundEnvelope{Event: event, Body: body})
	if err != nil {
		zap.L().Warn("ws.marshal", zap.String("event", event), zap.Error(err))
		return
	}
	for _, c := range conns {
		if err := c.write(websocket.TextMessage, payload); err != nil {
			zap.L().Debug("ws.deliver_drop", zap.String("sid", c.sid), zap.Error(err))
			c.close()
		}
	}
}
