package ws

import (
	"encoding/json"

	"chatrelay/internal/relay"
)

// Envelope wraps every inbound WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "chat_message"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// outboundEnvelope is the server-to-client frame shape.
type outboundEnvelope struct {
	Event string `json:"event"`
	Body  any    `json:"body,omitempty"`
}

// Inbound events.
const (
	evtJoinLobby   = "join_lobby"
	evtSetUsername = "set_username"
	evtJoinRoom    = "join_room"
	evtUpdateState = "update_state"
	evtPing        = "ping"
	evtChatMessage = "chat_message" // also the outbound broadcast event
)

// Outbound events.
const (
	evtUserJoined    = "user_joined"
	evtJoinError     = "join_error"
	evtUsersUpdate   = "users_update"
	evtRoomUpdate    = "room_update"
	evtStateUpdated  = "state_updated"
	evtPong          = "pong"
	evtMetricsUpdate = "metrics_update"
)

// ──────────────────────────── Request DTOs ────────────────────────────────────

type JoinLobbyBody struct {
	Username string `json:"username"`
}

type JoinRoomBody struct {
	Room string `json:"room"`
}

type PingBody struct {
	Timestamp float64 `json:"timestamp"` // client epoch seconds
}

type ChatBody struct {
	Text string `json:"text"`
}

// ──────────────────────────── Response DTOs ───────────────────────────────────

type UserJoinedBody struct {
	Username string `json:"username"`
	IsYou    bool   `json:"is_you,omitempty"`
	Server   string `json:"server"`
}

type JoinErrorBody struct {
	Message string `json:"message"`
}

type UsersUpdateBody struct {
	Users  []string `json:"users"`
	Server string   `json:"server"`
}

type RoomUpdateBody struct {
	Room   string   `json:"room"`
	Users  []string `json:"users"`
	Server string   `json:"server"`
}

type PongBody struct {
	Timestamp float64 `json:"timestamp"`
	Latency   float64 `json:"latency"` // ms
}

// MetricsUpdateBody is the broadcast view of a snapshot; the per-connection
// latency averages stay on the REST endpoint only.
type MetricsUpdateBody struct {
	ActiveConnections int     `json:"active_connections"`
	MessagesPerSecond float64 `json:"messages_per_second"`
	MemoryUsage       float64 `json:"memory_usage"` // MB
	CPUUsage          float64 `json:"cpu_usage"`    // %
	Server            string  `json:"server"`
}

func metricsBody(s relay.MetricsSnapshot) MetricsUpdateBody {
	return MetricsUpdateBody{
		ActiveConnections: s.ActiveConnections,
		MessagesPerSecond: s.MessagesPerSecond,
		MemoryUsage:       s.MemoryUsageMB,
		CPUUsage:          s.CPUUsagePct,
		Server:            s.Server,
	}
}

// ErrorBody is returned for protocol-level failures (unknown event, bad
// payload).
type ErrorBody struct {
	Error string `json:"error"`
}
