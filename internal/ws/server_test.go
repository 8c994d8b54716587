package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatrelay/internal/services/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *session.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := session.NewService("go-relay")
	hub := NewHub(svc)
	wsSrv := NewWsServer(hub, svc)

	engine := gin.New()
	engine.GET("/ws", wsSrv.Handle)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv, svc
}

func dialWs(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env.Event, env.Body
}

// readUntil skips frames until the wanted event arrives; concurrent presence
// and metrics broadcasts make exact frame positions racy across connections.
func readUntil(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		got, body := readEvent(t, conn)
		if got == event {
			return body
		}
	}
	t.Fatalf("event %q never arrived", event)
	return nil
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, body any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(outboundEnvelope{Event: event, Body: body}))
}

func TestConnectHandshake(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialWs(t, srv)

	event, body := readEvent(t, conn)
	require.Equal(t, evtUserJoined, event)
	var joined UserJoinedBody
	require.NoError(t, json.Unmarshal(body, &joined))
	assert.True(t, strings.HasPrefix(joined.Username, "Guest_"))
	assert.False(t, joined.IsYou)
	assert.Equal(t, "go-relay", joined.Server)

	event, body = readEvent(t, conn)
	require.Equal(t, evtUsersUpdate, event)
	var users UsersUpdateBody
	require.NoError(t, json.Unmarshal(body, &users))
	assert.Equal(t, []string{joined.Username}, users.Users)

	event, body = readEvent(t, conn)
	require.Equal(t, evtMetricsUpdate, event)
	var metrics MetricsUpdateBody
	require.NoError(t, json.Unmarshal(body, &metrics))
	assert.Equal(t, 1, metrics.ActiveConnections)
}

func TestJoinLobbyAndNameConflict(t *testing.T) {
	srv, _ := newTestServer(t)

	connA := dialWs(t, srv)
	sendEvent(t, connA, evtJoinLobby, JoinLobbyBody{Username: "Alice"})

	var joined UserJoinedBody
	for {
		body := readUntil(t, connA, evtUserJoined)
		require.NoError(t, json.Unmarshal(body, &joined))
		if joined.IsYou {
			break
		}
	}
	assert.Equal(t, "Alice", joined.Username)

	var users UsersUpdateBody
	require.NoError(t, json.Unmarshal(readUntil(t, connA, evtUsersUpdate), &users))
	assert.Equal(t, []string{"Alice"}, users.Users)

	// Second connection cannot claim the held non-guest name.
	connB := dialWs(t, srv)
	sendEvent(t, connB, evtJoinLobby, JoinLobbyBody{Username: "Alice"})

	var joinErr JoinErrorBody
	require.NoError(t, json.Unmarshal(readUntil(t, connB, evtJoinError), &joinErr))
	assert.Equal(t, "Username already taken", joinErr.Message)
}

func TestEmptyUsernameRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialWs(t, srv)

	sendEvent(t, conn, evtSetUsername, JoinLobbyBody{Username: "   "})

	var joinErr JoinErrorBody
	require.NoError(t, json.Unmarshal(readUntil(t, conn, evtJoinError), &joinErr))
	assert.Equal(t, "Username cannot be empty", joinErr.Message)
}

func TestPingPong(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialWs(t, srv)

	clientTS := float64(time.Now().UnixNano())/1e9 - 0.050
	sendEvent(t, conn, evtPing, PingBody{Timestamp: clientTS})

	var pong PongBody
	require.NoError(t, json.Unmarshal(readUntil(t, conn, evtPong), &pong))
	assert.Equal(t, clientTS, pong.Timestamp)
	assert.GreaterOrEqual(t, pong.Latency, 50.0)
	assert.Less(t, pong.Latency, 2000.0)
}

func TestChatMessageBroadcast(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialWs(t, srv)
	readUntil(t, conn, evtMetricsUpdate) // drain the connect frames

	sendEvent(t, conn, evtChatMessage, ChatBody{Text: "hello"})

	var msg struct {
		Text     string `json:"text"`
		Username string `json:"username"`
		Server   string `json:"server"`
	}
	require.NoError(t, json.Unmarshal(readUntil(t, conn, evtChatMessage), &msg))
	assert.Equal(t, "hello", msg.Text)
	assert.True(t, strings.HasPrefix(msg.Username, "Guest_"))
	assert.Equal(t, "go-relay", msg.Server)
}

func TestRoomScopedChat(t *testing.T) {
	srv, _ := newTestServer(t)

	connA := dialWs(t, srv)
	connB := dialWs(t, srv)
	connC := dialWs(t, srv)

	sendEvent(t, connA, evtJoinRoom, JoinRoomBody{Room: "red"})
	sendEvent(t, connB, evtJoinRoom, JoinRoomBody{Room: "red"})
	readUntil(t, connB, evtRoomUpdate)

	sendEvent(t, connA, evtChatMessage, ChatBody{Text: "room only"})

	var msg struct {
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(readUntil(t, connB, evtChatMessage), &msg))
	assert.Equal(t, "room only", msg.Text)

	// The outsider gets the trailing metrics broadcast but never the message.
	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		require.NoError(t, connC.SetReadDeadline(deadline))
		var env Envelope
		if err := connC.ReadJSON(&env); err != nil {
			break // window drained
		}
		assert.NotEqual(t, evtChatMessage, env.Event)
	}
}

func TestUpdateStatePassthrough(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialWs(t, srv)

	sendEvent(t, conn, evtUpdateState, map[string]any{"phase": "ready", "score": 3})

	var state map[string]any
	require.NoError(t, json.Unmarshal(readUntil(t, conn, evtStateUpdated), &state))
	assert.Equal(t, "ready", state["phase"])
	assert.EqualValues(t, 3, state["score"])
}

func TestDisconnectRemovesFromRoomAndPresence(t *testing.T) {
	srv, svc := newTestServer(t)

	connA := dialWs(t, srv)
	connB := dialWs(t, srv)

	sendEvent(t, connA, evtJoinRoom, JoinRoomBody{Room: "red"})
	readUntil(t, connA, evtRoomUpdate)

	require.NoError(t, connA.Close())

	// B observes the presence update shrinking back to one user.
	var users UsersUpdateBody
	for {
		require.NoError(t, json.Unmarshal(readUntil(t, connB, evtUsersUpdate), &users))
		if len(users.Users) == 1 {
			break
		}
	}

	// Last member out removed the room from the index.
	assert.Empty(t, svc.RoomMembers("red"))
}

func TestUnknownEventGetsErrorEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialWs(t, srv)

	sendEvent(t, conn, "no_such_event", nil)

	var errBody ErrorBody
	require.NoError(t, json.Unmarshal(readUntil(t, conn, "error"), &errBody))
	assert.Equal(t, "unknown_event", errBody.Error)
}
