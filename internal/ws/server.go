package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"chatrelay/internal/relay"
	"chatrelay/internal/services/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 12 * time.Second
	pingPeriod = 3 * time.Second // must be < pongWait

	maxFrameSize    = 4096
	dispatchTimeout = 1900 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true }, // dev only
}

type WsServer struct {
	hub        *Hub
	router     *Router
	sessionSvc *session.Service
}

func NewWsServer(h *Hub, sessionSvc *session.Service) *WsServer {
	srv := &WsServer{
		hub:        h,
		router:     NewRouter(),
		sessionSvc: sessionSvc,
	}
	srv.registerHandlers() // ← all WS events configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry‑point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	rawConn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(maxFrameSize)

	// ─────────────────── Client connected ─────────────────────
	sid := uuid.NewString()
	conn := &clientConn{sid: sid, rawConn: rawConn}

	res, err := s.sessionSvc.Connect(sid)
	if err != nil {
		zap.L().Warn("ws.connect", zap.String("sid", sid), zap.Error(err))
		conn.close()
		return
	}
	s.hub.Add(conn)

	s.hub.ToOne(sid, evtUserJoined, UserJoinedBody{
		Username: res.Username,
		Server:   s.sessionSvc.Tag(),
	})
	s.hub.ToAll(evtUsersUpdate, UsersUpdateBody{Users: res.Users, Server: s.sessionSvc.Tag()})
	s.hub.ToAll(evtMetricsUpdate, metricsBody(res.Snapshot))

	go s.reader(conn)
	go s.pinger(conn)
}

// StartMetricsBroadcast pushes a metrics_update to every connection on a
// fixed cadence so idle clients still see fresh health numbers.
func (s *WsServer) StartMetricsBroadcast(ctx context.Context, interval time.Duration) {
	go func() {
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				s.hub.ToAll(evtMetricsUpdate, metricsBody(s.sessionSvc.Snapshot()))
			}
		}
	}()
}

// ---------------------------------------------------------------------------
//  Event handlers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	// join_lobby and set_username share one rename path.
	Register(s.router, evtJoinLobby, s.handleRename)
	Register(s.router, evtSetUsername, s.handleRename)

	// 🔹 join_room ------------------------------------------------------------
	Register(
		s.router,
		evtJoinRoom,
		func(ctx context.Context, cc *ConnContext, req JoinRoomBody) error {
			if req.Room == "" {
				return errors.New("room is required")
			}
			res, err := s.sessionSvc.JoinRoom(cc.SID, req.Room)
			if err != nil {
				return err
			}
			if res.LeftRoom != "" {
				s.hub.ToMany(res.LeftMemberIDs, evtRoomUpdate, RoomUpdateBody{
					Room:   res.LeftRoom,
					Users:  res.LeftUsers,
					Server: s.sessionSvc.Tag(),
				})
			}
			s.hub.ToMany(res.MemberIDs, evtRoomUpdate, RoomUpdateBody{
				Room:   res.Room,
				Users:  res.Users,
				Server: s.sessionSvc.Tag(),
			})
			return nil
		},
	)

	// 🔹 update_state ---------------------------------------------------------
	Register(
		s.router,
		evtUpdateState,
		func(ctx context.Context, cc *ConnContext, req json.RawMessage) error {
			s.hub.ToAll(evtStateUpdated, req)
			return nil
		},
	)

	// 🔹 ping -----------------------------------------------------------------
	Register(
		s.router,
		evtPing,
		func(ctx context.Context, cc *ConnContext, req PingBody) error {
			res := s.sessionSvc.Ping(cc.SID, req.Timestamp)
			s.hub.ToOne(cc.SID, evtPong, PongBody{
				Timestamp: req.Timestamp,
				Latency:   res.LatencyMs,
			})
			s.hub.ToAll(evtMetricsUpdate, metricsBody(res.Snapshot))
			return nil
		},
	)

	// 🔹 chat_message ---------------------------------------------------------
	Register(
		s.router,
		evtChatMessage,
		func(ctx context.Context, cc *ConnContext, req ChatBody) error {
			res, ok := s.sessionSvc.Chat(cc.SID, req.Text)
			if !ok {
				return nil // disconnect race, already logged
			}
			if res.Room != "" {
				s.hub.ToRoom(res.Room, evtChatMessage, res.Message)
			} else {
				s.hub.ToAll(evtChatMessage, res.Message)
			}
			s.hub.ToAll(evtMetricsUpdate, metricsBody(res.Snapshot))
			return nil
		},
	)
}

// handleRename validates the requested username and either confirms it to the
// sender and re-broadcasts presence, or replies with a join_error. Naming
// conflicts are the only user-visible failures.
func (s *WsServer) handleRename(ctx context.Context, cc *ConnContext, req JoinLobbyBody) error {
	res, err := s.sessionSvc.Rename(cc.SID, req.Username)
	switch {
	case errors.Is(err, relay.ErrEmptyName):
		s.hub.ToOne(cc.SID, evtJoinError, JoinErrorBody{Message: "Username cannot be empty"})
		return nil
	case errors.Is(err, relay.ErrNameTaken):
		s.hub.ToOne(cc.SID, evtJoinError, JoinErrorBody{Message: "Username already taken"})
		return nil
	case errors.Is(err, relay.ErrUnknownConnection):
		return nil // disconnect race, already logged
	case err != nil:
		return err
	}

	s.hub.ToOne(cc.SID, evtUserJoined, UserJoinedBody{
		Username: res.Username,
		IsYou:    true,
		Server:   s.sessionSvc.Tag(),
	})
	s.hub.ToAll(evtUsersUpdate, UsersUpdateBody{Users: res.Users, Server: s.sessionSvc.Tag()})
	return nil
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) reader(conn *clientConn) {
	defer s.teardown(conn)

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	cc := &ConnContext{SID: conn.sid}

	for {
		var env Envelope
		if err := conn.rawConn.ReadJSON(&env); err != nil {
			return // client closed or errored
		}

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		err := s.router.dispatch(ctx, cc, env)
		cancel()

		// ---- error -> {"event":"error", "body":{...}} ---------------
		if err != nil {
			zap.L().Debug("ws.dispatch",
				zap.String("sid", conn.sid),
				zap.String("event", env.Event),
				zap.Error(err),
			)
			_ = conn.writeJSON(outboundEnvelope{
				Event: "error",
				Body:  ErrorBody{Error: err.Error()},
			})
		}
	}
}

// teardown runs the synchronous disconnect transition before the connection
// id can be reused: registry entry, room membership, latency buffer and
// counter are all gone by the time the presence broadcasts go out.
func (s *WsServer) teardown(conn *clientConn) {
	s.hub.Remove(conn.sid)
	res, ok := s.sessionSvc.Disconnect(conn.sid)
	if !ok {
		return
	}
	if res.Room != "" {
		s.hub.ToMany(res.RoomMemberIDs, evtRoomUpdate, RoomUpdateBody{
			Room:   res.Room,
			Users:  res.RoomUsers,
			Server: s.sessionSvc.Tag(),
		})
	}
	s.hub.ToAll(evtUsersUpdate, UsersUpdateBody{Users: res.Users, Server: s.sessionSvc.Tag()})
	s.hub.ToAll(evtMetricsUpdate, metricsBody(res.Snapshot))
}

func (s *WsServer) pinger(conn *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		deadline := time.Now().Add(writeWait)
		if err := conn.rawConn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			conn.close()
			return
		}
	}
}
