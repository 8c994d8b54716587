// Package session implements the protocol state machine of the relay. One
// Service owns the connection registry, the room index, the metrics
// aggregator and the message log behind a single mutex; every mutating event
// resolves the data its resulting broadcasts need inside the critical section
// and returns it, so transport delivery never runs under the lock.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"chatrelay/internal/relay"

	"go.uber.org/zap"
)

type Service struct {
	mu       sync.Mutex
	now      func() time.Time
	tag      string
	registry *relay.Registry
	rooms    *relay.RoomIndex
	metrics  *relay.Metrics
	log      *relay.MessageLog
}

func NewService(serverTag string) *Service {
	return &Service{
		now:      time.Now,
		tag:      serverTag,
		registry: relay.NewRegistry(),
		rooms:    relay.NewRoomIndex(),
		metrics:  relay.NewMetrics(),
		log:      relay.NewMessageLog(),
	}
}

// Tag returns the server tag stamped onto outbound events.
func (s *Service) Tag() string { return s.tag }

type ConnectResult struct {
	Username string
	Users    []string
	Snapshot relay.MetricsSnapshot
}

// Connect registers the connection under a generated guest name and bumps the
// live counter.
func (s *Service) Connect(id string) (ConnectResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.registry.Register(id)
	if err != nil {
		return ConnectResult{}, err
	}
	s.metrics.ConnectionDelta(+1)
	return ConnectResult{
		Username: name,
		Users:    s.registry.Names(),
		Snapshot: s.snapshotLocked(),
	}, nil
}

type DisconnectResult struct {
	Username      string
	Room          string
	RoomMemberIDs []string
	RoomUsers     []string
	Users         []string
	Snapshot      relay.MetricsSnapshot
}

// Disconnect tears the connection down synchronously: registry entry, room
// membership, latency buffer and counter all go in one critical section.
// Unknown ids are a no-op; disconnect races are expected.
func (s *Service) Disconnect(id string) (DisconnectResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, _ := s.registry.RoomOf(id)
	name, ok := s.registry.Remove(id)
	if !ok {
		zap.L().Warn("session.disconnect_unknown", zap.String("sid", id))
		return DisconnectResult{}, false
	}

	res := DisconnectResult{Username: name, Room: room}
	if room != "" {
		s.rooms.Leave(room, id)
		res.RoomMemberIDs = s.rooms.Members(room)
		res.RoomUsers = s.registry.NamesOf(res.RoomMemberIDs)
	}
	s.metrics.DropLatency(id)
	if s.metrics.ConnectionDelta(-1) {
		zap.L().Warn("session.counter_underflow", zap.String("sid", id))
	}
	res.Users = s.registry.Names()
	res.Snapshot = s.snapshotLocked()
	return res, true
}

type RenameResult struct {
	Username string
	Users    []string
}

// Rename backs both join_lobby and set_username. Validation errors
// (relay.ErrEmptyName, relay.ErrNameTaken) leave the registry unchanged.
func (s *Service) Rename(id, name string) (RenameResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registry.Rename(id, name); err != nil {
		if errors.Is(err, relay.ErrUnknownConnection) {
			zap.L().Warn("session.rename_unknown", zap.String("sid", id))
		}
		return RenameResult{}, err
	}
	current, _ := s.registry.Name(id)
	return RenameResult{Username: current, Users: s.registry.Names()}, nil
}

type JoinRoomResult struct {
	Room          string
	MemberIDs     []string
	Users         []string
	LeftRoom      string
	LeftMemberIDs []string
	LeftUsers     []string
}

// JoinRoom moves the connection into a room. The room pointer is
// single-valued, so joining while in another room leaves that one first; both
// affected rooms get presence data back for their broadcasts.
func (s *Service) JoinRoom(id, room string) (JoinRoomResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registry.Name(id); !ok {
		zap.L().Warn("session.join_room_unknown", zap.String("sid", id))
		return JoinRoomResult{}, relay.ErrUnknownConnection
	}

	res := JoinRoomResult{Room: room}
	if prev, ok := s.registry.RoomOf(id); ok && prev != room {
		s.rooms.Leave(prev, id)
		res.LeftRoom = prev
		res.LeftMemberIDs = s.rooms.Members(prev)
		res.LeftUsers = s.registry.NamesOf(res.LeftMemberIDs)
	}
	s.rooms.Join(room, id)
	_ = s.registry.SetRoom(id, room)

	res.MemberIDs = s.rooms.Members(room)
	res.Users = s.registry.NamesOf(res.MemberIDs)
	return res, nil
}

type ChatResult struct {
	Message  relay.Message
	Room     string // empty means broadcast to all connections
	Snapshot relay.MetricsSnapshot
}

// Chat records the message in the rate window and the log. Delivery is
// room-scoped when the sender is in a room, global otherwise.
func (s *Service) Chat(id, text string) (ChatResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, ok := s.registry.Name(id)
	if !ok {
		zap.L().Warn("session.chat_unknown", zap.String("sid", id))
		return ChatResult{}, false
	}

	s.metrics.RecordMessage()
	msg := relay.Message{
		Text:      text,
		Username:  name,
		Timestamp: unixSeconds(s.now()),
		Server:    s.tag,
	}
	s.log.Append(msg)

	res := ChatResult{Message: msg, Snapshot: s.snapshotLocked()}
	if room, ok := s.registry.RoomOf(id); ok {
		res.Room = room
	}
	return res, true
}

type PingResult struct {
	LatencyMs float64
	Snapshot  relay.MetricsSnapshot
}

// Ping computes the client-to-server latency from the client timestamp and
// records it in the connection's buffer.
func (s *Service) Ping(id string, clientTimestamp float64) PingResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	latency := (unixSeconds(s.now()) - clientTimestamp) * 1000
	s.metrics.RecordLatency(id, latency)
	return PingResult{LatencyMs: latency, Snapshot: s.snapshotLocked()}
}

// Users returns every display name for presence broadcasts.
func (s *Service) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Names()
}

// RoomMembers resolves a room's member session ids; the hub calls this to
// compute a broadcast scope before delivering outside the lock.
func (s *Service) RoomMembers(room string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms.Members(room)
}

func (s *Service) Messages() []relay.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.All()
}

func (s *Service) Snapshot() relay.MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() relay.MetricsSnapshot {
	snap := s.metrics.Snapshot()
	snap.Server = s.tag
	return snap
}

// StartResourceSampler samples process memory and CPU on a fixed cadence. The
// OS calls run outside the service lock; only storing the result locks.
func (s *Service) StartResourceSampler(ctx context.Context, interval time.Duration) {
	sampler, err := relay.NewResourceSampler()
	if err != nil {
		zap.L().Warn("session.sampler_init", zap.Error(err))
		return
	}
	go func() {
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				memMB, cpuPct, err := sampler.Sample()
				if err != nil {
					zap.L().Warn("session.sample", zap.Error(err))
					continue
				}
				s.mu.Lock()
				s.metrics.SetResourceUsage(memMB, cpuPct)
				s.mu.Unlock()
			}
		}
	}()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
