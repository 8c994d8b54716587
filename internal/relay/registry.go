// Package relay holds the pure in-memory core of the presence/chat relay:
// the connection registry, the room index, the rolling metrics aggregator and
// the message log. None of the types in this package lock or do I/O; the
// session service serializes all access behind a single mutex.
package relay

import (
	"errors"
	"sort"
	"strings"
)

// GuestPrefix marks auto-generated display names. Guest names are not unique;
// only non-guest names participate in the collision check.
const GuestPrefix = "Guest_"

var (
	ErrDuplicateConnection = errors.New("connection id already registered")
	ErrUnknownConnection   = errors.New("unknown connection id")
	ErrEmptyName           = errors.New("username cannot be empty")
	ErrNameTaken           = errors.New("username already taken")
)

type connection struct {
	name string
	room string // empty when not in a room
}

// Registry maps session ids to display names and the optional room each
// connection belongs to.
type Registry struct {
	conns map[string]*connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*connection)}
}

// Register inserts a new connection under a generated guest name derived from
// the session id prefix.
func (r *Registry) Register(id string) (string, error) {
	if _, ok := r.conns[id]; ok {
		return "", ErrDuplicateConnection
	}
	name := GuestPrefix + idPrefix(id)
	r.conns[id] = &connection{name: name}
	return name, nil
}

// Rename sets a custom display name. Renaming to the current name succeeds as
// a no-op; names held by other non-guest connections are rejected.
func (r *Registry) Rename(id, name string) error {
	c, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if name == c.name {
		return nil
	}
	if !strings.HasPrefix(name, GuestPrefix) {
		for other, oc := range r.conns {
			if other != id && oc.name == name {
				return ErrNameTaken
			}
		}
	}
	c.name = name
	return nil
}

// Remove deletes the connection and reports the display name it held.
func (r *Registry) Remove(id string) (string, bool) {
	c, ok := r.conns[id]
	if !ok {
		return "", false
	}
	delete(r.conns, id)
	return c.name, true
}

func (r *Registry) Name(id string) (string, bool) {
	c, ok := r.conns[id]
	if !ok {
		return "", false
	}
	return c.name, true
}

func (r *Registry) SetRoom(id, room string) error {
	c, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	c.room = room
	return nil
}

func (r *Registry) ClearRoom(id string) {
	if c, ok := r.conns[id]; ok {
		c.room = ""
	}
}

// RoomOf reports the room the connection is a member of, if any.
func (r *Registry) RoomOf(id string) (string, bool) {
	c, ok := r.conns[id]
	if !ok || c.room == "" {
		return "", false
	}
	return c.room, true
}

func (r *Registry) Len() int { return len(r.conns) }

// Names returns every display name, ordered by session id so presence
// broadcasts are stable within a call.
func (r *Registry) Names() []string {
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = r.conns[id].name
	}
	return names
}

// NamesOf resolves display names for a set of session ids, skipping unknowns.
func (r *Registry) NamesOf(ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.conns[id]; ok {
			names = append(names, c.name)
		}
	}
	return names
}

func idPrefix(id string) string {
	if len(id) > 4 {
		return id[:4]
	}
	return id
}
