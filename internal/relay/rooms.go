package relay

import "sort"

// RoomIndex maps room ids to member session ids. Rooms exist exactly while
// they have members: created on first join, deleted on last leave.
type RoomIndex struct {
	rooms map[string]map[string]struct{}
}

func NewRoomIndex() *RoomIndex {
	return &RoomIndex{rooms: make(map[string]map[string]struct{})}
}

// Join adds the connection to the room, creating it if absent. Joining a room
// twice is a no-op.
func (ri *RoomIndex) Join(room, id string) {
	members, ok := ri.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		ri.rooms[room] = members
	}
	members[id] = struct{}{}
}

// Leave removes the connection and deletes the room once empty.
func (ri *RoomIndex) Leave(room, id string) {
	members, ok := ri.rooms[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(ri.rooms, room)
	}
}

// Members returns the room's member ids sorted for deterministic fan-out.
// An absent room yields an empty slice, not an error.
func (ri *RoomIndex) Members(room string) []string {
	members, ok := ri.rooms[room]
	if !ok {
		return []string{}
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (ri *RoomIndex) Exists(room string) bool {
	_, ok := ri.rooms[room]
	return ok
}
