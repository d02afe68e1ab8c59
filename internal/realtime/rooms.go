package realtime

import (
	"fmt"
	"sync"
)

// UserRoom names the personal room a connection auto-joins on admission.
func UserRoom(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

// ConversationRoom names the room carrying a conversation's typing events.
func ConversationRoom(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

// RoomSet tracks which clients joined which named broadcast group. Rooms are
// a derived view over active connections: they are created on first join and
// vanish when the last member leaves. Nothing here is persisted.
type RoomSet struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

// NewRoomSet constructs an empty room set.
func NewRoomSet() *RoomSet {
	return &RoomSet{rooms: make(map[string]map[*Client]struct{})}
}

// Join adds the client to the named room.
func (rs *RoomSet) Join(room string, client *Client) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	members, ok := rs.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		rs.rooms[room] = members
	}
	members[client] = struct{}{}
}

// Leave removes the client from the named room, dropping the room when empty.
func (rs *RoomSet) Leave(room string, client *Client) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.leaveLocked(room, client)
}

// LeaveAll removes the client from every room it joined.
func (rs *RoomSet) LeaveAll(client *Client) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for room := range rs.rooms {
		rs.leaveLocked(room, client)
	}
}

func (rs *RoomSet) leaveLocked(room string, client *Client) {
	members, ok := rs.rooms[room]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(rs.rooms, room)
	}
}

// Contains reports whether the client is a member of the named room.
func (rs *RoomSet) Contains(room string, client *Client) bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	members, ok := rs.rooms[room]
	if !ok {
		return false
	}
	_, member := members[client]
	return member
}

// MemberCount returns how many clients joined the named room.
func (rs *RoomSet) MemberCount(room string) int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.rooms[room])
}

// Broadcast enqueues the event on every member of the room except the
// excluded client. Delivery is best effort; members with a full send buffer
// miss the event.
func (rs *RoomSet) Broadcast(room string, event OutboundEvent, exclude *Client) {
	rs.mu.RLock()
	recipients := make([]*Client, 0, len(rs.rooms[room]))
	for member := range rs.rooms[room] {
		if member == exclude {
			continue
		}
		recipients = append(recipients, member)
	}
	rs.mu.RUnlock()

	for _, recipient := range recipients {
		recipient.Enqueue(event)
	}
}
