package session

import (
	"github.com/vovakirdan/wirechat-client/internal/store"
)

// UnreadIndex tracks unread counts under two keys: by room, and by
// counterpart user for direct rooms. For every direct room r mapped to user
// u, byRoom[r] == byUser[u] holds after every operation; group and broadcast
// rooms never touch the per-user counter.
type UnreadIndex struct {
	active     string
	byRoom     map[string]int
	byUser     map[string]int
	roomToUser map[string]string
}

// NewUnreadIndex constructs an empty index.
func NewUnreadIndex() *UnreadIndex {
	return &UnreadIndex{
		byRoom:     make(map[string]int),
		byUser:     make(map[string]int),
		roomToUser: make(map[string]string),
	}
}

// IncrementForRoom bumps the room counter, and the mapped user counter in
// the same step. The room currently being viewed never accrues unread.
func (u *UnreadIndex) IncrementForRoom(roomID string) {
	if roomID == "" || roomID == u.active {
		return
	}
	u.byRoom[roomID]++
	if user, ok := u.roomToUser[roomID]; ok {
		u.byUser[user]++
	}
}

// ClearForRoom removes both counters as one unit; partial application would
// break the dual-index invariant.
func (u *UnreadIndex) ClearForRoom(roomID string) {
	if roomID == "" {
		return
	}
	delete(u.byRoom, roomID)
	if user, ok := u.roomToUser[roomID]; ok {
		delete(u.byUser, user)
	}
}

// SetActiveRoom records the room being viewed and clears its counters.
// An empty roomID means no room is active.
func (u *UnreadIndex) SetActiveRoom(roomID string) {
	u.active = roomID
	u.ClearForRoom(roomID)
}

// InitFromRooms rebuilds the direct-room mapping from a room-list snapshot.
// Counters for rooms absent from the snapshot are left as they are; a
// transient fetch should not destroy real unread state.
func (u *UnreadIndex) InitFromRooms(rooms []store.Room, selfID string) {
	u.roomToUser = make(map[string]string, len(rooms))
	for _, r := range rooms {
		if r.Kind != store.RoomKindDirect {
			continue
		}
		for _, m := range r.Members {
			if m.UserID != selfID {
				u.roomToUser[r.ID] = m.UserID
				break
			}
		}
	}
}

// UnreadForRoom returns the room counter, 0 when absent.
func (u *UnreadIndex) UnreadForRoom(roomID string) int {
	return u.byRoom[roomID]
}

// UnreadForUser returns the counterpart-user counter, 0 when absent.
func (u *UnreadIndex) UnreadForUser(userID string) int {
	return u.byUser[userID]
}

// ByRoom returns a copy of the per-room counters for display.
func (u *UnreadIndex) ByRoom() map[string]int {
	out := make(map[string]int, len(u.byRoom))
	for k, v := range u.byRoom {
		out[k] = v
	}
	return out
}

// Reset drops all counters and the mapping. Used on logout, never on a
// transient disconnect.
func (u *UnreadIndex) Reset() {
	u.active = ""
	u.byRoom = make(map[string]int)
	u.byUser = make(map[string]int)
	u.roomToUser = make(map[string]string)
}
