package session

import "sort"

// TypingCoordinator tracks which remote users are believed to be typing,
// per room, excluding the local actor. Entries are removed by an explicit
// stop event, by leaving the room, or by the session's TTL expiry so a lost
// stop event cannot wedge the indicator.
type TypingCoordinator struct {
	self  string
	rooms map[string]map[string]string // room -> userID -> display name
}

// NewTypingCoordinator constructs a coordinator for the given local actor.
func NewTypingCoordinator(selfID string) *TypingCoordinator {
	return &TypingCoordinator{
		self:  selfID,
		rooms: make(map[string]map[string]string),
	}
}

// Start records a typing user. Self is excluded. Returns true when the
// room's visible roster changed, including a display name change for a user
// already typing.
func (t *TypingCoordinator) Start(roomID, userID, name string) bool {
	if userID == t.self {
		return false
	}
	users, ok := t.rooms[roomID]
	if !ok {
		users = make(map[string]string)
		t.rooms[roomID] = users
	}
	prev, present := users[userID]
	users[userID] = name
	return !present || prev != name
}

// Stop removes a typing user. Returns true when the set changed.
func (t *TypingCoordinator) Stop(roomID, userID string) bool {
	users, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	if _, present := users[userID]; !present {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.rooms, roomID)
	}
	return true
}

// ClearRoom drops all typing state for a room, e.g. when leaving it.
func (t *TypingCoordinator) ClearRoom(roomID string) {
	delete(t.rooms, roomID)
}

// Names returns the display names typing in a room, sorted.
func (t *TypingCoordinator) Names(roomID string) []string {
	users := t.rooms[roomID]
	out := make([]string, 0, len(users))
	for _, name := range users {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Reset drops all typing state. Used on logout.
func (t *TypingCoordinator) Reset() {
	t.rooms = make(map[string]map[string]string)
}
