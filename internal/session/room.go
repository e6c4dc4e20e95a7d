package session

import "github.com/vovakirdan/wirechat-client/internal/store"

// RoomPhase is the room session state machine. At most one room is joined
// per connection; the leave-before-join rule is a transition, not a
// convenience.
type RoomPhase int

const (
	// PhaseIdle means no room is active or pending.
	PhaseIdle RoomPhase = iota
	// PhaseJoining means a join intent is awaiting server acknowledgment.
	PhaseJoining
	// PhaseActive means the room is joined and displayed.
	PhaseActive
	// PhaseLeaving means a leave intent was sent for the room.
	PhaseLeaving
)

// String implements fmt.Stringer.
func (p RoomPhase) String() string {
	switch p {
	case PhaseJoining:
		return "joining"
	case PhaseActive:
		return "active"
	case PhaseLeaving:
		return "leaving"
	default:
		return "idle"
	}
}

// roomState holds the state machine position and the visible message buffer.
// The buffer belongs to the active room only; pushes for any other room are
// routed to the unread index at processing time.
type roomState struct {
	phase  RoomPhase
	roomID string
	buffer []store.Message
}

// activeRoom returns the active room id, empty unless PhaseActive.
func (r *roomState) activeRoom() string {
	if r.phase != PhaseActive {
		return ""
	}
	return r.roomID
}

// reset returns the machine to idle and drops the buffer.
func (r *roomState) reset() {
	r.phase = PhaseIdle
	r.roomID = ""
	r.buffer = nil
}

// activate marks roomID active with the given initial page.
func (r *roomState) activate(roomID string, page []store.Message) {
	r.phase = PhaseActive
	r.roomID = roomID
	r.buffer = page
}

// append adds a server-echoed message to the visible buffer.
func (r *roomState) append(m store.Message) {
	r.buffer = append(r.buffer, m)
}
