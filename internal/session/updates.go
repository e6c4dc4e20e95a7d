package session

import (
	"github.com/vovakirdan/wirechat-client/internal/conn"
	"github.com/vovakirdan/wirechat-client/internal/notify"
	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

// UpdateKind discriminates UI-facing change notifications.
type UpdateKind int

const (
	// UpdateConnState reports a connection state transition.
	UpdateConnState UpdateKind = iota
	// UpdateRooms delivers a fresh room-list snapshot.
	UpdateRooms
	// UpdateRoomActive reports that a room became (or stopped being) active.
	UpdateRoomActive
	// UpdateHistory delivers the initial message page of an activated room.
	UpdateHistory
	// UpdateMessage appends one message to the active room's view.
	UpdateMessage
	// UpdateUserJoined reports a user joining the active room.
	UpdateUserJoined
	// UpdateUserLeft reports a user leaving the active room.
	UpdateUserLeft
	// UpdateUnread reports changed unread counters.
	UpdateUnread
	// UpdatePresence reports a changed online set.
	UpdatePresence
	// UpdateTyping reports the active room's typing names.
	UpdateTyping
	// UpdateMention surfaces a transient mention notification.
	UpdateMention
	// UpdateError surfaces a server-pushed error.
	UpdateError
)

// Update is sent to UI consumers; fields are set according to Kind.
type Update struct {
	Kind      UpdateKind
	ConnState conn.State
	Rooms     []store.Room
	RoomID    string
	UserName  string
	Messages  []store.Message
	Message   *store.Message
	Unread    map[string]int
	Online    []string
	Typing    []string
	Notice    *notify.Notification
	Err       *proto.Error
}
