package proto

import (
	"encoding/json"
	"fmt"
)

// Frame is the envelope for messages the server pushes to the client.
type Frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

const (
	FrameTypeEvent = "event"
	FrameTypeError = "error"

	EventNewMessage        = "new-message"
	EventUserJoined        = "user-joined"
	EventUserLeft          = "user-left"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventOnlineUsers       = "online-users"
	EventUserOnline        = "user-online"
	EventUserOffline       = "user-offline"
	EventMention           = "mention-notification"
)

// MessageEvent is emitted when someone sends a message.
type MessageEvent struct {
	ID       int64  `json:"id"`
	Room     string `json:"room"`
	User     string `json:"user"`
	UserName string `json:"userName"`
	Content  string `json:"content"`
	FileID   string `json:"fileId,omitempty"`
	TS       int64  `json:"ts"`
}

// UserEvent is emitted when a user joins or leaves a room.
type UserEvent struct {
	Room     string `json:"room"`
	User     string `json:"user"`
	UserName string `json:"userName"`
}

// TypingEvent is emitted when a user starts or stops typing in a room.
type TypingEvent struct {
	Room     string `json:"room"`
	User     string `json:"user"`
	UserName string `json:"userName"`
}

// OnlineUsersEvent is the full presence snapshot.
type OnlineUsersEvent struct {
	Users []string `json:"users"`
}

// PresenceEvent is an incremental presence delta.
type PresenceEvent struct {
	User string `json:"user"`
}

// MentionEvent is delivered out-of-band when the actor is addressed in a message.
type MentionEvent struct {
	Room      string `json:"room"`
	MessageID int64  `json:"messageId"`
	From      string `json:"from"`
	Content   string `json:"content"`
	RoomName  string `json:"roomName,omitempty"`
}

// Error describes a protocol-level error pushed by the server.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// EventKind discriminates decoded server events.
type EventKind int

const (
	KindNewMessage EventKind = iota
	KindUserJoined
	KindUserLeft
	KindUserTyping
	KindUserStoppedTyping
	KindOnlineUsers
	KindUserOnline
	KindUserOffline
	KindMention
	KindError
)

// ServerEvent is a decoded frame; exactly one payload field is non-nil,
// matching Kind.
type ServerEvent struct {
	Kind     EventKind
	Message  *MessageEvent
	User     *UserEvent
	Typing   *TypingEvent
	Online   *OnlineUsersEvent
	Presence *PresenceEvent
	Mention  *MentionEvent
	Err      *Error
}

// DecodeFrame maps a wire frame to a typed server event.
func DecodeFrame(f Frame) (*ServerEvent, error) {
	if f.Type == FrameTypeError {
		if f.Error == nil {
			return nil, fmt.Errorf("error frame without error body")
		}
		return &ServerEvent{Kind: KindError, Err: f.Error}, nil
	}
	if f.Type != FrameTypeEvent {
		return nil, fmt.Errorf("unknown frame type %q", f.Type)
	}

	switch f.Event {
	case EventNewMessage:
		var ev MessageEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return &ServerEvent{Kind: KindNewMessage, Message: &ev}, nil
	case EventUserJoined, EventUserLeft:
		var ev UserEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		kind := KindUserJoined
		if f.Event == EventUserLeft {
			kind = KindUserLeft
		}
		return &ServerEvent{Kind: kind, User: &ev}, nil
	case EventUserTyping, EventUserStoppedTyping:
		var ev TypingEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		kind := KindUserTyping
		if f.Event == EventUserStoppedTyping {
			kind = KindUserStoppedTyping
		}
		return &ServerEvent{Kind: kind, Typing: &ev}, nil
	case EventOnlineUsers:
		var ev OnlineUsersEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return &ServerEvent{Kind: KindOnlineUsers, Online: &ev}, nil
	case EventUserOnline, EventUserOffline:
		var ev PresenceEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		kind := KindUserOnline
		if f.Event == EventUserOffline {
			kind = KindUserOffline
		}
		return &ServerEvent{Kind: kind, Presence: &ev}, nil
	case EventMention:
		var ev MentionEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return &ServerEvent{Kind: KindMention, Mention: &ev}, nil
	default:
		return nil, fmt.Errorf("unknown event %q", f.Event)
	}
}
