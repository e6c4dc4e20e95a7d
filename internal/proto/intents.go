package proto

import (
	"encoding/json"
	"fmt"
)

// Intent is the envelope for messages the client sends to the server.
type Intent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	IntentJoinRoom       = "join-room"
	IntentLeaveRoom      = "leave-room"
	IntentSendMessage    = "send-message"
	IntentTypingStart    = "typing-start"
	IntentTypingStop     = "typing-stop"
	IntentMarkRead       = "mark-read"
	IntentGetOnlineUsers = "get-online-users"
)

// RoomData addresses an intent at a single room.
type RoomData struct {
	Room string `json:"room"`
}

// SendMessageData is a chat message from the client. FileID references a
// previously uploaded attachment; content may be empty when it is set.
type SendMessageData struct {
	Room    string `json:"room"`
	Content string `json:"content"`
	FileID  string `json:"fileId,omitempty"`
}

// NewIntent marshals payload into an intent envelope.
func NewIntent(typ string, payload any) (Intent, error) {
	if payload == nil {
		return Intent{Type: typ}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Intent{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Intent{Type: typ, Data: data}, nil
}

// JoinRoom builds a join-room intent.
func JoinRoom(room string) Intent {
	i, _ := NewIntent(IntentJoinRoom, RoomData{Room: room})
	return i
}

// LeaveRoom builds a leave-room intent.
func LeaveRoom(room string) Intent {
	i, _ := NewIntent(IntentLeaveRoom, RoomData{Room: room})
	return i
}

// SendMessage builds a send-message intent.
func SendMessage(room, content, fileID string) Intent {
	i, _ := NewIntent(IntentSendMessage, SendMessageData{Room: room, Content: content, FileID: fileID})
	return i
}

// TypingStart builds a typing-start intent.
func TypingStart(room string) Intent {
	i, _ := NewIntent(IntentTypingStart, RoomData{Room: room})
	return i
}

// TypingStop builds a typing-stop intent.
func TypingStop(room string) Intent {
	i, _ := NewIntent(IntentTypingStop, RoomData{Room: room})
	return i
}

// MarkRead builds a mark-read intent.
func MarkRead(room string) Intent {
	i, _ := NewIntent(IntentMarkRead, RoomData{Room: room})
	return i
}

// GetOnlineUsers builds a presence snapshot request.
func GetOnlineUsers() Intent {
	return Intent{Type: IntentGetOnlineUsers}
}
