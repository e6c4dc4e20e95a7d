package store

import (
	"context"
	"time"
)

// RoomKind defines different types of rooms.
type RoomKind string

const (
	RoomKindBroadcast RoomKind = "broadcast"
	RoomKindProject   RoomKind = "project"
	RoomKindGroup     RoomKind = "group"
	RoomKindDirect    RoomKind = "direct"
)

// Room is the client's view of a room. The server owns the record; this is a
// read-through cache entry rebuildable from a full room-list fetch.
type Room struct {
	ID        string
	Name      string
	Kind      RoomKind
	ProjectID string // set when the room is linked to a project
	Members   []RoomMember
}

// RoomMember is one membership row of a room.
type RoomMember struct {
	UserID     string
	Name       string
	Role       string
	JoinedAt   time.Time
	LastSeenAt time.Time
}

// Message is a chat message as observed by this client.
type Message struct {
	ID        int64
	RoomID    string
	UserID    string
	UserName  string
	Content   string
	FileID    string
	CreatedAt time.Time
}

// Store caches rooms and messages locally so the UI can keep browsing while
// the connection is down.
type Store interface {
	// UpsertRooms replaces the cached room list (members included).
	UpsertRooms(ctx context.Context, rooms []Room) error
	// Rooms returns all cached rooms.
	Rooms(ctx context.Context) ([]Room, error)
	// AppendMessages writes messages through to the cache. Duplicate IDs are
	// overwritten, which keeps replays after a reconnect idempotent.
	AppendMessages(ctx context.Context, msgs []Message) error
	// RecentMessages returns up to limit most recent messages for a room in
	// ascending order.
	RecentMessages(ctx context.Context, roomID string, limit int) ([]Message, error)
	// Close releases the underlying resources.
	Close() error
}
