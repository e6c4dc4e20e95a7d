package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vovakirdan/wirechat-client/internal/store"
)

func directRoom(id, other string) store.Room {
	return store.Room{
		ID:   id,
		Kind: store.RoomKindDirect,
		Members: []store.RoomMember{
			{UserID: testSelfID, Name: testSelfName},
			{UserID: other, Name: other},
		},
	}
}

func TestUnreadDualIndexInvariant(t *testing.T) {
	u := NewUnreadIndex()
	u.InitFromRooms([]store.Room{
		directRoom("D1", "bob"),
		{ID: "G1", Kind: store.RoomKindGroup},
	}, testSelfID)

	u.IncrementForRoom("D1")
	u.IncrementForRoom("D1")
	u.IncrementForRoom("G1")

	assert.Equal(t, 2, u.UnreadForRoom("D1"))
	assert.Equal(t, 2, u.UnreadForUser("bob"))
	assert.Equal(t, 1, u.UnreadForRoom("G1"))
	// Group rooms never appear in the per-user index.
	assert.Equal(t, 0, u.UnreadForUser("G1"))

	u.ClearForRoom("D1")
	assert.Equal(t, 0, u.UnreadForRoom("D1"))
	assert.Equal(t, 0, u.UnreadForUser("bob"))
	assert.Equal(t, 1, u.UnreadForRoom("G1"))
}

func TestUnreadActiveRoomNeverAccrues(t *testing.T) {
	u := NewUnreadIndex()
	u.InitFromRooms([]store.Room{directRoom("D1", "bob")}, testSelfID)

	u.SetActiveRoom("D1")
	u.IncrementForRoom("D1")
	u.IncrementForRoom("D1")

	assert.Equal(t, 0, u.UnreadForRoom("D1"))
	assert.Equal(t, 0, u.UnreadForUser("bob"))
}

func TestUnreadSetActiveRoomClearsBothCounters(t *testing.T) {
	u := NewUnreadIndex()
	u.InitFromRooms([]store.Room{directRoom("D1", "bob")}, testSelfID)

	u.IncrementForRoom("D1")
	u.IncrementForRoom("D1")
	assert.Equal(t, 2, u.UnreadForRoom("D1"))
	assert.Equal(t, 2, u.UnreadForUser("bob"))

	u.SetActiveRoom("D1")
	assert.Equal(t, 0, u.UnreadForRoom("D1"))
	assert.Equal(t, 0, u.UnreadForUser("bob"))
}

func TestUnreadResyncKeepsOrphanedCounters(t *testing.T) {
	u := NewUnreadIndex()
	u.InitFromRooms([]store.Room{directRoom("D1", "bob")}, testSelfID)
	u.IncrementForRoom("D1")

	// D1 vanished from the snapshot; its counter is left alone.
	u.InitFromRooms([]store.Room{directRoom("D2", "carol")}, testSelfID)
	assert.Equal(t, 1, u.UnreadForRoom("D1"))

	// The stale mapping is gone, so new increments no longer touch bob.
	u.IncrementForRoom("D1")
	assert.Equal(t, 2, u.UnreadForRoom("D1"))
	assert.Equal(t, 1, u.UnreadForUser("bob"))
}

func TestUnreadReset(t *testing.T) {
	u := NewUnreadIndex()
	u.InitFromRooms([]store.Room{directRoom("D1", "bob")}, testSelfID)
	u.IncrementForRoom("D1")

	u.Reset()
	assert.Equal(t, 0, u.UnreadForRoom("D1"))
	assert.Equal(t, 0, u.UnreadForUser("bob"))
	assert.Empty(t, u.ByRoom())
}
