package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-client/internal/conn"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

func msgEvent(room, user, name, content string, id int64) *proto.ServerEvent {
	return &proto.ServerEvent{
		Kind: proto.KindNewMessage,
		Message: &proto.MessageEvent{
			ID: id, Room: room, User: user, UserName: name,
			Content: content, TS: time.Now().UnixMilli(),
		},
	}
}

func TestJoinActivatesOnAckAndClearsUnread(t *testing.T) {
	s, wire := startSession(t, Options{})

	// Unread accrues while nothing is active.
	wire.events <- msgEvent("r1", "u2", "bob", "hi", 1)
	u := mustUpdate(t, s.Updates(), UpdateUnread)
	assert.Equal(t, 1, u.Unread["r1"])

	joinAndActivate(t, s, wire, "r1")
	wire.waitIntent(t, proto.IntentJoinRoom)

	u = mustUpdate(t, s.Updates(), UpdateUnread)
	assert.Zero(t, u.Unread["r1"], "activation clears the room's counter")
}

func TestJoinIsIdempotent(t *testing.T) {
	s, wire := startSession(t, Options{})
	joinAndActivate(t, s, wire, "r1")

	require.NoError(t, s.Join(context.Background(), "r1"))
	assert.Equal(t, 1, wire.countIntents(proto.IntentJoinRoom), "second join of the active room sends nothing")
	assert.Equal(t, 0, wire.countIntents(proto.IntentLeaveRoom))
}

func TestJoinExclusivityLeavesFirst(t *testing.T) {
	s, wire := startSession(t, Options{})
	joinAndActivate(t, s, wire, "a")

	require.NoError(t, s.Join(context.Background(), "b"))
	wire.waitIntent(t, proto.IntentLeaveRoom)
	assert.Equal(t, 2, wire.countIntents(proto.IntentJoinRoom))

	// Only b is active once its ack arrives.
	wire.events <- &proto.ServerEvent{
		Kind: proto.KindUserJoined,
		User: &proto.UserEvent{Room: "b", User: testSelfID, UserName: testSelfName},
	}
	u := mustUpdate(t, s.Updates(), UpdateRoomActive)
	assert.Equal(t, "b", u.RoomID)
}

func TestLeaveIsIdempotent(t *testing.T) {
	s, wire := startSession(t, Options{})
	joinAndActivate(t, s, wire, "r1")

	require.NoError(t, s.Leave(context.Background()))
	require.NoError(t, s.Leave(context.Background()))
	assert.Equal(t, 1, wire.countIntents(proto.IntentLeaveRoom))
}

func TestPushAfterSwitchRoutesToUnread(t *testing.T) {
	s, wire := startSession(t, Options{})
	joinAndActivate(t, s, wire, "a")

	// Switch away; a push for the old room processed after the switch must
	// not land in any buffer.
	require.NoError(t, s.Join(context.Background(), "b"))
	wire.events <- &proto.ServerEvent{
		Kind: proto.KindUserJoined,
		User: &proto.UserEvent{Room: "b", User: testSelfID, UserName: testSelfName},
	}
	mustUpdate(t, s.Updates(), UpdateRoomActive)

	wire.events <- msgEvent("a", "u2", "bob", "stale push", 7)
	u := mustUpdate(t, s.Updates(), UpdateUnread)
	assert.Equal(t, 1, u.Unread["a"])
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	s, wire := startSession(t, Options{})
	joinAndActivate(t, s, wire, "r1")

	err := s.SendMessage(context.Background(), "   ", "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, 0, wire.countIntents(proto.IntentSendMessage), "nothing reaches the wire")
}

func TestSendMessageRequiresActiveRoom(t *testing.T) {
	s, wire := startSession(t, Options{})

	err := s.SendMessage(context.Background(), "hello", "")
	assert.ErrorIs(t, err, ErrNoActiveRoom)
	assert.Equal(t, 0, wire.countIntents(proto.IntentSendMessage))
}

func TestSendMessageNoOptimisticAppend(t *testing.T) {
	s, wire := startSession(t, Options{})
	joinAndActivate(t, s, wire, "r1")

	require.NoError(t, s.SendMessage(context.Background(), "hello", ""))
	wire.waitIntent(t, proto.IntentSendMessage)

	// Only the server echo appends.
	wire.events <- msgEvent("r1", testSelfID, testSelfName, "hello", 42)
	u := mustUpdate(t, s.Updates(), UpdateMessage)
	assert.Equal(t, int64(42), u.Message.ID)
	assert.Equal(t, "hello", u.Message.Content)
}

func TestAttachmentOnlyMessageIsAllowed(t *testing.T) {
	s, wire := startSession(t, Options{})
	joinAndActivate(t, s, wire, "r1")

	require.NoError(t, s.SendMessage(context.Background(), "", "file-9"))
	wire.waitIntent(t, proto.IntentSendMessage)
}

func TestTypingStopEmittedExactlyOnceAfterSilence(t *testing.T) {
	s, wire := startSession(t, Options{TypingIdle: 30 * time.Millisecond})
	joinAndActivate(t, s, wire, "r1")

	require.NoError(t, s.TypingEdit(context.Background()))
	require.NoError(t, s.TypingEdit(context.Background()))

	wire.waitIntent(t, proto.IntentTypingStop)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, wire.countIntents(proto.IntentTypingStop))
	assert.Equal(t, 2, wire.countIntents(proto.IntentTypingStart))
}

func TestSendCancelsSilenceTimer(t *testing.T) {
	s, wire := startSession(t, Options{TypingIdle: 40 * time.Millisecond})
	joinAndActivate(t, s, wire, "r1")

	require.NoError(t, s.TypingEdit(context.Background()))
	require.NoError(t, s.SendMessage(context.Background(), "done", ""))

	wire.waitIntent(t, proto.IntentTypingStop)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, wire.countIntents(proto.IntentTypingStop), "silence timer must not fire a second stop")
}

func TestRemoteTypingExpiresAfterTTL(t *testing.T) {
	s, wire := startSession(t, Options{TypingTTL: 30 * time.Millisecond})
	joinAndActivate(t, s, wire, "r1")

	wire.events <- &proto.ServerEvent{
		Kind:   proto.KindUserTyping,
		Typing: &proto.TypingEvent{Room: "r1", User: "u2", UserName: "bob"},
	}
	u := mustUpdate(t, s.Updates(), UpdateTyping)
	assert.Equal(t, []string{"bob"}, u.Typing)

	// No stop event arrives; the entry must expire on its own.
	u = mustUpdate(t, s.Updates(), UpdateTyping)
	assert.Empty(t, u.Typing)
}

func TestMarkReadSentAfterDwell(t *testing.T) {
	s, wire := startSession(t, Options{MarkReadDwell: 20 * time.Millisecond})
	joinAndActivate(t, s, wire, "r1")

	wire.waitIntent(t, proto.IntentMarkRead)
}

func TestLeaveCancelsMarkReadTimer(t *testing.T) {
	s, wire := startSession(t, Options{MarkReadDwell: 60 * time.Millisecond})
	joinAndActivate(t, s, wire, "r1")

	require.NoError(t, s.Leave(context.Background()))
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 0, wire.countIntents(proto.IntentMarkRead))
}

func TestPresenceSnapshotAndDeltaThroughLoop(t *testing.T) {
	s, wire := startSession(t, Options{})

	wire.events <- &proto.ServerEvent{
		Kind:   proto.KindOnlineUsers,
		Online: &proto.OnlineUsersEvent{Users: []string{"u1", "u2"}},
	}
	u := mustUpdate(t, s.Updates(), UpdatePresence)
	assert.Equal(t, []string{"u1", "u2"}, u.Online)

	wire.events <- &proto.ServerEvent{
		Kind:     proto.KindUserOffline,
		Presence: &proto.PresenceEvent{User: "u1"},
	}
	u = mustUpdate(t, s.Updates(), UpdatePresence)
	assert.Equal(t, []string{"u2"}, u.Online)
}

func TestCountersSurviveReconnect(t *testing.T) {
	s, wire := startSession(t, Options{})

	for i := int64(1); i <= 3; i++ {
		wire.events <- msgEvent("r1", "u2", "bob", "msg", i)
	}
	var u Update
	for i := 0; i < 3; i++ {
		u = mustUpdate(t, s.Updates(), UpdateUnread)
	}
	assert.Equal(t, 3, u.Unread["r1"])

	wire.states <- conn.StateDisconnected
	wire.states <- conn.StateConnected

	// Counters are retained across the transient drop.
	wire.events <- msgEvent("r1", "u2", "bob", "after reconnect", 4)
	u = mustUpdate(t, s.Updates(), UpdateUnread)
	assert.Equal(t, 4, u.Unread["r1"])
}

func TestReconnectRejoinsActiveRoom(t *testing.T) {
	s, wire := startSession(t, Options{})
	joinAndActivate(t, s, wire, "r1")

	wire.states <- conn.StateDisconnected
	wire.states <- conn.StateConnected

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && wire.countIntents(proto.IntentJoinRoom) < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 2, wire.countIntents(proto.IntentJoinRoom), "active room is rejoined after reconnect")
}

func TestStaleJoinAckIsUndone(t *testing.T) {
	s, wire := startSession(t, Options{})

	require.NoError(t, s.Join(context.Background(), "a"))
	require.NoError(t, s.Join(context.Background(), "b"))

	// The superseded ack for a arrives late; the session undoes it.
	wire.events <- &proto.ServerEvent{
		Kind: proto.KindUserJoined,
		User: &proto.UserEvent{Room: "a", User: testSelfID, UserName: testSelfName},
	}
	wire.waitIntent(t, proto.IntentLeaveRoom)

	wire.events <- &proto.ServerEvent{
		Kind: proto.KindUserJoined,
		User: &proto.UserEvent{Room: "b", User: testSelfID, UserName: testSelfName},
	}
	u := mustUpdate(t, s.Updates(), UpdateRoomActive)
	assert.Equal(t, "b", u.RoomID)
}

func TestMentionSurfacesTruncatedPreview(t *testing.T) {
	s, wire := startSession(t, Options{PreviewRunes: 10})

	wire.events <- &proto.ServerEvent{
		Kind: proto.KindMention,
		Mention: &proto.MentionEvent{
			Room: "r1", MessageID: 5, From: "bob",
			Content: "a rather long mention body", RoomName: "general",
		},
	}
	u := mustUpdate(t, s.Updates(), UpdateMention)
	require.NotNil(t, u.Notice)
	assert.Equal(t, "bob", u.Notice.From)
	assert.Equal(t, "a rather l…", u.Notice.Preview)
	assert.Equal(t, "general", u.Notice.RoomName)
}

func TestServerErrorSurfacedNotFatal(t *testing.T) {
	s, wire := startSession(t, Options{})

	wire.events <- &proto.ServerEvent{
		Kind: proto.KindError,
		Err:  &proto.Error{Code: "bad_request", Msg: "nope"},
	}
	u := mustUpdate(t, s.Updates(), UpdateError)
	assert.Equal(t, "bad_request", u.Err.Code)

	// Loop is still alive.
	wire.events <- msgEvent("r1", "u2", "bob", "still here", 9)
	mustUpdate(t, s.Updates(), UpdateUnread)
}

func TestSendWhileDisconnectedFailsFast(t *testing.T) {
	s, wire := startSession(t, Options{})
	joinAndActivate(t, s, wire, "r1")

	wire.setOffline(true)
	err := s.SendMessage(context.Background(), "hello", "")
	assert.Error(t, err)
}
