package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/conn"
	"github.com/vovakirdan/wirechat-client/internal/notify"
	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

var (
	// ErrEmptyMessage rejects a send whose trimmed content and attachment
	// are both absent. Never reaches the wire.
	ErrEmptyMessage = errors.New("empty message")
	// ErrNoActiveRoom rejects a send while no room is active.
	ErrNoActiveRoom = errors.New("no active room")
	// ErrSessionClosed is returned when the session loop has stopped.
	ErrSessionClosed = errors.New("session closed")
)

// Wire is the session's view of the connection manager.
type Wire interface {
	Send(ctx context.Context, intent proto.Intent) error
	Events() <-chan *proto.ServerEvent
	States() <-chan conn.State
}

// History is the cold-start data source: the REST API behind the live
// connection, never a substitute for it.
type History interface {
	ListRooms(ctx context.Context) ([]store.Room, error)
	Messages(ctx context.Context, roomID string, beforeID int64, limit int) ([]store.Message, error)
}

// Options tune the session's timers and surfaces.
type Options struct {
	TypingIdle      time.Duration // silence window before typing-stop
	TypingTTL       time.Duration // expiry of a remote typing entry
	MarkReadDwell   time.Duration // dwell on an activated room before mark-read
	HistoryPageSize int
	PreviewRunes    int
	Chime           notify.Chime
}

func (o *Options) fillDefaults() {
	if o.TypingIdle == 0 {
		o.TypingIdle = 2 * time.Second
	}
	if o.TypingTTL == 0 {
		o.TypingTTL = 5 * time.Second
	}
	if o.MarkReadDwell == 0 {
		o.MarkReadDwell = time.Second
	}
	if o.HistoryPageSize == 0 {
		o.HistoryPageSize = 50
	}
	if o.PreviewRunes == 0 {
		o.PreviewRunes = 80
	}
}

type cmdKind int

const (
	cmdJoin cmdKind = iota
	cmdLeave
	cmdSend
	cmdEdit
	cmdTimer
)

type command struct {
	kind    cmdKind
	room    string
	content string
	fileID  string
	key     timerKey
	gen     uint64
	reply   chan error
}

// Session is the single-writer actor owning the room state machine, the
// unread index, the presence set and the typing coordinator. All mutation
// happens on the Run loop; local intents are serialized onto the same queue
// as inbound events.
type Session struct {
	selfID   string
	selfName string
	wire     Wire
	history  History
	cache    store.Store
	log      *zerolog.Logger
	opts     Options

	cmds    chan command
	updates chan Update
	done    chan struct{}

	// loop-owned state
	ctx         context.Context
	room        roomState
	unread      *UnreadIndex
	presence    *PresenceSet
	typing      *TypingCoordinator
	rooms       map[string]store.Room
	timers      *timerSet
	dispatcher  *notify.Dispatcher
	localTyping bool
}

// New constructs a session for the given actor. cache and history may be nil
// (the session then works purely from live events).
func New(selfID, selfName string, wire Wire, history History, cache store.Store, opts Options, logger *zerolog.Logger) *Session {
	opts.fillDefaults()

	s := &Session{
		selfID:   selfID,
		selfName: selfName,
		wire:     wire,
		history:  history,
		cache:    cache,
		log:      logger,
		opts:     opts,
		cmds:     make(chan command, 32),
		updates:  make(chan Update, 64),
		done:     make(chan struct{}),
		unread:   NewUnreadIndex(),
		presence: NewPresenceSet(),
		typing:   NewTypingCoordinator(selfID),
		rooms:    make(map[string]store.Room),
	}
	s.timers = newTimerSet(s.postTimer)
	s.dispatcher = notify.NewDispatcher(opts.PreviewRunes, opts.Chime, logger)
	return s
}

// Updates returns the UI-facing change stream. Slow consumers drop updates
// rather than block the loop.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// Join activates roomID, implicitly leaving any other room first. The room
// becomes active only on server acknowledgment.
func (s *Session) Join(ctx context.Context, roomID string) error {
	return s.do(ctx, command{kind: cmdJoin, room: roomID})
}

// Leave leaves the active room. Safe to call when no room is active.
func (s *Session) Leave(ctx context.Context) error {
	return s.do(ctx, command{kind: cmdLeave})
}

// SendMessage sends to the active room. There is no optimistic append; the
// buffer grows when the server echoes the message back.
func (s *Session) SendMessage(ctx context.Context, content, fileID string) error {
	if strings.TrimSpace(content) == "" && fileID == "" {
		return ErrEmptyMessage
	}
	return s.do(ctx, command{kind: cmdSend, content: content, fileID: fileID})
}

// TypingEdit reports a local content edit; it emits typing-start and arms
// the silence timer that eventually emits typing-stop.
func (s *Session) TypingEdit(ctx context.Context) error {
	return s.do(ctx, command{kind: cmdEdit})
}

func (s *Session) do(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) postTimer(key timerKey, gen uint64) {
	select {
	case s.cmds <- command{kind: cmdTimer, key: key, gen: gen}:
	case <-s.done:
	}
}

// Run processes events, local intents and timer fires until ctx is
// cancelled or the connection manager terminates. Each input is fully
// applied before the next is taken.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	defer s.teardown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st := <-s.wire.States():
			s.handleState(st)
		case ev, ok := <-s.wire.Events():
			if !ok {
				// The manager only terminates on auth rejection or shutdown;
				// either way the session is over.
				return ErrSessionClosed
			}
			s.handleEvent(ev)
		case cmd := <-s.cmds:
			s.handleCommand(cmd)
		}
	}
}

// teardown is the logout path: every timer cancelled, all four stores
// cleared. Transient disconnects never come through here.
func (s *Session) teardown() {
	close(s.done)
	s.timers.cancelAll()
	s.unread.Reset()
	s.presence.Reset()
	s.typing.Reset()
	s.room.reset()
	s.localTyping = false
}

func (s *Session) handleState(st conn.State) {
	s.emit(Update{Kind: UpdateConnState, ConnState: st})

	switch st {
	case conn.StateConnected:
		s.coldStart()
		// Server-side membership did not survive the drop; rejoin what the
		// user considers active.
		switch s.room.phase {
		case PhaseActive, PhaseJoining:
			roomID := s.room.roomID
			s.room.phase = PhaseJoining
			if err := s.wire.Send(s.ctx, proto.JoinRoom(roomID)); err != nil {
				s.log.Warn().Err(err).Str("room", roomID).Msg("rejoin failed")
			}
		case PhaseLeaving:
			s.room.reset()
		}
	case conn.StateDisconnected:
		// Caches and counters are preserved unchanged while disconnected.
		if s.room.phase == PhaseLeaving {
			s.room.reset()
		}
	}
}

// coldStart refetches the room list, preferring the API and falling back to
// the local cache. Unread counters are kept; only the direct-room mapping is
// rebuilt.
func (s *Session) coldStart() {
	var (
		rooms []store.Room
		err   error
	)
	if s.history != nil {
		rooms, err = s.history.ListRooms(s.ctx)
	}
	if (err != nil || s.history == nil) && s.cache != nil {
		if err != nil {
			s.log.Warn().Err(err).Msg("room list fetch failed, using cache")
		}
		rooms, err = s.cache.Rooms(s.ctx)
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("cold start without room list")
		return
	}

	s.rooms = make(map[string]store.Room, len(rooms))
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
	s.unread.InitFromRooms(rooms, s.selfID)

	if s.cache != nil {
		if err := s.cache.UpsertRooms(s.ctx, rooms); err != nil {
			s.log.Warn().Err(err).Msg("room cache write failed")
		}
	}
	s.emit(Update{Kind: UpdateRooms, Rooms: rooms})
}

func (s *Session) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdJoin:
		cmd.reply <- s.join(cmd.room)
	case cmdLeave:
		cmd.reply <- s.leave()
	case cmdSend:
		cmd.reply <- s.send(cmd.content, cmd.fileID)
	case cmdEdit:
		cmd.reply <- s.edit()
	case cmdTimer:
		s.handleTimer(cmd.key, cmd.gen)
	}
}

func (s *Session) join(roomID string) error {
	switch s.room.phase {
	case PhaseActive, PhaseJoining:
		if s.room.roomID == roomID {
			return nil // already there (or on the way); idempotent
		}
		if s.room.phase == PhaseActive {
			s.leaveLocal(s.room.roomID, true)
		}
	}

	if err := s.wire.Send(s.ctx, proto.JoinRoom(roomID)); err != nil {
		s.room.reset()
		return err
	}
	s.room.phase = PhaseJoining
	s.room.roomID = roomID
	s.room.buffer = nil
	return nil
}

func (s *Session) leave() error {
	if s.room.phase == PhaseIdle {
		return nil
	}
	roomID := s.room.roomID
	s.leaveLocal(roomID, true)
	s.room.phase = PhaseLeaving
	s.room.roomID = roomID
	s.emit(Update{Kind: UpdateRoomActive, RoomID: ""})
	return nil
}

// leaveLocal sends the leave intent (when asked) and clears every piece of
// local state tied to roomID: pending timers, typing entries, the buffer and
// the active-room pointer.
func (s *Session) leaveLocal(roomID string, sendIntent bool) {
	if sendIntent {
		if err := s.wire.Send(s.ctx, proto.LeaveRoom(roomID)); err != nil && !errors.Is(err, conn.ErrNotConnected) {
			s.log.Warn().Err(err).Str("room", roomID).Msg("leave intent failed")
		}
	}
	s.timers.cancelRoom(roomID)
	s.typing.ClearRoom(roomID)
	s.localTyping = false
	s.room.reset()
	s.unread.SetActiveRoom("")
}

func (s *Session) send(content, fileID string) error {
	if s.room.phase != PhaseActive {
		return ErrNoActiveRoom
	}
	roomID := s.room.roomID

	if err := s.wire.Send(s.ctx, proto.SendMessage(roomID, content, fileID)); err != nil {
		return err
	}

	// Sending also stops typing immediately.
	s.timers.cancel(timerKey{kind: timerTypingSilence, room: roomID})
	if s.localTyping {
		s.localTyping = false
		if err := s.wire.Send(s.ctx, proto.TypingStop(roomID)); err != nil {
			s.log.Debug().Err(err).Msg("typing-stop failed")
		}
	}
	return nil
}

func (s *Session) edit() error {
	if s.room.phase != PhaseActive {
		return nil
	}
	roomID := s.room.roomID
	if err := s.wire.Send(s.ctx, proto.TypingStart(roomID)); err != nil {
		return err
	}
	s.localTyping = true
	s.timers.arm(timerKey{kind: timerTypingSilence, room: roomID}, s.opts.TypingIdle)
	return nil
}

func (s *Session) handleTimer(key timerKey, gen uint64) {
	if !s.timers.current(key, gen) {
		return // cancelled or rescheduled since this fire was queued
	}
	s.timers.fired(key)

	switch key.kind {
	case timerTypingSilence:
		if s.localTyping && s.room.activeRoom() == key.room {
			s.localTyping = false
			if err := s.wire.Send(s.ctx, proto.TypingStop(key.room)); err != nil {
				s.log.Debug().Err(err).Msg("typing-stop failed")
			}
		}
	case timerMarkRead:
		if s.room.activeRoom() == key.room {
			if err := s.wire.Send(s.ctx, proto.MarkRead(key.room)); err != nil {
				s.log.Debug().Err(err).Msg("mark-read failed")
			}
		}
	case timerTypingExpire:
		if s.typing.Stop(key.room, key.user) && key.room == s.room.activeRoom() {
			s.emit(Update{Kind: UpdateTyping, RoomID: key.room, Typing: s.typing.Names(key.room)})
		}
	}
}

func (s *Session) handleEvent(ev *proto.ServerEvent) {
	switch ev.Kind {
	case proto.KindNewMessage:
		s.handleMessage(ev.Message)
	case proto.KindUserJoined:
		s.handleUserJoined(ev.User)
	case proto.KindUserLeft:
		s.handleUserLeft(ev.User)
	case proto.KindUserTyping:
		s.handleTyping(ev.Typing, true)
	case proto.KindUserStoppedTyping:
		s.handleTyping(ev.Typing, false)
	case proto.KindOnlineUsers:
		s.presence.ReplaceAll(ev.Online.Users)
		s.emit(Update{Kind: UpdatePresence, Online: s.presence.Online()})
	case proto.KindUserOnline:
		s.presence.Add(ev.Presence.User)
		s.emit(Update{Kind: UpdatePresence, Online: s.presence.Online()})
	case proto.KindUserOffline:
		s.presence.Remove(ev.Presence.User)
		s.emit(Update{Kind: UpdatePresence, Online: s.presence.Online()})
	case proto.KindMention:
		n := s.dispatcher.Dispatch(ev.Mention)
		s.emit(Update{Kind: UpdateMention, Notice: &n})
	case proto.KindError:
		s.log.Warn().Str("code", ev.Err.Code).Str("msg", ev.Err.Msg).Msg("server error")
		s.emit(Update{Kind: UpdateError, Err: ev.Err})
	}
}

// handleMessage routes a push by comparing against the active room at the
// moment it is processed, not when the sender queued it. Rapid room switches
// must not leak messages into the wrong buffer.
func (s *Session) handleMessage(ev *proto.MessageEvent) {
	m := store.Message{
		ID:        ev.ID,
		RoomID:    ev.Room,
		UserID:    ev.User,
		UserName:  ev.UserName,
		Content:   ev.Content,
		FileID:    ev.FileID,
		CreatedAt: time.UnixMilli(ev.TS),
	}
	if s.cache != nil {
		if err := s.cache.AppendMessages(s.ctx, []store.Message{m}); err != nil {
			s.log.Warn().Err(err).Msg("message cache write failed")
		}
	}

	if s.room.activeRoom() == m.RoomID {
		s.room.append(m)
		s.emit(Update{Kind: UpdateMessage, RoomID: m.RoomID, Message: &m})
		return
	}
	s.unread.IncrementForRoom(m.RoomID)
	s.emit(Update{Kind: UpdateUnread, Unread: s.unread.ByRoom()})
}

func (s *Session) handleUserJoined(ev *proto.UserEvent) {
	if ev.User == s.selfID {
		s.handleJoinAck(ev.Room)
		return
	}
	if s.room.activeRoom() == ev.Room {
		s.emit(Update{Kind: UpdateUserJoined, RoomID: ev.Room, UserName: ev.UserName})
	}
}

// handleJoinAck completes a pending join: the room becomes active, its
// counters are cleared atomically with activation, and the initial history
// page is loaded before anything else is processed.
func (s *Session) handleJoinAck(roomID string) {
	if s.room.phase != PhaseJoining || s.room.roomID != roomID {
		// Stale acknowledgment: the user switched away before the server
		// answered. Undo the server-side join.
		if err := s.wire.Send(s.ctx, proto.LeaveRoom(roomID)); err != nil && !errors.Is(err, conn.ErrNotConnected) {
			s.log.Warn().Err(err).Str("room", roomID).Msg("stale join cleanup failed")
		}
		return
	}

	page := s.loadHistory(roomID)
	s.room.activate(roomID, page)
	s.unread.SetActiveRoom(roomID)
	s.timers.arm(timerKey{kind: timerMarkRead, room: roomID}, s.opts.MarkReadDwell)

	s.emit(Update{Kind: UpdateRoomActive, RoomID: roomID})
	s.emit(Update{Kind: UpdateHistory, RoomID: roomID, Messages: page})
	s.emit(Update{Kind: UpdateUnread, Unread: s.unread.ByRoom()})
}

func (s *Session) loadHistory(roomID string) []store.Message {
	if s.history != nil {
		page, err := s.history.Messages(s.ctx, roomID, 0, s.opts.HistoryPageSize)
		if err == nil {
			if s.cache != nil {
				if cerr := s.cache.AppendMessages(s.ctx, page); cerr != nil {
					s.log.Warn().Err(cerr).Msg("history cache write failed")
				}
			}
			return page
		}
		s.log.Warn().Err(err).Str("room", roomID).Msg("history fetch failed, using cache")
	}
	if s.cache != nil {
		page, err := s.cache.RecentMessages(s.ctx, roomID, s.opts.HistoryPageSize)
		if err != nil {
			s.log.Warn().Err(err).Str("room", roomID).Msg("history cache read failed")
			return nil
		}
		return page
	}
	return nil
}

func (s *Session) handleUserLeft(ev *proto.UserEvent) {
	if ev.User == s.selfID {
		switch {
		case s.room.phase == PhaseLeaving && s.room.roomID == ev.Room:
			s.room.reset()
		case s.room.activeRoom() == ev.Room:
			// Removed by the server while viewing; drop to idle.
			s.leaveLocal(ev.Room, false)
			s.emit(Update{Kind: UpdateRoomActive, RoomID: ""})
		}
		return
	}

	// A user leaving the room also stops typing in it.
	changed := s.typing.Stop(ev.Room, ev.User)
	s.timers.cancel(timerKey{kind: timerTypingExpire, room: ev.Room, user: ev.User})
	if s.room.activeRoom() == ev.Room {
		s.emit(Update{Kind: UpdateUserLeft, RoomID: ev.Room, UserName: ev.UserName})
		if changed {
			s.emit(Update{Kind: UpdateTyping, RoomID: ev.Room, Typing: s.typing.Names(ev.Room)})
		}
	}
}

func (s *Session) handleTyping(ev *proto.TypingEvent, start bool) {
	var changed bool
	if start {
		changed = s.typing.Start(ev.Room, ev.User, ev.UserName)
		if ev.User != s.selfID {
			s.timers.arm(timerKey{kind: timerTypingExpire, room: ev.Room, user: ev.User}, s.opts.TypingTTL)
		}
	} else {
		changed = s.typing.Stop(ev.Room, ev.User)
		s.timers.cancel(timerKey{kind: timerTypingExpire, room: ev.Room, user: ev.User})
	}
	if changed && s.room.activeRoom() == ev.Room {
		s.emit(Update{Kind: UpdateTyping, RoomID: ev.Room, Typing: s.typing.Names(ev.Room)})
	}
}

func (s *Session) emit(u Update) {
	select {
	case s.updates <- u:
	default:
		// Drop if slow consumer.
	}
}
