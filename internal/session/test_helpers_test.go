package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/conn"
	"github.com/vovakirdan/wirechat-client/internal/log"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// fakeWire records outbound intents and lets tests feed events and state
// transitions into the loop.
type fakeWire struct {
	mu      sync.Mutex
	sent    []proto.Intent
	offline bool

	events chan *proto.ServerEvent
	states chan conn.State
}

func newFakeWire() *fakeWire {
	return &fakeWire{
		events: make(chan *proto.ServerEvent, 32),
		states: make(chan conn.State, 8),
	}
}

func (w *fakeWire) Send(_ context.Context, intent proto.Intent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.offline {
		return conn.ErrNotConnected
	}
	w.sent = append(w.sent, intent)
	return nil
}

func (w *fakeWire) Events() <-chan *proto.ServerEvent { return w.events }
func (w *fakeWire) States() <-chan conn.State         { return w.states }

func (w *fakeWire) setOffline(offline bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.offline = offline
}

// countIntents returns how many recorded intents have the given type.
func (w *fakeWire) countIntents(typ string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, i := range w.sent {
		if i.Type == typ {
			n++
		}
	}
	return n
}

// waitIntent polls until an intent of the given type has been recorded.
func (w *fakeWire) waitIntent(t *testing.T, typ string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.countIntents(typ) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("intent %s not sent", typ)
}

const (
	testSelfID   = "u1"
	testSelfName = "alice"
)

func startSession(t *testing.T, opts Options) (*Session, *fakeWire) {
	t.Helper()

	wire := newFakeWire()
	logger := log.New("error")
	s := New(testSelfID, testSelfName, wire, nil, nil, opts, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, wire
}

// mustUpdate consumes updates until one of the wanted kind arrives.
func mustUpdate(t *testing.T, ch <-chan Update, kind UpdateKind) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-ch:
			if u.Kind == kind {
				return u
			}
		case <-deadline:
			t.Fatalf("update kind %d not received", kind)
		}
	}
}

// joinAndActivate drives a full join handshake for roomID.
func joinAndActivate(t *testing.T, s *Session, wire *fakeWire, roomID string) {
	t.Helper()
	if err := s.Join(context.Background(), roomID); err != nil {
		t.Fatalf("join: %v", err)
	}
	wire.events <- &proto.ServerEvent{
		Kind: proto.KindUserJoined,
		User: &proto.UserEvent{Room: roomID, User: testSelfID, UserName: testSelfName},
	}
	u := mustUpdate(t, s.Updates(), UpdateRoomActive)
	if u.RoomID != roomID {
		t.Fatalf("expected %s active, got %q", roomID, u.RoomID)
	}
}
