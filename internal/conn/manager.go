package conn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// ErrNotConnected is returned by Send while no connection is live. Callers
// must not block or silently drop; they see this immediately.
var ErrNotConnected = errors.New("not connected")

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Manager owns the single persistent connection for one session. It dials,
// reads frames into a serialized event channel, and redials with bounded
// exponential backoff after unexpected loss. Credential rejection stops the
// retry loop and surfaces auth.ErrAuthRejected from Run.
type Manager struct {
	id      string // per-instance client id, sent on dial
	wsURL   string
	cred    *auth.Credential
	log     *zerolog.Logger
	initial time.Duration
	ceiling time.Duration

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	events chan *proto.ServerEvent
	states chan State
}

// NewManager builds a connection manager. initial and ceiling bound the
// reconnect backoff.
func NewManager(wsURL string, cred *auth.Credential, initial, ceiling time.Duration, logger *zerolog.Logger) *Manager {
	id := uuid.NewString()
	sub := logger.With().Str("client_id", id).Logger()
	logger = &sub

	return &Manager{
		id:      id,
		wsURL:   wsURL,
		cred:    cred,
		log:     logger,
		initial: initial,
		ceiling: ceiling,
		state:   StateDisconnected,
		events:  make(chan *proto.ServerEvent, 64),
		states:  make(chan State, 8),
	}
}

// Events returns the serialized inbound event channel. All frames from the
// wire arrive here in server-delivery order.
func (m *Manager) Events() <-chan *proto.ServerEvent {
	return m.events
}

// States returns connection state transitions for the consumer loop.
func (m *Manager) States() <-chan State {
	return m.states
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Send writes an intent on the live connection. It fails fast with
// ErrNotConnected while disconnected instead of blocking or dropping.
func (m *Manager) Send(ctx context.Context, intent proto.Intent) error {
	m.mu.Lock()
	c := m.conn
	st := m.state
	m.mu.Unlock()

	if st != StateConnected || c == nil {
		return ErrNotConnected
	}
	if err := wsjson.Write(ctx, c, intent); err != nil {
		return fmt.Errorf("send %s: %w", intent.Type, err)
	}
	return nil
}

// Run dials and holds the connection until ctx is cancelled or the server
// rejects the credential. Transient losses are retried; local caches are the
// session's concern and are never touched from here.
func (m *Manager) Run(ctx context.Context) error {
	defer func() {
		m.setState(StateDisconnected)
		close(m.events)
	}()

	for {
		c, err := m.dialWithBackoff(ctx)
		if err != nil {
			if errors.Is(err, auth.ErrAuthRejected) {
				m.log.Error().Err(err).Msg("credential rejected, giving up")
			}
			return err
		}

		m.mu.Lock()
		m.conn = c
		m.mu.Unlock()
		m.setState(StateConnected)

		// Cold-start synchronization: ask for the presence snapshot on every
		// (re)connect. The session refetches the room list when it observes
		// the Connected transition.
		if err := m.Send(ctx, proto.GetOnlineUsers()); err != nil {
			m.log.Warn().Err(err).Msg("presence snapshot request failed")
		}

		err = m.readLoop(ctx, c)
		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		c.Close(websocket.StatusNormalClosure, "closing")

		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.log.Warn().Err(err).Msg("connection lost, reconnecting")
		m.setState(StateDisconnected)
	}
}

func (m *Manager) dialWithBackoff(ctx context.Context) (*websocket.Conn, error) {
	m.setState(StateConnecting)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.initial
	bo.MaxInterval = m.ceiling

	return backoff.Retry(ctx, func() (*websocket.Conn, error) {
		c, err := m.dial(ctx)
		if err != nil {
			if errors.Is(err, auth.ErrAuthRejected) {
				return nil, backoff.Permanent(err)
			}
			m.log.Debug().Err(err).Msg("dial failed, will retry")
			return nil, err
		}
		return c, nil
	}, backoff.WithBackOff(bo))
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+m.cred.Token())
	hdr.Set("X-Client-ID", m.id)

	c, resp, err := websocket.Dial(ctx, m.wsURL, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("dial status %d: %w", resp.StatusCode, auth.ErrAuthRejected)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return c, nil
}

func (m *Manager) readLoop(ctx context.Context, c *websocket.Conn) error {
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, c, &frame); err != nil {
			return err
		}

		ev, err := proto.DecodeFrame(frame)
		if err != nil {
			// Malformed payloads are dropped, never fatal.
			m.log.Warn().Err(err).Str("event", frame.Event).Msg("dropping malformed frame")
			continue
		}

		select {
		case m.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	select {
	case m.states <- s:
	default:
		// Slow observer; state can be polled via State().
	}
}
