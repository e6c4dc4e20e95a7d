// Package notify surfaces out-of-band mention notifications: transient,
// auto-dismissing previews with an optional audible cue. Nothing here
// mutates session state; it is display-layer only.
package notify

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

// Notification is an ephemeral mention surface. It is not persisted beyond
// the transient UI element it triggers.
type Notification struct {
	RoomID    string
	MessageID int64
	From      string
	Preview   string
	RoomName  string
}

// Chime plays a short audible cue. Implementations must be non-blocking.
type Chime interface {
	Play() error
}

// Dispatcher turns mention events into notifications.
type Dispatcher struct {
	budget int
	chime  Chime
	log    *zerolog.Logger
}

// NewDispatcher builds a dispatcher with the given preview rune budget.
// chime may be nil.
func NewDispatcher(budget int, chime Chime, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{budget: budget, chime: chime, log: logger}
}

// Dispatch builds the notification and plays the cue. Playback failure is
// swallowed: audio may be unavailable and the notification still shows.
func (d *Dispatcher) Dispatch(ev *proto.MentionEvent) Notification {
	n := Notification{
		RoomID:    ev.Room,
		MessageID: ev.MessageID,
		From:      ev.From,
		Preview:   Truncate(ev.Content, d.budget),
		RoomName:  ev.RoomName,
	}

	if d.chime != nil {
		if err := d.chime.Play(); err != nil {
			d.log.Debug().Err(err).Msg("chime unavailable")
		}
	}
	return n
}

// Truncate cuts s to at most budget runes, appending an ellipsis when
// anything was dropped.
func Truncate(s string, budget int) string {
	if budget <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget]) + "…"
}

// DetectMention reports whether content addresses one of the members by
// display name ("@name" token). Evaluated once per rendered message; it has
// no effect on unread or typing state.
func DetectMention(content string, members []store.RoomMember) bool {
	for _, m := range members {
		if m.Name == "" {
			continue
		}
		if containsToken(content, "@"+m.Name) {
			return true
		}
	}
	return false
}

func containsToken(content, token string) bool {
	for idx := 0; ; {
		i := strings.Index(content[idx:], token)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(token)
		if boundaryBefore(content, start) && boundaryAfter(content, end) {
			return true
		}
		idx = end
	}
}

func boundaryBefore(content string, start int) bool {
	if start == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(content[:start])
	return !isNameRune(r)
}

func boundaryAfter(content string, end int) bool {
	if end == len(content) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(content[end:])
	return !isNameRune(r)
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
