package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/app"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/conn"
	"github.com/vovakirdan/wirechat-client/internal/log"
	"github.com/vovakirdan/wirechat-client/internal/notify"
	"github.com/vovakirdan/wirechat-client/internal/session"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

// terminalChime rings the terminal bell. Failure is irrelevant; some
// terminals just ignore it.
type terminalChime struct{ w io.Writer }

func (c terminalChime) Play() error {
	_, err := fmt.Fprint(c.w, "\a")
	return err
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd)
		},
	}
}

func runChat(cmd *cobra.Command) error {
	bootLog := log.New("warn")
	cfg, _, err := config.Load(bootLog, configPath)
	if err != nil {
		return err
	}

	logger := bootLog
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger = log.NewWithWriter(cfg.LogLevel, f)
	}

	token, err := os.ReadFile(cfg.TokenPath)
	if err != nil {
		return fmt.Errorf("read token (run `wirechat login` first): %w", err)
	}

	out := cmd.OutOrStdout()
	application, err := app.New(cfg, strings.TrimSpace(string(token)), terminalChime{w: out}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- application.Run(ctx)
	}()

	view := newChatView(application.Cred.UserID())
	refreshMembers := func(roomID string) {
		members, err := application.API.RoomMembers(ctx, roomID)
		if err != nil {
			logger.Debug().Err(err).Str("room", roomID).Msg("member roster refresh failed")
			return
		}
		view.setMembers(roomID, members)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		render(out, application.Session.Updates(), view, refreshMembers)
	}()

	inputErr := inputLoop(ctx, cmd.InOrStdin(), out, application, view)
	cancel()

	err = <-runErr
	wg.Wait()

	if inputErr != nil && !errors.Is(inputErr, io.EOF) {
		return inputErr
	}
	return err
}

func inputLoop(ctx context.Context, in io.Reader, out io.Writer, application *app.App, view *chatView) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return nil
		case strings.HasPrefix(line, "/join "):
			room := strings.TrimSpace(strings.TrimPrefix(line, "/join "))
			if err := application.Session.Join(ctx, room); err != nil {
				printErr(out, err)
			}
		case line == "/leave":
			if err := application.Session.Leave(ctx); err != nil {
				printErr(out, err)
			}
		case line == "/rooms":
			view.printRooms(out)
		case line == "/who":
			view.printOnline(out)
		case strings.HasPrefix(line, "/"):
			fmt.Fprintf(out, "unknown command %s\n", line)
		default:
			if err := application.Session.SendMessage(ctx, line, ""); err != nil {
				printErr(out, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return io.EOF
}

var (
	colStatus  = color.New(color.FgCyan)
	colName    = color.New(color.FgGreen, color.Bold)
	colSystem  = color.New(color.FgYellow)
	colError   = color.New(color.FgRed)
	colMention = color.New(color.FgMagenta, color.Bold)
)

// chatView is the renderer's last known state, shared between the render
// goroutine and the input loop. It also tracks the active room's member
// roster so rendered messages can be checked for mentions of the actor.
type chatView struct {
	selfID string

	mu      sync.Mutex
	rooms   []store.Room
	unread  map[string]int
	online  []string
	room    string
	members []store.RoomMember
}

func newChatView(selfID string) *chatView {
	return &chatView{selfID: selfID}
}

func (v *chatView) setRooms(rooms []store.Room) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rooms = rooms
	for _, r := range rooms {
		if r.ID == v.room && len(r.Members) > 0 {
			v.members = r.Members
		}
	}
}

func (v *chatView) setUnread(unread map[string]int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.unread = unread
}

func (v *chatView) setOnline(online []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.online = online
}

// setActive switches the view to roomID, seeding the roster from the cached
// room list until a fresh fetch lands.
func (v *chatView) setActive(roomID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.room = roomID
	v.members = nil
	for _, r := range v.rooms {
		if r.ID == roomID {
			v.members = r.Members
		}
	}
}

// setMembers installs a fetched roster. Stale results for a room the view
// already left are dropped.
func (v *chatView) setMembers(roomID string, members []store.RoomMember) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.room != roomID {
		return
	}
	v.members = members
}

// mentionsSelf reports whether a rendered message addresses the actor by
// the display name the roster knows them under. Evaluated once per message;
// the actor's own messages never count.
func (v *chatView) mentionsSelf(m *store.Message) bool {
	if m.UserID == v.selfID {
		return false
	}
	v.mu.Lock()
	var roster []store.RoomMember
	for _, mem := range v.members {
		if mem.UserID == v.selfID {
			roster = append(roster, mem)
		}
	}
	v.mu.Unlock()
	return notify.DetectMention(m.Content, roster)
}

func (v *chatView) printRooms(out io.Writer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range v.rooms {
		badge := ""
		if n := v.unread[r.ID]; n > 0 {
			badge = fmt.Sprintf(" (%d unread)", n)
		}
		fmt.Fprintf(out, "  %s [%s]%s\n", r.Name, r.ID, badge)
	}
}

func (v *chatView) printOnline(out io.Writer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(out, "  online: %s\n", strings.Join(v.online, ", "))
}

func render(out io.Writer, updates <-chan session.Update, view *chatView, refreshMembers func(roomID string)) {
	for u := range updates {
		switch u.Kind {
		case session.UpdateConnState:
			switch u.ConnState {
			case conn.StateConnected:
				colStatus.Fprintln(out, "* connected")
			case conn.StateConnecting:
				colStatus.Fprintln(out, "* reconnecting...")
			default:
				colStatus.Fprintln(out, "* disconnected (cached history still available)")
			}
		case session.UpdateRooms:
			view.setRooms(u.Rooms)
		case session.UpdateUnread:
			view.setUnread(u.Unread)
		case session.UpdatePresence:
			view.setOnline(u.Online)
		case session.UpdateRoomActive:
			view.setActive(u.RoomID)
			if u.RoomID == "" {
				colSystem.Fprintln(out, "-- left room --")
			} else {
				go refreshMembers(u.RoomID)
				colSystem.Fprintf(out, "-- now in %s --\n", u.RoomID)
			}
		case session.UpdateHistory:
			for i := range u.Messages {
				printMessage(out, &u.Messages[i], view)
			}
		case session.UpdateMessage:
			printMessage(out, u.Message, view)
		case session.UpdateUserJoined:
			colSystem.Fprintf(out, "-- %s joined --\n", u.UserName)
		case session.UpdateUserLeft:
			colSystem.Fprintf(out, "-- %s left --\n", u.UserName)
		case session.UpdateTyping:
			if len(u.Typing) > 0 {
				colStatus.Fprintf(out, "… %s typing\n", strings.Join(u.Typing, ", "))
			}
		case session.UpdateMention:
			colMention.Fprintf(out, "@ %s: %s\n", u.Notice.From, u.Notice.Preview)
		case session.UpdateError:
			colError.Fprintf(out, "! server error: %s\n", u.Err.Msg)
		}
	}
}

func printMessage(out io.Writer, m *store.Message, view *chatView) {
	name := m.UserName
	if name == "" {
		name = m.UserID
	}
	colName.Fprintf(out, "%s", name)
	body := m.Content
	if body == "" && m.FileID != "" {
		body = "[attachment " + m.FileID + "]"
	}
	if view.mentionsSelf(m) {
		fmt.Fprintf(out, " %s ", m.CreatedAt.Format("15:04"))
		colMention.Fprintf(out, "%s\n", body)
		return
	}
	fmt.Fprintf(out, " %s %s\n", m.CreatedAt.Format("15:04"), body)
}

func printErr(out io.Writer, err error) {
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		colError.Fprintln(out, "! nothing to send")
	case errors.Is(err, session.ErrNoActiveRoom):
		colError.Fprintln(out, "! join a room first (/join <id>)")
	case errors.Is(err, conn.ErrNotConnected):
		colError.Fprintln(out, "! not connected; try again once reconnected")
	default:
		colError.Fprintf(out, "! %v\n", err)
	}
}
