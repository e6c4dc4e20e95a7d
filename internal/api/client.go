package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/store"
)

// ErrUnauthorized is returned when the server rejects the bearer token.
var ErrUnauthorized = errors.New("unauthorized")

// Client consumes the server's REST surface for cold-start data: the room
// list, membership, and historical message pages. It never substitutes for
// the live connection.
type Client struct {
	baseURL string
	token   func() string
	httpc   *http.Client
	log     *zerolog.Logger
}

// New builds a REST client. token is called per request so a refreshed
// credential takes effect without rebuilding the client.
func New(baseURL string, token func() string, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		log:     logger,
	}
}

// LoginRequest is the login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is the authentication response body.
type AuthResponse struct {
	Token string `json:"token"`
}

// RoomResponse is a room in API responses.
type RoomResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Kind      string           `json:"kind"`
	ProjectID string           `json:"project_id,omitempty"`
	Members   []MemberResponse `json:"members,omitempty"`
}

// MemberResponse is a room member in API responses.
type MemberResponse struct {
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	JoinedAt   time.Time `json:"joined_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// MessageResponse is a message in API responses.
type MessageResponse struct {
	ID        int64  `json:"id"`
	Room      string `json:"room"`
	User      string `json:"user"`
	UserName  string `json:"userName"`
	Content   string `json:"content"`
	FileID    string `json:"fileId,omitempty"`
	TS        int64  `json:"ts"`
}

// Login exchanges credentials for a bearer token.
// POST /api/login
func Login(ctx context.Context, baseURL, username, password string) (string, error) {
	body, err := json.Marshal(LoginRequest{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := (&http.Client{Timeout: 15 * time.Second}).Do(req)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login status %d", resp.StatusCode)
	}

	var ar AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	return ar.Token, nil
}

// ListRooms fetches all rooms visible to the actor.
// GET /api/rooms
func (c *Client) ListRooms(ctx context.Context) ([]store.Room, error) {
	var resp []RoomResponse
	if err := c.get(ctx, "/api/rooms", nil, &resp); err != nil {
		return nil, err
	}

	rooms := make([]store.Room, 0, len(resp))
	for _, r := range resp {
		rooms = append(rooms, roomFromResponse(r))
	}
	return rooms, nil
}

// RoomMembers fetches the membership of one room.
// GET /api/rooms/:id/members
func (c *Client) RoomMembers(ctx context.Context, roomID string) ([]store.RoomMember, error) {
	var resp []MemberResponse
	if err := c.get(ctx, "/api/rooms/"+url.PathEscape(roomID)+"/members", nil, &resp); err != nil {
		return nil, err
	}
	return membersFromResponse(resp), nil
}

// Messages fetches a historical message page, newest first on the wire,
// returned ascending for display. beforeID of 0 means the latest page.
// GET /api/rooms/:id/messages
func (c *Client) Messages(ctx context.Context, roomID string, beforeID int64, limit int) ([]store.Message, error) {
	q := url.Values{}
	if beforeID > 0 {
		q.Set("before", strconv.FormatInt(beforeID, 10))
	}
	q.Set("limit", strconv.Itoa(limit))

	var resp []MessageResponse
	if err := c.get(ctx, "/api/rooms/"+url.PathEscape(roomID)+"/messages", q, &resp); err != nil {
		return nil, err
	}

	msgs := make([]store.Message, 0, len(resp))
	for _, m := range resp {
		msgs = append(msgs, store.Message{
			ID:        m.ID,
			RoomID:    m.Room,
			UserID:    m.User,
			UserName:  m.UserName,
			Content:   m.Content,
			FileID:    m.FileID,
			CreatedAt: time.UnixMilli(m.TS),
		})
	}
	// Server pages newest-first; flip for chronological display.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("unexpected api status")
		return fmt.Errorf("get %s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func roomFromResponse(r RoomResponse) store.Room {
	return store.Room{
		ID:        r.ID,
		Name:      r.Name,
		Kind:      store.RoomKind(r.Kind),
		ProjectID: r.ProjectID,
		Members:   membersFromResponse(r.Members),
	}
}

func membersFromResponse(resp []MemberResponse) []store.RoomMember {
	members := make([]store.RoomMember, 0, len(resp))
	for _, m := range resp {
		members = append(members, store.RoomMember{
			UserID:     m.UserID,
			Name:       m.Name,
			Role:       m.Role,
			JoinedAt:   m.JoinedAt,
			LastSeenAt: m.LastSeenAt,
		})
	}
	return members
}
