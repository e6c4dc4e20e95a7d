package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthRejected signals that the server refused the credential. This is
// fatal for the session: the caller must tear down and re-authenticate.
var ErrAuthRejected = errors.New("credential rejected")

// RefreshTimeout bounds a token refresh round-trip. Exceeding it counts as an
// auth failure, not a transient network error.
const RefreshTimeout = 10 * time.Second

// Claims mirrors the server-issued JWT claims.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsGuest  bool   `json:"is_guest"`
	jwt.RegisteredClaims
}

// Credential holds the bearer token for one actor. Safe for concurrent use;
// the connection manager and the refresh loop both read it.
type Credential struct {
	mu       sync.RWMutex
	token    string
	userID   int64
	username string
	expires  time.Time
}

// NewCredential inspects the token's claims without verifying the signature.
// The client has no signing secret; verification is the server's job.
func NewCredential(token string) (*Credential, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	c := &Credential{
		token:    token,
		userID:   claims.UserID,
		username: claims.Username,
	}
	if claims.ExpiresAt != nil {
		c.expires = claims.ExpiresAt.Time
	}
	return c, nil
}

// Token returns the current bearer token.
func (c *Credential) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// UserID returns the actor's identifier from the token claims.
func (c *Credential) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%d", c.userID)
}

// Username returns the actor's display name from the token claims.
func (c *Credential) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// ExpiresAt returns the token expiry, zero when the token carries none.
func (c *Credential) ExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expires
}

// refreshResponse is the refresh endpoint's body.
type refreshResponse struct {
	Token string `json:"token"`
}

// Refresh exchanges the current token for a fresh one at serverURL. A refresh
// that exceeds RefreshTimeout, or any non-2xx response, yields ErrAuthRejected.
func (c *Credential) Refresh(ctx context.Context, client *http.Client, serverURL string) error {
	ctx, cancel := context.WithTimeout(ctx, RefreshTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"token": c.Token()})
	if err != nil {
		return fmt.Errorf("marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/api/refresh", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token())

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return fmt.Errorf("refresh timed out: %w", ErrAuthRejected)
		}
		return fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh status %d: %w", resp.StatusCode, ErrAuthRejected)
	}

	var rr refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(rr.Token, &claims); err != nil {
		return fmt.Errorf("parse refreshed token: %w", err)
	}

	c.mu.Lock()
	c.token = rr.Token
	c.userID = claims.UserID
	c.username = claims.Username
	if claims.ExpiresAt != nil {
		c.expires = claims.ExpiresAt.Time
	} else {
		c.expires = time.Time{}
	}
	c.mu.Unlock()
	return nil
}
