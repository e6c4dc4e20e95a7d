package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/log"
)

func signToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	claims := auth.Claims{
		UserID:   42,
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func refreshApp(t *testing.T, srv *httptest.Server, ttl time.Duration) *App {
	t.Helper()
	cred, err := auth.NewCredential(signToken(t, ttl))
	require.NoError(t, err)
	return &App{
		Cred:      cred,
		serverURL: srv.URL,
		httpc:     srv.Client(),
		log:       log.New("error"),
	}
}

func TestRefreshLoopRenewsTokenBeforeExpiry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fresh := signToken(t, 2*time.Hour)

	r := gin.New()
	r.POST("/api/refresh", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"token": fresh})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	// Expiry inside the refresh margin, so the loop fires immediately.
	a := refreshApp(t, srv, 30*time.Second)
	old := a.Cred.Token()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.refreshLoop(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && a.Cred.Token() == old {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, fresh, a.Cred.Token(), "token should be renewed ahead of expiry")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRefreshLoopStopsOnRejection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/refresh", func(c *gin.Context) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	a := refreshApp(t, srv, 30*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.refreshLoop(ctx)
	assert.ErrorIs(t, err, auth.ErrAuthRejected)
}

func TestRefreshLoopIdlesWithoutExpiry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	// A token with no exp claim never needs renewal.
	claims := auth.Claims{UserID: 42, Username: "alice"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	cred, err := auth.NewCredential(token)
	require.NoError(t, err)

	a := &App{Cred: cred, serverURL: srv.URL, httpc: srv.Client(), log: log.New("error")}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = a.refreshLoop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, calls.Load(), "no refresh request expected")
}