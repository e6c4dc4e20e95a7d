package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/api"
	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/conn"
	"github.com/vovakirdan/wirechat-client/internal/notify"
	"github.com/vovakirdan/wirechat-client/internal/session"
	"github.com/vovakirdan/wirechat-client/internal/store"
	"github.com/vovakirdan/wirechat-client/internal/store/sqlite"
)

// refreshMargin is how long before token expiry the refresh fires. A failed
// transient attempt is retried within the remaining margin.
const (
	refreshMargin = time.Minute
	refreshRetry  = 10 * time.Second
)

// App wires the credential, REST client, local cache, connection manager and
// session together for the CLI.
type App struct {
	Cred    *auth.Credential
	API     *api.Client
	Cache   store.Store
	Conn    *conn.Manager
	Session *session.Session

	serverURL string
	httpc     *http.Client
	log       *zerolog.Logger
}

// New constructs the application from configuration and a bearer token.
func New(cfg config.Config, token string, chime notify.Chime, logger *zerolog.Logger) (*App, error) {
	cred, err := auth.NewCredential(token)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}

	cache, err := sqlite.New(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	apiClient := api.New(cfg.ServerURL, cred.Token, logger)
	manager := conn.NewManager(cfg.WSURL, cred, cfg.ReconnectInitial, cfg.ReconnectMax, logger)

	sess := session.New(cred.UserID(), cred.Username(), manager, apiClient, cache, session.Options{
		TypingIdle:      cfg.TypingIdle,
		TypingTTL:       cfg.TypingTTL,
		MarkReadDwell:   cfg.MarkReadDwell,
		HistoryPageSize: cfg.HistoryPageSize,
		PreviewRunes:    cfg.PreviewRunes,
		Chime:           chime,
	}, logger)

	return &App{
		Cred:      cred,
		API:       apiClient,
		Cache:     cache,
		Conn:      manager,
		Session:   sess,
		serverURL: cfg.ServerURL,
		httpc:     &http.Client{},
		log:       logger,
	}, nil
}

// Run starts the connection manager, the session loop and the token refresh
// loop and blocks until one stops. An auth rejection from the manager or the
// refresher ends the session.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	go func() {
		errCh <- a.Conn.Run(ctx)
	}()
	go func() {
		errCh <- a.Session.Run(ctx)
	}()
	go func() {
		errCh <- a.refreshLoop(ctx)
	}()

	results := make([]error, 0, 3)
	results = append(results, <-errCh)
	cancel()
	results = append(results, <-errCh, <-errCh)

	a.cleanup()
	for _, err := range results {
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, session.ErrSessionClosed) {
			return err
		}
	}
	return nil
}

// refreshLoop renews the bearer token ahead of its expiry so a long-lived
// session does not get auth-rejected on its next reconnect. Tokens without an
// expiry never need renewal. Rejection by the server is fatal; transient
// failures are retried inside the remaining margin.
func (a *App) refreshLoop(ctx context.Context) error {
	refreshed := false
	for {
		exp := a.Cred.ExpiresAt()
		if exp.IsZero() {
			<-ctx.Done()
			return ctx.Err()
		}

		wait := time.Until(exp) - refreshMargin
		if wait < 0 {
			wait = 0
		}
		if refreshed && wait == 0 {
			// The renewed token still expires inside the margin; pace the
			// next attempt instead of spinning.
			wait = refreshRetry
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := a.Cred.Refresh(ctx, a.httpc, a.serverURL); err != nil {
			if errors.Is(err, auth.ErrAuthRejected) {
				a.log.Error().Err(err).Msg("token refresh rejected")
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.log.Warn().Err(err).Msg("token refresh failed, will retry")
			timer := time.NewTimer(refreshRetry)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}
		refreshed = true
		a.log.Info().Time("expires", a.Cred.ExpiresAt()).Msg("token refreshed")
	}
}

func (a *App) cleanup() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close cache")
		}
	}
}
