// Package app wires the relay server: accounts, hub and HTTP transport.
package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/core"
	transporthttp "github.com/vovakirdan/wirechat-client/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	auth            *auth.Service
	log             *zerolog.Logger
}

// New constructs the relay with provided configuration and seeds the
// configured accounts.
func New(ctx context.Context, cfg *config.RelayConfig, logger *zerolog.Logger, opts ...auth.Option) (*App, error) {
	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	}
	authService := auth.NewService(jwtConfig, opts...)
	if err := authService.Seed(ctx, cfg.Accounts); err != nil {
		return nil, fmt.Errorf("seed accounts: %w", err)
	}
	logger.Info().Int("accounts", len(cfg.Accounts)).Msg("accounts seeded")

	hub := core.NewHub(logger)
	server := transporthttp.NewServer(hub, authService, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		auth:            authService,
		log:             logger,
	}, nil
}

// Auth exposes the account service.
func (a *App) Auth() *auth.Service {
	return a.auth
}

// Hub exposes the message hub.
func (a *App) Hub() *core.Hub {
	return a.hub
}

// Handler returns the HTTP handler, for embedding in test servers.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the hub and HTTP server and blocks until context cancellation
// or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("relay listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}
