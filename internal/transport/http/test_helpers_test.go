package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/core"
)

// testRelay is a running relay behind an httptest server.
type testRelay struct {
	Server *httptest.Server
	Auth   *auth.Service
	Hub    *core.Hub
}

// createTestAuthService creates an auth service with cheap password hashing.
func createTestAuthService(t *testing.T, jwtSecret string) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService(jwtConfig, auth.WithPasswordCost(bcrypt.MinCost))
}

// startTestRelay starts a hub and relay server seeded with accounts.
func startTestRelay(t *testing.T, accounts map[string]string) *testRelay {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := zerolog.Nop()
	hub := core.NewHub(&logger)
	go hub.Run(ctx)

	authService := createTestAuthService(t, "test-secret")
	if err := authService.Seed(ctx, accounts); err != nil {
		t.Fatalf("seed accounts: %v", err)
	}

	cfg := config.DefaultRelay()
	cfg.Addr = ":0"
	server := NewServer(hub, authService, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testRelay{Server: ts, Auth: authService, Hub: hub}
}
