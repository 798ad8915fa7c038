package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/config"
)

func TestNewSeedsAccounts(t *testing.T) {
	cfg := config.DefaultRelay()
	cfg.Addr = "127.0.0.1:0"
	cfg.Accounts = map[string]string{"qasim": "secret1"}
	logger := zerolog.Nop()

	a, err := New(context.Background(), &cfg, &logger, auth.WithPasswordCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.Auth().Authenticate(context.Background(), "qasim", "secret1"); err != nil {
		t.Fatalf("seeded account rejected: %v", err)
	}
}

func TestNewRejectsInvalidAccount(t *testing.T) {
	cfg := config.DefaultRelay()
	cfg.Accounts = map[string]string{"bad user": "secret1"}
	logger := zerolog.Nop()

	if _, err := New(context.Background(), &cfg, &logger, auth.WithPasswordCost(bcrypt.MinCost)); err == nil {
		t.Fatalf("expected seed error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.DefaultRelay()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = time.Second
	logger := zerolog.Nop()

	a, err := New(context.Background(), &cfg, &logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not stop")
	}
}
