package client

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"net/url"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/vovakirdan/wirechat-client/internal/app"
	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/session"
	"github.com/vovakirdan/wirechat-client/internal/transport"
	"github.com/vovakirdan/wirechat-client/internal/transport/memory"
)

func newTestClient(t *testing.T) (*Client, *memory.Network) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := core.NewHub(nil)
	go hub.Run(ctx)

	svc := auth.NewService(&auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}, auth.WithPasswordCost(bcrypt.MinCost))
	if err := svc.Seed(ctx, map[string]string{"qasim": "secret1", "jazim": "secret2"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	network := memory.NewNetwork(hub, svc)

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.ReconnectInterval = 20 * time.Millisecond

	c := New(cfg, WithDialer(network))
	t.Cleanup(func() { _ = c.Logout() })
	return c, network
}

func TestLoginFailuresAreClassified(t *testing.T) {
	c, network := newTestClient(t)
	ctx := context.Background()

	err := c.Login(ctx, "qasim", "wrong-password")
	var loginErr *LoginError
	if !errors.As(err, &loginErr) || loginErr.Reason != LoginAuthFailure {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if !errors.Is(err, transport.ErrAuth) {
		t.Fatalf("expected wrapped ErrAuth, got %v", err)
	}

	network.SetDown(true)
	err = c.Login(ctx, "qasim", "secret1")
	if !errors.As(err, &loginErr) || loginErr.Reason != LoginConnectFailure {
		t.Fatalf("expected connect failure, got %v", err)
	}
	if c.LoggedIn() {
		t.Fatalf("failed login must leave the client logged out")
	}
}

func TestStateTransitions(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if err := c.Logout(); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if err := c.SendMessage(ctx, "jazim", "hi"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if c.ChatsOrNil() != nil {
		t.Fatalf("expected nil chats when logged out")
	}

	if err := c.Login(ctx, "qasim", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := c.Login(ctx, "qasim", "secret1"); !errors.Is(err, ErrNotLoggedOut) {
		t.Fatalf("expected ErrNotLoggedOut, got %v", err)
	}
	if err := c.SetLogin("qasim", "secret1"); !errors.Is(err, ErrNotLoggedOut) {
		t.Fatalf("expected ErrNotLoggedOut, got %v", err)
	}
	if c.Username() != "qasim" || !c.IsOnline() {
		t.Fatalf("unexpected state: user=%s online=%v", c.Username(), c.IsOnline())
	}

	if err := c.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if c.LoggedIn() || c.IsOnline() {
		t.Fatalf("expected logged out client")
	}
}

func TestUsernamePanicsWhenLoggedOut(t *testing.T) {
	c, _ := newTestClient(t)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	_ = c.Username()
}

func TestChatsPanicsWhenLoggedOut(t *testing.T) {
	c, _ := newTestClient(t)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	_ = c.Chats()
}

func TestSetLoginRehydratesOffline(t *testing.T) {
	c, network := newTestClient(t)
	ctx := context.Background()

	if err := c.Login(ctx, "qasim", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := c.SendMessage(ctx, "jazim", "kept"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, "echo", func() bool { return len(c.Chats()) == 1 })
	if err := c.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}

	network.SetDown(true)
	if err := c.SetLogin("qasim", "secret1"); err != nil {
		t.Fatalf("set login: %v", err)
	}
	if c.IsOnline() {
		t.Fatalf("expected offline session")
	}
	if err := c.SendMessage(ctx, "jazim", "nope"); !errors.Is(err, session.ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}

	chats := c.Chats()
	if len(chats) != 1 || chats[0].Name() != "jazim" || chats[0].Messages()[0].Content != "kept" {
		t.Fatalf("unexpected rehydrated chats: %+v", chats)
	}

	network.SetDown(false)
	waitFor(t, "reconnect", c.IsOnline)
}

func TestSendToChat(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if err := c.Login(ctx, "qasim", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := c.CreateGroup(ctx, "Team", []string{"jazim"}); err != nil {
		t.Fatalf("create group: %v", err)
	}
	chats := c.Chats()
	if len(chats) != 1 || chats[0].Kind() != chat.KindMultiUser || chats[0].Name() != "team" {
		t.Fatalf("unexpected chats: %+v", chats)
	}

	if err := c.Send(ctx, chats[0], "standup"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, "room echo", func() bool {
		chats := c.Chats()
		return len(chats) == 1 && len(chats[0].Messages()) == 1
	})

	members, err := c.Members(ctx, "team")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("unexpected members: %v", members)
	}
}

func TestRepeatedLoginLogoutReleasesResources(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	// Warm up once so lazily started runtime goroutines are counted.
	if err := c.Login(ctx, "qasim", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := c.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	baseline := runtime.NumGoroutine()

	for i := 0; i < 10; i++ {
		if err := c.Login(ctx, "qasim", "secret1"); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		if err := c.Logout(); err != nil {
			t.Fatalf("logout %d: %v", i, err)
		}
	}

	waitFor(t, "goroutines to settle", func() bool { return runtime.NumGoroutine() <= baseline+2 })
}

// relayConfig starts a relay behind an httptest server and returns a client
// config pointing at it.
func relayConfig(t *testing.T) config.Config {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	relayCfg := config.DefaultRelay()
	relayCfg.Accounts = map[string]string{"qasim": "secret1", "jazim": "secret2"}
	logger := zerolog.Nop()
	relay, err := app.New(ctx, &relayCfg, &logger, auth.WithPasswordCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	go relay.Hub().Run(ctx)

	ts := httptest.NewServer(relay.Handler())
	t.Cleanup(ts.Close)

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse relay url: %v", err)
	}
	host, portText, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split relay host: %v", err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		t.Fatalf("relay port: %v", err)
	}

	cfg := config.Default()
	cfg.Host = host
	cfg.Port = port
	cfg.DataDir = t.TempDir()
	cfg.ReconnectInterval = 50 * time.Millisecond
	return cfg
}

func TestLoginOverWebSocketRelay(t *testing.T) {
	cfg := relayConfig(t)
	ctx := context.Background()

	qasim := New(cfg)
	t.Cleanup(func() { _ = qasim.Logout() })
	jazim := New(cfg)
	t.Cleanup(func() { _ = jazim.Logout() })

	err := qasim.Login(ctx, "qasim", "wrong-password")
	var loginErr *LoginError
	if !errors.As(err, &loginErr) || loginErr.Reason != LoginAuthFailure {
		t.Fatalf("expected auth failure, got %v", err)
	}

	if err := qasim.Login(ctx, "qasim", "secret1"); err != nil {
		t.Fatalf("login qasim: %v", err)
	}
	if err := jazim.Login(ctx, "jazim", "secret2"); err != nil {
		t.Fatalf("login jazim: %v", err)
	}

	if err := qasim.SendMessage(ctx, "jazim", "over the wire"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, "delivery", func() bool {
		chats := jazim.Chats()
		return len(chats) == 1 && chats[0].Name() == "qasim" && len(chats[0].Messages()) == 1
	})
	waitFor(t, "echo", func() bool {
		chats := qasim.Chats()
		return len(chats) == 1 && len(chats[0].Messages()) == 1
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
