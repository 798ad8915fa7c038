package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/store/sqlite"
	"github.com/vovakirdan/wirechat-client/internal/transport"
	"github.com/vovakirdan/wirechat-client/internal/transport/memory"
)

var passwords = map[string]string{"qasim": "secret1", "jazim": "secret2"}

type testEnv struct {
	network *memory.Network
	dataDir string
}

func newTestEnv(t *testing.T) *testEnv {
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
	if err := svc.Seed(ctx, passwords); err != nil {
		t.Fatalf("seed accounts: %v", err)
	}

	return &testEnv{network: memory.NewNetwork(hub, svc), dataDir: t.TempDir()}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.ReconnectInterval = 20 * time.Millisecond
	cfg.DialTimeout = time.Second
	return cfg
}

func openStore(t *testing.T, env *testEnv, user string) *sqlite.SQLiteStore {
	t.Helper()
	st, err := sqlite.Open(env.dataDir, user)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

// openSession opens a session for user. With online set it dials first.
func openSession(t *testing.T, env *testEnv, user string, dialer transport.Dialer, online bool) *Session {
	t.Helper()

	if dialer == nil {
		dialer = env.network
	}
	var handle transport.Handle
	if online {
		h, err := dialer.Dial(context.Background(), transport.Credentials{Username: user, Password: passwords[user]})
		if err != nil {
			t.Fatalf("dial %s: %v", user, err)
		}
		handle = h
	}

	s, err := Open(context.Background(), Options{
		Config:   testConfig(),
		Username: user,
		Password: passwords[user],
		Store:    openStore(t, env, user),
		Dialer:   dialer,
		Handle:   handle,
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func eventually(t *testing.T, what string, cond func() bool) {
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

func findChat(t *testing.T, s *Session, kind chat.Kind, name string) chat.Chat {
	t.Helper()
	c, err := s.Chat(context.Background(), kind, name)
	if err != nil {
		t.Fatalf("chat lookup: %v", err)
	}
	return c
}

func messageCount(t *testing.T, s *Session, kind chat.Kind, name string) int {
	t.Helper()
	c := findChat(t, s, kind, name)
	if c == nil {
		return -1
	}
	return len(c.Messages())
}

// recordingDialer wraps a dialer and records the calls made on its handles.
type recordingDialer struct {
	inner transport.Dialer

	mu    sync.Mutex
	dials int
	ops   [][]string
}

func (d *recordingDialer) Dial(ctx context.Context, creds transport.Credentials) (transport.Handle, error) {
	h, err := d.inner.Dial(ctx, creds)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if err != nil {
		return nil, err
	}
	d.ops = append(d.ops, nil)
	return &recordingHandle{Handle: h, dialer: d, index: len(d.ops) - 1}, nil
}

func (d *recordingDialer) record(index int, op string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ops[index] = append(d.ops[index], op)
}

func (d *recordingDialer) snapshot() (int, [][]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ops := make([][]string, len(d.ops))
	for i, o := range d.ops {
		ops[i] = append([]string(nil), o...)
	}
	return d.dials, ops
}

type recordingHandle struct {
	transport.Handle
	dialer *recordingDialer
	index  int
}

func (h *recordingHandle) JoinRoom(ctx context.Context, name string) error {
	h.dialer.record(h.index, "join:"+name)
	return h.Handle.JoinRoom(ctx, name)
}

func (h *recordingHandle) Listen(l transport.Listener) {
	h.dialer.record(h.index, "listen")
	h.Handle.Listen(l)
}

// closeWaitDialer holds every dial until the session context is cancelled,
// then completes it, so the handle arrives after Close has begun.
type closeWaitDialer struct {
	inner   transport.Dialer
	started chan struct{}
	once    sync.Once

	mu      sync.Mutex
	handles []*trackedHandle
}

func (d *closeWaitDialer) Dial(ctx context.Context, creds transport.Credentials) (transport.Handle, error) {
	d.once.Do(func() { close(d.started) })
	<-ctx.Done()

	h, err := d.inner.Dial(context.Background(), creds)
	if err != nil {
		return nil, err
	}
	tracked := &trackedHandle{Handle: h}
	d.mu.Lock()
	d.handles = append(d.handles, tracked)
	d.mu.Unlock()
	return tracked, nil
}

func (d *closeWaitDialer) tracked() []*trackedHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*trackedHandle(nil), d.handles...)
}

type trackedHandle struct {
	transport.Handle
	closed atomic.Bool
}

func (h *trackedHandle) Close() error {
	h.closed.Store(true)
	return h.Handle.Close()
}
