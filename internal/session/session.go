// Package session implements a logged-in chat session: the chat list, the
// connection state and the loop that keeps the connection up.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/dispatch"
	logpkg "github.com/vovakirdan/wirechat-client/internal/log"
	"github.com/vovakirdan/wirechat-client/internal/store"
	"github.com/vovakirdan/wirechat-client/internal/transport"
)

var (
	// ErrOffline is returned by operations that need a live connection.
	ErrOffline = errors.New("session offline")
	// ErrClosed is returned after the session was closed.
	ErrClosed = errors.New("session closed")
)

const (
	defaultReconnectInterval = 3 * time.Second
	defaultDialTimeout       = 10 * time.Second
	requestTimeout           = 10 * time.Second
)

// Options configure Open.
type Options struct {
	Config   config.Config
	Username string
	Password string

	// Store is the user's message store. The session owns it once Open
	// succeeds and closes it on Close.
	Store store.Store
	// Dialer reconnects the session.
	Dialer transport.Dialer
	// Handle is an already-authenticated connection, or nil to start offline.
	Handle transport.Handle

	Logger *zerolog.Logger
}

// Session is the LoggedIn state. Chats and the connection are owned by a
// dispatch loop; every other goroutine reaches them through it.
type Session struct {
	username string
	password string
	cfg      config.Config

	store  store.Store
	dialer transport.Dialer
	log    *zerolog.Logger

	loop   *dispatch.Loop
	events *broadcaster

	// Owned by the dispatch loop.
	chats  chat.List
	handle transport.Handle

	// Owned by the reconnect goroutine.
	authFailures int

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open rehydrates the chat list from the store and starts the reconnect loop.
// On error the caller keeps ownership of the store and handle.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Username == "" {
		return nil, errors.New("session: username is required")
	}
	if opts.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if opts.Dialer == nil {
		return nil, errors.New("session: dialer is required")
	}

	cfg := opts.Config
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	logger := logpkg.Component(opts.Logger, "session").With().Str("user", opts.Username).Logger()

	s := &Session{
		username: opts.Username,
		password: opts.Password,
		cfg:      cfg,
		store:    opts.Store,
		dialer:   opts.Dialer,
		log:      &logger,
		events:   newBroadcaster(),
	}
	s.loop = dispatch.New(256, dispatch.WithPanicHandler(func(r any) {
		s.log.Error().Interface("panic", r).Msg("dispatch panic")
	}))

	if err := s.rehydrate(ctx); err != nil {
		return nil, err
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.loop.Run(context.Background())

	if opts.Handle != nil {
		s.attach(opts.Handle)
	}

	s.wg.Add(1)
	go s.reconnectLoop()

	s.log.Info().Int("chats", s.chats.Len()).Bool("online", opts.Handle != nil).Msg("session opened")
	return s, nil
}

// rehydrate rebuilds the chat list from persisted rooms and messages. It runs
// before the dispatch loop starts.
func (s *Session) rehydrate(ctx context.Context) error {
	groups, err := s.store.GroupChats(ctx)
	if err != nil {
		return fmt.Errorf("load group chats: %w", err)
	}
	for _, g := range groups {
		s.chats.AddRoom(g.Name, g.TimeCreated)
	}

	records, err := s.store.Messages(ctx)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	dropped := 0
	for _, rec := range records {
		msg := chat.Message{ID: rec.ID, Content: rec.Content, From: rec.From, Time: rec.Time}
		switch {
		case rec.GroupChat != nil:
			c := s.chats.Find(chat.KindMultiUser, *rec.GroupChat)
			if c == nil {
				dropped++
				continue
			}
			chat.Append(c, msg)
		case rec.To != nil:
			peer := rec.From
			if peer == s.username {
				peer = *rec.To
			}
			c, _ := s.chats.Direct(peer)
			chat.Append(c, msg)
		}
	}
	s.chats.Sort()

	if dropped > 0 {
		s.log.Warn().Int("dropped", dropped).Msg("messages for unknown rooms skipped")
	}
	return nil
}

// Username returns the logged-in user.
func (s *Session) Username() string {
	return s.username
}

// Subscribe returns a channel of change notifications and a function that
// cancels the subscription. The channel is closed when the session closes.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// Chats returns detached copies of all chats, most recent first.
func (s *Session) Chats(ctx context.Context) ([]chat.Chat, error) {
	var out []chat.Chat
	err := s.call(ctx, func() error {
		out = s.chats.Snapshot()
		return nil
	})
	return out, err
}

// Chat returns a detached copy of one chat, or nil if it does not exist.
func (s *Session) Chat(ctx context.Context, kind chat.Kind, name string) (chat.Chat, error) {
	var out chat.Chat
	err := s.call(ctx, func() error {
		out = chat.Clone(s.chats.Find(kind, name))
		return nil
	})
	return out, err
}

// IsOnline reports whether the session currently holds a connection.
func (s *Session) IsOnline() bool {
	online := false
	_ = s.call(context.Background(), func() error {
		online = s.handle != nil
		return nil
	})
	return online
}

// Close stops the reconnect loop, then closes the connection and the store.
// It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		s.wg.Wait()

		var h transport.Handle
		_ = s.loop.Call(context.Background(), func() error {
			h, s.handle = s.handle, nil
			return nil
		})
		s.loop.Close()
		<-s.loop.Done()

		if h != nil {
			if err := h.Close(); err != nil {
				s.log.Warn().Err(err).Msg("close connection")
			}
		}
		s.closeErr = s.store.Close()
		s.events.close()
		s.log.Info().Msg("session closed")
	})
	return s.closeErr
}

func (s *Session) call(ctx context.Context, fn func() error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	err := s.loop.Call(ctx, fn)
	if errors.Is(err, dispatch.ErrClosed) {
		return ErrClosed
	}
	return err
}

// currentHandle returns the live handle or ErrOffline.
func (s *Session) currentHandle(ctx context.Context) (transport.Handle, error) {
	var h transport.Handle
	if err := s.call(ctx, func() error {
		h = s.handle
		return nil
	}); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrOffline
	}
	return h, nil
}
