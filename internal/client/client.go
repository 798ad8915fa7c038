// Package client is the application-facing facade: it moves between the
// LoggedOut and LoggedIn states and forwards chat operations to the session.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/config"
	logpkg "github.com/vovakirdan/wirechat-client/internal/log"
	"github.com/vovakirdan/wirechat-client/internal/session"
	"github.com/vovakirdan/wirechat-client/internal/store"
	"github.com/vovakirdan/wirechat-client/internal/store/sqlite"
	"github.com/vovakirdan/wirechat-client/internal/transport"
	"github.com/vovakirdan/wirechat-client/internal/transport/ws"
)

var (
	// ErrNotLoggedIn is returned by operations that need a session.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrNotLoggedOut is returned when logging in over an existing session.
	ErrNotLoggedOut = errors.New("already logged in")
)

// LoginReason classifies a failed login.
type LoginReason int

const (
	// LoginConnectFailure means the server could not be reached.
	LoginConnectFailure LoginReason = iota
	// LoginAuthFailure means the server rejected the credentials.
	LoginAuthFailure
)

func (r LoginReason) String() string {
	if r == LoginAuthFailure {
		return "auth failure"
	}
	return "connect failure"
}

// LoginError reports why Login failed.
type LoginError struct {
	Reason LoginReason
	Err    error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login: %s: %v", e.Reason, e.Err)
}

func (e *LoginError) Unwrap() error { return e.Err }

// StoreOpener opens the message store of a user.
type StoreOpener func(dataDir, username string) (store.Store, error)

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the network transport.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithStoreOpener replaces the SQLite store.
func WithStoreOpener(fn StoreOpener) Option {
	return func(c *Client) { c.openStore = fn }
}

// WithLogger sets the logger handed to sessions.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// Client holds at most one session. It is safe for concurrent use.
type Client struct {
	cfg       config.Config
	dialer    transport.Dialer
	openStore StoreOpener
	log       *zerolog.Logger

	mu      sync.Mutex
	session *session.Session
}

// New returns a logged-out client.
func New(cfg config.Config, opts ...Option) *Client {
	c := &Client{
		cfg: cfg,
		log: logpkg.Nop(),
		openStore: func(dataDir, username string) (store.Store, error) {
			return sqlite.Open(dataDir, username)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = ws.NewDialer(ws.BaseURL(cfg), ws.WithLogger(c.log))
	}
	return c
}

// Login authenticates against the server and opens an online session. It
// blocks for the duration of the connection attempt.
func (c *Client) Login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return ErrNotLoggedOut
	}

	dialCtx := ctx
	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}

	h, err := c.dialer.Dial(dialCtx, transport.Credentials{Username: username, Password: password})
	if err != nil {
		reason := LoginConnectFailure
		if errors.Is(err, transport.ErrAuth) {
			reason = LoginAuthFailure
		}
		c.log.Warn().Err(err).Str("user", username).Stringer("reason", reason).Msg("login failed")
		return &LoginError{Reason: reason, Err: err}
	}

	s, err := c.open(ctx, username, password, h)
	if err != nil {
		_ = h.Close()
		return err
	}
	c.session = s
	return nil
}

// SetLogin opens an offline session from stored credentials without
// contacting the server. The reconnect loop brings it online.
func (c *Client) SetLogin(username, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return ErrNotLoggedOut
	}
	s, err := c.open(context.Background(), username, password, nil)
	if err != nil {
		return err
	}
	c.session = s
	return nil
}

func (c *Client) open(ctx context.Context, username, password string, h transport.Handle) (*session.Session, error) {
	st, err := c.openStore(c.cfg.DataDir, username)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s, err := session.Open(ctx, session.Options{
		Config:   c.cfg,
		Username: username,
		Password: password,
		Store:    st,
		Dialer:   c.dialer,
		Handle:   h,
		Logger:   c.log,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return s, nil
}

// Logout closes the session, its connection and its store.
func (c *Client) Logout() error {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()

	if s == nil {
		return ErrNotLoggedIn
	}
	return s.Close()
}

func (c *Client) current() (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, ErrNotLoggedIn
	}
	return c.session, nil
}

func (c *Client) mustCurrent() *session.Session {
	s, err := c.current()
	if err != nil {
		panic("client: " + err.Error())
	}
	return s
}

// LoggedIn reports whether a session is open.
func (c *Client) LoggedIn() bool {
	_, err := c.current()
	return err == nil
}

// IsOnline reports whether the session holds a live connection.
func (c *Client) IsOnline() bool {
	s, err := c.current()
	return err == nil && s.IsOnline()
}

// Username returns the logged-in user. It panics when logged out.
func (c *Client) Username() string {
	return c.mustCurrent().Username()
}

// Chats returns a snapshot of the chat list. It panics when logged out.
func (c *Client) Chats() []chat.Chat {
	chats, _ := c.mustCurrent().Chats(context.Background())
	return chats
}

// ChatsOrNil is Chats that returns nil when logged out.
func (c *Client) ChatsOrNil() []chat.Chat {
	s, err := c.current()
	if err != nil {
		return nil
	}
	chats, _ := s.Chats(context.Background())
	return chats
}

// Subscribe returns session change notifications.
func (c *Client) Subscribe() (<-chan session.Event, func(), error) {
	s, err := c.current()
	if err != nil {
		return nil, nil, err
	}
	events, cancel := s.Subscribe()
	return events, cancel, nil
}

// Send sends text to the chat's peer or room.
func (c *Client) Send(ctx context.Context, target chat.Chat, text string) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	return s.Send(ctx, target, text)
}

// SendMessage sends a direct message.
func (c *Client) SendMessage(ctx context.Context, to, text string) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	return s.SendDirect(ctx, to, text)
}

// SendGroupMessage sends a message to a room.
func (c *Client) SendGroupMessage(ctx context.Context, room, text string) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	return s.SendGroup(ctx, room, text)
}

// CreateGroup creates a room and invites the members.
func (c *Client) CreateGroup(ctx context.Context, name string, invitees []string) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	return s.CreateGroup(ctx, name, invitees)
}

// Members lists the members of a room.
func (c *Client) Members(ctx context.Context, room string) ([]string, error) {
	s, err := c.current()
	if err != nil {
		return nil, err
	}
	return s.Members(ctx, room)
}
