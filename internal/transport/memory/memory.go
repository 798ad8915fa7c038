// Package memory is an in-process transport that attaches sessions directly
// to a relay hub. It backs tests and single-process embeddings.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/transport"
)

// Network connects handles to a hub after checking credentials with the
// auth service. It can simulate outages.
type Network struct {
	hub  *core.Hub
	auth *auth.Service

	down atomic.Bool

	mu      sync.Mutex
	handles map[*Handle]struct{}
}

var _ transport.Dialer = (*Network)(nil)

// NewNetwork returns a network in front of hub. The hub must be running.
func NewNetwork(hub *core.Hub, authService *auth.Service) *Network {
	return &Network{
		hub:     hub,
		auth:    authService,
		handles: make(map[*Handle]struct{}),
	}
}

// Dial authenticates and registers a new connection with the hub.
func (n *Network) Dial(ctx context.Context, creds transport.Credentials) (transport.Handle, error) {
	if n.down.Load() {
		return nil, fmt.Errorf("dial memory network: %w", transport.ErrConnect)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dial memory network: %w: %v", transport.ErrConnect, err)
	}
	if err := n.auth.Authenticate(ctx, creds.Username, creds.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return nil, fmt.Errorf("login %q: %w", creds.Username, transport.ErrAuth)
		}
		return nil, fmt.Errorf("login %q: %w: %v", creds.Username, transport.ErrConnect, err)
	}

	h := &Handle{
		network: n,
		client:  core.NewClient("", creds.Username),
		echo:    make(chan sentEcho, 64),
		closed:  make(chan struct{}),
	}
	n.hub.RegisterClient(h.client)

	n.mu.Lock()
	n.handles[h] = struct{}{}
	n.mu.Unlock()

	return h, nil
}

// SetDown makes the network unreachable. Existing handles die with it.
func (n *Network) SetDown(down bool) {
	n.down.Store(down)
	if down {
		n.DisconnectAll()
	}
}

// Disconnect drops every live handle of username.
func (n *Network) Disconnect(username string) {
	for _, h := range n.snapshot() {
		if h.client.Name == username {
			_ = h.Close()
		}
	}
}

// DisconnectAll drops every live handle.
func (n *Network) DisconnectAll() {
	for _, h := range n.snapshot() {
		_ = h.Close()
	}
}

func (n *Network) snapshot() []*Handle {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Handle, 0, len(n.handles))
	for h := range n.handles {
		out = append(out, h)
	}
	return out
}

func (n *Network) forget(h *Handle) {
	n.mu.Lock()
	delete(n.handles, h)
	n.mu.Unlock()
}

type sentEcho struct {
	id, text, to string
}

// Handle is one connection to the hub.
type Handle struct {
	network *Network
	client  *core.Client
	echo    chan sentEcho

	listenOnce sync.Once
	closeOnce  sync.Once
	closed     chan struct{}
}

var _ transport.Handle = (*Handle)(nil)

// Listen starts delivering events to l on a dedicated goroutine.
func (h *Handle) Listen(l transport.Listener) {
	h.listenOnce.Do(func() {
		go h.pump(l)
	})
}

func (h *Handle) pump(l transport.Listener) {
	for {
		select {
		case <-h.closed:
			return
		case e := <-h.echo:
			l.OnDirectMessageSent(e.id, e.text, e.to)
		case ev := <-h.client.Events:
			switch ev.Kind {
			case core.EventDirectMessage:
				l.OnDirectMessageReceived(ev.Message.ID, ev.Message.Text, ev.Message.From)
			case core.EventRoomMessage:
				l.OnGroupMessage(ev.Message.ID, ev.Message.Text, ev.Message.From, ev.Room)
			case core.EventInvited:
				l.OnGroupInvited(ev.Room)
			}
		}
	}
}

// SendDirect sends text to a user and echoes it back with its id.
func (h *Handle) SendDirect(ctx context.Context, to, text string) error {
	id := uuid.NewString()
	if _, err := h.submit(ctx, &core.Command{
		Kind:    core.CommandSendDirect,
		Message: core.Message{ID: id, To: to, Text: text},
	}); err != nil {
		return err
	}

	select {
	case h.echo <- sentEcho{id: id, text: text, to: to}:
		return nil
	case <-h.closed:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendGroup sends text to a joined room.
func (h *Handle) SendGroup(ctx context.Context, room, text string) error {
	_, err := h.submit(ctx, &core.Command{
		Kind:    core.CommandSendRoomMessage,
		Room:    room,
		Message: core.Message{ID: uuid.NewString(), Text: text},
	})
	return err
}

// CreateRoom creates and joins a room, inviting the members.
func (h *Handle) CreateRoom(ctx context.Context, name string, invitees []string) error {
	_, err := h.submit(ctx, &core.Command{Kind: core.CommandCreateRoom, Room: name, Invitees: invitees})
	return err
}

// JoinRoom joins a room the user is a member of.
func (h *Handle) JoinRoom(ctx context.Context, name string) error {
	_, err := h.submit(ctx, &core.Command{Kind: core.CommandJoinRoom, Room: name})
	return err
}

// RoomMembers lists the members of a room.
func (h *Handle) RoomMembers(ctx context.Context, name string) ([]string, error) {
	res, err := h.submit(ctx, &core.Command{Kind: core.CommandRoomMembers, Room: name})
	if err != nil {
		return nil, err
	}
	return res.Members, nil
}

// Ping checks the hub is still processing commands.
func (h *Handle) Ping(ctx context.Context) error {
	_, err := h.submit(ctx, &core.Command{Kind: core.CommandPing})
	return err
}

// IsAlive reports whether the handle is still connected.
func (h *Handle) IsAlive() bool {
	select {
	case <-h.closed:
		return false
	default:
		return !h.network.down.Load()
	}
}

// Close disconnects the handle. It is safe to call more than once.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.network.hub.UnregisterClient(h.client)
		h.network.forget(h)
	})
	return nil
}

func (h *Handle) submit(ctx context.Context, cmd *core.Command) (*core.Result, error) {
	if !h.IsAlive() {
		return nil, transport.ErrClosed
	}
	res, err := h.network.hub.Submit(ctx, h.client, cmd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Kind, err)
	}
	return res, nil
}
