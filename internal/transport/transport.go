// Package transport defines the narrow interface the session core drives.
// Concrete transports live in the memory and ws subpackages.
package transport

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrConnect is returned when the server could not be reached.
	ErrConnect = errors.New("connect failure")
	// ErrAuth is returned when the server rejected the credentials.
	ErrAuth = errors.New("authentication failure")
	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("transport closed")
)

// Credentials identify the account to log in with.
type Credentials struct {
	Username string
	Password string
}

// Dialer opens authenticated connections. Dial blocks and may take seconds.
// Failures wrap ErrConnect or ErrAuth.
type Dialer interface {
	Dial(ctx context.Context, creds Credentials) (Handle, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, creds Credentials) (Handle, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, creds Credentials) (Handle, error) {
	return f(ctx, creds)
}

// Handle is one live, authenticated connection. It is invalidated on
// disconnect; room membership does not survive it.
type Handle interface {
	// Listen installs the event listener. Events received before the call
	// are buffered and delivered once it is installed.
	Listen(l Listener)

	SendDirect(ctx context.Context, to, text string) error
	SendGroup(ctx context.Context, room, text string) error
	// CreateRoom creates a room owned by the caller and invites the members.
	CreateRoom(ctx context.Context, name string, invitees []string) error
	JoinRoom(ctx context.Context, name string) error
	// RoomMembers returns the sorted usernames of the room members.
	RoomMembers(ctx context.Context, name string) ([]string, error)

	// Ping is a liveness probe.
	Ping(ctx context.Context) error
	IsAlive() bool
	Close() error
}

// Listener receives inbound traffic. Callbacks run on a transport-owned
// goroutine and must return quickly.
type Listener interface {
	OnDirectMessageReceived(id, text, from string)
	// OnDirectMessageSent echoes an accepted outgoing direct message with its
	// canonical id.
	OnDirectMessageSent(id, text, to string)
	OnGroupInvited(room string)
	OnGroupMessage(id, text, from, room string)
}

// NormalizeRoom returns the canonical form of a room name.
func NormalizeRoom(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
