package session

import (
	"context"
	"fmt"

	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/transport"
)

// SendDirect sends text to a user. The message shows up in the chat list once
// the transport echoes it back.
func (s *Session) SendDirect(ctx context.Context, to, text string) error {
	h, err := s.currentHandle(ctx)
	if err != nil {
		return err
	}
	if err := h.SendDirect(ctx, to, text); err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}
	return nil
}

// SendGroup sends text to a room. The relay echoes it to every member,
// including this session.
func (s *Session) SendGroup(ctx context.Context, room, text string) error {
	h, err := s.currentHandle(ctx)
	if err != nil {
		return err
	}
	room = transport.NormalizeRoom(room)
	if err := h.SendGroup(ctx, room, text); err != nil {
		return fmt.Errorf("send to room %s: %w", room, err)
	}
	return nil
}

// Send sends text to the chat's peer or room.
func (s *Session) Send(ctx context.Context, c chat.Chat, text string) error {
	switch c.Kind() {
	case chat.KindMultiUser:
		return s.SendGroup(ctx, c.Name(), text)
	default:
		return s.SendDirect(ctx, c.Name(), text)
	}
}

// CreateGroup creates a room, invites the members and adds the room chat.
// The name is lower-cased.
func (s *Session) CreateGroup(ctx context.Context, name string, invitees []string) error {
	h, err := s.currentHandle(ctx)
	if err != nil {
		return err
	}
	room := transport.NormalizeRoom(name)
	if err := h.CreateRoom(ctx, room, invitees); err != nil {
		return fmt.Errorf("create room %s: %w", room, err)
	}
	s.groupJoined(room, true)
	return nil
}

// Members lists the members of a room.
func (s *Session) Members(ctx context.Context, room string) ([]string, error) {
	h, err := s.currentHandle(ctx)
	if err != nil {
		return nil, err
	}
	room = transport.NormalizeRoom(room)
	members, err := h.RoomMembers(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("members of %s: %w", room, err)
	}
	return members, nil
}
