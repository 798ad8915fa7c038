package session

import (
	"context"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/store"
	"github.com/vovakirdan/wirechat-client/internal/transport"
)

// listener feeds transport events into the session. Store writes happen on
// the transport goroutine; chat list changes are posted to the dispatch loop.
type listener struct {
	session *Session
	handle  transport.Handle
}

func (l *listener) OnDirectMessageReceived(id, text, from string) {
	l.session.directMessage(id, text, from, from, l.session.username)
}

func (l *listener) OnDirectMessageSent(id, text, to string) {
	l.session.directMessage(id, text, to, l.session.username, to)
}

func (l *listener) OnGroupInvited(room string) {
	l.session.groupInvited(l.handle, room)
}

func (l *listener) OnGroupMessage(id, text, from, room string) {
	l.session.groupMessage(id, text, from, room)
}

func now() int64 {
	return time.Now().UnixMilli()
}

func (s *Session) directMessage(id, text, peer, from, to string) {
	if s.closed.Load() {
		return
	}
	t := now()

	inserted, err := s.store.InsertMessage(s.ctx, store.Direct(id, text, from, to, t))
	if err != nil {
		s.log.Error().Err(err).Str("id", id).Str("peer", peer).Msg("persist direct message")
		return
	}
	if !inserted {
		s.log.Debug().Str("id", id).Msg("duplicate direct message")
		return
	}

	msg := chat.Message{ID: id, Content: text, From: from, Time: t}
	s.loop.Post(func() {
		c, created := s.chats.Direct(peer)
		chat.Append(c, msg)
		s.chats.Sort()
		if created {
			s.events.emit(Event{Kind: EventChatsChanged, Chat: chat.Clone(c)})
		}
		s.events.emit(Event{Kind: EventMessageAdded, Chat: chat.Clone(c), Message: msg})
	})
}

func (s *Session) groupInvited(h transport.Handle, room string) {
	if s.closed.Load() {
		return
	}
	room = transport.NormalizeRoom(room)

	ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
	defer cancel()
	if err := h.JoinRoom(ctx, room); err != nil {
		s.log.Warn().Err(err).Str("room", room).Msg("join invited room")
		return
	}
	s.log.Info().Str("room", room).Msg("joined invited room")
	s.groupJoined(room, false)
}

// groupJoined records the room and adds its chat. With wait set it returns
// only after the chat list was updated.
func (s *Session) groupJoined(room string, wait bool) {
	t := now()

	inserted, err := s.store.InsertGroupChat(s.ctx, store.GroupChatRecord{Name: room, TimeCreated: t})
	if err != nil {
		s.log.Error().Err(err).Str("room", room).Msg("persist group chat")
		return
	}
	if !inserted {
		existing, err := s.store.GetGroupChat(s.ctx, room)
		if err != nil {
			s.log.Error().Err(err).Str("room", room).Msg("load group chat")
			return
		}
		t = existing.TimeCreated
	}

	apply := func() {
		c, added := s.chats.AddRoom(room, t)
		if !added {
			return
		}
		s.chats.Sort()
		s.events.emit(Event{Kind: EventChatsChanged, Chat: chat.Clone(c)})
	}
	if wait {
		_ = s.call(s.ctx, func() error { apply(); return nil })
		return
	}
	s.loop.Post(apply)
}

func (s *Session) groupMessage(id, text, from, room string) {
	if s.closed.Load() || text == "" {
		return
	}
	room = transport.NormalizeRoom(room)

	known := false
	if err := s.call(s.ctx, func() error {
		known = s.chats.Find(chat.KindMultiUser, room) != nil
		return nil
	}); err != nil {
		return
	}
	if !known {
		s.log.Warn().Str("room", room).Str("id", id).Msg("message for unknown room dropped")
		return
	}

	t := now()
	inserted, err := s.store.InsertMessage(s.ctx, store.Group(id, text, from, room, t))
	if err != nil {
		s.log.Error().Err(err).Str("id", id).Str("room", room).Msg("persist group message")
		return
	}
	if !inserted {
		s.log.Debug().Str("id", id).Msg("duplicate group message")
		return
	}

	msg := chat.Message{ID: id, Content: text, From: from, Time: t}
	s.loop.Post(func() {
		c := s.chats.Find(chat.KindMultiUser, room)
		if c == nil {
			return
		}
		chat.Append(c, msg)
		s.chats.Sort()
		s.events.emit(Event{Kind: EventMessageAdded, Chat: chat.Clone(c), Message: msg})
	})
}
