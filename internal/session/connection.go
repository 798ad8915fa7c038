package session

import (
	"context"
	"errors"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/transport"
)

// reconnectLoop keeps the session online. The first attempt runs at once;
// failures are logged and retried on the next tick.
func (s *Session) reconnectLoop() {
	defer s.wg.Done()

	timer := time.NewTimer(s.cfg.ReconnectInterval)
	defer timer.Stop()

	for {
		s.tick()
		timer.Reset(s.cfg.ReconnectInterval)

		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}
	}
}

func (s *Session) tick() {
	h, err := s.currentHandle(s.ctx)
	switch {
	case errors.Is(err, ErrOffline):
	case err != nil:
		return
	case h.IsAlive():
		ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			s.log.Debug().Err(err).Msg("ping failed")
		}
		return
	default:
		s.log.Info().Msg("connection lost")
		s.detach(h)
	}

	s.reconnect()
}

func (s *Session) reconnect() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.DialTimeout)
	defer cancel()

	h, err := s.dialer.Dial(ctx, transport.Credentials{Username: s.username, Password: s.password})
	if err != nil {
		s.noteDialFailure(err)
		return
	}
	s.authFailures = 0
	s.attach(h)
}

func (s *Session) noteDialFailure(err error) {
	if s.ctx.Err() != nil {
		return
	}
	if !errors.Is(err, transport.ErrAuth) {
		s.authFailures = 0
		s.log.Debug().Err(err).Msg("reconnect failed")
		return
	}

	s.authFailures++
	s.log.Warn().Err(err).Int("attempt", s.authFailures).Msg("reconnect rejected")
	if limit := s.cfg.AuthFailureLimit; limit > 0 && s.authFailures == limit {
		s.events.emit(Event{Kind: EventAuthRejected})
	}
}

// attach rejoins every known room on h, installs the listener and then
// publishes h as the session's connection.
func (s *Session) attach(h transport.Handle) {
	var rooms []string
	if err := s.call(s.ctx, func() error {
		rooms = s.chats.Rooms()
		return nil
	}); err != nil {
		_ = h.Close()
		return
	}

	for _, room := range rooms {
		ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
		err := h.JoinRoom(ctx, room)
		cancel()
		if err != nil {
			s.log.Warn().Err(err).Str("room", room).Msg("rejoin failed")
		}
	}

	h.Listen(&listener{session: s, handle: h})

	posted := s.loop.Post(func() {
		if s.closed.Load() {
			_ = h.Close()
			return
		}
		if s.handle != nil && s.handle != h {
			_ = s.handle.Close()
		}
		s.handle = h
		s.events.emit(Event{Kind: EventConnectionChanged, Online: true})
	})
	if !posted {
		_ = h.Close()
		return
	}
	s.log.Info().Int("rooms", len(rooms)).Msg("online")
}

// detach drops h if it is still the session's connection, then closes it.
func (s *Session) detach(h transport.Handle) {
	s.loop.Post(func() {
		if s.handle != h {
			return
		}
		s.handle = nil
		s.events.emit(Event{Kind: EventConnectionChanged, Online: false})
	})
	_ = h.Close()
}
