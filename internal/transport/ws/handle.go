package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/transport"
)

// Handle is one websocket connection. Responses are matched to requests by
// ID; events are queued without bound and handed to the listener on their own
// goroutine, so the reader never stalls and callbacks may issue requests.
type Handle struct {
	conn *websocket.Conn
	log  *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]chan proto.OutboundFrame

	queueMu sync.Mutex
	queue   []func(transport.Listener)
	wake    chan struct{}

	listenOnce sync.Once
	closeOnce  sync.Once
	done       chan struct{}
}

var _ transport.Handle = (*Handle)(nil)

func newHandle(conn *websocket.Conn, logger *zerolog.Logger) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		conn:    conn,
		log:     logger,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]chan proto.OutboundFrame),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go h.readLoop()
	return h
}

// Listen starts delivering queued and future events to l.
func (h *Handle) Listen(l transport.Listener) {
	h.listenOnce.Do(func() {
		go func() {
			for {
				for _, fn := range h.takeQueued() {
					if h.ctx.Err() != nil {
						return
					}
					fn(l)
				}
				select {
				case <-h.wake:
				case <-h.ctx.Done():
					return
				}
			}
		}()
	})
}

func (h *Handle) enqueue(fn func(transport.Listener)) {
	h.queueMu.Lock()
	h.queue = append(h.queue, fn)
	h.queueMu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Handle) takeQueued() []func(transport.Listener) {
	h.queueMu.Lock()
	defer h.queueMu.Unlock()
	queued := h.queue
	h.queue = nil
	return queued
}

func (h *Handle) readLoop() {
	defer close(h.done)
	defer h.cancel()

	for {
		var frame proto.OutboundFrame
		if err := wsjson.Read(h.ctx, h.conn, &frame); err != nil {
			if h.ctx.Err() == nil {
				h.log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}

		switch frame.Type {
		case proto.OutboundTypeResponse, proto.OutboundTypeError:
			h.resolve(frame)
		case proto.OutboundTypeEvent:
			if fn, ok := h.decodeEvent(frame); ok {
				h.enqueue(fn)
			}
		}
	}
}

func (h *Handle) resolve(frame proto.OutboundFrame) {
	h.mu.Lock()
	ch, ok := h.pending[frame.ID]
	delete(h.pending, frame.ID)
	h.mu.Unlock()

	if !ok {
		if frame.Error != nil {
			h.log.Warn().Str("code", frame.Error.Code).Msg(frame.Error.Msg)
		}
		return
	}
	ch <- frame
}

func (h *Handle) decodeEvent(frame proto.OutboundFrame) (func(transport.Listener), bool) {
	switch frame.Event {
	case proto.EventDirect:
		var msg proto.EventMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			h.log.Warn().Err(err).Msg("malformed direct event")
			return nil, false
		}
		return func(l transport.Listener) { l.OnDirectMessageReceived(msg.ID, msg.Text, msg.From) }, true
	case proto.EventRoom:
		var msg proto.EventMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			h.log.Warn().Err(err).Msg("malformed room event")
			return nil, false
		}
		return func(l transport.Listener) { l.OnGroupMessage(msg.ID, msg.Text, msg.From, msg.Room) }, true
	case proto.EventInvited:
		var inv proto.EventInvite
		if err := json.Unmarshal(frame.Data, &inv); err != nil {
			h.log.Warn().Err(err).Msg("malformed invite event")
			return nil, false
		}
		return func(l transport.Listener) { l.OnGroupInvited(inv.Room) }, true
	default:
		return nil, false
	}
}

// request sends one frame and waits for the matching response.
func (h *Handle) request(ctx context.Context, typ string, data any) (proto.OutboundFrame, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return proto.OutboundFrame{}, fmt.Errorf("encode %s: %w", typ, err)
	}

	id := uuid.NewString()
	reply := make(chan proto.OutboundFrame, 1)
	h.mu.Lock()
	h.pending[id] = reply
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
	}()

	if !h.IsAlive() {
		return proto.OutboundFrame{}, transport.ErrClosed
	}
	if err := wsjson.Write(ctx, h.conn, proto.Inbound{Type: typ, ID: id, Data: payload}); err != nil {
		return proto.OutboundFrame{}, fmt.Errorf("write %s: %w: %v", typ, transport.ErrClosed, err)
	}

	select {
	case frame := <-reply:
		if frame.Error != nil {
			return frame, &requestError{op: typ, err: frame.Error}
		}
		return frame, nil
	case <-h.done:
		return proto.OutboundFrame{}, transport.ErrClosed
	case <-ctx.Done():
		return proto.OutboundFrame{}, ctx.Err()
	}
}

// SendDirect sends text to a user. Once the relay accepts it the message is
// echoed to the listener with its id.
func (h *Handle) SendDirect(ctx context.Context, to, text string) error {
	id := uuid.NewString()
	if _, err := h.request(ctx, proto.InboundTypeMsg, proto.MsgData{ID: id, To: to, Text: text}); err != nil {
		return err
	}

	h.enqueue(func(l transport.Listener) { l.OnDirectMessageSent(id, text, to) })
	return nil
}

// SendGroup sends text to a joined room. The relay echoes it back as a room
// event.
func (h *Handle) SendGroup(ctx context.Context, room, text string) error {
	_, err := h.request(ctx, proto.InboundTypeGroup, proto.GroupData{Room: room, Text: text})
	return err
}

// CreateRoom creates and joins a room, inviting the members.
func (h *Handle) CreateRoom(ctx context.Context, name string, invitees []string) error {
	_, err := h.request(ctx, proto.InboundTypeCreate, proto.CreateData{Room: name, Invitees: invitees})
	return err
}

// JoinRoom joins a room the user is a member of.
func (h *Handle) JoinRoom(ctx context.Context, name string) error {
	_, err := h.request(ctx, proto.InboundTypeJoin, proto.RoomData{Room: name})
	return err
}

// RoomMembers lists the members of a room.
func (h *Handle) RoomMembers(ctx context.Context, name string) ([]string, error) {
	frame, err := h.request(ctx, proto.InboundTypeMembers, proto.RoomData{Room: name})
	if err != nil {
		return nil, err
	}
	var data proto.MembersData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	return data.Members, nil
}

// Ping round-trips a request to the relay.
func (h *Handle) Ping(ctx context.Context) error {
	_, err := h.request(ctx, proto.InboundTypePing, struct{}{})
	return err
}

// IsAlive reports whether the connection is open and being read.
func (h *Handle) IsAlive() bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Close closes the websocket. It is safe to call more than once.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.cancel()
		_ = h.conn.Close(websocket.StatusNormalClosure, "bye")
	})
	return nil
}
