package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const backlogFlushInterval = 20 * time.Millisecond

// Hub routes direct messages, room messages and invitations between
// connected clients. All state is owned by the Run goroutine.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	commands   chan *envelope
	done       chan struct{}

	clients map[string]map[*Client]struct{}
	rooms   map[string]*Room
	// pending holds events for users with no live connection.
	pending map[string][]*Event

	log *zerolog.Logger
}

type envelope struct {
	client *Client
	cmd    *Command
	reply  chan reply
}

type reply struct {
	result *Result
	err    error
}

// NewHub creates a new chat hub instance.
func NewHub(logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan *envelope, 64),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*Client]struct{}),
		rooms:      make(map[string]*Room),
		pending:    make(map[string][]*Event),
		log:        logger,
	}
}

// Run processes registrations and commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	flush := time.NewTicker(backlogFlushInterval)
	defer flush.Stop()

	for {
		select {
		case <-flush.C:
			h.flushBacklogs()
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case env := <-h.commands:
			result, err := h.handleCommand(env.client, env.cmd)
			env.reply <- reply{result: result, err: err}
		case <-ctx.Done():
			return
		}
	}
}

// RegisterClient attaches a connection and flushes events queued for its user.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// UnregisterClient detaches a connection from the hub and all rooms.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Submit runs cmd on behalf of c and waits for the result.
func (h *Hub) Submit(ctx context.Context, c *Client, cmd *Command) (*Result, error) {
	env := &envelope{client: c, cmd: cmd, reply: make(chan reply, 1)}

	select {
	case h.commands <- env:
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-env.reply:
		return r.result, r.err
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) handleRegister(c *Client) {
	conns, ok := h.clients[c.Name]
	if !ok {
		conns = make(map[*Client]struct{})
		h.clients[c.Name] = conns
	}
	conns[c] = struct{}{}

	queued := h.pending[c.Name]
	delete(h.pending, c.Name)
	c.backlog = append(c.backlog, queued...)
	c.flush()

	h.log.Debug().Str("client_id", c.ID).Str("user", c.Name).Int("queued", len(queued)).Int("backlog", len(c.backlog)).Msg("client registered")
}

func (h *Hub) handleUnregister(c *Client) {
	if conns, ok := h.clients[c.Name]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.Name)
			// Undelivered events go back to the offline queue.
			if len(c.backlog) > 0 {
				h.pending[c.Name] = append(c.backlog, h.pending[c.Name]...)
			}
		}
	}
	c.backlog = nil
	for _, room := range h.rooms {
		if room.RemoveClient(c) {
			room.Broadcast(&Event{Kind: EventUserLeft, Room: room.Name, User: c.Name})
		}
	}
	h.log.Debug().Str("client_id", c.ID).Str("user", c.Name).Msg("client unregistered")
}

func (h *Hub) handleCommand(c *Client, cmd *Command) (*Result, error) {
	if c == nil || cmd == nil {
		return nil, coreError(ErrCodeBadRequest, "missing client or command")
	}
	normalized := *cmd
	normalized.Room = strings.ToLower(strings.TrimSpace(cmd.Room))
	cmd = &normalized

	switch cmd.Kind {
	case CommandSendDirect:
		return h.sendDirect(c, cmd)
	case CommandSendRoomMessage:
		return h.sendRoomMessage(c, cmd)
	case CommandCreateRoom:
		return h.createRoom(c, cmd)
	case CommandJoinRoom:
		return h.joinRoom(c, cmd)
	case CommandLeaveRoom:
		return h.leaveRoom(c, cmd)
	case CommandRoomMembers:
		room, ok := h.rooms[cmd.Room]
		if !ok {
			return nil, coreError(ErrCodeRoomNotFound, "room not found")
		}
		return &Result{Members: room.Members()}, nil
	case CommandPing:
		return &Result{}, nil
	default:
		return nil, coreError(ErrCodeBadRequest, "unknown command")
	}
}

func (h *Hub) sendDirect(c *Client, cmd *Command) (*Result, error) {
	to := strings.TrimSpace(cmd.Message.To)
	if to == "" || cmd.Message.Text == "" {
		return nil, coreError(ErrCodeBadRequest, "recipient and text are required")
	}

	msg := cmd.Message
	msg.From = c.Name
	msg.To = to
	msg.Room = ""
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now()

	h.deliverToUser(to, &Event{Kind: EventDirectMessage, User: c.Name, Message: msg})
	return &Result{Message: msg}, nil
}

func (h *Hub) sendRoomMessage(c *Client, cmd *Command) (*Result, error) {
	room, ok := h.rooms[cmd.Room]
	if !ok {
		return nil, coreError(ErrCodeRoomNotFound, "room not found")
	}
	if !room.HasClient(c) {
		return nil, coreError(ErrCodeNotInRoom, "not in room")
	}

	msg := cmd.Message
	msg.From = c.Name
	msg.Room = room.Name
	msg.To = ""
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now()

	// The sender is a participant too and receives its own message.
	room.Broadcast(&Event{Kind: EventRoomMessage, Room: room.Name, User: c.Name, Message: msg})
	return &Result{Message: msg}, nil
}

func (h *Hub) createRoom(c *Client, cmd *Command) (*Result, error) {
	name := cmd.Room
	if name == "" {
		return nil, coreError(ErrCodeBadRequest, "room name is required")
	}
	if _, exists := h.rooms[name]; exists {
		return nil, coreError(ErrCodeRoomExists, "room already exists")
	}

	room := NewRoom(name, c.Name)
	room.AddClient(c)
	h.rooms[name] = room

	for _, invitee := range cmd.Invitees {
		invitee = strings.TrimSpace(invitee)
		if invitee == "" || invitee == c.Name {
			continue
		}
		room.AddMember(invitee)
		h.deliverToUser(invitee, &Event{Kind: EventInvited, Room: name, User: c.Name})
	}

	h.log.Info().Str("room", name).Str("owner", c.Name).Int("invitees", len(cmd.Invitees)).Msg("room created")
	return &Result{Members: room.Members()}, nil
}

func (h *Hub) joinRoom(c *Client, cmd *Command) (*Result, error) {
	room, ok := h.rooms[cmd.Room]
	if !ok {
		return nil, coreError(ErrCodeRoomNotFound, "room not found")
	}
	if !room.IsMember(c.Name) {
		return nil, coreError(ErrCodeNotMember, "not a member of the room")
	}

	// Joining twice is harmless; reconnecting clients rejoin every room.
	if room.AddClient(c) {
		room.Broadcast(&Event{Kind: EventUserJoined, Room: room.Name, User: c.Name})
	}
	return &Result{Members: room.Members()}, nil
}

func (h *Hub) leaveRoom(c *Client, cmd *Command) (*Result, error) {
	room, ok := h.rooms[cmd.Room]
	if !ok {
		return nil, coreError(ErrCodeRoomNotFound, "room not found")
	}
	if !room.RemoveClient(c) {
		return nil, coreError(ErrCodeNotInRoom, "not in room")
	}
	room.Broadcast(&Event{Kind: EventUserLeft, Room: room.Name, User: c.Name})
	return &Result{}, nil
}

// deliverToUser sends the event to every live connection of user, or queues
// it until the user connects.
func (h *Hub) deliverToUser(user string, event *Event) {
	conns := h.clients[user]
	if len(conns) == 0 {
		h.pending[user] = append(h.pending[user], event)
		return
	}
	for client := range conns {
		if len(client.backlog) > 0 || !client.deliver(event) {
			client.backlog = append(client.backlog, event)
		}
	}
}

func (h *Hub) flushBacklogs() {
	for _, conns := range h.clients {
		for client := range conns {
			if len(client.backlog) > 0 {
				client.flush()
			}
		}
	}
}
