// Package proto defines the JSON frames exchanged over the relay websocket.
package proto

import "encoding/json"

// Inbound is the envelope for frames coming from the client. Requests carry
// an ID that the relay echoes in the matching response.
type Inbound struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello   = "hello"
	InboundTypeMsg     = "msg"
	InboundTypeGroup   = "gmsg"
	InboundTypeCreate  = "create"
	InboundTypeJoin    = "join"
	InboundTypeMembers = "members"
	InboundTypePing    = "ping"

	OutboundTypeReady    = "ready"
	OutboundTypeResponse = "response"
	OutboundTypeEvent    = "event"
	OutboundTypeError    = "error"

	EventDirect  = "direct"
	EventRoom    = "room"
	EventInvited = "invited"
)

// HelloData is the first frame a client sends. Token is a relay session token.
type HelloData struct {
	Token    string `json:"token"`
	Protocol int    `json:"protocol,omitempty"`
}

// MsgData is a direct message request.
type MsgData struct {
	ID   string `json:"id,omitempty"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// GroupData is a room message request.
type GroupData struct {
	Room string `json:"room"`
	Text string `json:"text"`
}

// CreateData creates a room and invites members.
type CreateData struct {
	Room     string   `json:"room"`
	Invitees []string `json:"invitees,omitempty"`
}

// RoomData names a room for join and members requests.
type RoomData struct {
	Room string `json:"room"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// OutboundFrame is Outbound as decoded by clients, with Data left raw.
type OutboundFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// ReadyData acknowledges a hello.
type ReadyData struct {
	User     string `json:"user"`
	Protocol int    `json:"protocol"`
}

// EventMessage carries a direct or room message.
type EventMessage struct {
	ID   string `json:"id"`
	Room string `json:"room,omitempty"`
	From string `json:"from"`
	To   string `json:"to,omitempty"`
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}

// EventInvite notifies a user that they were added to a room.
type EventInvite struct {
	Room string `json:"room"`
	By   string `json:"by"`
}

// MembersData answers a members request.
type MembersData struct {
	Room    string   `json:"room"`
	Members []string `json:"members"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Msg
}
