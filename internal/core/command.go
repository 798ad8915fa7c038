package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendDirect delivers a message to every connection of one user.
	CommandSendDirect CommandKind = iota
	// CommandSendRoomMessage delivers a chat message to room participants.
	CommandSendRoomMessage
	// CommandCreateRoom creates a room and invites members.
	CommandCreateRoom
	// CommandJoinRoom subscribes the client to a room.
	CommandJoinRoom
	// CommandLeaveRoom unsubscribes the client from a room.
	CommandLeaveRoom
	// CommandRoomMembers lists the members of a room.
	CommandRoomMembers
	// CommandPing is a liveness probe.
	CommandPing
)

func (k CommandKind) String() string {
	switch k {
	case CommandSendDirect:
		return "send_direct"
	case CommandSendRoomMessage:
		return "send_room_message"
	case CommandCreateRoom:
		return "create_room"
	case CommandJoinRoom:
		return "join_room"
	case CommandLeaveRoom:
		return "leave_room"
	case CommandRoomMembers:
		return "room_members"
	case CommandPing:
		return "ping"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind     CommandKind
	Room     string
	Message  Message
	Invitees []string
}

// Result is the hub's answer to a command.
type Result struct {
	Message Message
	Members []string
}
