package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventDirectMessage delivers a direct message to its recipient.
	EventDirectMessage EventKind = iota
	// EventRoomMessage notifies clients about a chat message in a room.
	EventRoomMessage
	// EventInvited notifies a user that they were added to a room.
	EventInvited
	// EventUserJoined notifies room participants about a user joining.
	EventUserJoined
	// EventUserLeft notifies room participants about a user leaving.
	EventUserLeft
)

func (k EventKind) String() string {
	switch k {
	case EventDirectMessage:
		return "direct_message"
	case EventRoomMessage:
		return "room_message"
	case EventInvited:
		return "invited"
	case EventUserJoined:
		return "user_joined"
	case EventUserLeft:
		return "user_left"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Room    string
	User    string
	Message Message
}
