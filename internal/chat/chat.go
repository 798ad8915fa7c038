// Package chat holds the client-side conversation model.
package chat

import "sort"

// Message is a single chat message as seen by the client.
type Message struct {
	ID      string
	Content string
	From    string
	// Time is the local arrival time in unix milliseconds.
	Time int64
}

// Kind distinguishes the chat variants.
type Kind int

const (
	// KindSingleUser is a one-to-one conversation keyed by the peer username.
	KindSingleUser Kind = iota
	// KindMultiUser is a group conversation keyed by the room name.
	KindMultiUser
)

func (k Kind) String() string {
	switch k {
	case KindSingleUser:
		return "single"
	case KindMultiUser:
		return "multi"
	default:
		return "unknown"
	}
}

// Chat is implemented by *SingleUserChat and *MultiUserChat only.
type Chat interface {
	Kind() Kind
	Name() string
	Messages() []Message
	// LastActivity is the ordering key of the chat list.
	LastActivity() int64

	appendMessage(m Message)
	clone() Chat
}

// SingleUserChat is a direct conversation with one peer.
type SingleUserChat struct {
	name     string
	messages []Message
}

// NewSingleUserChat returns an empty direct chat with peer.
func NewSingleUserChat(peer string) *SingleUserChat {
	return &SingleUserChat{name: peer}
}

func (c *SingleUserChat) Kind() Kind          { return KindSingleUser }
func (c *SingleUserChat) Name() string        { return c.name }
func (c *SingleUserChat) Messages() []Message { return c.messages }

// LastActivity returns the time of the last message, or zero.
func (c *SingleUserChat) LastActivity() int64 {
	if n := len(c.messages); n > 0 {
		return c.messages[n-1].Time
	}
	return 0
}

func (c *SingleUserChat) appendMessage(m Message) { c.messages = append(c.messages, m) }

func (c *SingleUserChat) clone() Chat {
	return &SingleUserChat{name: c.name, messages: append([]Message(nil), c.messages...)}
}

// MultiUserChat is a group conversation in a room.
type MultiUserChat struct {
	name        string
	timeCreated int64
	messages    []Message
}

// NewMultiUserChat returns an empty room chat created at timeCreated (unix ms).
func NewMultiUserChat(room string, timeCreated int64) *MultiUserChat {
	return &MultiUserChat{name: room, timeCreated: timeCreated}
}

func (c *MultiUserChat) Kind() Kind          { return KindMultiUser }
func (c *MultiUserChat) Name() string        { return c.name }
func (c *MultiUserChat) Messages() []Message { return c.messages }

// TimeCreated is the local join time of the room in unix milliseconds.
func (c *MultiUserChat) TimeCreated() int64 { return c.timeCreated }

// LastActivity returns the time of the last message, or the creation time
// when the room has no messages yet.
func (c *MultiUserChat) LastActivity() int64 {
	if n := len(c.messages); n > 0 {
		return c.messages[n-1].Time
	}
	return c.timeCreated
}

func (c *MultiUserChat) appendMessage(m Message) { c.messages = append(c.messages, m) }

func (c *MultiUserChat) clone() Chat {
	return &MultiUserChat{
		name:        c.name,
		timeCreated: c.timeCreated,
		messages:    append([]Message(nil), c.messages...),
	}
}

// Append adds m to the end of c. Arrival order is preserved regardless of m.Time.
func Append(c Chat, m Message) {
	c.appendMessage(m)
}

// Contains reports whether c already holds a message with the given id.
func Contains(c Chat, id string) bool {
	for _, m := range c.Messages() {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of c that is safe to hand to other goroutines.
func Clone(c Chat) Chat {
	if c == nil {
		return nil
	}
	return c.clone()
}

// Sort orders chats by most recent activity, newest first. Ties are broken
// by kind, then name, so the order depends only on the chats themselves.
func Sort(chats []Chat) {
	sort.Slice(chats, func(i, j int) bool {
		a, b := chats[i], chats[j]
		if a.LastActivity() != b.LastActivity() {
			return a.LastActivity() > b.LastActivity()
		}
		if a.Kind() != b.Kind() {
			return a.Kind() < b.Kind()
		}
		return a.Name() < b.Name()
	})
}
