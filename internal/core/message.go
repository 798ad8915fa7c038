package core

import "time"

// Message is the relay's view of a chat message. Direct messages set To,
// room messages set Room.
type Message struct {
	ID        string
	Room      string
	From      string
	To        string
	Text      string
	CreatedAt time.Time
}
