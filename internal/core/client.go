package core

import "github.com/google/uuid"

// Client is one authenticated connection as seen by the core layer.
type Client struct {
	ID     string
	Name   string
	Events chan *Event

	// backlog holds direct events that did not fit in Events. Owned by the
	// hub goroutine.
	backlog []*Event
}

// NewClient constructs a client for the user name with an initialized event
// channel. An empty id gets a generated one.
func NewClient(id, name string) *Client {
	if id == "" {
		id = uuid.NewString()
	}
	return &Client{
		ID:     id,
		Name:   name,
		Events: make(chan *Event, 256),
	}
}

func (c *Client) deliver(event *Event) bool {
	select {
	case c.Events <- event:
		return true
	default:
		// Drop if slow consumer.
		return false
	}
}

// flush moves backlog events into Events until the buffer is full.
func (c *Client) flush() {
	n := 0
	for _, ev := range c.backlog {
		if !c.deliver(ev) {
			break
		}
		n++
	}
	c.backlog = c.backlog[n:]
	if len(c.backlog) == 0 {
		c.backlog = nil
	}
}
