package session

import (
	"sync"

	"github.com/vovakirdan/wirechat-client/internal/chat"
)

// EventKind identifies a session change notification.
type EventKind int

const (
	// EventChatsChanged fires when a chat is added to the list.
	EventChatsChanged EventKind = iota
	// EventMessageAdded fires when a message is appended to a chat.
	EventMessageAdded
	// EventConnectionChanged fires when the session goes online or offline.
	EventConnectionChanged
	// EventAuthRejected fires once per streak of rejected reconnects.
	EventAuthRejected
)

func (k EventKind) String() string {
	switch k {
	case EventChatsChanged:
		return "chats_changed"
	case EventMessageAdded:
		return "message_added"
	case EventConnectionChanged:
		return "connection_changed"
	case EventAuthRejected:
		return "auth_rejected"
	default:
		return "unknown"
	}
}

// Event is a change notification. Chat is a detached copy.
type Event struct {
	Kind    EventKind
	Chat    chat.Chat
	Message chat.Message
	Online  bool
}

const subscriberBuffer = 64

// broadcaster fans events out to subscribers. Slow subscribers miss events
// and should take a fresh snapshot.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan Event]struct{})}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

func (b *broadcaster) emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
