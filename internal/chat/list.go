package chat

// List is the ordered chat list of a session. It is not safe for concurrent
// use; the session confines it to its dispatch loop.
type List struct {
	chats []Chat
}

// Find returns the chat of the given kind and name, or nil.
func (l *List) Find(kind Kind, name string) Chat {
	for _, c := range l.chats {
		if c.Kind() == kind && c.Name() == name {
			return c
		}
	}
	return nil
}

// Direct returns the direct chat with peer, creating it when missing.
func (l *List) Direct(peer string) (c Chat, created bool) {
	if existing := l.Find(KindSingleUser, peer); existing != nil {
		return existing, false
	}
	c = NewSingleUserChat(peer)
	l.chats = append(l.chats, c)
	return c, true
}

// AddRoom inserts an empty room chat unless one with the same name exists.
func (l *List) AddRoom(room string, timeCreated int64) (c Chat, added bool) {
	if existing := l.Find(KindMultiUser, room); existing != nil {
		return existing, false
	}
	c = NewMultiUserChat(room, timeCreated)
	l.chats = append(l.chats, c)
	return c, true
}

// Rooms returns the names of all room chats.
func (l *List) Rooms() []string {
	var rooms []string
	for _, c := range l.chats {
		if c.Kind() == KindMultiUser {
			rooms = append(rooms, c.Name())
		}
	}
	return rooms
}

// Sort re-orders the list by recent activity.
func (l *List) Sort() {
	Sort(l.chats)
}

// Len returns the number of chats.
func (l *List) Len() int { return len(l.chats) }

// Snapshot returns deep copies of all chats in list order.
func (l *List) Snapshot() []Chat {
	out := make([]Chat, len(l.chats))
	for i, c := range l.chats {
		out[i] = Clone(c)
	}
	return out
}
