package core

import "sort"

// Room groups clients subscribed to the same channel. Members are the users
// allowed to join; clients are the connections currently joined.
type Room struct {
	Name    string
	Owner   string
	members map[string]struct{}
	clients map[*Client]struct{}
}

// NewRoom constructs a room owned by owner with no clients.
func NewRoom(name, owner string) *Room {
	return &Room{
		Name:    name,
		Owner:   owner,
		members: map[string]struct{}{owner: {}},
		clients: make(map[*Client]struct{}),
	}
}

// AddMember grants a user access to the room.
func (r *Room) AddMember(user string) {
	r.members[user] = struct{}{}
}

// IsMember reports whether user may join the room.
func (r *Room) IsMember(user string) bool {
	_, ok := r.members[user]
	return ok
}

// Members returns the sorted member names.
func (r *Room) Members() []string {
	out := make([]string, 0, len(r.members))
	for m := range r.members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// HasClient reports whether the connection joined the room.
func (r *Room) HasClient(c *Client) bool {
	_, ok := r.clients[c]
	return ok
}

// Broadcast sends an event to all clients in the room.
func (r *Room) Broadcast(event *Event) {
	for client := range r.clients {
		client.deliver(event)
	}
}
