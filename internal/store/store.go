package store

import (
	"context"
	"errors"
)

// ErrInvalidRecord is returned for records that violate the schema contract.
var ErrInvalidRecord = errors.New("invalid record")

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// MessageRecord is a persisted chat message. Exactly one of To and GroupChat
// is set: To names the peer of a direct message, GroupChat names the room.
type MessageRecord struct {
	ID        string
	Content   string
	From      string
	To        *string
	Time      int64
	GroupChat *string
}

// GroupChatRecord is a persisted room the user has joined.
type GroupChatRecord struct {
	Name        string
	TimeCreated int64
}

// Validate checks the record against the schema contract.
func (r MessageRecord) Validate() error {
	if r.ID == "" {
		return errors.Join(ErrInvalidRecord, errors.New("message id is required"))
	}
	if (r.To == nil) == (r.GroupChat == nil) {
		return errors.Join(ErrInvalidRecord, errors.New("exactly one of to and group_chat must be set"))
	}
	return nil
}

// Direct builds a direct message record.
func Direct(id, content, from, to string, time int64) MessageRecord {
	return MessageRecord{ID: id, Content: content, From: from, To: &to, Time: time}
}

// Group builds a room message record.
func Group(id, content, from, group string, time int64) MessageRecord {
	return MessageRecord{ID: id, Content: content, From: from, Time: time, GroupChat: &group}
}

// MessageStore handles message persistence.
type MessageStore interface {
	// InsertMessage persists a message. A record whose id already exists is
	// left untouched and inserted is false.
	InsertMessage(ctx context.Context, msg MessageRecord) (inserted bool, err error)

	// HasMessage reports whether a message with the id is stored.
	HasMessage(ctx context.Context, id string) (bool, error)

	// GetMessage retrieves a message by id.
	GetMessage(ctx context.Context, id string) (*MessageRecord, error)

	// Messages returns all messages ordered by time, then insertion.
	Messages(ctx context.Context) ([]MessageRecord, error)

	// PeerMessages returns the direct messages exchanged with peer.
	PeerMessages(ctx context.Context, peer string) ([]MessageRecord, error)

	// GroupMessages returns the messages of a room.
	GroupMessages(ctx context.Context, group string) ([]MessageRecord, error)
}

// GroupChatStore handles joined room persistence.
type GroupChatStore interface {
	// InsertGroupChat records a joined room. An existing name is left untouched.
	InsertGroupChat(ctx context.Context, group GroupChatRecord) (inserted bool, err error)

	// GetGroupChat retrieves a room by name.
	GetGroupChat(ctx context.Context, name string) (*GroupChatRecord, error)

	// GroupChats returns all joined rooms.
	GroupChats(ctx context.Context) ([]GroupChatRecord, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore
	GroupChatStore

	// Close closes the underlying database connection.
	Close() error
}
