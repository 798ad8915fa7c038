package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

// migrations are applied in order and tracked with PRAGMA user_version.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS messages (
  id         TEXT PRIMARY KEY,
  content    TEXT NOT NULL,
  "from"     TEXT NOT NULL,
  "to"       TEXT,
  time       INTEGER NOT NULL,
  group_chat TEXT,
  CHECK (("to" IS NULL) <> (group_chat IS NULL))
);
`,
	`
CREATE TABLE IF NOT EXISTS group_chats (
  name         TEXT PRIMARY KEY,
  time_created INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_messages_time ON messages (time);
`,
	`
CREATE INDEX IF NOT EXISTS idx_messages_group_time ON messages (group_chat, time);
`,
}

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db        *sql.DB
	closeOnce sync.Once
	closeErr  error
}

var _ store.Store = (*SQLiteStore)(nil)

// FileName returns the per-user database file name.
func FileName(username string) string {
	return "database-" + username + ".db"
}

// Open opens (or creates) the database of username under dataDir.
func Open(dataDir, username string) (*SQLiteStore, error) {
	if username == "" {
		return nil, errors.New("open sqlite: username is required")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return OpenPath(filepath.Join(dataDir, FileName(username)))
}

// OpenPath opens SQLite at an explicit path and runs schema migrations.
// ":memory:" yields a private in-memory database.
func OpenPath(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_busy_timeout=5000"
	if dbPath != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", filepath.ToSlash(dbPath))
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; it also keeps :memory: shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection. Only the first call has an effect.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

func (s *SQLiteStore) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("set schema version %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration transaction: %w", err)
	}
	return nil
}

// ==== MessageStore implementation ====

// InsertMessage persists a message, ignoring primary-key conflicts.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg store.MessageRecord) (bool, error) {
	if err := msg.Validate(); err != nil {
		return false, err
	}

	query := `
		INSERT OR IGNORE INTO messages (id, content, "from", "to", time, group_chat)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.ID, msg.Content, msg.From, nullString(msg.To), msg.Time, nullString(msg.GroupChat))
	if err != nil {
		return false, fmt.Errorf("insert message %q: %w", msg.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n == 1, nil
}

// HasMessage reports whether a message id is already stored.
func (s *SQLiteStore) HasMessage(ctx context.Context, id string) (bool, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = ?)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check message %q: %w", id, err)
	}
	return exists == 1, nil
}

// GetMessage retrieves a message by id.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.MessageRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, "from", "to", time, group_chat
		FROM messages
		WHERE id = ?
	`, id)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %q: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// Messages returns every stored message in chronological order.
func (s *SQLiteStore) Messages(ctx context.Context) ([]store.MessageRecord, error) {
	return s.queryMessages(ctx, `
		SELECT id, content, "from", "to", time, group_chat
		FROM messages
		ORDER BY time ASC, rowid ASC
	`)
}

// PeerMessages returns direct messages sent to or received from peer.
func (s *SQLiteStore) PeerMessages(ctx context.Context, peer string) ([]store.MessageRecord, error) {
	return s.queryMessages(ctx, `
		SELECT id, content, "from", "to", time, group_chat
		FROM messages
		WHERE group_chat IS NULL AND ("from" = ? OR "to" = ?)
		ORDER BY time ASC, rowid ASC
	`, peer, peer)
}

// GroupMessages returns the messages of a room.
func (s *SQLiteStore) GroupMessages(ctx context.Context, group string) ([]store.MessageRecord, error) {
	return s.queryMessages(ctx, `
		SELECT id, content, "from", "to", time, group_chat
		FROM messages
		WHERE group_chat = ?
		ORDER BY time ASC, rowid ASC
	`, group)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]store.MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]store.MessageRecord, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*store.MessageRecord, error) {
	var (
		msg       store.MessageRecord
		to        sql.NullString
		groupChat sql.NullString
	)
	if err := row.Scan(&msg.ID, &msg.Content, &msg.From, &to, &msg.Time, &groupChat); err != nil {
		return nil, err
	}
	if to.Valid {
		msg.To = &to.String
	}
	if groupChat.Valid {
		msg.GroupChat = &groupChat.String
	}
	return &msg, nil
}

// ==== GroupChatStore implementation ====

// InsertGroupChat records a room, ignoring primary-key conflicts.
func (s *SQLiteStore) InsertGroupChat(ctx context.Context, group store.GroupChatRecord) (bool, error) {
	if group.Name == "" {
		return false, errors.Join(store.ErrInvalidRecord, errors.New("group chat name is required"))
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO group_chats (name, time_created)
		VALUES (?, ?)
	`, group.Name, group.TimeCreated)
	if err != nil {
		return false, fmt.Errorf("insert group chat %q: %w", group.Name, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n == 1, nil
}

// GetGroupChat retrieves a room by name.
func (s *SQLiteStore) GetGroupChat(ctx context.Context, name string) (*store.GroupChatRecord, error) {
	var group store.GroupChatRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT name, time_created
		FROM group_chats
		WHERE name = ?
	`, name).Scan(&group.Name, &group.TimeCreated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("group chat %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query group chat: %w", err)
	}
	return &group, nil
}

// GroupChats returns all joined rooms ordered by creation time.
func (s *SQLiteStore) GroupChats(ctx context.Context) ([]store.GroupChatRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, time_created
		FROM group_chats
		ORDER BY time_created ASC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query group chats: %w", err)
	}
	defer rows.Close()

	groups := make([]store.GroupChatRecord, 0)
	for rows.Next() {
		var group store.GroupChatRecord
		if err := rows.Scan(&group.Name, &group.TimeCreated); err != nil {
			return nil, fmt.Errorf("scan group chat: %w", err)
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
