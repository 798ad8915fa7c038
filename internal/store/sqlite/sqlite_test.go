package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/vovakirdan/wirechat-client/internal/store"
)

func newTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()

	dataDir := t.TempDir()
	s, err := Open(dataDir, "qasim")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s, dataDir
}

func TestBasicFunctionality(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	messages := []store.MessageRecord{
		store.Direct("1", "Hello, World!", "Qasim", "Jazim", 1),
		store.Direct("2", "I am Qasim by the way!!!", "Qasim", "Jazim", 2),
		store.Direct("3", "Goodbye, World!", "Jazim", "Qasim", 3),
		store.Direct("4", "Its been nice knowing you", "Jazim", "Qasim", 4),
		store.Group("5", "Why did you add me to the group?", "Jazim", "Random test group", 5),
		store.Group("6", "I was testing the group chat feature.", "Qasim", "Random test group", 6),
		store.Group("7", "OK", "Jazim", "Random test group", 7),
		store.Group("8", "Stop adding me to random group chats", "Random", "Random test group", 8),
		store.Group("9", "Nothing to see here", "Random", "Random test group 2", 9),
	}

	// Insert out of order; reads must come back ordered by time.
	for _, i := range []int{8, 3, 0, 5, 1, 7, 2, 6, 4} {
		inserted, err := s.InsertMessage(ctx, messages[i])
		if err != nil {
			t.Fatalf("insert %s: %v", messages[i].ID, err)
		}
		if !inserted {
			t.Fatalf("expected %s to be inserted", messages[i].ID)
		}
	}

	all, err := s.Messages(ctx)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	assertIDs(t, all, "1", "2", "3", "4", "5", "6", "7", "8", "9")

	// Direct messages in either direction belong to the peer conversation.
	peer, err := s.PeerMessages(ctx, "Jazim")
	if err != nil {
		t.Fatalf("PeerMessages failed: %v", err)
	}
	assertIDs(t, peer, "1", "2", "3", "4")

	group, err := s.GroupMessages(ctx, "Random test group")
	if err != nil {
		t.Fatalf("GroupMessages failed: %v", err)
	}
	assertIDs(t, group, "5", "6", "7", "8")

	group2, err := s.GroupMessages(ctx, "Random test group 2")
	if err != nil {
		t.Fatalf("GroupMessages failed: %v", err)
	}
	assertIDs(t, group2, "9")

	if all[4].To != nil || all[4].GroupChat == nil || *all[4].GroupChat != "Random test group" {
		t.Fatalf("unexpected group record: %+v", all[4])
	}
}

func TestInsertMessageIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertMessage(ctx, store.Direct("dup", "first", "jazim", "qasim", 10)); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	inserted, err := s.InsertMessage(ctx, store.Direct("dup", "second", "jazim", "qasim", 20))
	if err != nil {
		t.Fatalf("duplicate insert must not fail: %v", err)
	}
	if inserted {
		t.Fatalf("expected duplicate insert to be ignored")
	}

	got, err := s.GetMessage(ctx, "dup")
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if got.Content != "first" || got.Time != 10 {
		t.Fatalf("stored record changed: %+v", got)
	}

	has, err := s.HasMessage(ctx, "dup")
	if err != nil || !has {
		t.Fatalf("expected HasMessage true, got %v (%v)", has, err)
	}
	has, err = s.HasMessage(ctx, "missing")
	if err != nil || has {
		t.Fatalf("expected HasMessage false, got %v (%v)", has, err)
	}
	if _, err := s.GetMessage(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertMessageRejectsInvalidRecords(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	to, group := "jazim", "room"
	cases := []store.MessageRecord{
		{ID: "", Content: "x", From: "qasim", To: &to},
		{ID: "both", Content: "x", From: "qasim", To: &to, GroupChat: &group},
		{ID: "neither", Content: "x", From: "qasim"},
	}
	for _, rec := range cases {
		if _, err := s.InsertMessage(ctx, rec); !errors.Is(err, store.ErrInvalidRecord) {
			t.Fatalf("expected ErrInvalidRecord for %+v, got %v", rec, err)
		}
	}
}

func TestGroupChats(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		inserted, err := s.InsertGroupChat(ctx, store.GroupChatRecord{Name: fmt.Sprintf("Group %d", i), TimeCreated: int64(100 + i)})
		if err != nil || !inserted {
			t.Fatalf("insert group %d: inserted=%v err=%v", i, inserted, err)
		}
	}

	inserted, err := s.InsertGroupChat(ctx, store.GroupChatRecord{Name: "Group 3", TimeCreated: 999})
	if err != nil {
		t.Fatalf("duplicate group insert must not fail: %v", err)
	}
	if inserted {
		t.Fatalf("expected duplicate group insert to be ignored")
	}

	g, err := s.GetGroupChat(ctx, "Group 3")
	if err != nil {
		t.Fatalf("GetGroupChat failed: %v", err)
	}
	if g.TimeCreated != 103 {
		t.Fatalf("creation time overwritten: %d", g.TimeCreated)
	}

	groups, err := s.GroupChats(ctx)
	if err != nil {
		t.Fatalf("GroupChats failed: %v", err)
	}
	if len(groups) != 20 {
		t.Fatalf("expected 20 groups, got %d", len(groups))
	}
	for i, g := range groups {
		if g.Name != fmt.Sprintf("Group %d", i) {
			t.Fatalf("position %d: got %s", i, g.Name)
		}
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	s, dataDir := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertMessage(ctx, store.Direct("m1", "persisted", "qasim", "jazim", 1)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.InsertGroupChat(ctx, store.GroupChatRecord{Name: "room", TimeCreated: 5}); err != nil {
		t.Fatalf("insert group: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close must be a no-op: %v", err)
	}

	reopened, err := Open(dataDir, "qasim")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	all, err := reopened.Messages(ctx)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	assertIDs(t, all, "m1")

	groups, err := reopened.GroupChats(ctx)
	if err != nil || len(groups) != 1 || groups[0].Name != "room" {
		t.Fatalf("unexpected groups %+v (%v)", groups, err)
	}
}

func TestOpenPathInMemory(t *testing.T) {
	s, err := OpenPath(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	defer s.Close()

	if _, err := s.InsertMessage(context.Background(), store.Group("g1", "hi", "qasim", "room", 1)); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func assertIDs(t *testing.T, records []store.MessageRecord, ids ...string) {
	t.Helper()

	if len(records) != len(ids) {
		t.Fatalf("expected %d records, got %d: %+v", len(ids), len(records), records)
	}
	for i, id := range ids {
		if records[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, records[i].ID)
		}
	}
}
