package sqlite

import (
	"context"
	"testing"

	relay "github.com/relaykit/relay"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(":memory:")
	t.Cleanup(func() { s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []relay.TurnRecord{
		{ID: "t1", ConversationID: "c1", Query: "first q", Response: "first a", Provider: "general", CreatedAt: 100},
		{ID: "t2", ConversationID: "c1", Query: "second q", Response: "second a", Provider: "code", CreatedAt: 200},
		{ID: "t3", ConversationID: "c2", Query: "other conv", Response: "other a", Provider: "general", CreatedAt: 150},
	}
	for _, rec := range records {
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append %s: %v", rec.ID, err)
		}
	}

	turns, err := s.Recent(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("turns = %d, want 4", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Content != "first q" {
		t.Fatalf("turns[0] = %+v", turns[0])
	}
	if turns[3].Role != "assistant" || turns[3].Content != "second a" {
		t.Fatalf("turns[3] = %+v", turns[3])
	}
}

func TestRecentBounded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := relay.TurnRecord{
			ID:             relay.NewID(),
			ConversationID: "c1",
			Query:          "q",
			Response:       "a",
			Provider:       "general",
			CreatedAt:      int64(i),
		}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	turns, err := s.Recent(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("turns = %d, want 4 (2 records)", len(turns))
	}
}

func TestRecentEmptyConversation(t *testing.T) {
	s := newTestStore(t)

	turns, err := s.Recent(context.Background(), "missing", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("turns = %+v", turns)
	}
}
