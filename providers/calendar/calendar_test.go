package calendar

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	relay "github.com/relaykit/relay"
)

type fakeSource struct {
	events  []Event
	created []Event
	err     error
}

func (f *fakeSource) Events(_ context.Context, from, to time.Time) ([]Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Event
	for _, ev := range f.events {
		if from.Before(ev.End) && ev.Start.Before(to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeSource) Create(_ context.Context, ev Event) (Event, error) {
	if f.err != nil {
		return Event{}, f.err
	}
	f.created = append(f.created, ev)
	return ev, nil
}

// toolBackend scripts CompleteWithTools replies and records tool results.
type toolBackend struct {
	replies []relay.Completion
	calls   int
	seen    [][]relay.ChatMessage
}

func (b *toolBackend) Complete(context.Context, []relay.ChatMessage) (relay.Completion, error) {
	return relay.Completion{}, nil
}

func (b *toolBackend) CompleteStream(_ context.Context, _ []relay.ChatMessage, ch chan<- relay.StreamChunk) (relay.Completion, error) {
	close(ch)
	return relay.Completion{}, nil
}

func (b *toolBackend) CompleteWithTools(_ context.Context, messages []relay.ChatMessage, _ []relay.ToolSpec) (relay.Completion, error) {
	b.seen = append(b.seen, messages)
	reply := b.replies[b.calls]
	b.calls++
	return reply, nil
}

func (b *toolBackend) Name() string { return "tool-mock" }

func rangeArgs(start, end string) json.RawMessage {
	return json.RawMessage(`{"start": "` + start + `", "end": "` + end + `"}`)
}

func TestInvokeAnswersAfterToolRound(t *testing.T) {
	src := &fakeSource{events: []Event{{
		Title: "standup",
		Start: time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 9, 2, 9, 15, 0, 0, time.UTC),
	}}}
	backend := &toolBackend{replies: []relay.Completion{
		{ToolCalls: []relay.ToolCall{{
			ID: "tc-1", Name: "get_events",
			Args: rangeArgs("2026-09-02T00:00:00Z", "2026-09-03T00:00:00Z"),
		}}},
		{Text: "You have standup tomorrow at 09:00."},
	}}

	p := New(backend, src)
	got, err := p.Invoke(context.Background(), relay.Invocation{Query: "what's on tomorrow?"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got.Streaming() {
		t.Fatal("calendar result should be immediate")
	}
	if got.Text != "You have standup tomorrow at 09:00." {
		t.Fatalf("text = %q", got.Text)
	}

	// Second completion must see the tool result with the event in it.
	final := backend.seen[1]
	last := final[len(final)-1]
	if last.Role != "tool" || last.ToolCallID != "tc-1" {
		t.Fatalf("last message = %+v", last)
	}
	if !strings.Contains(last.Content, "standup") {
		t.Fatalf("tool result = %q", last.Content)
	}
}

func TestInvokeDirectAnswerWithoutTools(t *testing.T) {
	backend := &toolBackend{replies: []relay.Completion{
		{Text: "Which week do you mean?"},
	}}
	p := New(backend, &fakeSource{})
	got, err := p.Invoke(context.Background(), relay.Invocation{Query: "clear my schedule sometime"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got.Text != "Which week do you mean?" {
		t.Fatalf("text = %q", got.Text)
	}
	if backend.calls != 1 {
		t.Fatalf("backend calls = %d", backend.calls)
	}
}

func TestCreateEventConflict(t *testing.T) {
	src := &fakeSource{events: []Event{{
		Title: "dentist",
		Start: time.Date(2026, 9, 5, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 9, 5, 11, 0, 0, 0, time.UTC),
	}}}
	p := New(&toolBackend{}, src)

	out, err := p.createEvent(context.Background(), json.RawMessage(
		`{"title": "coffee", "start": "2026-09-05T10:30:00Z", "end": "2026-09-05T11:30:00Z"}`))
	if err != nil {
		t.Fatalf("createEvent: %v", err)
	}
	res := out.(map[string]any)
	if res["created"] != false {
		t.Fatalf("result = %+v", res)
	}
	if len(src.created) != 0 {
		t.Fatalf("conflicting event was stored: %+v", src.created)
	}
}

func TestCreateEventStoresWhenFree(t *testing.T) {
	src := &fakeSource{}
	p := New(&toolBackend{}, src)

	out, err := p.createEvent(context.Background(), json.RawMessage(
		`{"title": "coffee", "location": "corner cafe", "start": "2026-09-05T10:30:00Z", "end": "2026-09-05T11:30:00Z"}`))
	if err != nil {
		t.Fatalf("createEvent: %v", err)
	}
	if out.(map[string]any)["created"] != true {
		t.Fatalf("result = %+v", out)
	}
	if len(src.created) != 1 || src.created[0].Location != "corner cafe" {
		t.Fatalf("stored = %+v", src.created)
	}
}

func TestExecuteReportsToolErrors(t *testing.T) {
	p := New(&toolBackend{}, &fakeSource{})

	got := p.execute(context.Background(), relay.ToolCall{
		Name: "get_events",
		Args: rangeArgs("2026-09-05T10:00:00Z", "2026-09-05T09:00:00Z"),
	})
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(got), &payload); err != nil {
		t.Fatalf("result not JSON: %q", got)
	}
	if payload.Error == "" {
		t.Fatalf("want error payload, got %q", got)
	}

	got = p.execute(context.Background(), relay.ToolCall{Name: "nope", Args: json.RawMessage(`{}`)})
	if !strings.Contains(got, "unknown tool") {
		t.Fatalf("unknown tool result = %q", got)
	}
}

func TestInvokeRoundsExhausted(t *testing.T) {
	loop := relay.Completion{ToolCalls: []relay.ToolCall{{
		ID: "tc", Name: "get_events",
		Args: rangeArgs("2026-09-02T00:00:00Z", "2026-09-03T00:00:00Z"),
	}}}
	backend := &toolBackend{replies: []relay.Completion{loop, loop, loop, loop}}
	p := New(backend, &fakeSource{})

	if _, err := p.Invoke(context.Background(), relay.Invocation{Query: "loop"}); err == nil {
		t.Fatal("want rounds-exhausted error")
	}
	if backend.calls != 4 {
		t.Fatalf("backend calls = %d", backend.calls)
	}
}
