package relay

import (
	"context"
	"sync"
)

// mockBackend scripts Complete replies in order. After the script runs out
// it repeats the final entry. A non-nil err entry is returned instead of a
// completion.
type mockBackend struct {
	mu      sync.Mutex
	replies []mockReply
	calls   int

	// prompts records the last user message of every Complete call so tests
	// can assert on what the component actually asked.
	prompts []string

	stream func(ctx context.Context, out chan<- StreamChunk) error
}

type mockReply struct {
	text string
	err  error
}

func (m *mockBackend) Complete(ctx context.Context, messages []ChatMessage) (Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(messages) > 0 {
		m.prompts = append(m.prompts, messages[len(messages)-1].Content)
	}
	i := m.calls
	m.calls++
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	if i < 0 {
		return Completion{}, nil
	}
	r := m.replies[i]
	if r.err != nil {
		return Completion{}, r.err
	}
	return Completion{Text: r.text}, nil
}

func (m *mockBackend) CompleteStream(ctx context.Context, messages []ChatMessage, out chan<- StreamChunk) (Completion, error) {
	defer close(out)
	if m.stream != nil {
		if err := m.stream(ctx, out); err != nil {
			return Completion{}, err
		}
		return Completion{}, nil
	}
	c, err := m.Complete(ctx, messages)
	if err != nil {
		return Completion{}, err
	}
	out <- StreamChunk{Kind: ChunkContentDelta, Text: c.Text}
	return c, nil
}

func (m *mockBackend) CompleteWithTools(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (Completion, error) {
	return m.Complete(ctx, messages)
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// stubEmbedding returns deterministic vectors. With vec set, every text maps
// to the same vector, so all pairwise similarities are 1. With fail set,
// Embed errors.
type stubEmbedding struct {
	vec  []float32
	fail error
}

func (s *stubEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	vec := s.vec
	if vec == nil {
		vec = []float32{1, 0, 0}
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = vec
	}
	return out, nil
}

func (s *stubEmbedding) Dimensions() int { return 3 }
func (s *stubEmbedding) Name() string    { return "stub-embed" }

// stubProvider is a CapabilityProvider with a canned result or error. When
// invoke is set it takes precedence.
type stubProvider struct {
	name   string
	result ProviderResult
	err    error
	invoke func(ctx context.Context, inv Invocation) (ProviderResult, error)

	mu    sync.Mutex
	calls []Invocation
}

func (s *stubProvider) Invoke(ctx context.Context, inv Invocation) (ProviderResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, inv)
	s.mu.Unlock()
	if s.invoke != nil {
		return s.invoke(ctx, inv)
	}
	if s.err != nil {
		return ProviderResult{}, s.err
	}
	return s.result, nil
}

func (s *stubProvider) Name() string { return s.name }

// memStore is an in-memory ConversationStore.
type memStore struct {
	mu      sync.Mutex
	records []TurnRecord
	fail    error
}

func (m *memStore) Append(ctx context.Context, rec TurnRecord) error {
	if m.fail != nil {
		return m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) Recent(ctx context.Context, conversationID string, limit int) ([]Turn, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Turn
	for _, rec := range m.records {
		if rec.ConversationID != conversationID {
			continue
		}
		out = append(out, UserTurn(rec.Query), AssistantTurn(rec.Response))
	}
	if limit > 0 && len(out) > 2*limit {
		out = out[len(out)-2*limit:]
	}
	return out, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// testRegistry builds a registry with the given provider names plus a
// "general" fallback.
func testRegistry(t interface{ Fatalf(string, ...any) }, names ...string) *Registry {
	b := NewRegistryBuilder("general")
	b.Register(Descriptor{Name: "general", Description: "general conversation"}, &stubProvider{name: "general"})
	for _, n := range names {
		b.Register(Descriptor{Name: n, Description: n + " tasks"}, &stubProvider{name: n})
	}
	r, err := b.Build()
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return r
}

var _ Backend = (*mockBackend)(nil)
var _ EmbeddingProvider = (*stubEmbedding)(nil)
var _ CapabilityProvider = (*stubProvider)(nil)
var _ ConversationStore = (*memStore)(nil)
