package relay

import "context"

// Backend abstracts the language-model service used by the classifier, the
// evaluator, and prompted capability providers.
type Backend interface {
	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, messages []ChatMessage) (Completion, error)
	// CompleteStream streams chunks into ch, then returns the accumulated
	// response. The channel is closed when streaming completes.
	CompleteStream(ctx context.Context, messages []ChatMessage, ch chan<- StreamChunk) (Completion, error)
	// CompleteWithTools sends a request with tool specs; the response may
	// contain tool calls and a tool plan.
	CompleteWithTools(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (Completion, error)
	// Name returns the backend name (e.g. "cohere").
	Name() string
}

// EmbeddingProvider abstracts text embedding, used by the quantitative half
// of the evaluator.
type EmbeddingProvider interface {
	// Embed returns embedding vectors for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding vector size.
	Dimensions() int
	// Name returns the provider name.
	Name() string
}

// Invocation carries everything a capability provider needs for one call.
type Invocation struct {
	Query      string
	History    []Turn
	Context    string  // routing context hint, may be empty
	Confidence float64 // the routing decision's confidence
}

// CapabilityProvider is a registered capability handler invoked by name.
// Providers may call their own sub-tools internally; that is opaque to the
// routing core.
type CapabilityProvider interface {
	// Invoke runs the provider. Returns either an immediate result or a
	// chunk stream; see ProviderResult.
	Invoke(ctx context.Context, inv Invocation) (ProviderResult, error)
	// Name returns the registry key this provider is registered under.
	Name() string
}

// TurnRecord is one persisted conversation turn.
type TurnRecord struct {
	ID             string
	ConversationID string
	Query          string
	Response       string
	Provider       string
	CreatedAt      int64
}

// ConversationStore persists finished turns. Append is invoked as a
// non-blocking background write off the response critical path.
type ConversationStore interface {
	// Append records one finished turn.
	Append(ctx context.Context, rec TurnRecord) error
	// Recent returns the last n turns of a conversation, oldest first.
	Recent(ctx context.Context, conversationID string, n int) ([]Turn, error)
}
