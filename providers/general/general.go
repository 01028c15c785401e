// Package general is the fallback capability: a plain streaming
// conversational passthrough for queries no specialist covers.
package general

import (
	"context"
	"log/slog"

	relay "github.com/relaykit/relay"
)

const prompt = `You are a helpful, concise assistant. Answer the user's
question directly. If you are not sure about something, say so rather than
guessing.`

// Provider is the "general" capability.
type Provider struct {
	backend relay.Backend
	logger  *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New creates a general provider.
func New(backend relay.Backend, opts ...Option) *Provider {
	p := &Provider{
		backend: backend,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return "general" }

var _ relay.CapabilityProvider = (*Provider)(nil)

// Invoke streams a plain completion. Backend failures after stream start
// surface as a terminal error chunk.
func (p *Provider) Invoke(ctx context.Context, inv relay.Invocation) (relay.ProviderResult, error) {
	messages := make([]relay.ChatMessage, 0, len(inv.History)+2)
	messages = append(messages, relay.SystemMessage(prompt))
	for _, t := range inv.History {
		messages = append(messages, relay.ChatMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, relay.UserMessage(inv.Query))

	inner := make(chan relay.StreamChunk, 16)
	out := make(chan relay.StreamChunk, 16)
	errc := make(chan error, 1)

	go func() {
		_, err := p.backend.CompleteStream(ctx, messages, inner)
		errc <- err
	}()
	go func() {
		defer close(out)
		for chunk := range inner {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err := <-errc; err != nil {
			p.logger.Warn("general stream failed", "error", err)
			select {
			case out <- relay.StreamChunk{Kind: relay.ChunkError, Text: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return relay.ProviderResult{Stream: out}, nil
}
