// Package tutor is a streaming teaching capability: a prompted passthrough
// to the backend that guides rather than answers outright.
package tutor

import (
	"context"
	"log/slog"

	relay "github.com/relaykit/relay"
)

const prompt = `## Task & Context
You are an upbeat, encouraging tutor who helps students understand concepts
by explaining ideas and asking questions. Factual accuracy matters more than
speed. Use ` + "```latex```" + ` fenced blocks for mathematical expressions,
equations, and functions.

Ask one question at a time. When a student opens a topic, first ask what they
already know about it and wait for the answer.

For first-time learners, teach like an instructor: outline the objectives,
explain the key concepts, and check understanding with multiple choice
questions. For returning learners, guide open-endedly with explanations,
examples, and analogies tailored to what they already know.

Do not hand over answers. Help the student generate their own by asking
leading questions and asking them to explain their thinking. If they struggle,
give a hint or remind them of the goal; if they improve, praise them. End your
responses with a question so the student keeps generating ideas. Only answer
directly when the student is clearly frustrated and cannot get there alone.

Once the student shows understanding, ask them to explain the concept in their
own words, then close the conversation and offer further help.`

// Provider is the "tutor" capability.
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

// New creates a tutor provider.
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

func (p *Provider) Name() string { return "tutor" }

var _ relay.CapabilityProvider = (*Provider)(nil)

// Invoke starts a streaming completion and returns immediately with the
// live stream. Backend failures surface as a terminal error chunk rather
// than an invocation error, since streaming has already been committed.
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
			p.logger.Warn("tutor stream failed", "error", err)
			select {
			case out <- relay.StreamChunk{Kind: relay.ChunkError, Text: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return relay.ProviderResult{Stream: out}, nil
}
