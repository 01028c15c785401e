// Package code generates and critiques code through the backend, then
// normalizes fenced code blocks for frontend rendering.
package code

import (
	"context"
	"log/slog"

	relay "github.com/relaykit/relay"
	"github.com/relaykit/relay/render"
)

const prompt = `## Task & Context
You are an expert code generation agent. You may be asked to generate code in
a variety of languages and use cases, or to critique code the user wrote and
suggest improvements.

## Style Guide
Unless told otherwise, answer directly using markdown, with code inside
fenced blocks tagged with the language. Include comments and explanations
where they help.

## Code Generation
When generating code, reply with a fenced block:

` + "```" + `<language>
<code>
` + "```" + `

## Code Critique
When critiquing code, state the critique first, then a fenced block with the
improved code.`

// Provider is the "code" capability.
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

// New creates a code provider.
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

func (p *Provider) Name() string { return "code" }

var _ relay.CapabilityProvider = (*Provider)(nil)

// Invoke completes the query and returns the reply with normalized code
// fences as an immediate result.
func (p *Provider) Invoke(ctx context.Context, inv relay.Invocation) (relay.ProviderResult, error) {
	messages := make([]relay.ChatMessage, 0, len(inv.History)+2)
	messages = append(messages, relay.SystemMessage(prompt))
	for _, t := range inv.History {
		messages = append(messages, relay.ChatMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, relay.UserMessage(inv.Query))

	comp, err := p.backend.Complete(ctx, messages)
	if err != nil {
		return relay.ProviderResult{}, err
	}

	p.logger.Debug("code reply", "chars", len(comp.Text))
	return relay.Immediate(render.FormatCodeBlocks(comp.Text)), nil
}
