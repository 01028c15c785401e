// Package calendar answers scheduling queries against an injected event
// source. The backend plans tool calls against the source; results feed a
// second completion that produces the final answer.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	relay "github.com/relaykit/relay"
)

// Event is one calendar entry.
type Event struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Source provides calendar data. Implementations wrap a real calendar
// backend (Google Calendar, CalDAV, a local table).
type Source interface {
	// Events returns events overlapping [from, to].
	Events(ctx context.Context, from, to time.Time) ([]Event, error)
	// Create stores a new event and returns it as stored.
	Create(ctx context.Context, ev Event) (Event, error)
}

// Provider is the "calendar" capability.
type Provider struct {
	backend   relay.Backend
	source    Source
	logger    *slog.Logger
	now       func() time.Time
	maxRounds int
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithClock overrides the time source. Tests use this to pin "today".
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// New creates a calendar provider backed by the given event source.
func New(backend relay.Backend, source Source, opts ...Option) *Provider {
	p := &Provider{
		backend:   backend,
		source:    source,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
		maxRounds: 4,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return "calendar" }

var _ relay.CapabilityProvider = (*Provider)(nil)

const promptTemplate = `## Task & Context
You are a precise calendar assistant with access to the user's personal calendar.

When creating events, first check the target window for existing events. A new
event must not overlap an existing one; if it would, do not create it and
inform the user of the conflict.

When getting events, reason through abstract date ranges ("next weekend",
"all Wednesdays this month") and translate them into a single concrete
start/end range before calling get_events. If the date the user means is
genuinely unclear, say so and ask for clarification.

Today is %s.

## Style Guide
Be precise and detail-oriented. Never say only "you have an event tomorrow";
always state the title, date, time, and description.`

var toolSpecs = []relay.ToolSpec{
	{
		Name:        "get_events",
		Description: "Get calendar events overlapping a date range.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"start":{"type":"string","description":"Range start, RFC 3339"},"end":{"type":"string","description":"Range end, RFC 3339"}},"required":["start","end"]}`),
	},
	{
		Name:        "create_event",
		Description: "Create a calendar event. Fails with a conflict when the slot overlaps an existing event.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"},"description":{"type":"string"},"location":{"type":"string"},"start":{"type":"string","description":"RFC 3339"},"end":{"type":"string","description":"RFC 3339"}},"required":["title","start","end"]}`),
	},
}

// Invoke runs the tool loop: plan tool calls, execute them against the
// source, feed results back, and return the final text. Rounds are bounded;
// hitting the bound returns whatever text the last completion carried.
func (p *Provider) Invoke(ctx context.Context, inv relay.Invocation) (relay.ProviderResult, error) {
	messages := make([]relay.ChatMessage, 0, len(inv.History)+2)
	messages = append(messages, relay.SystemMessage(fmt.Sprintf(promptTemplate, p.now().Format("Monday, 2 January 2006"))))
	for _, t := range inv.History {
		messages = append(messages, relay.ChatMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, relay.UserMessage(inv.Query))

	for round := 0; round < p.maxRounds; round++ {
		comp, err := p.backend.CompleteWithTools(ctx, messages, toolSpecs)
		if err != nil {
			return relay.ProviderResult{}, err
		}
		if len(comp.ToolCalls) == 0 {
			return relay.Immediate(comp.Text), nil
		}

		p.logger.Debug("calendar tool round",
			"round", round,
			"plan", comp.ToolPlan,
			"calls", len(comp.ToolCalls))

		messages = append(messages, relay.ChatMessage{
			Role:      "assistant",
			ToolCalls: comp.ToolCalls,
		})
		for _, tc := range comp.ToolCalls {
			result := p.execute(ctx, tc)
			messages = append(messages, relay.ChatMessage{
				Role:       "tool",
				ToolCallID: tc.ID,
				Content:    result,
			})
		}
	}

	return relay.ProviderResult{}, fmt.Errorf("calendar: tool rounds exhausted")
}

// execute runs one tool call and returns its JSON result. Tool failures
// become error payloads for the model rather than invocation errors.
func (p *Provider) execute(ctx context.Context, tc relay.ToolCall) string {
	var out any
	var err error
	switch tc.Name {
	case "get_events":
		out, err = p.getEvents(ctx, tc.Args)
	case "create_event":
		out, err = p.createEvent(ctx, tc.Args)
	default:
		err = fmt.Errorf("unknown tool %q", tc.Name)
	}
	if err != nil {
		p.logger.Warn("calendar tool failed", "tool", tc.Name, "error", err)
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(payload)
}

func (p *Provider) getEvents(ctx context.Context, args json.RawMessage) (any, error) {
	var params struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	from, to, err := parseRange(params.Start, params.End)
	if err != nil {
		return nil, err
	}
	events, err := p.source.Events(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []Event{}
	}
	return map[string]any{"events": events}, nil
}

func (p *Provider) createEvent(ctx context.Context, args json.RawMessage) (any, error) {
	var params struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Location    string `json:"location"`
		Start       string `json:"start"`
		End         string `json:"end"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	if params.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	from, to, err := parseRange(params.Start, params.End)
	if err != nil {
		return nil, err
	}

	existing, err := p.source.Events(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for _, ev := range existing {
		if from.Before(ev.End) && ev.Start.Before(to) {
			return map[string]any{
				"created":  false,
				"conflict": ev,
			}, nil
		}
	}

	created, err := p.source.Create(ctx, Event{
		Title:       params.Title,
		Description: params.Description,
		Location:    params.Location,
		Start:       from,
		End:         to,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"created": true, "event": created}, nil
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start %q: %w", start, err)
	}
	to, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end %q: %w", end, err)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("end %s is not after start %s", end, start)
	}
	return from, to, nil
}
