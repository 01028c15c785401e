package relay

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// Classifier turns (query, bounded history, registry) into a RoutingDecision
// with a single backend call. The backend's reply must follow the
// "PROVIDER_NAME: rationale" format; anything else degrades to the fallback
// provider at reduced confidence rather than failing the turn.
type Classifier struct {
	backend  Backend
	registry *Registry
	logger   *slog.Logger
	tracer   Tracer
	timeout  time.Duration
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// ClassifierLogger sets the structured logger.
func ClassifierLogger(l *slog.Logger) ClassifierOption {
	return func(c *Classifier) { c.logger = l }
}

// ClassifierTracer sets the tracer for classify spans.
func ClassifierTracer(t Tracer) ClassifierOption {
	return func(c *Classifier) { c.tracer = t }
}

// ClassifierTimeout sets the per-call timeout for the backend request
// (default 30s).
func ClassifierTimeout(d time.Duration) ClassifierOption {
	return func(c *Classifier) { c.timeout = d }
}

// NewClassifier creates a Classifier over the given backend and registry.
func NewClassifier(backend Backend, registry *Registry, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		backend:  backend,
		registry: registry,
		logger:   nopLogger,
		timeout:  30 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// maxHistoryTurns bounds how much conversation history reaches the backend.
const maxHistoryTurns = 20

// Classify routes a query. previousProvider is the provider that handled
// the prior turn ("" for the first); hint is an optional short context
// summary. A failing backend yields ErrBackendUnavailable, fatal for the
// turn. A successful-but-unparseable reply falls back to the registry's
// default provider at reduced confidence and is not an error.
func (c *Classifier) Classify(ctx context.Context, query string, history []Turn, previousProvider, hint string) (RoutingDecision, error) {
	if c.tracer != nil {
		var span Span
		ctx, span = c.tracer.Start(ctx, "route.classify",
			StringAttr("previous_provider", previousProvider))
		defer span.End()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := c.buildMessages(query, history, previousProvider, hint)
	resp, err := c.backend.Complete(ctx, messages)
	if err != nil {
		c.logger.Error("classifier backend call failed", "error", err)
		return RoutingDecision{}, &ErrBackendUnavailable{Backend: c.backend.Name(), Err: err}
	}

	decision := c.parse(resp.Text)
	c.logger.Info("query classified",
		"provider", decision.Provider,
		"confidence", decision.Confidence,
		"raw", truncate(resp.Text, 120))
	return decision, nil
}

func (c *Classifier) buildMessages(query string, history []Turn, previousProvider, hint string) []ChatMessage {
	if previousProvider == "" {
		previousProvider = "none"
	}
	if hint == "" {
		hint = "no additional context"
	}
	system := fmt.Sprintf(`You are an expert router that determines which specialized provider can best respond to a user query.

Available providers:
%s

Instructions:
1. Analyze the user's query and any provided context.
2. Pick the most suitable provider based on its specialization.
3. Respond in exactly this format:
   PROVIDER_NAME: brief explanation of why you chose this provider.

Guidelines:
- Only use the provider names listed above.
- If a query does not clearly fit a specific provider, route it to %q.
- Route coding questions to "code" unless the user asks for help learning to code; learning requests go to "tutor".
- If a tutoring session is ongoing, keep routing to "tutor".
- Your explanation should be concise but informative; it feeds a confidence assessment.

Previous provider: %s
Context: %s

Respond with the provider name, a colon, and your reasoning. For example:
"calendar: This query is about scheduling an appointment."`,
		c.registry.Describe(), c.registry.Fallback(), previousProvider, hint)

	messages := []ChatMessage{SystemMessage(system)}
	start := 0
	if len(history) > maxHistoryTurns {
		start = len(history) - maxHistoryTurns
	}
	for _, t := range history[start:] {
		messages = append(messages, ChatMessage{Role: t.Role, Content: t.Content})
	}
	return append(messages, UserMessage(query))
}

var decisionRe = regexp.MustCompile(`^(\w+)(?:\s*:\s*(.*))?$`)

// parse extracts provider and confidence from the backend's reply. Matching
// against registry keys is case-insensitive: exact match first, then
// substring containment, then the fallback provider at a confidence penalty.
func (c *Classifier) parse(raw string) RoutingDecision {
	line := firstLine(strings.TrimSpace(raw))

	m := decisionRe.FindStringSubmatch(line)
	if m == nil {
		c.logger.Warn("unparseable routing reply, using fallback", "raw", truncate(raw, 120))
		return RoutingDecision{Provider: c.registry.Fallback(), Confidence: 0.5, Rationale: raw}
	}

	name := strings.ToLower(m[1])
	rationale := strings.TrimSpace(m[2])
	confidence := scoreRationale(rationale)

	if c.registry.Has(name) {
		return RoutingDecision{Provider: name, Confidence: confidence, Rationale: rationale}
	}

	// Substring containment: the model sometimes embellishes the key
	// ("calendar_agent", "the calendar provider").
	for _, known := range c.registry.Names() {
		if strings.Contains(strings.ToLower(line), known) {
			return RoutingDecision{Provider: known, Confidence: confidence, Rationale: rationale}
		}
	}

	// No match at all: fallback at a fixed penalty.
	confidence = max(confidence-0.1, 0.3)
	return RoutingDecision{Provider: c.registry.Fallback(), Confidence: confidence, Rationale: rationale}
}

var (
	confidentWordsRe = regexp.MustCompile(`(?i)\b(certain|sure|confident|definitely)\b`)
	hedgingWordsRe   = regexp.MustCompile(`(?i)\b(unsure|maybe|possibly|not certain)\b`)
)

// scoreRationale derives a confidence score from the rationale text. A weak
// proxy: length and keyword presence say little about routing quality, but
// downstream thresholds are tuned against these exact numbers.
func scoreRationale(rationale string) float64 {
	if rationale == "" {
		return 0.6
	}
	confidence := 0.6 + min(float64(len(rationale))/100, 0.3)
	if confidentWordsRe.MatchString(rationale) {
		confidence = min(confidence+0.1, 0.95)
	}
	if hedgingWordsRe.MatchString(rationale) {
		confidence = max(confidence-0.1, 0.4)
	}
	return confidence
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// truncate shortens a string to n runes for log output. The byte-length
// check is a fast path: a string of at most n bytes has at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
