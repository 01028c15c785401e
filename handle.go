package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// defaultClarifyThreshold is the routing confidence below which the handler
// asks a clarifying question instead of dispatching.
const defaultClarifyThreshold = 0.7

// Handler runs one conversation turn end to end: input screening, hint
// extraction, refined routing, dispatch, stream aggregation, citation
// annotation, and background persistence.
type Handler struct {
	guard      *InputGuard
	refiner    *Refiner
	dispatcher *Dispatcher
	aggregator *Aggregator
	annotator  *Annotator
	backend    Backend
	store      ConversationStore
	logger     *slog.Logger
	tracer     Tracer
	threshold  float64

	chunkTimeout time.Duration

	persist sync.WaitGroup
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// HandlerGuard sets the input guard (default: NewInputGuard()).
func HandlerGuard(g *InputGuard) HandlerOption {
	return func(h *Handler) { h.guard = g }
}

// HandlerStore enables background turn persistence.
func HandlerStore(s ConversationStore) HandlerOption {
	return func(h *Handler) { h.store = s }
}

// HandlerLogger sets the structured logger.
func HandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// HandlerTracer sets the tracer for turn spans.
func HandlerTracer(t Tracer) HandlerOption {
	return func(h *Handler) { h.tracer = t }
}

// HandlerClarifyThreshold sets the confidence floor for dispatching
// (default 0.7).
func HandlerClarifyThreshold(v float64) HandlerOption {
	return func(h *Handler) { h.threshold = v }
}

// HandlerChunkTimeout sets the aggregator's per-chunk inactivity window.
func HandlerChunkTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) { h.chunkTimeout = d }
}

// NewHandler wires a Handler. The refiner and dispatcher are required; the
// backend powers hint extraction and clarification prompts.
func NewHandler(backend Backend, refiner *Refiner, dispatcher *Dispatcher, opts ...HandlerOption) *Handler {
	h := &Handler{
		refiner:    refiner,
		dispatcher: dispatcher,
		backend:    backend,
		logger:     nopLogger,
		threshold:  defaultClarifyThreshold,
	}
	for _, o := range opts {
		o(h)
	}
	if h.guard == nil {
		h.guard = NewInputGuard(GuardLogger(h.logger))
	}
	if h.aggregator == nil {
		h.aggregator = NewAggregator(
			AggregatorTimeout(h.chunkTimeout),
			AggregatorLogger(h.logger))
	}
	if h.annotator == nil {
		h.annotator = NewAnnotator(AnnotatorLogger(h.logger))
	}
	return h
}

// Handle runs one turn. Forwarded chunks go to forward when non-nil; the
// caller owns and closes that channel after Handle returns. Provider
// failures degrade to an inline apology rather than an error; only a
// backend outage during routing fails the turn.
func (h *Handler) Handle(ctx context.Context, conversationID string, query Query, history []Turn, forward chan<- StreamChunk) (ResponseEnvelope, error) {
	if h.tracer != nil {
		var span Span
		ctx, span = h.tracer.Start(ctx, "turn.handle",
			StringAttr("conversation_id", conversationID))
		defer span.End()
	}
	start := time.Now()

	clean, err := h.guard.Check(query.Text)
	if err != nil {
		var blocked *ErrBlocked
		if errors.As(err, &blocked) {
			h.forwardText(ctx, forward, blocked.Response)
			return ResponseEnvelope{RawText: blocked.Response}, nil
		}
		return ResponseEnvelope{}, err
	}
	query.Text = clean

	hint := ExtractHint(ctx, h.backend, query.Text, history, h.logger)

	decision, _, iters, err := h.refiner.Refine(ctx, query, history, hint)
	if err != nil {
		return ResponseEnvelope{}, err
	}

	if decision.Confidence < h.threshold {
		question := h.clarify(ctx, query, decision)
		h.forwardText(ctx, forward, question)
		h.logger.Info("asking for clarification",
			"provider", decision.Provider,
			"confidence", decision.Confidence)
		return ResponseEnvelope{
			RawText:    question,
			Provider:   decision.Provider,
			Iterations: 0,
		}, nil
	}

	result, err := h.dispatcher.Dispatch(ctx, decision, Invocation{
		Query:   query.Text,
		History: history,
		Context: hint,
	})
	if err != nil {
		var invErr *ErrProviderInvocation
		if errors.As(err, &invErr) {
			apology := fmt.Sprintf("Sorry, I ran into a problem handling that with the %s capability. Please try again.", decision.Provider)
			h.forwardText(ctx, forward, apology)
			return ResponseEnvelope{
				RawText:    apology,
				Provider:   decision.Provider,
				Iterations: iters,
			}, nil
		}
		return ResponseEnvelope{}, err
	}

	var (
		raw       string
		citations []Citation
	)
	if result.Streaming() {
		agg, aggErr := h.aggregator.Aggregate(ctx, result.Stream, forward)
		if aggErr != nil {
			// Cancelled mid-stream: the turn never finished, so nothing is
			// recorded.
			return ResponseEnvelope{}, aggErr
		}
		raw, citations = agg.Text, agg.Citations
	} else {
		raw, citations = result.Text, result.Citations
		h.forwardText(ctx, forward, raw)
	}

	envelope := ResponseEnvelope{
		RawText:    raw,
		Provider:   decision.Provider,
		Iterations: iters,
	}
	if len(citations) > 0 {
		envelope.CitedText, envelope.URLIndex = h.annotator.Annotate(raw, citations)
	}

	h.logger.Info("turn complete",
		"provider", decision.Provider,
		"iterations", iters,
		"cited", envelope.Cited(),
		"elapsed", time.Since(start))

	if h.store != nil && ctx.Err() == nil {
		h.persistTurn(ctx, conversationID, query.Text, envelope)
	}
	return envelope, nil
}

// clarify asks the backend to phrase a clarifying question; falls back to a
// canned one if the call fails.
func (h *Handler) clarify(ctx context.Context, query Query, decision RoutingDecision) string {
	prompt := fmt.Sprintf(`The user asked: %q

The request is ambiguous (best routing guess was %q at low confidence).
Write ONE short, friendly question asking the user to clarify what they need.
Reply with the question only.`, query.Text, decision.Provider)

	resp, err := h.backend.Complete(ctx, []ChatMessage{UserMessage(prompt)})
	if err != nil || resp.Text == "" {
		return "Could you tell me a bit more about what you need help with?"
	}
	return resp.Text
}

// persistTurn records the finished turn off the critical path. The write
// survives caller cancellation, but a turn that was cancelled before
// finishing is never recorded (Handle checks ctx first).
func (h *Handler) persistTurn(ctx context.Context, conversationID, query string, env ResponseEnvelope) {
	bg := context.WithoutCancel(ctx)
	h.persist.Add(1)
	go func() {
		defer h.persist.Done()
		rec := TurnRecord{
			ID:             NewID(),
			ConversationID: conversationID,
			Query:          query,
			Response:       env.RawText,
			Provider:       env.Provider,
			CreatedAt:      NowUnix(),
		}
		if err := h.store.Append(bg, rec); err != nil {
			h.logger.Error("turn persistence failed", "error", err)
		}
	}()
}

// Drain blocks until all background persistence writes finish. Call during
// shutdown.
func (h *Handler) Drain() {
	h.persist.Wait()
}

// forwardText emits text to forward as a single content chunk.
func (h *Handler) forwardText(ctx context.Context, forward chan<- StreamChunk, text string) {
	if forward == nil || text == "" {
		return
	}
	select {
	case forward <- StreamChunk{Kind: ChunkContentDelta, Text: text}:
	case <-ctx.Done():
	}
}
