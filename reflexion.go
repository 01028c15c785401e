package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

// Default blend parameters for the hybrid evaluator.
const (
	// defaultAlpha weights the model critique against the embedding score.
	defaultAlpha = 0.7
	// defaultSatisfactionThreshold is the combined score at which a
	// candidate counts as satisfactory.
	defaultSatisfactionThreshold = 0.75
)

// Evaluator scores a candidate routing decision or provider output by
// blending two independent judgments: a qualitative critique from the
// backend and a quantitative score computed from embeddings. Evaluation
// never aborts a turn: any sub-computation failure yields the neutral
// fallback verdict {satisfactory: false, score: 0.5, critique: "error"}.
type Evaluator struct {
	backend   Backend
	embedding EmbeddingProvider
	alpha     float64
	threshold float64
	logger    *slog.Logger
	tracer    Tracer
	timeout   time.Duration
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// EvaluatorAlpha sets the qualitative/quantitative blend weight
// (default 0.7).
func EvaluatorAlpha(a float64) EvaluatorOption {
	return func(e *Evaluator) { e.alpha = a }
}

// EvaluatorThreshold sets the satisfaction threshold (default 0.75).
func EvaluatorThreshold(t float64) EvaluatorOption {
	return func(e *Evaluator) { e.threshold = t }
}

// EvaluatorLogger sets the structured logger.
func EvaluatorLogger(l *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.logger = l }
}

// EvaluatorTracer sets the tracer for evaluate spans.
func EvaluatorTracer(t Tracer) EvaluatorOption {
	return func(e *Evaluator) { e.tracer = t }
}

// EvaluatorTimeout sets the per-evaluation timeout covering both the
// critique call and the embedding call (default 30s).
func EvaluatorTimeout(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) { e.timeout = d }
}

// NewEvaluator creates an Evaluator over the given backend and embedding
// provider.
func NewEvaluator(backend Backend, embedding EmbeddingProvider, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		backend:   backend,
		embedding: embedding,
		alpha:     defaultAlpha,
		threshold: defaultSatisfactionThreshold,
		logger:    nopLogger,
		timeout:   30 * time.Second,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// neutralVerdict is returned whenever evaluation cannot complete. It is
// deliberately unsatisfactory so a broken evaluator never silently declares
// victory.
func neutralVerdict() ReflexionVerdict {
	return ReflexionVerdict{Satisfactory: false, Score: 0.5, Critique: "error"}
}

// Evaluate scores candidate (a routing rationale or provider output) against
// the query, the supporting plan, and the routing context. It always returns
// a verdict; failures degrade to the neutral fallback.
func (e *Evaluator) Evaluate(ctx context.Context, query, candidate, plan, contextInfo string) ReflexionVerdict {
	if e.tracer != nil {
		var span Span
		ctx, span = e.tracer.Start(ctx, "route.evaluate")
		defer span.End()
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	qual, ok := e.critique(ctx, query, candidate, plan, contextInfo)
	if !ok {
		return neutralVerdict()
	}

	quant, ok := e.quantify(ctx, query, candidate, plan, contextInfo)
	if !ok {
		return neutralVerdict()
	}

	combined := clamp01(e.alpha*qual.Score + (1-e.alpha)*quant)
	verdict := ReflexionVerdict{
		Satisfactory:        combined >= e.threshold,
		Score:               combined,
		Critique:            qual.Critique,
		AlternativeProvider: qual.Alternative,
		AreasForImprovement: qual.Areas,
	}

	e.logger.Info("candidate evaluated",
		"qualitative", qual.Score,
		"quantitative", quant,
		"combined", combined,
		"satisfactory", verdict.Satisfactory)
	return verdict
}

// critiqueResult is the parsed JSON the critique call must return.
type critiqueResult struct {
	Score       float64  `json:"score"`
	Critique    string   `json:"critique"`
	Areas       []string `json:"areas_for_improvement"`
	Alternative string   `json:"alternative_provider"`
	NewPlan     []string `json:"new_plan"`
}

// critique runs the model-based qualitative evaluation. Returns ok=false on
// any backend or parse failure.
func (e *Evaluator) critique(ctx context.Context, query, candidate, plan, contextInfo string) (critiqueResult, bool) {
	prompt := fmt.Sprintf(`Evaluate the following candidate response.

User query: %q
Candidate: %q
Supporting plan: %q
Context: %q

Criteria: relevance to the query, accuracy, completeness, appropriateness of
the plan, and consideration of the context.

Reply with ONLY a JSON object:
{
  "score": <float 0..1, 0 completely unsatisfactory, 1 perfect>,
  "critique": "<brief analysis>",
  "areas_for_improvement": ["<specific suggestion>", ...],
  "alternative_provider": "<better provider name, or empty if the selection is appropriate>",
  "new_plan": ["<step>", ...]
}
Leave areas_for_improvement and new_plan empty when the candidate is adequate.
Only suggest an alternative provider if the current selection is clearly inappropriate.`,
		query, candidate, plan, contextInfo)

	resp, err := e.backend.Complete(ctx, []ChatMessage{UserMessage(prompt)})
	if err != nil {
		e.logger.Warn("critique call failed", "error", err)
		return critiqueResult{}, false
	}

	var result critiqueResult
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Text)), &result); err != nil {
		e.logger.Warn("critique reply was not valid JSON", "error", err, "raw", truncate(resp.Text, 120))
		return critiqueResult{}, false
	}
	result.Score = clamp01(result.Score)
	return result, true
}

// quantify computes the embedding-based quantitative score: the mean of
// query/candidate similarity, context/candidate similarity, length
// appropriateness, and query/plan similarity. One Embed call covers all
// texts. Returns ok=false when embedding fails.
func (e *Evaluator) quantify(ctx context.Context, query, candidate, plan, contextInfo string) (float64, bool) {
	vecs, err := e.embedding.Embed(ctx, []string{query, candidate, contextInfo, plan})
	if err != nil || len(vecs) < 4 {
		e.logger.Warn("evaluation embedding failed", "error", err)
		return 0, false
	}

	queryCandidate := cosineSimilarity(vecs[0], vecs[1])
	contextCandidate := cosineSimilarity(vecs[2], vecs[1])
	length := lengthAppropriateness(query, candidate, queryCandidate)
	queryPlan := cosineSimilarity(vecs[0], vecs[3])

	score := (queryCandidate + contextCandidate + length + queryPlan) / 4
	return clamp01(score), true
}

// lengthAppropriateness scores the response length relative to the query,
// mixed with the semantic similarity between the two (weights 0.3 and 0.7),
// capped at 0.99 so the term never saturates the blend.
//
// Ratio scoring: < 0.5 scales linearly up from 0; > 2 decays linearly to 0
// at ratio 5; in between it is a flat 0.99.
func lengthAppropriateness(query, response string, similarity float64) float64 {
	queryWords := len(strings.Fields(query))
	responseWords := len(strings.Fields(response))
	if queryWords == 0 {
		queryWords = 1
	}
	ratio := float64(responseWords) / float64(queryWords)

	var lengthScore float64
	switch {
	case ratio < 0.5:
		lengthScore = ratio * 2
	case ratio > 2:
		lengthScore = math.Max(0, 2-(ratio-2)/3)
	default:
		lengthScore = 0.99
	}

	return math.Min(similarity*0.7+lengthScore*0.3, 0.99)
}

// stripCodeFence removes a surrounding markdown code fence from a model
// reply, if present, so JSON parsing sees the bare object.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
