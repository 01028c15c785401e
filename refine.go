package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Satisfaction constants for the refinement loop.
const (
	// defaultMaxIterations bounds how many classification attempts a single
	// turn may consume.
	defaultMaxIterations = 3
	// acceptScore short-circuits the loop regardless of the satisfactory
	// flag.
	acceptScore = 0.95
	// retainScore is the floor below which a satisfactory verdict is still
	// retried.
	retainScore = 0.7
)

// RefinementContext carries evaluator feedback into the next classification
// attempt.
type RefinementContext struct {
	Critique    string
	Alternative string
	Areas       []string
}

// Augment rewrites the query text so the next attempt sees the previous
// critique inline. The original query is preserved verbatim on the first
// line.
func (rc RefinementContext) Augment(query string) string {
	var b strings.Builder
	b.WriteString(query)
	b.WriteString("\n\nPrevious attempt feedback:\n")
	if rc.Critique != "" {
		fmt.Fprintf(&b, "Critique: %s\n", rc.Critique)
	}
	if rc.Alternative != "" {
		fmt.Fprintf(&b, "Consider routing to: %s\n", rc.Alternative)
	}
	for _, a := range rc.Areas {
		fmt.Fprintf(&b, "- %s\n", a)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Refiner runs the classify/evaluate loop: draft a routing decision, score
// it, and retry with the critique folded into the query until the verdict is
// accepted or the iteration budget is exhausted. When exhausted it returns
// the best-scoring attempt seen.
type Refiner struct {
	classifier *Classifier
	evaluator  *Evaluator
	maxIter    int
	logger     *slog.Logger
	tracer     Tracer
}

// RefinerOption configures a Refiner.
type RefinerOption func(*Refiner)

// RefinerMaxIterations caps the loop (default 3, minimum 1).
func RefinerMaxIterations(n int) RefinerOption {
	return func(r *Refiner) {
		if n >= 1 {
			r.maxIter = n
		}
	}
}

// RefinerLogger sets the structured logger.
func RefinerLogger(l *slog.Logger) RefinerOption {
	return func(r *Refiner) { r.logger = l }
}

// RefinerTracer sets the tracer for refinement spans.
func RefinerTracer(t Tracer) RefinerOption {
	return func(r *Refiner) { r.tracer = t }
}

// NewRefiner wires a Refiner over a classifier and evaluator.
func NewRefiner(classifier *Classifier, evaluator *Evaluator, opts ...RefinerOption) *Refiner {
	r := &Refiner{
		classifier: classifier,
		evaluator:  evaluator,
		maxIter:    defaultMaxIterations,
		logger:     nopLogger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Refine produces the routing decision for a query. The returned iteration
// count is the number of classification attempts consumed (1-based; an
// attempt accepted on the first pass reports 1). The decision's Iteration
// field records the zero-based index of the winning attempt.
func (r *Refiner) Refine(ctx context.Context, query Query, history []Turn, hint string) (RoutingDecision, ReflexionVerdict, int, error) {
	if r.tracer != nil {
		var span Span
		ctx, span = r.tracer.Start(ctx, "route.refine")
		defer span.End()
	}

	var (
		best        RoutingDecision
		bestVerdict ReflexionVerdict
		bestScore   = -1.0
		previous    string
		attempt     = query.Text
	)

	for i := 0; i < r.maxIter; i++ {
		decision, err := r.classifier.Classify(ctx, attempt, history, previous, hint)
		if err != nil {
			// A backend outage on the first attempt fails the turn; once at
			// least one attempt exists the best one stands.
			if bestScore >= 0 {
				r.logger.Warn("classification retry failed, keeping best attempt",
					"iteration", i, "error", err)
				best.Iteration = i - 1
				return best, bestVerdict, i, nil
			}
			return RoutingDecision{}, ReflexionVerdict{}, 0, err
		}
		decision.Iteration = i
		previous = decision.Provider

		verdict := r.evaluator.Evaluate(ctx, query.Text, decision.Rationale, decision.Provider, hint)

		if verdict.Score > bestScore {
			best, bestVerdict, bestScore = decision, verdict, verdict.Score
		}

		if verdict.Score >= acceptScore || (verdict.Satisfactory && verdict.Score > retainScore) {
			r.logger.Info("routing accepted",
				"provider", decision.Provider,
				"score", verdict.Score,
				"iterations", i+1)
			return decision, verdict, i + 1, nil
		}

		r.logger.Info("routing retry",
			"provider", decision.Provider,
			"score", verdict.Score,
			"iteration", i)

		attempt = RefinementContext{
			Critique:    verdict.Critique,
			Alternative: verdict.AlternativeProvider,
			Areas:       verdict.AreasForImprovement,
		}.Augment(query.Text)
	}

	r.logger.Info("routing budget exhausted, keeping best attempt",
		"provider", best.Provider,
		"score", bestScore,
		"iterations", r.maxIter)
	return best, bestVerdict, r.maxIter, nil
}
