package relay

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// defaultChunkTimeout is the per-chunk inactivity window. The watchdog
// resets on every chunk, so a slow but steady stream never trips it.
const defaultChunkTimeout = 30 * time.Second

// AggregateResult is the consumed form of a provider stream.
type AggregateResult struct {
	Text      string
	Citations []Citation
	TimedOut  bool
}

// Aggregator drains a provider chunk stream into a complete response while
// forwarding content deltas to the caller as they arrive. Content deltas are
// accumulated and forwarded; citation chunks are buffered; boundary chunks
// are logged and dropped; unknown kinds are skipped.
type Aggregator struct {
	timeout time.Duration
	logger  *slog.Logger
	tracer  Tracer
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// AggregatorTimeout sets the per-chunk inactivity window (default 30s).
func AggregatorTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// AggregatorLogger sets the structured logger.
func AggregatorLogger(l *slog.Logger) AggregatorOption {
	return func(a *Aggregator) { a.logger = l }
}

// AggregatorTracer sets the tracer for aggregation spans.
func AggregatorTracer(t Tracer) AggregatorOption {
	return func(a *Aggregator) { a.tracer = t }
}

// NewAggregator creates an Aggregator.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{timeout: defaultChunkTimeout, logger: nopLogger}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Aggregate consumes stream until it closes, the watchdog fires, or ctx is
// cancelled. Forwarded chunks go to forward when it is non-nil; forward is
// never closed here, the caller owns it.
//
// A watchdog timeout is not an error: a terminal error chunk is forwarded,
// TimedOut is set, and whatever accumulated so far is returned. Context
// cancellation returns ctx.Err() with the partial result.
func (a *Aggregator) Aggregate(ctx context.Context, stream <-chan StreamChunk, forward chan<- StreamChunk) (AggregateResult, error) {
	if a.tracer != nil {
		var span Span
		ctx, span = a.tracer.Start(ctx, "route.aggregate")
		defer span.End()
	}

	var (
		text      strings.Builder
		citations []Citation
	)

	watchdog := time.NewTimer(a.timeout)
	defer watchdog.Stop()

	emit := func(c StreamChunk) {
		if forward == nil {
			return
		}
		select {
		case forward <- c:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case chunk, ok := <-stream:
			if !ok {
				return AggregateResult{Text: text.String(), Citations: citations}, nil
			}
			if !watchdog.Stop() {
				<-watchdog.C
			}
			watchdog.Reset(a.timeout)

			switch chunk.Kind {
			case ChunkContentDelta:
				text.WriteString(chunk.Text)
				emit(chunk)
			case ChunkCitation:
				if chunk.Citation != nil {
					citations = append(citations, *chunk.Citation)
				}
			case ChunkBoundary:
				a.logger.Debug("stream boundary", "boundary", chunk.Boundary)
			case ChunkError:
				a.logger.Warn("provider error chunk", "message", chunk.Text)
				emit(chunk)
			default:
				a.logger.Debug("skipping unknown chunk kind", "kind", chunk.Kind)
			}

		case <-watchdog.C:
			timeoutErr := &ErrStreamTimeout{Wait: a.timeout}
			a.logger.Warn("stream stalled, finalizing with partial response",
				"timeout", a.timeout,
				"accumulated_bytes", text.Len())
			emit(StreamChunk{Kind: ChunkError, Text: timeoutErr.Error()})
			return AggregateResult{
				Text:      text.String(),
				Citations: citations,
				TimedOut:  true,
			}, nil

		case <-ctx.Done():
			return AggregateResult{Text: text.String(), Citations: citations}, ctx.Err()
		}
	}
}
