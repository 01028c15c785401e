package observer

import (
	"context"
	"time"

	relay "github.com/relaykit/relay"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ObservedBackend wraps a relay.Backend with OTEL trace instrumentation.
type ObservedBackend struct {
	inner relay.Backend
	model string
	trc   trace.Tracer
}

// WrapBackend returns an instrumented backend that emits one span per call.
func WrapBackend(inner relay.Backend, model string) *ObservedBackend {
	return &ObservedBackend{
		inner: inner,
		model: model,
		trc:   otel.Tracer(scopeName),
	}
}

func (o *ObservedBackend) Name() string { return o.inner.Name() }

func (o *ObservedBackend) Complete(ctx context.Context, messages []relay.ChatMessage) (relay.Completion, error) {
	ctx, span := o.trc.Start(ctx, "llm.complete", trace.WithAttributes(
		AttrModel.String(o.model),
		AttrBackend.String(o.inner.Name()),
		AttrMethod.String("complete"),
	))
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Complete(ctx, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(durationMs(start))
	return resp, err
}

func (o *ObservedBackend) CompleteWithTools(ctx context.Context, messages []relay.ChatMessage, tools []relay.ToolSpec) (relay.Completion, error) {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	ctx, span := o.trc.Start(ctx, "llm.complete_with_tools", trace.WithAttributes(
		AttrModel.String(o.model),
		AttrBackend.String(o.inner.Name()),
		AttrMethod.String("complete_with_tools"),
		AttrToolCount.Int(len(tools)),
		AttrToolNames.StringSlice(names),
	))
	defer span.End()
	start := time.Now()

	resp, err := o.inner.CompleteWithTools(ctx, messages, tools)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(durationMs(start))
	return resp, err
}

// CompleteStream counts forwarded chunks on the span. The mid channel keeps
// o from holding the span open past the inner stream's close.
func (o *ObservedBackend) CompleteStream(ctx context.Context, messages []relay.ChatMessage, ch chan<- relay.StreamChunk) (relay.Completion, error) {
	ctx, span := o.trc.Start(ctx, "llm.complete_stream", trace.WithAttributes(
		AttrModel.String(o.model),
		AttrBackend.String(o.inner.Name()),
		AttrMethod.String("complete_stream"),
	))
	defer span.End()
	start := time.Now()

	mid := make(chan relay.StreamChunk, 64)
	done := make(chan struct{})
	var (
		resp relay.Completion
		err  error
	)
	go func() {
		defer close(done)
		resp, err = o.inner.CompleteStream(ctx, messages, mid)
	}()

	chunks := 0
	for c := range mid {
		chunks++
		ch <- c
	}
	<-done
	close(ch)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(AttrStreamChunks.Int(chunks), durationMs(start))
	return resp, err
}

// ObservedEmbedding wraps a relay.EmbeddingProvider with trace spans.
type ObservedEmbedding struct {
	inner relay.EmbeddingProvider
	model string
	trc   trace.Tracer
}

// WrapEmbedding returns an instrumented embedding provider.
func WrapEmbedding(inner relay.EmbeddingProvider, model string) *ObservedEmbedding {
	return &ObservedEmbedding{
		inner: inner,
		model: model,
		trc:   otel.Tracer(scopeName),
	}
}

func (o *ObservedEmbedding) Name() string    { return o.inner.Name() }
func (o *ObservedEmbedding) Dimensions() int { return o.inner.Dimensions() }

func (o *ObservedEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := o.trc.Start(ctx, "llm.embed", trace.WithAttributes(
		AttrModel.String(o.model),
		AttrBackend.String(o.inner.Name()),
		AttrEmbedTextCount.Int(len(texts)),
		AttrEmbedDimensions.Int(o.inner.Dimensions()),
	))
	defer span.End()
	start := time.Now()

	vecs, err := o.inner.Embed(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(durationMs(start))
	return vecs, err
}

var attrDurationMs = attribute.Key("llm.duration_ms")

func durationMs(start time.Time) attribute.KeyValue {
	return attrDurationMs.Float64(float64(time.Since(start).Microseconds()) / 1000)
}

// compile-time checks
var (
	_ relay.Backend           = (*ObservedBackend)(nil)
	_ relay.EmbeddingProvider = (*ObservedEmbedding)(nil)
)
