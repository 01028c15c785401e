package relay

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterTransient(t *testing.T) {
	backend := &mockBackend{replies: []mockReply{
		{err: &ErrHTTP{Status: 429, Body: "rate limited"}},
		{text: "recovered"},
	}}
	b := WithRetry(backend, RetryBaseDelay(time.Millisecond))

	c, err := b.Complete(context.Background(), []ChatMessage{UserMessage("hi")})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if c.Text != "recovered" {
		t.Fatalf("text = %q", c.Text)
	}
	if backend.callCount() != 2 {
		t.Fatalf("attempts = %d, want 2", backend.callCount())
	}
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	backend := &mockBackend{replies: []mockReply{
		{err: &ErrHTTP{Status: 400, Body: "bad request"}},
	}}
	b := WithRetry(backend, RetryBaseDelay(time.Millisecond))

	_, err := b.Complete(context.Background(), []ChatMessage{UserMessage("hi")})
	if err == nil {
		t.Fatal("want error")
	}
	if backend.callCount() != 1 {
		t.Fatalf("attempts = %d, want 1", backend.callCount())
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	backend := &mockBackend{replies: []mockReply{
		{err: &ErrHTTP{Status: 503, Body: "unavailable"}},
	}}
	b := WithRetry(backend, RetryMaxAttempts(3), RetryBaseDelay(time.Millisecond))

	_, err := b.Complete(context.Background(), []ChatMessage{UserMessage("hi")})
	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.Status != 503 {
		t.Fatalf("err = %v", err)
	}
	if backend.callCount() != 3 {
		t.Fatalf("attempts = %d, want 3", backend.callCount())
	}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	backend := &mockBackend{replies: []mockReply{
		{err: &ErrHTTP{Status: 429, RetryAfter: 50 * time.Millisecond}},
		{text: "ok"},
	}}
	b := WithRetry(backend, RetryBaseDelay(time.Millisecond))

	start := time.Now()
	if _, err := b.Complete(context.Background(), []ChatMessage{UserMessage("hi")}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("retry waited only %s, want at least the Retry-After", elapsed)
	}
}

func TestRetryStreamNoRetryAfterChunksSent(t *testing.T) {
	calls := 0
	backend := &mockBackend{stream: func(ctx context.Context, out chan<- StreamChunk) error {
		calls++
		out <- StreamChunk{Kind: ChunkContentDelta, Text: "partial"}
		return &ErrHTTP{Status: 503, Body: "mid-stream drop"}
	}}
	b := WithRetry(backend, RetryBaseDelay(time.Millisecond))

	ch := make(chan StreamChunk, 8)
	_, err := b.CompleteStream(context.Background(), []ChatMessage{UserMessage("hi")}, ch)
	if err == nil {
		t.Fatal("want mid-stream error to pass through")
	}
	if calls != 1 {
		t.Fatalf("stream attempted %d times after chunks were sent", calls)
	}
	var got []StreamChunk
	for c := range ch {
		got = append(got, c)
	}
	if len(got) != 1 || got[0].Text != "partial" {
		t.Fatalf("forwarded = %+v", got)
	}
}

func TestRetryStreamRetriesBeforeFirstChunk(t *testing.T) {
	calls := 0
	backend := &mockBackend{stream: func(ctx context.Context, out chan<- StreamChunk) error {
		calls++
		if calls == 1 {
			return &ErrHTTP{Status: 429, Body: "limited"}
		}
		out <- StreamChunk{Kind: ChunkContentDelta, Text: "second try"}
		return nil
	}}
	b := WithRetry(backend, RetryBaseDelay(time.Millisecond))

	ch := make(chan StreamChunk, 8)
	_, err := b.CompleteStream(context.Background(), []ChatMessage{UserMessage("hi")}, ch)
	if err != nil {
		t.Fatalf("CompleteStream: %v", err)
	}
	if calls != 2 {
		t.Fatalf("attempts = %d, want 2", calls)
	}
	var got []StreamChunk
	for c := range ch {
		got = append(got, c)
	}
	if len(got) != 1 || got[0].Text != "second try" {
		t.Fatalf("forwarded = %+v", got)
	}
}

func TestEmbeddingRetry(t *testing.T) {
	calls := 0
	inner := &flakyEmbedding{fail: func() error {
		calls++
		if calls == 1 {
			return &ErrHTTP{Status: 503}
		}
		return nil
	}}
	e := WithEmbeddingRetry(inner, RetryBaseDelay(time.Millisecond))

	vecs, err := e.Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 1 {
		t.Fatalf("vecs = %v", vecs)
	}
	if calls != 2 {
		t.Fatalf("attempts = %d, want 2", calls)
	}
}

type flakyEmbedding struct {
	fail func() error
}

func (f *flakyEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func (f *flakyEmbedding) Dimensions() int { return 1 }
func (f *flakyEmbedding) Name() string    { return "flaky" }
