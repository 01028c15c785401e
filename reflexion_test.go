package relay

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestEvaluateBlendsScores(t *testing.T) {
	backend := &mockBackend{replies: []mockReply{
		{text: `{"score": 0.9, "critique": "solid answer", "areas_for_improvement": [], "alternative_provider": ""}`},
	}}
	// Identical vectors make every similarity 1, so the quantitative score
	// is driven by the length term alone.
	emb := &stubEmbedding{}
	e := NewEvaluator(backend, emb)

	query := "what is the capital of france"
	candidate := "the capital of france is paris"
	v := e.Evaluate(context.Background(), query, candidate, "answer directly", "no prior turns")

	// ratio = 6/6 = 1 -> lengthScore 0.99, length term = min(0.7+0.297, 0.99)
	length := math.Min(0.7*1+0.3*0.99, 0.99)
	quant := (1 + 1 + length + 1) / 4
	want := 0.7*0.9 + 0.3*quant
	if math.Abs(v.Score-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", v.Score, want)
	}
	if !v.Satisfactory {
		t.Fatalf("verdict not satisfactory at score %v", v.Score)
	}
	if v.Critique != "solid answer" {
		t.Fatalf("critique = %q", v.Critique)
	}
}

func TestEvaluateNeutralOnBackendFailure(t *testing.T) {
	backend := &mockBackend{replies: []mockReply{{err: errors.New("boom")}}}
	e := NewEvaluator(backend, &stubEmbedding{})

	v := e.Evaluate(context.Background(), "q", "a", "", "")
	if v.Satisfactory || v.Score != 0.5 || v.Critique != "error" {
		t.Fatalf("want neutral verdict, got %+v", v)
	}
}

func TestEvaluateNeutralOnBadJSON(t *testing.T) {
	backend := &mockBackend{replies: []mockReply{{text: "I think it's fine."}}}
	e := NewEvaluator(backend, &stubEmbedding{})

	v := e.Evaluate(context.Background(), "q", "a", "", "")
	if v.Satisfactory || v.Score != 0.5 || v.Critique != "error" {
		t.Fatalf("want neutral verdict, got %+v", v)
	}
}

func TestEvaluateNeutralOnEmbeddingFailure(t *testing.T) {
	backend := &mockBackend{replies: []mockReply{
		{text: `{"score": 1.0, "critique": "fine"}`},
	}}
	e := NewEvaluator(backend, &stubEmbedding{fail: errors.New("no embeddings")})

	v := e.Evaluate(context.Background(), "q", "a", "", "")
	if v.Satisfactory || v.Score != 0.5 || v.Critique != "error" {
		t.Fatalf("want neutral verdict, got %+v", v)
	}
}

func TestEvaluateParsesFencedJSON(t *testing.T) {
	backend := &mockBackend{replies: []mockReply{
		{text: "```json\n{\"score\": 0.2, \"critique\": \"off topic\", \"alternative_provider\": \"tutor\", \"areas_for_improvement\": [\"address the question\"]}\n```"},
	}}
	e := NewEvaluator(backend, &stubEmbedding{})

	v := e.Evaluate(context.Background(), "explain recursion", "the weather is nice", "", "")
	if v.Satisfactory {
		t.Fatal("low-score verdict marked satisfactory")
	}
	if v.AlternativeProvider != "tutor" {
		t.Fatalf("alternative = %q, want tutor", v.AlternativeProvider)
	}
	if len(v.AreasForImprovement) != 1 || v.AreasForImprovement[0] != "address the question" {
		t.Fatalf("areas = %v", v.AreasForImprovement)
	}
}

func TestLengthAppropriateness(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		response string
		sim      float64
		want     float64
	}{
		{
			name:     "too short",
			query:    "one two three four five six seven eight nine ten",
			response: "one two",
			sim:      1,
			// ratio 0.2 -> lengthScore 0.4
			want: math.Min(0.7+0.3*0.4, 0.99),
		},
		{
			name:     "comfortable range",
			query:    "one two three",
			response: "one two three four",
			sim:      0.5,
			want:     0.5*0.7 + 0.99*0.3,
		},
		{
			name:     "rambling",
			query:    "hi",
			response: "a a a a a a a a",
			sim:      1,
			// ratio 8 -> lengthScore 0
			want: math.Min(0.7, 0.99),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lengthAppropriateness(tt.query, tt.response, tt.sim)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	if s := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(s-1) > 1e-9 {
		t.Fatalf("identical vectors: %v", s)
	}
	if s := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(s) > 1e-9 {
		t.Fatalf("orthogonal vectors: %v", s)
	}
	if s := cosineSimilarity([]float32{1, 0}, []float32{0, 0, 1}); s != 0 {
		t.Fatalf("mismatched lengths: %v", s)
	}
}
