package cohere

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	relay "github.com/relaykit/relay"
)

// Embedding is a Cohere v2 embedding provider.
type Embedding struct {
	client     *Client
	model      string
	dimensions int
}

// NewEmbedding creates an embedding provider for the given model.
// dimensions must match what the model emits.
func NewEmbedding(apiKey, model string, dimensions int, opts ...Option) *Embedding {
	return &Embedding{
		client:     New(apiKey, model, opts...),
		model:      model,
		dimensions: dimensions,
	}
}

// Name returns "cohere-embed".
func (e *Embedding) Name() string { return "cohere-embed" }

// Dimensions returns the embedding vector size.
func (e *Embedding) Dimensions() int { return e.dimensions }

// Embed returns one vector per input text.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body := embedRequest{
		Model:          e.model,
		Texts:          texts,
		InputType:      "search_query",
		EmbeddingTypes: []string{"float"},
	}

	resp, err := e.client.sendHTTP(ctx, "/v2/embed", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.client.httpErr(resp)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &relay.ErrBackendUnavailable{
			Backend: e.Name(),
			Err:     fmt.Errorf("decode response: %w", err),
		}
	}
	if len(out.Embeddings.Float) != len(texts) {
		return nil, &relay.ErrBackendUnavailable{
			Backend: e.Name(),
			Err:     fmt.Errorf("got %d embeddings for %d texts", len(out.Embeddings.Float), len(texts)),
		}
	}
	return out.Embeddings.Float, nil
}

// compile-time check
var _ relay.EmbeddingProvider = (*Embedding)(nil)
