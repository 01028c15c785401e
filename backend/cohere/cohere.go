// Package cohere implements relay.Backend and relay.EmbeddingProvider
// against the Cohere v2 API.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	relay "github.com/relaykit/relay"
)

const defaultBaseURL = "https://api.cohere.com"

// Client is a Cohere v2 chat backend.
type Client struct {
	apiKey      string
	model       string
	baseURL     string
	client      *http.Client
	logger      *slog.Logger
	temperature *float64
	maxTokens   *int
}

// New creates a Cohere chat client for the given model.
func New(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Name returns "cohere".
func (c *Client) Name() string { return "cohere" }

// Complete sends a non-streaming chat request.
func (c *Client) Complete(ctx context.Context, messages []relay.ChatMessage) (relay.Completion, error) {
	return c.doChat(ctx, chatRequest{
		Model:       c.model,
		Messages:    toWireMessages(messages),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
}

// CompleteWithTools sends a chat request with tool specs; the reply may
// contain tool calls and a tool plan.
func (c *Client) CompleteWithTools(ctx context.Context, messages []relay.ChatMessage, tools []relay.ToolSpec) (relay.Completion, error) {
	return c.doChat(ctx, chatRequest{
		Model:       c.model,
		Messages:    toWireMessages(messages),
		Tools:       toWireTools(tools),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
}

func (c *Client) doChat(ctx context.Context, body chatRequest) (relay.Completion, error) {
	resp, err := c.sendHTTP(ctx, "/v2/chat", body)
	if err != nil {
		return relay.Completion{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return relay.Completion{}, c.httpErr(resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return relay.Completion{}, &relay.ErrBackendUnavailable{
			Backend: c.Name(),
			Err:     fmt.Errorf("decode response: %w", err),
		}
	}
	return parseResponse(out), nil
}

// CompleteStream streams chunks into ch and returns the accumulated
// response. ch is closed when streaming completes.
func (c *Client) CompleteStream(ctx context.Context, messages []relay.ChatMessage, ch chan<- relay.StreamChunk) (relay.Completion, error) {
	body := chatRequest{
		Model:       c.model,
		Messages:    toWireMessages(messages),
		Stream:      true,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	resp, err := c.sendHTTP(ctx, "/v2/chat", body)
	if err != nil {
		close(ch)
		return relay.Completion{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		close(ch)
		return relay.Completion{}, c.httpErr(resp)
	}

	// streamSSE closes ch when done.
	return streamSSE(ctx, resp.Body, ch)
}

func (c *Client) sendHTTP(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &relay.ErrBackendUnavailable{Backend: c.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &relay.ErrBackendUnavailable{Backend: c.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &relay.ErrBackendUnavailable{Backend: c.Name(), Err: err}
	}
	return resp, nil
}

// httpErr reads the response body and returns an ErrHTTP for the retry
// decorator. Parses the Retry-After header when present.
func (c *Client) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &relay.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: relay.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

func toWireMessages(messages []relay.ChatMessage) []chatMessage {
	out := make([]chatMessage, len(messages))
	for i, m := range messages {
		wm := chatMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			var w toolCall
			w.ID = tc.ID
			w.Type = "function"
			w.Function.Name = tc.Name
			w.Function.Arguments = string(tc.Args)
			wm.ToolCalls = append(wm.ToolCalls, w)
		}
		out[i] = wm
	}
	return out
}

func toWireTools(specs []relay.ToolSpec) []tool {
	out := make([]tool, len(specs))
	for i, s := range specs {
		out[i] = tool{
			Type: "function",
			Function: toolFunction{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		}
	}
	return out
}

func parseResponse(resp chatResponse) relay.Completion {
	var text strings.Builder
	for _, block := range resp.Message.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := relay.Completion{
		Text:     text.String(),
		ToolPlan: resp.Message.ToolPlan,
	}
	for _, tc := range resp.Message.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out.ToolCalls = append(out.ToolCalls, relay.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}

// compile-time check
var _ relay.Backend = (*Client)(nil)
