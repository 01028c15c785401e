package cohere

import "encoding/json"

// Wire types for the Cohere v2 chat and embed APIs.

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []tool        `json:"tools,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolPlan   string     `json:"tool_plan,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Message struct {
		Role     string         `json:"role"`
		Content  []contentBlock `json:"content"`
		ToolCalls []toolCall    `json:"tool_calls"`
		ToolPlan string         `json:"tool_plan"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// streamEvent is one SSE data payload. Type discriminates; only
// content-delta and citation-start carry data the router consumes, the rest
// are boundaries.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Message struct {
			Content struct {
				Text string `json:"text"`
			} `json:"content"`
			Citations wireCitation `json:"citations"`
		} `json:"message"`
	} `json:"delta"`
}

type wireCitation struct {
	Start   int          `json:"start"`
	End     int          `json:"end"`
	Text    string       `json:"text"`
	Sources []wireSource `json:"sources"`
}

// wireSource tolerates both flat url/title fields and nested document
// payloads, which is how tool-backed citations arrive.
type wireSource struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Document struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"document"`
}

func (s wireSource) url() string {
	if s.URL != "" {
		return s.URL
	}
	return s.Document.URL
}

func (s wireSource) title() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Document.Title
}

type embedRequest struct {
	Model          string   `json:"model"`
	Texts          []string `json:"texts"`
	InputType      string   `json:"input_type"`
	EmbeddingTypes []string `json:"embedding_types"`
}

type embedResponse struct {
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
}
