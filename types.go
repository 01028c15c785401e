package relay

import "encoding/json"

// --- Conversation types ---

// Query is one user question, with its ordinal position in the conversation.
// Immutable once created.
type Query struct {
	Text     string `json:"text"`
	Position int    `json:"position"`
}

// Turn is one conversation turn. History is a bounded, ordered sequence of
// the most recent turns; older turns are dropped by the caller.
type Turn struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// UserTurn builds a user turn.
func UserTurn(text string) Turn { return Turn{Role: "user", Content: text} }

// AssistantTurn builds an assistant turn.
func AssistantTurn(text string) Turn { return Turn{Role: "assistant", Content: text} }

// --- Routing types ---

// Descriptor identifies a capability provider to the classifier.
// Name is the registry key; Description is what the classifier's prompt
// enumerates.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RoutingDecision is the classifier's choice of provider plus a confidence
// score in [0,1] and the model's stated rationale. Iteration records which
// reflexion pass produced it (0 for the first).
type RoutingDecision struct {
	Provider   string  `json:"provider"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
	Iteration  int     `json:"iteration"`
}

// ReflexionVerdict is the evaluator's judgment of a candidate decision or
// output. Score is always in [0,1]. AlternativeProvider is a suggested
// replacement when routing reflexion finds the selection inappropriate.
type ReflexionVerdict struct {
	Satisfactory        bool     `json:"satisfactory"`
	Score               float64  `json:"score"`
	Critique            string   `json:"critique"`
	AlternativeProvider string   `json:"alternative_provider,omitempty"`
	AreasForImprovement []string `json:"areas_for_improvement,omitempty"`
}

// --- Citation types ---

// Source is one document backing a citation span.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Citation is an offset range in generated text backed by one or more
// sources. Start and End are byte offsets into the finished text.
type Citation struct {
	Start   int      `json:"start"`
	End     int      `json:"end"`
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// --- Response envelope ---

// ResponseEnvelope is the terminal result of one handled turn.
// URLIndex maps each cited URL to its 1-based index in first-seen order;
// a URL maps to exactly one index regardless of how many citation spans
// reference it.
type ResponseEnvelope struct {
	RawText    string         `json:"raw_text"`
	CitedText  string         `json:"cited_text,omitempty"`
	URLIndex   map[string]int `json:"url_index,omitempty"`
	Provider   string         `json:"provider"`
	Iterations int            `json:"iterations"`
}

// Cited reports whether the envelope carries citation annotations.
func (e ResponseEnvelope) Cited() bool { return len(e.URLIndex) > 0 }

// --- Backend protocol types ---

// ChatMessage is one message in a backend conversation.
type ChatMessage struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a backend-requested tool invocation.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolSpec describes a tool to the backend.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// Completion is the backend's reply to a completion request.
type Completion struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	ToolPlan  string     `json:"tool_plan,omitempty"`
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}
