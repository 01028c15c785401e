package relay

// ChunkKind identifies the kind of a streamed provider chunk.
type ChunkKind string

const (
	// ChunkContentDelta carries an incremental text fragment. Forwarded to
	// the caller immediately and concatenated into the full response.
	ChunkContentDelta ChunkKind = "content-delta"
	// ChunkCitation carries a citation span. Buffered for annotation, not
	// forwarded verbatim.
	ChunkCitation ChunkKind = "citation-start"
	// ChunkBoundary marks a stream control point (message/content start or
	// end). Control-only; logged and otherwise ignored.
	ChunkBoundary ChunkKind = "boundary"
	// ChunkError carries an inline error message, including the terminal
	// marker appended when a stream times out.
	ChunkError ChunkKind = "error"
)

// StreamChunk is one unit of a streamed provider response. Chunks are
// ephemeral and consumed exactly once by the aggregator.
type StreamChunk struct {
	Kind     ChunkKind `json:"kind"`
	Text     string    `json:"text,omitempty"`     // content delta or error message
	Citation *Citation `json:"citation,omitempty"` // set for citation-start
	Boundary string    `json:"boundary,omitempty"` // e.g. "message-start", "content-end"
}

// ProviderResult is the outcome of one provider invocation: either an
// immediate text (with optional citations) or a chunk stream. Exactly one
// form is populated; Streaming discriminates.
type ProviderResult struct {
	Text      string
	Citations []Citation
	Stream    <-chan StreamChunk
}

// Streaming reports whether the result is a chunk stream.
func (r ProviderResult) Streaming() bool { return r.Stream != nil }

// Immediate builds a non-streaming ProviderResult.
func Immediate(text string, citations ...Citation) ProviderResult {
	return ProviderResult{Text: text, Citations: citations}
}
