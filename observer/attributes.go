package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for backend and routing spans.
var (
	AttrModel   = attribute.Key("llm.model")
	AttrBackend = attribute.Key("llm.backend")
	AttrMethod  = attribute.Key("llm.method")

	AttrToolCount = attribute.Key("llm.tool_count")
	AttrToolNames = attribute.Key("llm.tool_names")

	AttrStreamChunks = attribute.Key("llm.stream_chunks")

	AttrEmbedTextCount  = attribute.Key("llm.embed.text_count")
	AttrEmbedDimensions = attribute.Key("llm.embed.dimensions")
)
