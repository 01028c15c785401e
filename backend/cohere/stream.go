package cohere

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	relay "github.com/relaykit/relay"
)

// streamSSE reads a Cohere v2 SSE stream from body, forwards chunks to ch,
// and returns the accumulated completion. ch is closed before returning.
//
// Event mapping: content-delta carries text, citation-start carries one
// citation span, everything else (message-start, content-start, content-end,
// citation-end, message-end) becomes a boundary chunk.
func streamSSE(ctx context.Context, body io.Reader, ch chan<- relay.StreamChunk) (relay.Completion, error) {
	defer close(ch)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var full strings.Builder

	send := func(c relay.StreamChunk) error {
		select {
		case ch <- c:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			// Skip malformed chunks.
			continue
		}

		switch ev.Type {
		case "content-delta":
			text := ev.Delta.Message.Content.Text
			if text == "" {
				continue
			}
			full.WriteString(text)
			if err := send(relay.StreamChunk{Kind: relay.ChunkContentDelta, Text: text}); err != nil {
				return relay.Completion{}, err
			}
		case "citation-start":
			cit := toCitation(ev.Delta.Message.Citations)
			if err := send(relay.StreamChunk{Kind: relay.ChunkCitation, Citation: &cit}); err != nil {
				return relay.Completion{}, err
			}
		case "":
			// Keep-alive or unrecognized payload.
		default:
			if err := send(relay.StreamChunk{Kind: relay.ChunkBoundary, Boundary: ev.Type}); err != nil {
				return relay.Completion{}, err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return relay.Completion{}, err
	}
	return relay.Completion{Text: full.String()}, nil
}

func toCitation(w wireCitation) relay.Citation {
	c := relay.Citation{
		Start: w.Start,
		End:   w.End,
		Text:  w.Text,
	}
	for _, s := range w.Sources {
		c.Sources = append(c.Sources, relay.Source{
			URL:   s.url(),
			Title: s.title(),
		})
	}
	return c
}
