// Package render converts provider output for web clients: markdown to
// HTML and fenced code block normalization.
package render

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	// Cited text carries inline <a href> anchors that must survive conversion.
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// ToHTML converts markdown to HTML. Inline HTML in the source (citation
// anchors in particular) passes through unchanged. On conversion failure
// the escaped source is returned.
func ToHTML(md string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return htmlEscape(md)
	}
	return strings.TrimSpace(buf.String())
}

func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
