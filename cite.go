package relay

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Annotator splices source links into response text at the byte offsets the
// provider reported. Annotation is pure text transformation: no network, no
// model calls.
type Annotator struct {
	logger *slog.Logger
}

// AnnotatorOption configures an Annotator.
type AnnotatorOption func(*Annotator)

// AnnotatorLogger sets the structured logger.
func AnnotatorLogger(l *slog.Logger) AnnotatorOption {
	return func(a *Annotator) { a.logger = l }
}

// NewAnnotator creates an Annotator.
func NewAnnotator(opts ...AnnotatorOption) *Annotator {
	a := &Annotator{logger: nopLogger}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Annotate inserts `<a href="URL">N</a>` markers immediately after each
// citation's end offset and returns the annotated text plus the URL index
// map (URL to 1-based reference number). With no citations the text comes
// back untouched and the map is empty.
//
// Citations are processed in descending end order so earlier insertions
// never shift later offsets; the input order of the slice does not affect
// the output.
func (a *Annotator) Annotate(text string, citations []Citation) (string, map[string]int) {
	urlIndex := make(map[string]int)
	if len(citations) == 0 {
		return text, urlIndex
	}

	sorted := make([]Citation, len(citations))
	copy(sorted, citations)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].End != sorted[j].End {
			return sorted[i].End > sorted[j].End
		}
		return sorted[i].Start > sorted[j].Start
	})

	// First pass: assign reference numbers in walk order.
	for _, c := range sorted {
		if len(c.Sources) == 0 {
			a.logger.Warn("citation carries no sources, skipping", "span", c.Text)
			continue
		}
		for _, url := range citationURLs(c) {
			if _, ok := urlIndex[url]; !ok {
				urlIndex[url] = len(urlIndex) + 1
			}
		}
	}

	// Second pass: splice the markers, highest offset first.
	out := text
	for _, c := range sorted {
		links := linkMarkers(c, urlIndex)
		if links == "" {
			continue
		}
		end := c.End
		if end < 0 {
			continue
		}
		if end > len(text) {
			a.logger.Warn("citation end beyond text, clamping",
				"end", c.End, "len", len(text))
			end = len(text)
		}
		out = out[:end] + links + out[end:]
	}

	return tidyAnnotated(out), urlIndex
}

// citationURLs returns the citation's source URLs, deduplicated, in source
// order. Sources without a URL are dropped.
func citationURLs(c Citation) []string {
	seen := make(map[string]bool, len(c.Sources))
	urls := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.URL == "" || seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		urls = append(urls, s.URL)
	}
	return urls
}

// linkMarkers renders the anchor markers for one citation, URLs in lexical
// order so repeated runs produce identical text.
func linkMarkers(c Citation, urlIndex map[string]int) string {
	urls := citationURLs(c)
	sort.Strings(urls)
	var b strings.Builder
	for _, url := range urls {
		fmt.Fprintf(&b, `<a href="%s">%d</a>`, url, urlIndex[url])
	}
	return b.String()
}

// tidyAnnotated cleans up the spliced text: collapses runs of whitespace
// within each line, trims stray commas left at line edges by the splice,
// and restores blank lines around list items and headings.
func tidyAnnotated(s string) string {
	var out []string
	for _, raw := range strings.Split(s, "\n") {
		line := strings.Join(strings.Fields(raw), " ")
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), ","))

		structural := strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "#")
		if structural && len(out) > 0 && out[len(out)-1] != "" {
			out = append(out, "")
		}
		out = append(out, line)
		if strings.HasPrefix(line, "#") && strings.Contains(line, "<a href=") {
			out = append(out, "")
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
