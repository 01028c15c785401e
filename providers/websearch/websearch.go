// Package websearch answers queries needing current information: Brave web
// search, concurrent page extraction, embedding re-ranking, and a streaming
// synthesis grounded on the ranked snippets. Citation chunks emitted by the
// backend flow through untouched.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-shiori/go-readability"

	relay "github.com/relaykit/relay"
)

const (
	defaultSearchURL = "https://api.search.brave.com/res/v1/web/search"
	userAgent        = "Mozilla/5.0 (compatible; RelayBot/1.0)"
	maxPageBytes     = 512 << 10
	maxExtractChars  = 8000
	maxContextChunks = 8
)

// Provider is the "websearch" capability.
type Provider struct {
	backend   relay.Backend
	embedding relay.EmbeddingProvider
	apiKey    string
	searchURL string
	client    *http.Client
	logger    *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithHTTPClient replaces the HTTP client used for search and page fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithSearchURL overrides the search endpoint. Tests point this at a local
// server.
func WithSearchURL(u string) Option {
	return func(p *Provider) { p.searchURL = u }
}

// New creates a websearch provider. embedding may be nil; ranking then
// degrades to search-engine order.
func New(backend relay.Backend, embedding relay.EmbeddingProvider, braveAPIKey string, opts ...Option) *Provider {
	p := &Provider{
		backend:   backend,
		embedding: embedding,
		apiKey:    braveAPIKey,
		searchURL: defaultSearchURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return "websearch" }

var _ relay.CapabilityProvider = (*Provider)(nil)

type searchResult struct {
	Title   string
	URL     string
	Snippet string
	Content string // extracted page text, may be empty
}

type rankedChunk struct {
	Text   string
	Source int // index into results
	Score  float32
}

const synthesisPrompt = `## Task & Context
You answer questions using the web search results below. Ground every factual
claim in the numbered sources and mention which source supports it. If the
sources do not cover the question, say so rather than guessing.

## Search results
%s`

// Invoke searches, ranks, and streams a grounded answer. Search failures are
// invocation errors; backend stream failures after start surface as a
// terminal error chunk.
func (p *Provider) Invoke(ctx context.Context, inv relay.Invocation) (relay.ProviderResult, error) {
	results, err := p.search(ctx, inv.Query, 8)
	if err != nil {
		return relay.ProviderResult{}, err
	}
	if len(results) == 0 {
		return relay.Immediate(fmt.Sprintf("I could not find any web results for %q.", inv.Query)), nil
	}

	p.fetchAndExtract(ctx, results)
	ranked := p.rank(ctx, inv.Query, results)
	contextBlock := formatContext(ranked, results)

	messages := make([]relay.ChatMessage, 0, len(inv.History)+2)
	messages = append(messages, relay.SystemMessage(fmt.Sprintf(synthesisPrompt, contextBlock)))
	for _, t := range inv.History {
		messages = append(messages, relay.ChatMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, relay.UserMessage(inv.Query))

	inner := make(chan relay.StreamChunk, 16)
	out := make(chan relay.StreamChunk, 16)
	errc := make(chan error, 1)

	go func() {
		_, err := p.backend.CompleteStream(ctx, messages, inner)
		errc <- err
	}()
	go func() {
		defer close(out)
		for chunk := range inner {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err := <-errc; err != nil {
			p.logger.Warn("websearch stream failed", "error", err)
			select {
			case out <- relay.StreamChunk{Kind: relay.ChunkError, Text: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return relay.ProviderResult{Stream: out}, nil
}

func (p *Provider) search(ctx context.Context, query string, count int) ([]*searchResult, error) {
	u := fmt.Sprintf("%s?q=%s&count=%d", p.searchURL, url.QueryEscape(query), count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("web search status %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("web search decode: %w", err)
	}

	var results []*searchResult
	for _, r := range data.Web.Results {
		results = append(results, &searchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Description,
		})
	}
	return results, nil
}

// fetchAndExtract downloads each result page concurrently and fills in
// readable text. Fetch failures leave Content empty; the snippet still
// participates in ranking.
func (p *Provider) fetchAndExtract(ctx context.Context, results []*searchResult) {
	var wg sync.WaitGroup
	for _, r := range results {
		wg.Add(1)
		go func(r *searchResult) {
			defer wg.Done()
			text, err := p.fetch(ctx, r.URL)
			if err != nil {
				p.logger.Debug("page fetch skipped", "url", r.URL, "error", err)
				return
			}
			r.Content = text
		}(r)
	}
	wg.Wait()
}

func (p *Provider) fetch(ctx context.Context, rawURL string) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}

	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil || article.TextContent == "" {
		return "", fmt.Errorf("no readable content")
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > maxExtractChars {
		text = text[:maxExtractChars]
	}
	return text, nil
}

// rank scores snippet and page chunks against the query via embeddings.
// Without an embedding provider, or when embedding fails, the first chunks
// in search-engine order are kept.
func (p *Provider) rank(ctx context.Context, query string, results []*searchResult) []rankedChunk {
	var chunks []rankedChunk
	for i, r := range results {
		if r.Snippet != "" {
			chunks = append(chunks, rankedChunk{Text: r.Snippet, Source: i})
		}
		for _, c := range chunkText(r.Content, 500) {
			if len(c) < 50 {
				continue
			}
			chunks = append(chunks, rankedChunk{Text: c, Source: i})
		}
	}
	if len(chunks) == 0 {
		return chunks
	}

	if p.embedding == nil {
		return truncateChunks(chunks)
	}

	texts := make([]string, 0, 1+len(chunks))
	texts = append(texts, query)
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	vecs, err := p.embedding.Embed(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		p.logger.Warn("re-ranking skipped", "error", err)
		return truncateChunks(chunks)
	}

	for i := range chunks {
		chunks[i].Score = cosineSimilarity(vecs[0], vecs[i+1])
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
	return truncateChunks(chunks)
}

func truncateChunks(chunks []rankedChunk) []rankedChunk {
	if len(chunks) > maxContextChunks {
		chunks = chunks[:maxContextChunks]
	}
	return chunks
}

// formatContext renders ranked chunks plus a source list, numbered so the
// backend can point at them.
func formatContext(ranked []rankedChunk, results []*searchResult) string {
	var out strings.Builder
	seen := make(map[int]bool)

	for i, c := range ranked {
		fmt.Fprintf(&out, "[%d] %s\n%s\n\n", i+1, results[c.Source].Title, c.Text)
		seen[c.Source] = true
	}

	out.WriteString("Sources:\n")
	for i, r := range results {
		if seen[i] {
			fmt.Fprintf(&out, "- %s (%s)\n", r.Title, r.URL)
		}
	}
	return out.String()
}

// chunkText splits text into pieces of at most maxChars, preferring
// paragraph then line boundaries.
func chunkText(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para) > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if len(para) > maxChars {
			for _, line := range splitLong(para, maxChars) {
				chunks = append(chunks, line)
			}
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func splitLong(s string, maxChars int) []string {
	var out []string
	for len(s) > maxChars {
		cut := strings.LastIndexByte(s[:maxChars], ' ')
		if cut <= 0 {
			cut = maxChars
		}
		out = append(out, strings.TrimSpace(s[:cut]))
		s = strings.TrimSpace(s[cut:])
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
