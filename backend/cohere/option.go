package cohere

import (
	"log/slog"
	"net/http"
)

// Option configures a Client or Embedding.
type Option func(*Client)

// WithBaseURL overrides the API base URL (for proxies and tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTemperature sets the sampling temperature for every request.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = &t }
}

// WithMaxTokens caps the response length for every request.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = &n }
}
