// Package serpapi enriches free text with the top organic search snippet from SerpAPI.
package serpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
	"github.com/tjfontaine/canvass-pipeline/internal/pkg/safehttp"
)

// DefaultBaseURL is the public SerpAPI endpoint.
const DefaultBaseURL = "https://serpapi.com"

// ErrNoSnippet is returned when the search has no usable first result.
var ErrNoSnippet = errors.New("serpapi: no snippet in results")

// Client calls the SerpAPI search endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ ports.Enricher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// New creates a SerpAPI client.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Transport: safehttp.SafeTransport},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic_results"`
	Error string `json:"error,omitempty"`
}

// Enrich searches for query and returns the first organic result's snippet.
func (c *Client) Enrich(ctx context.Context, query string) (string, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("serpapi: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("serpapi: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("serpapi: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("serpapi: unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("serpapi: failed to decode response: %w", err)
	}
	if sr.Error != "" {
		return "", fmt.Errorf("serpapi: %s", sr.Error)
	}
	if len(sr.OrganicResults) == 0 || strings.TrimSpace(sr.OrganicResults[0].Snippet) == "" {
		return "", ErrNoSnippet
	}

	return sr.OrganicResults[0].Snippet, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
