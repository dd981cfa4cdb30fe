/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/agents/executor/retry"
	"github.com/chainguard-dev/clog"
)

const (
	// DefaultURL is the search endpoint.
	DefaultURL = "https://api.tavily.com/search"
	// DefaultMaxResults is the number of results requested per query.
	DefaultMaxResults = 5
	// DefaultTimeout bounds each search attempt.
	DefaultTimeout = 20 * time.Second
)

// Result is one search hit as returned by the provider.
type Result struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content"`
	Score      float64 `json:"score"`
}

type searchRequest struct {
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
	MaxResults        int    `json:"max_results"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Client queries the search provider, rotating across API keys.
type Client struct {
	url        string
	keys       []string
	next       atomic.Uint64
	httpClient *http.Client
	maxResults int
	retry      retry.Config
}

// Option configures a Client.
type Option func(*Client) error

// WithURL overrides the search endpoint.
func WithURL(url string) Option {
	return func(c *Client) error {
		if url == "" {
			return errors.New("search url cannot be empty")
		}
		c.url = url
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithMaxResults sets how many results are requested.
func WithMaxResults(n int) Option {
	return func(c *Client) error {
		if n <= 0 {
			return fmt.Errorf("max results must be positive, got %d", n)
		}
		c.maxResults = n
		return nil
	}
}

// WithRetryConfig sets retry and per-attempt timeout behavior.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid retry config: %w", err)
		}
		c.retry = cfg
		return nil
	}
}

// New creates a Client. At least one API key is required.
func New(keys []string, opts ...Option) (*Client, error) {
	var nonEmpty []string
	for _, k := range keys {
		if k != "" {
			nonEmpty = append(nonEmpty, k)
		}
	}
	if len(nonEmpty) == 0 {
		return nil, agenterr.Newf(agenterr.KindConfiguration, "websearch", "no search API keys are configured")
	}
	c := &Client{
		url:        DefaultURL,
		keys:       nonEmpty,
		httpClient: http.DefaultClient,
		maxResults: DefaultMaxResults,
		retry: retry.Config{
			MaxRetries:     2,
			BaseBackoff:    500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			MaxJitter:      250 * time.Millisecond,
			AttemptTimeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return c, nil
}

// nextKey returns keys in round-robin order, safe for concurrent sessions.
func (c *Client) nextKey() string {
	n := c.next.Add(1) - 1
	return c.keys[n%uint64(len(c.keys))]
}

// Search returns the raw results for query.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	if query == "" {
		return nil, agenterr.Validation("query cannot be empty")
	}
	body, err := json.Marshal(searchRequest{
		Query:             query,
		SearchDepth:       "basic",
		IncludeAnswer:     false,
		IncludeRawContent: true,
		MaxResults:        c.maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	results, err := retry.Do(ctx, c.retry, "web_search", isRetryable, func(ctx context.Context) ([]Result, error) {
		return c.do(ctx, body)
	})
	if err != nil {
		return nil, err
	}
	clog.FromContext(ctx).With("query", query).With("results", len(results)).Info("Web search completed")
	return results, nil
}

// SearchText runs a search and returns the cleaned digest used as a tool result.
func (c *Client) SearchText(ctx context.Context, query string) (string, error) {
	results, err := c.Search(ctx, query)
	if err != nil {
		return "", err
	}
	return Clean(results, query), nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("web search failed with status %d", e.code) }

func (c *Client) do(ctx context.Context, body []byte) ([]Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.nextKey())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		serr := &statusError{code: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, agenterr.New(agenterr.KindRateLimited, "web_search", serr)
		}
		return nil, serr
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return out.Results, nil
}

// isRetryable retries rate limits, timeouts, and server errors. A 429 is
// retried because the next attempt uses the next key.
func isRetryable(err error) bool {
	if agenterr.IsRetryable(err) {
		return true
	}
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.code >= 500
	}
	return false
}
