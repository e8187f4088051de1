// Package websearch is the search backend behind the generic web_search tool.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"aichat/pkg/ai"
	"aichat/pkg/version"
)

const (
	defaultMaxResults = 5
	defaultTimeout    = 20 * time.Second
	maxExcerptLen     = 500
)

// Config configures a search Client.
type Config struct {
	APIURL     string
	APIKey     string
	MaxResults int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client posts queries to a JSON search API.
type Client struct {
	apiURL     string
	apiKey     string
	maxResults int
	httpClient *http.Client
}

type searchRequest struct {
	APIKey     string `json:"api_key,omitempty"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// searchResponse accepts both a "sources" list and the common "results"
// list with "content" as the excerpt.
type searchResponse struct {
	Sources []ai.Source `json:"sources"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Result is the tool output handed back to the model.
type Result struct {
	Query   string      `json:"query"`
	Sources []ai.Source `json:"sources"`
}

// NewClient creates a search client.
func NewClient(cfg Config) (*Client, error) {
	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL == "" {
		return nil, fmt.Errorf("web search api_url is required")
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		apiURL:     apiURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		maxResults: maxResults,
		httpClient: httpClient,
	}, nil
}

// Search runs one query.
func (c *Client) Search(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, fmt.Errorf("query is required")
	}

	body, err := json.Marshal(searchRequest{
		APIKey:     c.apiKey,
		Query:      query,
		MaxResults: c.maxResults,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("search API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed searchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("failed to parse response: %w", err)
	}

	sources := make([]ai.Source, 0, len(parsed.Sources)+len(parsed.Results))
	for _, s := range parsed.Sources {
		if s.URL == "" {
			continue
		}
		s.Type = ai.SourceTypeURL
		s.Excerpt = truncate(s.Excerpt)
		sources = append(sources, s)
	}
	for _, r := range parsed.Results {
		if r.URL == "" {
			continue
		}
		sources = append(sources, ai.Source{
			Type:    ai.SourceTypeURL,
			Title:   r.Title,
			URL:     r.URL,
			Excerpt: truncate(r.Content),
		})
	}
	if len(sources) > c.maxResults {
		sources = sources[:c.maxResults]
	}

	slog.Debug("web_search_done",
		"result_count", len(sources),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Result{Query: query, Sources: sources}, nil
}

// Executor adapts Search to the web_search tool input {"query": string}.
func (c *Client) Executor() ai.ToolExecutor {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("invalid web_search input: %w", err)
		}
		return c.Search(ctx, args.Query)
	}
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxExcerptLen {
		return s
	}
	return string(runes[:maxExcerptLen]) + "..."
}
