// Package websearch provides pluggable search backends for the
// web_research skill. Grounded on original_source/core/providers/
// search_client.py's SearchClient protocol: a stub client that extracts
// literal URLs from the query, and an HTTP-POST client for a configured
// search endpoint (generalized from the original's Yandex-specific client).
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

// Result is one search hit.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// Client searches for a query, or resolves an explicit URL list when given.
type Client interface {
	Search(ctx context.Context, query string, urls []string) ([]Result, error)
}

var urlPattern = regexp.MustCompile(`https?://[^\s)]+`)

// StubClient resolves explicit URLs (or URLs literally embedded in the
// query) without calling out to any network search provider. Used when no
// search endpoint is configured, so web_research still has something to
// fetch and summarize in a fully offline/local-first setup.
type StubClient struct{}

func (StubClient) Search(_ context.Context, query string, urls []string) ([]Result, error) {
	resolved := urls
	if len(resolved) == 0 {
		resolved = urlPattern.FindAllString(query, -1)
	}
	results := make([]Result, 0, len(resolved))
	for _, u := range resolved {
		results = append(results, Result{URL: u})
	}
	return results, nil
}

// HTTPClient posts {"query": ...} to a configured search endpoint and
// expects back {"results": [{"url","title","snippet"}, ...]}.
type HTTPClient struct {
	Endpoint string
	APIKey   string
	client   *http.Client
}

// NewHTTPClient constructs an HTTPClient against endpoint, authenticating
// with apiKey via an Api-Key authorization header.
func NewHTTPClient(endpoint, apiKey string) *HTTPClient {
	return &HTTPClient{Endpoint: endpoint, APIKey: apiKey, client: &http.Client{Timeout: 15 * time.Second}}
}

func (c *HTTPClient) Search(ctx context.Context, query string, urls []string) ([]Result, error) {
	if len(urls) > 0 {
		results := make([]Result, 0, len(urls))
		for _, u := range urls {
			results = append(results, Result{URL: u})
		}
		return results, nil
	}
	if query == "" {
		return nil, nil
	}
	body, _ := json.Marshal(map[string]string{"query": query})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Api-Key "+c.APIKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("search endpoint returned status %d", resp.StatusCode)
	}
	var parsed struct {
		Results []Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Results, nil
}
