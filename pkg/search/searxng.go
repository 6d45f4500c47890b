package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// SearXNGClient queries a SearXNG instance's JSON API.
type SearXNGClient struct {
	Endpoint   string
	HTTPClient *http.Client
}

func NewSearXNGClient(endpoint string) *SearXNGClient {
	return &SearXNGClient{Endpoint: endpoint, HTTPClient: &http.Client{Timeout: 15 * time.Second}}
}

type searxngResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
}

func (c *SearXNGClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s&format=json", c.Endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("search: searxng request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: searxng fetch: %w", err)
	}
	defer resp.Body.Close()

	var parsed searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("search: searxng decode: %w", err)
	}

	out := make([]Result, 0, len(parsed.Results))
	for i, r := range parsed.Results {
		if maxResults > 0 && i >= maxResults {
			break
		}
		out = append(out, Result{URL: r.URL, Title: r.Title, Snippet: r.Content, Rank: i, Provider: ProviderSearXNG, Query: query})
	}
	return out, nil
}
