package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

// HTTPFetcher fetches a source over plain HTTP GET. It fills only Status,
// FinalURL and HTML (the body, capped at MaxBytes); LD+JSON blocks,
// network responses, embedded state and PDF bytes are left empty, and no
// JavaScript is executed (no headless browser anywhere in the reference
// corpus). Grounded on
// pkg/search.DuckDuckGoClient's http.Client + context-scoped request
// pattern.
type HTTPFetcher struct {
	HTTPClient *http.Client
	UserAgent  string
	MaxBytes   int64
}

// NewHTTPFetcher returns an HTTPFetcher with a bounded-size, bounded-time
// default client.
func NewHTTPFetcher(userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		UserAgent:  userAgent,
		MaxBytes:   8 << 20,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, src model.Source, timeout time.Duration) (model.PageData, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return model.PageData{}, fmt.Errorf("fetch: request %s: %w", src.URL, err)
	}
	req.Header.Set("User-Agent", f.userAgent())

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return model.PageData{}, fmt.Errorf("fetch: do %s: %w", src.URL, err)
	}
	defer resp.Body.Close()

	limit := f.MaxBytes
	if limit <= 0 {
		limit = 8 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return model.PageData{}, fmt.Errorf("fetch: read body %s: %w", src.URL, err)
	}

	finalURL := src.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return model.PageData{
		Status:   resp.StatusCode,
		FinalURL: finalURL,
		HTML:     string(body),
	}, nil
}

func (f *HTTPFetcher) userAgent() string {
	if f.UserAgent != "" {
		return f.UserAgent
	}
	return "Mozilla/5.0 (compatible; specsheet-bot/1.0)"
}

var _ Fetcher = (*HTTPFetcher)(nil)
