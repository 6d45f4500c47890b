package search

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DuckDuckGoClient scrapes the HTML (non-JS) results endpoint, since
// DuckDuckGo has no public JSON search API. Grounded on the teacher's use
// of goquery for DOM extraction (internal/dispatch's environment-probe
// scraping and, more directly, this repo's own pkg/extract/dom.go).
type DuckDuckGoClient struct {
	HTTPClient *http.Client
}

func NewDuckDuckGoClient() *DuckDuckGoClient {
	return &DuckDuckGoClient{HTTPClient: &http.Client{Timeout: 15 * time.Second}}
}

func (c *DuckDuckGoClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	endpoint := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("search: duckduckgo request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; specsheet-bot/1.0)")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: duckduckgo fetch: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: duckduckgo parse: %w", err)
	}

	var out []Result
	seen := map[string]bool{}
	rank := 0
	doc.Find(".result__a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		target := unwrapDuckDuckGoRedirect(href)
		if target == "" || seen[target] {
			return true
		}
		seen[target] = true

		title := html.UnescapeString(strings.TrimSpace(sel.Text()))
		snippet := html.UnescapeString(strings.TrimSpace(sel.Closest(".result").Find(".result__snippet").Text()))

		out = append(out, Result{URL: target, Title: title, Snippet: snippet, Rank: rank, Provider: ProviderDuckDuckGo, Query: query})
		rank++
		return maxResults <= 0 || rank < maxResults
	})

	return out, nil
}

// unwrapDuckDuckGoRedirect strips the duckduckgo.com/l/?uddg=... redirect
// wrapper DuckDuckGo's HTML results wrap every outbound link in.
func unwrapDuckDuckGoRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if !strings.Contains(u.Host, "duckduckgo.com") || u.Path != "/l/" {
		return href
	}
	target := u.Query().Get("uddg")
	if target == "" {
		return href
	}
	decoded, err := url.QueryUnescape(target)
	if err != nil {
		return target
	}
	return decoded
}
