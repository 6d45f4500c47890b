package planner

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"
)

// RobotsInfo is the subset of a parsed robots.txt the planner acts on:
// whether fetching path is allowed for our agent, and any declared
// sitemap URLs.
type RobotsInfo struct {
	Sitemaps []string
	group    *robotstxt.Group
}

// Allowed reports whether path may be fetched per the robots group this
// info was parsed with.
func (r RobotsInfo) Allowed(path string) bool {
	if r.group == nil {
		return true
	}
	return r.group.Test(path)
}

// FetchRobots retrieves and parses host's /robots.txt, grounded on
// temoto/robotstxt's own net/http-based example usage (ncecere-raito and
// vvoland-cagent both vendor it unchanged for this exact shape).
func FetchRobots(ctx context.Context, client *http.Client, host, userAgent string) (RobotsInfo, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+host+"/robots.txt", nil)
	if err != nil {
		return RobotsInfo{}, fmt.Errorf("planner: building robots.txt request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return RobotsInfo{}, fmt.Errorf("planner: fetching robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return RobotsInfo{}, nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return RobotsInfo{}, fmt.Errorf("planner: parsing robots.txt: %w", err)
	}

	agent := userAgent
	if agent == "" {
		agent = "*"
	}
	return RobotsInfo{
		Sitemaps: data.Sitemaps,
		group:    data.FindGroup(agent),
	}, nil
}

type sitemapURLSet struct {
	XMLName xml.Name      `xml:"urlset"`
	URLs    []sitemapEntry `xml:"url"`
}

type sitemapEntry struct {
	Loc string `xml:"loc"`
}

// ParseSitemap extracts <loc> URLs from an XML sitemap body.
func ParseSitemap(body io.Reader) ([]string, error) {
	var set sitemapURLSet
	if err := xml.NewDecoder(body).Decode(&set); err != nil {
		return nil, fmt.Errorf("planner: parsing sitemap xml: %w", err)
	}
	out := make([]string, 0, len(set.URLs))
	for _, e := range set.URLs {
		if e.Loc != "" {
			out = append(out, e.Loc)
		}
	}
	return out, nil
}

// ManufacturerPathHints are path substrings that mark a same-site link as
// worth following for a manufacturer host (spec sheets, support docs,
// product pages).
var ManufacturerPathHints = []string{"/spec", "/specs", "/support", "/product", "/products", "/datasheet", "/manual"}

// DiscoverLinks walks an already-fetched HTML document and returns
// same-eTLD+1 links whose path matches a manufacturer path hint.
func DiscoverLinks(html, rootDomain string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("planner: parsing html for discovery: %w", err)
	}

	var out []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil || u.Host == "" {
			return
		}
		if !sameRootDomain(u.Host, rootDomain) {
			return
		}
		if !matchesAnyHint(u.Path, ManufacturerPathHints) {
			return
		}
		norm := u.String()
		if seen[norm] {
			return
		}
		seen[norm] = true
		out = append(out, norm)
	})
	return out, nil
}

func sameRootDomain(host, rootDomain string) bool {
	h := lower(host)
	rd := lower(rootDomain)
	return h == rd || strings.HasSuffix(h, "."+rd)
}

func matchesAnyHint(path string, hints []string) bool {
	p := lower(path)
	for _, h := range hints {
		if strings.Contains(p, h) {
			return true
		}
	}
	return false
}
