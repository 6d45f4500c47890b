// Package search implements the SERP provider abstraction, cross-provider
// result de-duplication, and the deterministic per-round provider
// selection decision tree (spec.md §4.11). Grounded on the teacher's
// internal/dispatch routing table (a closed set of backends chosen by a
// small decision function, the same shape as ProviderFor here) for the
// decision-tree structure, and on other_examples' duckduckgo/searxng HTML
// and JSON scraping for the two free-provider adapters.
package search

import (
	"context"
	"net/url"
	"sort"
	"strings"
)

// Provider names the closed set of search backends.
type Provider string

const (
	ProviderBing       Provider = "bing"
	ProviderGoogle     Provider = "google"
	ProviderSearXNG    Provider = "searxng"
	ProviderDuckDuckGo Provider = "duckduckgo"
	ProviderDual       Provider = "dual"
	ProviderNone       Provider = "none"
)

// Result is one raw SERP hit from a single provider.
type Result struct {
	URL      string
	Title    string
	Snippet  string
	Rank     int
	Provider Provider
	Query    string
}

// Client fetches search results for a query from one concrete provider.
type Client interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// trackingParams are stripped during URL canonicalization (§4.11).
var trackingParamPrefixes = []string{"utm_", "mc_"}
var trackingParamExact = map[string]bool{
	"fbclid": true, "gclid": true, "msclkid": true, "ref": true, "source": true,
}

// CanonicalizeURL lowercases the host, strips a trailing slash, and
// removes tracking query parameters, so the same page reached via
// different campaign links collapses to one canonical identity.
func CanonicalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			lower := strings.ToLower(key)
			if trackingParamExact[lower] {
				q.Del(key)
				continue
			}
			for _, prefix := range trackingParamPrefixes {
				if strings.HasPrefix(lower, prefix) {
					q.Del(key)
					break
				}
			}
		}
		u.RawQuery = q.Encode()
	}
	u.Fragment = ""

	out := u.String()
	out = strings.TrimSuffix(out, "?")
	return out
}

// DedupedResult is one canonical-URL equivalence class surviving SERP dedup.
type DedupedResult struct {
	CanonicalURL       string
	Rank               int
	Title              string
	Snippet            string
	SeenByProviders     []Provider
	SeenInQueries       []string
	CrossProviderCount int
}

// Dedup canonicalizes and merges results across providers/queries,
// keeping the smallest original rank per canonical-URL class and merging
// seen_by_providers/seen_in_queries (invariant 9: len(out) <= len(in), and
// each survivor's rank equals the minimum original rank of its class).
func Dedup(results []Result) []DedupedResult {
	type bucket struct {
		entry          DedupedResult
		providers      map[Provider]bool
		queries        map[string]bool
	}
	order := make([]string, 0, len(results))
	buckets := make(map[string]*bucket, len(results))

	for _, r := range results {
		canon := CanonicalizeURL(r.URL)
		b, ok := buckets[canon]
		if !ok {
			b = &bucket{
				entry:     DedupedResult{CanonicalURL: canon, Rank: r.Rank, Title: r.Title, Snippet: r.Snippet},
				providers: map[Provider]bool{},
				queries:   map[string]bool{},
			}
			buckets[canon] = b
			order = append(order, canon)
		}
		if r.Rank < b.entry.Rank {
			b.entry.Rank = r.Rank
			if b.entry.Title == "" {
				b.entry.Title = r.Title
			}
		}
		b.providers[r.Provider] = true
		if r.Query != "" {
			b.queries[r.Query] = true
		}
	}

	out := make([]DedupedResult, 0, len(order))
	for _, canon := range order {
		b := buckets[canon]
		entry := b.entry
		for p := range b.providers {
			entry.SeenByProviders = append(entry.SeenByProviders, p)
		}
		sort.Slice(entry.SeenByProviders, func(i, j int) bool { return entry.SeenByProviders[i] < entry.SeenByProviders[j] })
		for q := range b.queries {
			entry.SeenInQueries = append(entry.SeenInQueries, q)
		}
		sort.Strings(entry.SeenInQueries)
		entry.CrossProviderCount = len(entry.SeenByProviders)
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// SelectionInputs are the toggles the provider-selection decision tree
// reads, named directly from §4.11.
type SelectionInputs struct {
	DiscoveryEnabled           bool
	MissingRequiredCount       int
	RequiredSearchIteration    int
	CSERescueOnlyMode          bool
	CSERescueRequiredIteration int
	HasBingCredentials         bool
	HasGoogleCredentials       bool
	ConfiguredProvider         Provider
}

// SelectionDecision is the provider chosen for a round plus an audit code.
type SelectionDecision struct {
	Provider   Provider
	ReasonCode string
}

// SelectProvider deterministically picks this round's provider and a
// reason_code for auditing, per §4.11's decision tree.
func SelectProvider(in SelectionInputs) SelectionDecision {
	if !in.DiscoveryEnabled {
		return SelectionDecision{Provider: ProviderNone, ReasonCode: "discovery_disabled"}
	}
	if in.MissingRequiredCount == 0 {
		return SelectionDecision{Provider: ProviderNone, ReasonCode: "nothing_missing"}
	}

	switch in.ConfiguredProvider {
	case ProviderBing, ProviderGoogle, ProviderSearXNG, ProviderDuckDuckGo, ProviderNone:
		return SelectionDecision{Provider: in.ConfiguredProvider, ReasonCode: "configured_provider"}
	}

	// dual: in rescue-only mode Google is used only once the required-search
	// iteration reaches the rescue threshold; otherwise a paid provider with
	// credentials is preferred (Bing, then Google), else the free engine.
	if in.CSERescueOnlyMode {
		rescueEligible := in.HasGoogleCredentials && in.RequiredSearchIteration >= in.CSERescueRequiredIteration
		if !rescueEligible {
			return SelectionDecision{Provider: ProviderDuckDuckGo, ReasonCode: "rescue_only_free_engine"}
		}
		return SelectionDecision{Provider: ProviderGoogle, ReasonCode: "rescue_only_threshold_met"}
	}

	if in.HasBingCredentials {
		return SelectionDecision{Provider: ProviderBing, ReasonCode: "dual_paid_bing"}
	}
	if in.HasGoogleCredentials {
		return SelectionDecision{Provider: ProviderGoogle, ReasonCode: "dual_paid_google"}
	}
	return SelectionDecision{Provider: ProviderDuckDuckGo, ReasonCode: "dual_no_paid_credentials"}
}
