// Package planner maintains the de-duplicated source frontier for one
// product run: ordering by host/role/tier policy, per-host budgets and
// backoff, and outcome classification feeding both.
package planner

import (
	"sort"
	"sync"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

// OutcomeClass is the closed set a fetch result is translated into.
type OutcomeClass string

const (
	OutcomeOK             OutcomeClass = "ok"
	OutcomeNotFound       OutcomeClass = "not_found"
	OutcomeBlocked        OutcomeClass = "blocked"
	OutcomeRateLimited    OutcomeClass = "rate_limited"
	OutcomeLoginWall      OutcomeClass = "login_wall"
	OutcomeBotChallenge   OutcomeClass = "bot_challenge"
	OutcomeBadContent     OutcomeClass = "bad_content"
	OutcomeServerError    OutcomeClass = "server_error"
	OutcomeNetworkTimeout OutcomeClass = "network_timeout"
	OutcomeFetchError     OutcomeClass = "fetch_error"
)

// FetchResult is the minimal shape classifyFetchOutcome needs. It mirrors
// the (status, message, contentType, htmlSize) tuple spec'd for outcome
// classification.
type FetchResult struct {
	Status      int
	Message     string
	ContentType string
	HTMLSize    int
	TimedOut    bool
}

// ClassifyFetchOutcome maps a fetch result to exactly one outcome class.
// Total over its domain: every input reaches a return statement.
func ClassifyFetchOutcome(r FetchResult) OutcomeClass {
	switch {
	case r.TimedOut:
		return OutcomeNetworkTimeout
	case r.Status == 0:
		return OutcomeFetchError
	case r.Status == 429:
		return OutcomeRateLimited
	case r.Status == 403:
		return OutcomeBlocked
	case r.Status == 401:
		return OutcomeLoginWall
	case r.Status == 404 || r.Status == 410:
		return OutcomeNotFound
	case r.Status >= 500:
		return OutcomeServerError
	case r.Status >= 400:
		return OutcomeFetchError
	case looksLikeBotChallenge(r.Message):
		return OutcomeBotChallenge
	case r.ContentType != "" && !isTextualContentType(r.ContentType):
		return OutcomeBadContent
	case r.HTMLSize == 0:
		return OutcomeBadContent
	default:
		return OutcomeOK
	}
}

func looksLikeBotChallenge(message string) bool {
	for _, needle := range []string{"cf-challenge", "captcha", "are you human", "checking your browser"} {
		if containsFold(message, needle) {
			return true
		}
	}
	return false
}

func isTextualContentType(ct string) bool {
	for _, prefix := range []string{"text/html", "application/json", "application/xhtml", "application/xml", "text/xml"} {
		if hasPrefixFold(ct, prefix) {
			return true
		}
	}
	return false
}

// RoleWeight ranks the manufacturer-first role ordering used by priority.
var RoleWeight = map[model.SourceRole]int{
	model.RoleManufacturer: 4,
	model.RoleLab:          3,
	model.RoleReview:       2,
	model.RoleRetailer:     1,
	model.RoleOther:        0,
}

// TierWeight ranks trust tiers, 1 highest.
var TierWeight = map[model.SourceTier]int{
	model.Tier1:      3,
	model.Tier2:      2,
	model.Tier3:       1,
	model.TierUnkown:  0,
}

const approvedHostBonus = 1000

// FrontierEntry is one candidate source awaiting a fetch, carrying the
// fields computed for priority ordering and the insertion index used to
// break ties.
type FrontierEntry struct {
	Source         model.Source
	PathAffinity   int
	LearnedYield   int
	insertionIndex int
}

// priority composes the ordering policy in descending weight: approved
// host bonus, tier, role, path affinity, learned yield.
func priority(e FrontierEntry) int {
	p := 0
	if e.Source.ApprovedDomain {
		p += approvedHostBonus
	}
	p += TierWeight[e.Source.Tier] * 100
	p += RoleWeight[e.Source.Role] * 10
	p += e.PathAffinity
	p += e.LearnedYield
	return p
}

// Frontier is a de-duplicated, ordered queue of sources to fetch for one
// product run. Denied hosts never enter it.
type Frontier struct {
	mu       sync.Mutex
	seen     map[string]bool
	denied   map[string]bool
	entries  []FrontierEntry
	nextSeq  int
}

// NewFrontier builds an empty frontier; deniedHosts blocks insertion
// outright regardless of any other signal.
func NewFrontier(deniedHosts []string) *Frontier {
	denied := make(map[string]bool, len(deniedHosts))
	for _, h := range deniedHosts {
		denied[normalizeHost(h)] = true
	}
	return &Frontier{
		seen:   make(map[string]bool),
		denied: denied,
	}
}

// Add inserts a source if its URL hasn't been seen and its host isn't
// denied. Returns false if the source was dropped.
func (f *Frontier) Add(src model.Source, pathAffinity, learnedYield int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied[normalizeHost(src.Host)] {
		return false
	}
	if f.seen[src.URL] {
		return false
	}
	f.seen[src.URL] = true
	f.entries = append(f.entries, FrontierEntry{
		Source:         src,
		PathAffinity:   pathAffinity,
		LearnedYield:   learnedYield,
		insertionIndex: f.nextSeq,
	})
	f.nextSeq++
	return true
}

// Ordered returns the frontier sorted by priority descending, ties broken
// by insertion order. Deterministic given the same inputs.
func (f *Frontier) Ordered() []FrontierEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FrontierEntry, len(f.entries))
	copy(out, f.entries)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := priority(out[i]), priority(out[j])
		if pi != pj {
			return pi > pj
		}
		return out[i].insertionIndex < out[j].insertionIndex
	})
	return out
}

// Len reports the number of sources currently in the frontier.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func normalizeHost(h string) string { return lower(h) }

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func containsFold(haystack, needle string) bool {
	h, n := lower(haystack), lower(needle)
	if len(n) == 0 {
		return true
	}
	for i := 0; i+len(n) <= len(h); i++ {
		if h[i:i+len(n)] == n {
			return true
		}
	}
	return false
}

func hasPrefixFold(s, prefix string) bool {
	ls := lower(s)
	lp := lower(prefix)
	return len(ls) >= len(lp) && ls[:len(lp)] == lp
}
