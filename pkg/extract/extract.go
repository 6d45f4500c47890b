// Package extract produces field candidates from one source's page data,
// using a closed set of five deterministic methods plus an LLM-backed
// sixth. Dispatch is a tagged table keyed by method, not polymorphism,
// per the dynamic-dispatch-on-extraction-method design note.
package extract

import (
	"sort"
	"strconv"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FieldSpec is the slice of a field rule the extractor needs: the key
// path hints and numeric plausibility range that drive scoring.
type FieldSpec struct {
	FieldKey    string
	DataType    model.DataType
	KeyPathHint string
	RangeMin    *float64
	RangeMax    *float64
}

// Extractor runs all applicable deterministic methods over one source's
// page data and returns a scored, de-duplicated candidate list.
type Extractor struct {
	Fields map[string]FieldSpec
}

// NewExtractor builds an Extractor over the given field specs, keyed by
// field_key.
func NewExtractor(fields []FieldSpec) *Extractor {
	m := make(map[string]FieldSpec, len(fields))
	for _, f := range fields {
		m[f.FieldKey] = f
	}
	return &Extractor{Fields: m}
}

// methodFunc is the shape of one deterministic extraction method.
type methodFunc func(e *Extractor, page model.PageData, sourceIndex int) []model.Candidate

// methodTable is the closed dispatch table, ordered by descending
// method priority so scoring ties naturally favor earlier entries.
var methodTable = []struct {
	method model.ExtractionMethod
	fn     methodFunc
}{
	{model.MethodNetworkJSON, (*Extractor).extractNetworkJSON},
	{model.MethodEmbeddedState, (*Extractor).extractEmbeddedState},
	{model.MethodLDJSON, (*Extractor).extractLDJSON},
	{model.MethodPDF, (*Extractor).extractPDF},
	{model.MethodDOM, (*Extractor).extractDOM},
}

// Extract runs every deterministic method over page and returns the
// de-duplicated, scored candidate list. LLM candidates are merged in
// separately by MergeLLMCandidates once the evidence-pack round-trip
// completes.
func (e *Extractor) Extract(page model.PageData, sourceIndex int) []model.Candidate {
	if IsDiscoveryOnlyPage(page) {
		return nil
	}

	var all []model.Candidate
	for _, entry := range methodTable {
		all = append(all, entry.fn(e, page, sourceIndex)...)
	}
	return Dedup(all)
}

// Dedup removes exact-key duplicates using Candidate.DedupeKey, keeping
// the first occurrence. The key includes the extraction method, so
// candidates from different methods are never merged here.
func Dedup(candidates []model.Candidate) []model.Candidate {
	seen := make(map[string]bool, len(candidates))
	out := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := c.DedupeKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// IsDiscoveryOnlyPage detects search/sitemap/robots/"find" pages by path
// pattern; such pages feed the planner but never produce candidates.
func IsDiscoveryOnlyPage(page model.PageData) bool {
	u := page.FinalURL
	for _, marker := range []string{"/search", "/sitemap", "/robots.txt", "?find=", "/find"} {
		if containsFold(u, marker) {
			return true
		}
	}
	return false
}

// Score computes the consensus-time candidate score:
// 10*methodPriority + keyPathAffinity + numericAffinity + plausibilityBoost.
func (e *Extractor) Score(c model.Candidate) int {
	score := 10 * model.MethodPriority[c.Method]
	score += e.keyPathAffinity(c)
	score += e.numericAffinity(c)
	score += e.plausibilityBoost(c)
	return score
}

func (e *Extractor) keyPathAffinity(c model.Candidate) int {
	spec, ok := e.Fields[c.Field]
	if !ok || spec.KeyPathHint == "" || c.KeyPath == "" {
		return 0
	}
	if containsFold(c.KeyPath, spec.KeyPathHint) {
		return 3
	}
	return 0
}

func (e *Extractor) numericAffinity(c model.Candidate) int {
	spec, ok := e.Fields[c.Field]
	if !ok || spec.DataType != model.DataTypeNumber {
		return 0
	}
	if _, ok := parseFloat(c.Value); ok {
		return 1
	}
	return -2
}

func (e *Extractor) plausibilityBoost(c model.Candidate) int {
	spec, ok := e.Fields[c.Field]
	if !ok || spec.DataType != model.DataTypeNumber || (spec.RangeMin == nil && spec.RangeMax == nil) {
		return 0
	}
	v, ok := parseFloat(c.Value)
	if !ok {
		return -6
	}
	if spec.RangeMin != nil && v < *spec.RangeMin {
		return -6
	}
	if spec.RangeMax != nil && v > *spec.RangeMax {
		return -6
	}
	return 2
}

// TopPerField returns the top-scoring candidate for each field, the map
// used by anchor/identity evaluation; consensus itself retains all
// candidates for voting.
func (e *Extractor) TopPerField(candidates []model.Candidate) map[string]model.Candidate {
	best := make(map[string]model.Candidate)
	bestScore := make(map[string]int)
	order := make([]string, 0)
	for _, c := range candidates {
		s := e.Score(c)
		if cur, ok := best[c.Field]; !ok || s > bestScore[c.Field] {
			if !ok {
				order = append(order, c.Field)
			}
			best[c.Field] = c
			bestScore[c.Field] = s
		} else {
			_ = cur
		}
	}
	sort.Strings(order)
	return best
}

func containsFold(haystack, needle string) bool {
	h, n := lowerASCII(haystack), lowerASCII(needle)
	if n == "" {
		return false
	}
	for i := 0; i+len(n) <= len(h); i++ {
		if h[i:i+len(n)] == n {
			return true
		}
	}
	return false
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
