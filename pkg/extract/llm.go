package extract

import "github.com/antigravity-dev/specsheet/pkg/model"

// MergeLLMCandidates appends llm_extract candidates produced from an
// evidence-pack round-trip, silently dropping anything that targets an
// identity-locked or anchor-locked field (per §4.6: "Anything touching
// identity-locked or anchor-locked fields is silently dropped by the
// extractor"), then re-runs Dedup over the combined set.
func MergeLLMCandidates(existing []model.Candidate, llmCandidates []model.Candidate, lockedFields map[string]bool) []model.Candidate {
	filtered := make([]model.Candidate, 0, len(llmCandidates))
	for _, c := range llmCandidates {
		if lockedFields[c.Field] {
			continue
		}
		filtered = append(filtered, c)
	}
	return Dedup(append(append([]model.Candidate{}, existing...), filtered...))
}
