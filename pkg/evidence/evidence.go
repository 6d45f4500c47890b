// Package evidence assembles the accuracy-max evidence pack sent to the
// LLM adapter for a round's target fields, and maps the LLM's response
// back into extractor candidates.
package evidence

import (
	"github.com/antigravity-dev/specsheet/pkg/llm"
	"github.com/antigravity-dev/specsheet/pkg/model"
)

// FieldContractSlice is the contract data sent for every target field,
// per §4.6's send policy.
type FieldContractSlice struct {
	FieldKey         string
	DataType         model.DataType
	OutputShape      model.OutputShape
	RequiredLevel    model.RequiredLevel
	Description      string
	Unit             string
	EvidenceRequired bool
	MinEvidenceRefs  int
	EnumOptions      []string
	KnownEntities    []string
	RangeMin         *float64
	RangeMax         *float64
}

// PrimeSnippet is a quote selected from a high-trust, distinct-host
// source for a high-stakes field.
type PrimeSnippet struct {
	Host   string
	Tier   model.SourceTier
	Quote  string
	URL    string
}

// FieldState is the current consensus value for a field, sent only when
// repairing (i.e. a previous round already produced a provisional value).
type FieldState struct {
	Value          string
	Confidence     float64
	EvidenceCount  int
}

// TargetField bundles everything the pack builder needs for one field in
// one round.
type TargetField struct {
	Contract        FieldContractSlice
	HighStakes      bool
	CurrentState    *FieldState
	ConstraintNotes []string
}

const enumCap = 40
const knownEntityCap = 40
const primeSnippetCap = 4

// Pack is the assembled evidence payload for one round, ready to be
// rendered into LLM messages.
type Pack struct {
	Fields         []FieldContractSlice
	PrimeSnippets  map[string][]PrimeSnippet
	FieldStates    map[string]FieldState
	ConstraintRefs map[string][]string
}

// Build assembles a Pack from the round's target fields and the sources
// available for prime-snippet selection. Never includes raw HTML.
func Build(targets []TargetField, sourcesByTierHost map[string][]PrimeSnippet) Pack {
	pack := Pack{
		PrimeSnippets:  make(map[string][]PrimeSnippet),
		FieldStates:    make(map[string]FieldState),
		ConstraintRefs: make(map[string][]string),
	}

	for _, t := range targets {
		contract := t.Contract
		if len(contract.EnumOptions) > enumCap {
			contract.EnumOptions = contract.EnumOptions[:enumCap]
		}
		if len(contract.KnownEntities) > knownEntityCap {
			contract.KnownEntities = contract.KnownEntities[:knownEntityCap]
		}
		pack.Fields = append(pack.Fields, contract)

		if len(t.ConstraintNotes) > 0 {
			pack.ConstraintRefs[contract.FieldKey] = t.ConstraintNotes
		}

		if t.CurrentState != nil {
			pack.FieldStates[contract.FieldKey] = *t.CurrentState
		}

		if t.HighStakes || contract.EvidenceRequired && contract.MinEvidenceRefs >= 2 {
			snippets := selectPrimeSnippets(sourcesByTierHost[contract.FieldKey])
			if len(snippets) > 0 {
				pack.PrimeSnippets[contract.FieldKey] = snippets
			}
		}
	}

	return pack
}

// selectPrimeSnippets picks snippets across distinct hosts/tiers, capped,
// preferring lower (more trusted) tiers first.
func selectPrimeSnippets(candidates []PrimeSnippet) []PrimeSnippet {
	seenHosts := make(map[string]bool)
	var byTier = map[model.SourceTier][]PrimeSnippet{}
	for _, c := range candidates {
		byTier[c.Tier] = append(byTier[c.Tier], c)
	}

	var out []PrimeSnippet
	for _, tier := range []model.SourceTier{model.Tier1, model.Tier2, model.Tier3, model.TierUnkown} {
		for _, c := range byTier[tier] {
			if seenHosts[c.Host] {
				continue
			}
			seenHosts[c.Host] = true
			out = append(out, c)
			if len(out) >= primeSnippetCap {
				return out
			}
		}
	}
	return out
}

// MapResponse converts the LLM adapter's raw candidates into extractor
// candidates tagged with method llm_extract.
func MapResponse(resp llm.Response, sourceIndex int) []model.Candidate {
	out := make([]model.Candidate, 0, len(resp.Candidates))
	for _, rc := range resp.Candidates {
		out = append(out, model.Candidate{
			Field:       rc.Field,
			Value:       rc.Value,
			Method:      model.MethodLLMExtract,
			KeyPath:     rc.KeyPath,
			Quote:       rc.Quote,
			SourceIndex: sourceIndex,
		})
	}
	return out
}
