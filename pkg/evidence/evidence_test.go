package evidence

import (
	"testing"

	"github.com/antigravity-dev/specsheet/pkg/llm"
	"github.com/antigravity-dev/specsheet/pkg/model"
)

func TestBuildCapsEnumOptionsAndKnownEntities(t *testing.T) {
	enums := make([]string, 100)
	for i := range enums {
		enums[i] = "opt"
	}
	targets := []TargetField{
		{Contract: FieldContractSlice{FieldKey: "sensor", EnumOptions: enums, KnownEntities: enums}},
	}
	pack := Build(targets, nil)
	if len(pack.Fields[0].EnumOptions) != enumCap {
		t.Errorf("expected enum options capped at %d, got %d", enumCap, len(pack.Fields[0].EnumOptions))
	}
	if len(pack.Fields[0].KnownEntities) != knownEntityCap {
		t.Errorf("expected known entities capped at %d, got %d", knownEntityCap, len(pack.Fields[0].KnownEntities))
	}
}

func TestBuildSendsPrimeSnippetsOnlyForHighStakesFields(t *testing.T) {
	sources := map[string][]PrimeSnippet{
		"weight": {{Host: "maker.example", Tier: model.Tier1, Quote: "63g", URL: "https://maker.example/spec"}},
	}
	targets := []TargetField{
		{Contract: FieldContractSlice{FieldKey: "weight"}, HighStakes: true},
		{Contract: FieldContractSlice{FieldKey: "color"}, HighStakes: false},
	}
	pack := Build(targets, sources)
	if _, ok := pack.PrimeSnippets["weight"]; !ok {
		t.Error("expected prime snippets for high-stakes field")
	}
	if _, ok := pack.PrimeSnippets["color"]; ok {
		t.Error("expected no prime snippets for non-high-stakes field")
	}
}

func TestSelectPrimeSnippetsPrefersDistinctHostsAcrossTiers(t *testing.T) {
	candidates := []PrimeSnippet{
		{Host: "a.example", Tier: model.Tier1},
		{Host: "a.example", Tier: model.Tier1},
		{Host: "b.example", Tier: model.Tier2},
		{Host: "c.example", Tier: model.Tier3},
	}
	out := selectPrimeSnippets(candidates)
	hosts := make(map[string]bool)
	for _, s := range out {
		if hosts[s.Host] {
			t.Errorf("expected distinct hosts, saw %s twice", s.Host)
		}
		hosts[s.Host] = true
	}
	if len(out) != 3 {
		t.Errorf("expected 3 distinct-host snippets, got %d", len(out))
	}
}

func TestBuildIncludesCurrentStateWhenRepairing(t *testing.T) {
	targets := []TargetField{
		{
			Contract:     FieldContractSlice{FieldKey: "dpi"},
			CurrentState: &FieldState{Value: "25600", Confidence: 0.6, EvidenceCount: 1},
		},
	}
	pack := Build(targets, nil)
	state, ok := pack.FieldStates["dpi"]
	if !ok {
		t.Fatal("expected dpi field state to be present")
	}
	if state.Value != "25600" {
		t.Errorf("expected repaired state value 25600, got %s", state.Value)
	}
}

func TestMapResponseTagsLLMExtractMethod(t *testing.T) {
	resp := llm.Response{Candidates: []llm.RawCandidate{{Field: "weight", Value: "63", Quote: "63 grams", KeyPath: "llm"}}}
	candidates := MapResponse(resp, 2)
	if len(candidates) != 1 || candidates[0].Method != model.MethodLLMExtract || candidates[0].SourceIndex != 2 {
		t.Errorf("unexpected mapped candidates: %+v", candidates)
	}
}
