package extract

import (
	"testing"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

func ptrF(v float64) *float64 { return &v }

func sampleFields() []FieldSpec {
	return []FieldSpec{
		{FieldKey: "weight", DataType: model.DataTypeNumber, KeyPathHint: "weight", RangeMin: ptrF(20), RangeMax: ptrF(250)},
		{FieldKey: "dpi", DataType: model.DataTypeString, KeyPathHint: "dpi"},
		{FieldKey: "sensor", DataType: model.DataTypeString, KeyPathHint: "sensor"},
	}
}

func TestExtractPDFSkipsUnparsablePDFWithoutPanicking(t *testing.T) {
	e := NewExtractor(sampleFields())
	page := model.PageData{
		FinalURL: "https://maker.example/datasheet.pdf",
		PDFDocs:  [][]byte{[]byte("not a real pdf")},
	}
	candidates := e.Extract(page, 0)
	if len(candidates) != 0 {
		t.Errorf("expected no candidates from an unparsable PDF, got %v", candidates)
	}
}

func TestExtractNetworkJSONMatchesKeyPath(t *testing.T) {
	e := NewExtractor(sampleFields())
	page := model.PageData{
		FinalURL: "https://maker.example/spec",
		NetworkResponses: []model.NetworkResponse{
			{URL: "https://maker.example/api/spec", Body: []byte(`{"specs":{"weight":63,"dpi":"100-25600"}}`)},
		},
	}
	candidates := e.Extract(page, 0)
	var sawWeight, sawDPI bool
	for _, c := range candidates {
		if c.Field == "weight" && c.Method == model.MethodNetworkJSON {
			sawWeight = true
		}
		if c.Field == "dpi" && c.Method == model.MethodNetworkJSON {
			sawDPI = true
		}
	}
	if !sawWeight || !sawDPI {
		t.Errorf("expected weight and dpi candidates from network_json, got %+v", candidates)
	}
}

func TestExtractLDJSONProducesCandidates(t *testing.T) {
	e := NewExtractor(sampleFields())
	page := model.PageData{
		FinalURL:     "https://maker.example/p",
		LDJSONBlocks: []string{`{"@type":"Product","sensor":"HERO 25K"}`},
	}
	candidates := e.Extract(page, 0)
	found := false
	for _, c := range candidates {
		if c.Field == "sensor" && c.Method == model.MethodLDJSON && c.Value == "HERO 25K" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected sensor candidate from ldjson, got %+v", candidates)
	}
}

func TestExtractDOMUsesDataAttribute(t *testing.T) {
	e := NewExtractor(sampleFields())
	page := model.PageData{
		FinalURL: "https://maker.example/p",
		HTML:     `<html><body><span data-spec-field="weight">63g</span></body></html>`,
	}
	candidates := e.Extract(page, 0)
	found := false
	for _, c := range candidates {
		if c.Field == "weight" && c.Method == model.MethodDOM && c.Value == "63g" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected weight candidate from dom, got %+v", candidates)
	}
}

func TestDiscoveryOnlyPageYieldsNoCandidates(t *testing.T) {
	e := NewExtractor(sampleFields())
	page := model.PageData{
		FinalURL: "https://maker.example/search?q=mouse",
		HTML:     `<html><body><span data-spec-field="weight">63g</span></body></html>`,
	}
	candidates := e.Extract(page, 0)
	if len(candidates) != 0 {
		t.Errorf("expected zero candidates for discovery-only page, got %+v", candidates)
	}
}

func TestDedupRemovesExactKeyDuplicates(t *testing.T) {
	in := []model.Candidate{
		{Field: "weight", Value: "63", Method: model.MethodNetworkJSON, KeyPath: "specs.weight"},
		{Field: "weight", Value: "63", Method: model.MethodNetworkJSON, KeyPath: "specs.weight"},
		{Field: "weight", Value: "64", Method: model.MethodNetworkJSON, KeyPath: "specs.weight"},
	}
	out := Dedup(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 after dedup, got %d", len(out))
	}
}

func TestScorePrefersHigherMethodPriority(t *testing.T) {
	e := NewExtractor(sampleFields())
	network := model.Candidate{Field: "weight", Value: "63", Method: model.MethodNetworkJSON}
	dom := model.Candidate{Field: "weight", Value: "63", Method: model.MethodDOM}
	if e.Score(network) <= e.Score(dom) {
		t.Errorf("expected network_json to outscore dom: %d vs %d", e.Score(network), e.Score(dom))
	}
}

func TestPlausibilityBoostPenalizesOutOfRange(t *testing.T) {
	e := NewExtractor(sampleFields())
	inRange := model.Candidate{Field: "weight", Value: "63", Method: model.MethodDOM}
	outOfRange := model.Candidate{Field: "weight", Value: "900", Method: model.MethodDOM}
	if e.Score(inRange) <= e.Score(outOfRange) {
		t.Errorf("expected in-range weight to outscore implausible weight: %d vs %d", e.Score(inRange), e.Score(outOfRange))
	}
}

func TestTopPerFieldPicksHighestScoringCandidate(t *testing.T) {
	e := NewExtractor(sampleFields())
	candidates := []model.Candidate{
		{Field: "weight", Value: "63", Method: model.MethodDOM},
		{Field: "weight", Value: "63", Method: model.MethodNetworkJSON},
	}
	top := e.TopPerField(candidates)
	if top["weight"].Method != model.MethodNetworkJSON {
		t.Errorf("expected network_json to win top-per-field, got %s", top["weight"].Method)
	}
}

func TestMergeLLMCandidatesDropsLockedFields(t *testing.T) {
	existing := []model.Candidate{{Field: "dpi", Value: "25600", Method: model.MethodDOM}}
	llm := []model.Candidate{
		{Field: "brand", Value: "Logitech", Method: model.MethodLLMExtract},
		{Field: "sensor", Value: "HERO 25K", Method: model.MethodLLMExtract},
	}
	merged := MergeLLMCandidates(existing, llm, map[string]bool{"brand": true})
	for _, c := range merged {
		if c.Field == "brand" {
			t.Error("expected identity-locked field to be dropped from llm merge")
		}
	}
	if len(merged) != 2 {
		t.Errorf("expected 2 surviving candidates, got %d", len(merged))
	}
}
