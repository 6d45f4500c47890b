package consensus

import (
	"testing"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

func approvedSources(n int) []SourceInfo {
	out := make([]SourceInfo, n)
	for i := range out {
		out[i] = SourceInfo{Approved: true, Tier: model.Tier1, URL: "https://source.example/p"}
	}
	return out
}

func TestReconcileWinnerRequiresPassTarget(t *testing.T) {
	in := Input{
		Field:      "weight",
		Policy:     FieldPolicy{Critical: false},
		Candidates: []model.Candidate{{Field: "weight", Value: "63", Method: model.MethodDOM, SourceIndex: 0}},
		Sources:    approvedSources(1),
		Weights:    Weights{Identity: 0.4, Agreement: 0.4, Tier: 0.2, Conflict: 0.5},
	}
	prov, _, _ := Reconcile(in)
	if prov.Value != "63" {
		t.Errorf("expected winner 63 to meet pass_target 1, got %q", prov.Value)
	}
}

func TestReconcileCriticalFieldNeedsTwoApprovedConfirmations(t *testing.T) {
	in := Input{
		Field:      "dpi",
		Policy:     FieldPolicy{Critical: true},
		Candidates: []model.Candidate{{Field: "dpi", Value: "25600", Method: model.MethodDOM, SourceIndex: 0}},
		Sources:    approvedSources(1),
		Weights:    Weights{Identity: 0.4, Agreement: 0.4, Tier: 0.2, Conflict: 0.5},
	}
	prov, _, _ := Reconcile(in)
	if prov.Value != "unk" {
		t.Errorf("expected single-source critical field to fall back to unk, got %q", prov.Value)
	}

	in.Candidates = append(in.Candidates, model.Candidate{Field: "dpi", Value: "25600", Method: model.MethodNetworkJSON, SourceIndex: 1})
	in.Sources = approvedSources(2)
	prov2, _, _ := Reconcile(in)
	if prov2.Value != "25600" {
		t.Errorf("expected two confirmations to clear pass_target 2, got %q", prov2.Value)
	}
}

func TestReconcileMajorConflictForcesUnknown(t *testing.T) {
	in := Input{
		Field:      "weight",
		Policy:     FieldPolicy{},
		Candidates: []model.Candidate{{Field: "weight", Value: "80", Method: model.MethodDOM, SourceIndex: 0}},
		Sources:    approvedSources(1),
		Conflicts:  []AnchorConflict{{Field: "weight", Major: true}},
		Weights:    Weights{Identity: 0.4, Agreement: 0.4, Tier: 0.2, Conflict: 0.5},
	}
	prov, light, _ := Reconcile(in)
	if prov.Value != "unk" {
		t.Errorf("expected anchor conflict to force unk, got %q", prov.Value)
	}
	if light.Color != model.ColorRed {
		t.Errorf("expected red traffic light on unk, got %s", light.Color)
	}
}

func TestReconcileTieBreaksByTotalConfirmationsThenRank(t *testing.T) {
	in := Input{
		Field: "sensor",
		Policy: FieldPolicy{},
		Candidates: []model.Candidate{
			{Field: "sensor", Value: "HERO 25K", Method: model.MethodDOM, SourceIndex: 0},
			{Field: "sensor", Value: "PAW3395", Method: model.MethodDOM, SourceIndex: 1},
			{Field: "sensor", Value: "PAW3395", Method: model.MethodNetworkJSON, SourceIndex: 2},
		},
		// Source 2 is unapproved, so both groups have one approved
		// confirmation and the total-confirmation count decides.
		Sources: []SourceInfo{
			{Approved: true, Tier: model.Tier1, URL: "https://source.example/p"},
			{Approved: true, Tier: model.Tier1, URL: "https://source.example/p"},
			{Approved: false, Tier: model.Tier1, URL: "https://source.example/p"},
		},
		Weights: Weights{Identity: 0.4, Agreement: 0.4, Tier: 0.2, Conflict: 0.5},
	}
	prov, _, _ := Reconcile(in)
	if prov.Value != "PAW3395" {
		t.Errorf("expected higher-total-confirmation group to win tie, got %q", prov.Value)
	}
}

func TestReconcileTrafficLightGreenForTier1(t *testing.T) {
	in := Input{
		Field:      "weight",
		Policy:     FieldPolicy{},
		Candidates: []model.Candidate{{Field: "weight", Value: "63", Method: model.MethodDOM, SourceIndex: 0}},
		Sources:    []SourceInfo{{Approved: true, Tier: model.Tier1}},
		Weights:    Weights{Identity: 0.4, Agreement: 0.4, Tier: 0.2, Conflict: 0.5},
	}
	_, light, _ := Reconcile(in)
	if light.Color != model.ColorGreen {
		t.Errorf("expected green traffic light for tier-1 evidence, got %s", light.Color)
	}
}

func TestReconcileConfidenceIsDeterministicAcrossRuns(t *testing.T) {
	in := Input{
		Field:        "weight",
		Policy:       FieldPolicy{},
		IdentityConf: 0.99,
		Candidates:   []model.Candidate{{Field: "weight", Value: "63", Method: model.MethodDOM, SourceIndex: 0}},
		Sources:      approvedSources(1),
		Weights:      Weights{Identity: 0.4, Agreement: 0.4, Tier: 0.2, Conflict: 0.5},
	}
	prov1, _, _ := Reconcile(in)
	prov2, _, _ := Reconcile(in)
	if prov1.Confidence != prov2.Confidence {
		t.Errorf("expected deterministic confidence, got %f vs %f", prov1.Confidence, prov2.Confidence)
	}
	if prov1.Confidence < 0 || prov1.Confidence > 1 {
		t.Errorf("expected confidence in [0,1], got %f", prov1.Confidence)
	}
}

func TestReconcileListShapeUnionsDistinctValues(t *testing.T) {
	in := Input{
		Field:     "supported_polling_rates",
		Policy:    FieldPolicy{},
		ListShape: true,
		Candidates: []model.Candidate{
			{Field: "supported_polling_rates", Value: "1000", Method: model.MethodDOM, SourceIndex: 0},
			{Field: "supported_polling_rates", Value: "2000", Method: model.MethodDOM, SourceIndex: 0},
			{Field: "supported_polling_rates", Value: "1000", Method: model.MethodNetworkJSON, SourceIndex: 1},
		},
		Sources: approvedSources(2),
	}
	prov, _, _ := Reconcile(in)
	if prov.Value != "1000;2000" {
		t.Errorf("expected sorted union of distinct values, got %q", prov.Value)
	}
}

func TestDetectNewValuesFlagsUnknownEnumValue(t *testing.T) {
	accepted := map[string]string{"form_factor": "ambidextrous", "color": "unk"}
	known := map[string][]string{"form_factor": {"right-handed", "left-handed"}}
	proposed := DetectNewValues(accepted, known, nil)
	if len(proposed) != 1 || proposed[0].Value != "ambidextrous" {
		t.Errorf("expected ambidextrous flagged as new value, got %+v", proposed)
	}
}

func TestDetectNewValuesIgnoresKnownAndUnkValues(t *testing.T) {
	accepted := map[string]string{"form_factor": "right-handed", "color": "unk"}
	known := map[string][]string{"form_factor": {"right-handed", "left-handed"}, "color": {"black"}}
	proposed := DetectNewValues(accepted, known, nil)
	if len(proposed) != 0 {
		t.Errorf("expected no new values for already-known or unk entries, got %+v", proposed)
	}
}
