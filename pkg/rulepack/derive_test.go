package rulepack

import (
	"testing"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

func TestNormalizeKnownValuesEnumsForm(t *testing.T) {
	raw := map[string]any{
		"enums": map[string]any{
			"sensor": map[string]any{
				"policy": "closed",
				"values": []any{"optical", "laser"},
			},
			"color": []any{"black", "white"},
		},
	}
	kv, err := NormalizeKnownValues(raw)
	if err != nil {
		t.Fatalf("NormalizeKnownValues: %v", err)
	}
	if kv.Enums["sensor"].Policy != PolicyClosed {
		t.Errorf("sensor policy = %s, want closed", kv.Enums["sensor"].Policy)
	}
	if len(kv.Enums["sensor"].Values) != 2 {
		t.Errorf("sensor values = %v", kv.Enums["sensor"].Values)
	}
	if kv.Enums["color"].Policy != PolicyOpen {
		t.Errorf("bare array form should default to open policy, got %s", kv.Enums["color"].Policy)
	}
}

func TestNormalizeKnownValuesFieldsForm(t *testing.T) {
	raw := map[string]any{
		"fields": map[string]any{
			"connector": []any{"usb-c", "usb-a"},
		},
	}
	kv, err := NormalizeKnownValues(raw)
	if err != nil {
		t.Fatalf("NormalizeKnownValues: %v", err)
	}
	if len(kv.Enums["connector"].Values) != 2 {
		t.Errorf("connector values = %v", kv.Enums["connector"].Values)
	}
}

func TestDeriveParseTemplatesFallback(t *testing.T) {
	rules := []model.FieldRule{{FieldKey: "polling_rate_hz"}}
	out := deriveParseTemplates(rules, nil)
	patterns, ok := out["polling_rate_hz"]
	if !ok || len(patterns) != 1 {
		t.Fatalf("expected a single fallback pattern, got %v", patterns)
	}
	if patterns[0].Group != 1 {
		t.Errorf("fallback group = %d, want 1", patterns[0].Group)
	}
}

func TestDeriveParseTemplatesDeduplicates(t *testing.T) {
	rules := []model.FieldRule{{
		FieldKey: "dpi",
		Parse: &model.ParseBlock{
			Patterns: []model.ParsePattern{
				{Regex: `(\d+)\s*dpi`, Group: 1},
				{Regex: `(\d+)\s*dpi`, Group: 1}, // duplicate within the rule itself
			},
		},
	}}
	out := deriveParseTemplates(rules, nil)
	if len(out["dpi"]) != 1 {
		t.Errorf("expected duplicates collapsed, got %d patterns", len(out["dpi"]))
	}
}

func TestDeriveCrossValidationRulesEmitsRangeRule(t *testing.T) {
	rules := []model.FieldRule{{
		FieldKey: "dpi_max",
		Contract: &model.Contract{Range: &model.Range{Min: ptrF(50), Max: ptrF(32000)}},
	}}
	out := deriveCrossValidationRules(rules)
	if len(out) != 1 {
		t.Fatalf("expected exactly 1 rule, got %d", len(out))
	}
	if out[0].RuleID != "range_dpi_max" || out[0].OnFail != "reject_candidate" {
		t.Errorf("unexpected rule: %+v", out[0])
	}
}

func TestDeriveCrossValidationRulesCuratedOnlyWhenFieldsPresent(t *testing.T) {
	withoutBattery := []model.FieldRule{{FieldKey: "wireless"}}
	if got := deriveCrossValidationRules(withoutBattery); len(got) != 0 {
		t.Errorf("curated rule should not fire without battery_life_hours, got %+v", got)
	}

	withBoth := []model.FieldRule{{FieldKey: "wireless"}, {FieldKey: "battery_life_hours"}}
	got := deriveCrossValidationRules(withBoth)
	found := false
	for _, r := range got {
		if r.RuleID == "wireless_requires_battery" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected wireless_requires_battery rule, got %+v", got)
	}
}

func TestDeriveFieldGroupsPrefersUICatalog(t *testing.T) {
	rules := []model.FieldRule{{FieldKey: "dpi", Group: "sensor"}}
	uiCatalog := map[string]UICatalogEntry{"dpi": {Group: "performance"}}
	groups := deriveFieldGroups(rules, uiCatalog)
	if got := groups["performance"]; len(got) != 1 || got[0] != "dpi" {
		t.Errorf("expected dpi grouped under performance, got %+v", groups)
	}
}

func TestDeriveFieldGroupsDefaultsToGeneral(t *testing.T) {
	rules := []model.FieldRule{{FieldKey: "weight_g"}}
	groups := deriveFieldGroups(rules, nil)
	if got := groups["general"]; len(got) != 1 || got[0] != "weight_g" {
		t.Errorf("expected weight_g in general, got %+v", groups)
	}
}
