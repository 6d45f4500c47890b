package rulepack

import (
	"fmt"
	"sort"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

// EnumPolicy controls how an enum field treats values outside known_values.
type EnumPolicy string

const (
	PolicyClosed EnumPolicy = "closed" // reject unknown values
	PolicyOpen   EnumPolicy = "open"   // accept, flag as new_values_proposed
)

// EnumSpec is the normalized, tagged form of a known_values entry, per
// design note §9 "dynamic object or array JSON".
type EnumSpec struct {
	Policy EnumPolicy `json:"policy"`
	Values []string   `json:"values"`
}

// KnownValues is the fully normalized {enums:{field:{policy,values[]}}} form.
type KnownValues struct {
	Enums map[string]EnumSpec `json:"enums"`
}

// NormalizeKnownValues accepts either {enums:{...}} or {fields:{key:[...]}}.
// The polymorphism is resolved here and never leaks past this point (§9).
func NormalizeKnownValues(raw map[string]any) (KnownValues, error) {
	out := KnownValues{Enums: map[string]EnumSpec{}}

	if enums, ok := raw["enums"]; ok {
		enumsMap, ok := enums.(map[string]any)
		if !ok {
			return out, fmt.Errorf("rulepack: known_values.enums must be an object")
		}
		for field, v := range enumsMap {
			spec, err := decodeEnumSpec(v)
			if err != nil {
				return out, fmt.Errorf("rulepack: known_values.enums[%q]: %w", field, err)
			}
			out.Enums[field] = spec
		}
		return out, nil
	}

	if fields, ok := raw["fields"]; ok {
		fieldsMap, ok := fields.(map[string]any)
		if !ok {
			return out, fmt.Errorf("rulepack: known_values.fields must be an object")
		}
		for field, v := range fieldsMap {
			values, err := decodeStringList(v)
			if err != nil {
				return out, fmt.Errorf("rulepack: known_values.fields[%q]: %w", field, err)
			}
			out.Enums[field] = EnumSpec{Policy: PolicyOpen, Values: values}
		}
		return out, nil
	}

	// Bare {field: [values...]} shorthand, also accepted as an "array" form.
	for field, v := range raw {
		values, err := decodeStringList(v)
		if err != nil {
			continue
		}
		out.Enums[field] = EnumSpec{Policy: PolicyOpen, Values: values}
	}
	return out, nil
}

func decodeEnumSpec(v any) (EnumSpec, error) {
	m, ok := v.(map[string]any)
	if !ok {
		values, err := decodeStringList(v)
		if err != nil {
			return EnumSpec{}, err
		}
		return EnumSpec{Policy: PolicyOpen, Values: values}, nil
	}
	policy := PolicyOpen
	if p, ok := m["policy"].(string); ok && p != "" {
		policy = EnumPolicy(p)
	}
	values, err := decodeStringList(m["values"])
	if err != nil {
		return EnumSpec{}, err
	}
	return EnumSpec{Policy: policy, Values: values}, nil
}

func decodeStringList(v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of values")
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("expected string values, got %T", e)
		}
		out = append(out, s)
	}
	return out, nil
}

// deriveParseTemplates builds parse_templates.json: each field's patterns
// union its own rule.Parse.Patterns with the named template library's
// patterns, plus a single-regex fallback when neither supplies one.
// Strings are coerced to {regex, group:1}; the union is de-duplicated by
// (regex, group) and sorted for determinism.
func deriveParseTemplates(rules []model.FieldRule, templates TemplateLibrary) map[string][]model.ParsePattern {
	out := make(map[string][]model.ParsePattern, len(rules))
	for _, rule := range rules {
		var patterns []model.ParsePattern
		seen := map[string]bool{}

		add := func(p model.ParsePattern) {
			k := fmt.Sprintf("%s|%d", p.Regex, p.Group)
			if seen[k] {
				return
			}
			seen[k] = true
			patterns = append(patterns, p)
		}

		if rule.Parse != nil {
			for _, p := range rule.Parse.Patterns {
				if p.Group == 0 {
					p.Group = 1
				}
				add(p)
			}
			if tmpl, ok := templates[rule.Parse.Template]; ok {
				for _, p := range tmpl.Patterns {
					if p.Group == 0 {
						p.Group = 1
					}
					add(p)
				}
			}
		}

		if len(patterns) == 0 {
			// Single-regex fallback: a case-insensitive "<field_key>: value"
			// capture keyed on the field key, good enough to seed dom/ldjson regex
			// extraction until a category-specific pattern is authored.
			add(model.ParsePattern{Regex: fallbackRegex(rule.FieldKey), Group: 1})
		}

		sort.Slice(patterns, func(i, j int) bool {
			if patterns[i].Regex != patterns[j].Regex {
				return patterns[i].Regex < patterns[j].Regex
			}
			return patterns[i].Group < patterns[j].Group
		})
		out[rule.FieldKey] = patterns
	}
	return out
}

func fallbackRegex(fieldKey string) string {
	return `(?i)` + fieldKey + `\s*[:=]\s*([^\n,;]+)`
}

// CrossValidationRule is one emitted constraint check.
type CrossValidationRule struct {
	RuleID        string   `json:"rule_id"`
	TriggerField  string   `json:"trigger_field"`
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	OnFail        string   `json:"on_fail"`
	RequiresFields []string `json:"requires_fields,omitempty"`
	Description   string   `json:"description,omitempty"`
}

// curatedRule is a cross-validation rule that only fires when its trigger
// key set is present among the category's field rules.
type curatedRule struct {
	ruleID      string
	requires    []string
	description string
}

// curatedCrossValidationRules are the category-agnostic curated checks
// named in §4.1: wireless-requires-battery, sensor<->dpi consistency,
// dimensions triplet completeness. Each only emits when every key it
// requires is present in the category's field set.
var curatedCrossValidationRules = []curatedRule{
	{
		ruleID:      "wireless_requires_battery",
		requires:    []string{"wireless", "battery_life_hours"},
		description: "a wireless product should report a battery life",
	},
	{
		ruleID:      "sensor_dpi_consistency",
		requires:    []string{"sensor", "dpi"},
		description: "reported dpi should be consistent with the sensor's published max",
	},
	{
		ruleID:      "dimensions_triplet_completeness",
		requires:    []string{"length_mm", "width_mm", "height_mm"},
		description: "length/width/height should all be present or all absent",
	},
}

// deriveCrossValidationRules emits a range rule for every field with
// contract.range, plus any curated rule whose required key set is fully
// present, de-duplicated by rule_id.
func deriveCrossValidationRules(rules []model.FieldRule) []CrossValidationRule {
	present := make(map[string]bool, len(rules))
	for _, r := range rules {
		present[r.FieldKey] = true
	}

	seen := map[string]bool{}
	var out []CrossValidationRule

	for _, r := range rules {
		if r.Contract == nil || r.Contract.Range == nil {
			continue
		}
		id := "range_" + r.FieldKey
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, CrossValidationRule{
			RuleID:       id,
			TriggerField: r.FieldKey,
			Min:          r.Contract.Range.Min,
			Max:          r.Contract.Range.Max,
			OnFail:       "reject_candidate",
		})
	}

	for _, curated := range curatedCrossValidationRules {
		if seen[curated.ruleID] {
			continue
		}
		allPresent := true
		for _, req := range curated.requires {
			if !present[req] {
				allPresent = false
				break
			}
		}
		if !allPresent {
			continue
		}
		seen[curated.ruleID] = true
		out = append(out, CrossValidationRule{
			RuleID:         curated.ruleID,
			TriggerField:   curated.requires[0],
			OnFail:         "flag_for_review",
			RequiresFields: curated.requires,
			Description:    curated.description,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

// FieldGroups maps group name -> sorted field keys within that group.
type FieldGroups map[string][]string

// deriveFieldGroups groups fields first by the UI catalog's group|section,
// else by the rule's own ui.group|group, defaulting to "general". Group
// keys and the field keys within each group are both sorted.
func deriveFieldGroups(rules []model.FieldRule, uiCatalog map[string]UICatalogEntry) FieldGroups {
	groups := FieldGroups{}
	for _, r := range rules {
		group := "general"
		if entry, ok := uiCatalog[r.FieldKey]; ok {
			if entry.Group != "" {
				group = entry.Group
			} else if entry.Section != "" {
				group = entry.Section
			}
		} else if r.Group != "" {
			group = r.Group
		}
		groups[group] = append(groups[group], r.FieldKey)
	}
	for g := range groups {
		sort.Strings(groups[g])
	}
	return groups
}
