package rulepack

import (
	"fmt"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

// defaultEffort is used when a workbook row omits an effort score.
const defaultEffort = 3

// normalizeFieldRule fills every metadata slot with a deterministic default
// when the workbook row leaves it absent, per §4.1 "normalizes field rules".
func normalizeFieldRule(row WorkbookRow) (model.FieldRule, error) {
	key := model.NormalizeFieldKey(row.FieldKeyRaw)
	if key == "" {
		return model.FieldRule{}, fmt.Errorf("rulepack: row %q normalizes to an empty field_key", row.FieldKeyRaw)
	}

	rule := model.FieldRule{
		FieldKey:     key,
		DisplayName:  defaultString(row.DisplayName, titleCaseKey(key)),
		Group:        defaultString(row.Group, "general"),
		DataType:     model.DataType(defaultString(row.DataType, string(model.DataTypeString))),
		OutputShape:  model.OutputShape(defaultString(row.OutputShape, string(model.ShapeScalar))),
		RequiredLevel: model.RequiredLevel(defaultString(row.RequiredLevel, string(model.LevelOptional))),
		Availability: model.Availability(defaultString(row.Availability, string(model.AvailabilitySometimes))),
		Difficulty:   model.Difficulty(defaultString(row.Difficulty, string(model.DifficultyMedium))),
		Effort:       row.Effort,
		EvidenceRequired: row.EvidenceRequired,
		UnknownReasonDefault: defaultString(row.UnknownReason, "not_found"),
		AIMode:       defaultString(row.AIMode, "assist"),
		AIMaxCalls:   row.AIMaxCalls,
	}
	if rule.Effort <= 0 {
		rule.Effort = defaultEffort
	}
	if rule.Effort > 10 {
		rule.Effort = 10
	}
	if rule.AIMaxCalls <= 0 {
		rule.AIMaxCalls = 3
	}

	if row.RangeMin != nil || row.RangeMax != nil {
		rule.Contract = &model.Contract{Range: &model.Range{Min: row.RangeMin, Max: row.RangeMax}}
	}

	if row.ParseTemplate != "" || len(row.ParsePatterns) > 0 || row.Unit != "" {
		rule.Parse = &model.ParseBlock{
			Template:         row.ParseTemplate,
			Patterns:         row.ParsePatterns,
			ContextKeywords:  row.ContextKeywords,
			NegativeKeywords: row.NegativeKeywords,
			Unit:             row.Unit,
			PostProcess:      row.PostProcess,
		}
	}

	if len(row.QueryTerms) > 0 || len(row.PreferredTypes) > 0 || len(row.DomainHints) > 0 {
		rule.SearchHints = &model.SearchHints{
			QueryTerms:           row.QueryTerms,
			PreferredContentType: row.PreferredTypes,
			DomainHints:          row.DomainHints,
		}
	}

	return rule, nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// titleCaseKey turns a normalized field_key like "polling_rate_hz" into a
// readable default display name "Polling Rate Hz".
func titleCaseKey(key string) string {
	out := make([]byte, 0, len(key)+4)
	capNext := true
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == '_' {
			out = append(out, ' ')
			capNext = true
			continue
		}
		if capNext && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
			capNext = false
		}
		out = append(out, c)
	}
	return string(out)
}

// normalizeFieldRules converts every workbook row into a field rule, in
// input order, erroring on the first structurally invalid row.
func normalizeFieldRules(rows []WorkbookRow) ([]model.FieldRule, error) {
	rules := make([]model.FieldRule, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		rule, err := normalizeFieldRule(row)
		if err != nil {
			return nil, err
		}
		if seen[rule.FieldKey] {
			return nil, fmt.Errorf("rulepack: duplicate field_key %q after normalization", rule.FieldKey)
		}
		seen[rule.FieldKey] = true
		rules = append(rules, rule)
	}
	return rules, nil
}
