package rulepack

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/antigravity-dev/specsheet/pkg/model"
	"github.com/antigravity-dev/specsheet/pkg/rulepack/schema"
)

// ValidationReport is the result of validating a compiled pack.
type ValidationReport struct {
	Category string   `json:"category"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// OK reports whether the pack has no validation errors (warnings don't fail).
func (r ValidationReport) OK() bool { return len(r.Errors) == 0 }

var requiredArtifacts = []string{
	FileFieldRules, FileUIFieldCatalog, FileKnownValues, FileParseTemplates,
	FileCrossValidationRules, FileFieldGroups, FileKeyMigrations, FileManifest,
}

// Validate checks that a compiled rule pack is structurally complete: every
// required file exists, component_db is non-empty (warn only), every field
// rule has complete metadata (error), every key-migration row is
// well-formed, every artifact validates against its JSON Schema, and
// manifest hashes match recomputation.
func Validate(paths Paths, schemas *schema.Registry) ValidationReport {
	report := ValidationReport{Category: paths.Category}
	dir := paths.GeneratedDir()

	for _, name := range requiredArtifacts {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("missing required artifact: %s", name))
		}
	}
	if len(report.Errors) > 0 {
		return report
	}

	entries, err := os.ReadDir(filepath.Join(dir, "component_db"))
	if err != nil || len(entries) == 0 {
		report.Warnings = append(report.Warnings, "component_db is empty")
	}

	var wrapped struct {
		Fields []model.FieldRule `json:"fields"`
	}
	if err := readJSONFile(filepath.Join(dir, FileFieldRules), &wrapped); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("field_rules.json unreadable: %v", err))
		return report
	}
	for _, rule := range wrapped.Fields {
		if msg := missingMetadata(rule); msg != "" {
			report.Errors = append(report.Errors, fmt.Sprintf("field %q: %s", rule.FieldKey, msg))
		}
	}

	var migrations model.KeyMigrations
	if err := readJSONFile(filepath.Join(dir, FileKeyMigrations), &migrations); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("key_migrations.json unreadable: %v", err))
	} else {
		for i, m := range migrations.Migrations {
			if len(m.From) == 0 || len(m.To) == 0 {
				report.Errors = append(report.Errors, fmt.Sprintf("key_migrations.json: migration[%d] missing from/to", i))
			}
		}
	}

	if schemas != nil {
		for _, name := range requiredArtifacts {
			if name == FileManifest {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			if err := schemas.Validate(name, raw); err != nil {
				report.Errors = append(report.Errors, err.Error())
			}
		}
	}

	var crossRules []CrossValidationRule
	if err := readJSONFile(filepath.Join(dir, FileCrossValidationRules), &crossRules); err == nil {
		rangeRuleFields := make(map[string]CrossValidationRule, len(crossRules))
		for _, cr := range crossRules {
			if cr.OnFail == "reject_candidate" {
				rangeRuleFields[cr.TriggerField] = cr
			}
		}
		for _, rule := range wrapped.Fields {
			if rule.Contract == nil || rule.Contract.Range == nil {
				continue
			}
			cr, ok := rangeRuleFields[rule.FieldKey]
			if !ok {
				report.Errors = append(report.Errors, fmt.Sprintf("field %q: contract.range has no matching cross-validation rule", rule.FieldKey))
				continue
			}
			if !sameFloatPtr(cr.Min, rule.Contract.Range.Min) || !sameFloatPtr(cr.Max, rule.Contract.Range.Max) {
				report.Errors = append(report.Errors, fmt.Sprintf("field %q: cross-validation range bounds do not match contract.range", rule.FieldKey))
			}
		}
	}

	recomputed, err := buildManifest(dir)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("manifest recomputation failed: %v", err))
		return report
	}
	var stored model.Manifest
	if err := readJSONFile(filepath.Join(dir, FileManifest), &stored); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("manifest.json unreadable: %v", err))
		return report
	}
	if err := compareManifests(stored, recomputed); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("manifest validation failed: %v", err))
	}
	if recomputed.Entries != nil && len(stored.Entries) != len(recomputed.Entries) {
		report.Errors = append(report.Errors, "manifest.artifact_count mismatch against _generated/ contents")
	}

	return report
}

func compareManifests(stored, recomputed model.Manifest) error {
	recomputedByPath := make(map[string]model.ManifestEntry, len(recomputed.Entries))
	for _, e := range recomputed.Entries {
		recomputedByPath[e.RelativePath] = e
	}
	for _, storedEntry := range stored.Entries {
		recomputedEntry, ok := recomputedByPath[storedEntry.RelativePath]
		if !ok {
			return fmt.Errorf("%s: file missing from _generated/", storedEntry.RelativePath)
		}
		if recomputedEntry.SHA256 != storedEntry.SHA256 {
			return fmt.Errorf("%s: recomputed hash does not match manifest", storedEntry.RelativePath)
		}
	}
	return nil
}

func sameFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func missingMetadata(rule model.FieldRule) string {
	if rule.DisplayName == "" {
		return "missing display_name"
	}
	if rule.DataType == "" {
		return "missing data_type"
	}
	if rule.OutputShape == "" {
		return "missing output_shape"
	}
	if rule.RequiredLevel == "" {
		return "missing required_level"
	}
	if rule.Availability == "" {
		return "missing availability"
	}
	if rule.Difficulty == "" {
		return "missing difficulty"
	}
	if rule.Effort < 1 || rule.Effort > 10 {
		return "effort out of [1,10] range"
	}
	if rule.Contract != nil && rule.Contract.Range != nil {
		// invariant 3: every ranged field must have a matching cross-validation
		// rule; checked at the pack level in Validate's cross-validation loop.
		return ""
	}
	return ""
}
