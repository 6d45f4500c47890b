package rulepack

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

// CompileReport summarizes what a compile (or dry-run) produced.
type CompileReport struct {
	Category string   `json:"category"`
	DryRun   bool     `json:"dry_run"`
	Added    []string `json:"added,omitempty"`
	Removed  []string `json:"removed,omitempty"`
	Modified []string `json:"modified,omitempty"`
	Manifest model.Manifest `json:"manifest"`
}

// Compiler compiles a category's workbook+seed inputs into a generated
// rule pack. TemplateLibrary is the shared parse-template set every
// category's field rules can reference by name.
type Compiler struct {
	Templates TemplateLibrary
}

// Compile deterministically converts input into the on-disk rule pack
// under paths.GeneratedDir(). When dryRun is true, it stages into a temp
// root, diffs against the existing pack ignoring volatile keys, and
// reports added/removed/modified paths without writing anything.
func (c Compiler) Compile(paths Paths, input SourceInput, dryRun bool) (CompileReport, error) {
	if len(input.Rows) == 0 {
		return CompileReport{}, fmt.Errorf("rulepack: compile %s: missing or invalid field_rules input (no rows)", paths.Category)
	}

	rules, err := normalizeFieldRules(input.Rows)
	if err != nil {
		return CompileReport{}, fmt.Errorf("rulepack: compile %s: %w", paths.Category, err)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].FieldKey < rules[j].FieldKey })

	knownValuesRaw := map[string]any{"fields": toAnyMap(input.KnownValues)}
	knownValues, err := NormalizeKnownValues(knownValuesRaw)
	if err != nil {
		return CompileReport{}, fmt.Errorf("rulepack: compile %s: known_values: %w", paths.Category, err)
	}

	parseTemplates := deriveParseTemplates(rules, c.Templates)
	crossValidation := deriveCrossValidationRules(rules)
	fieldGroups := deriveFieldGroups(rules, input.UIFieldCatalog)

	migrations := input.PreviousKeyMigrations
	if migrations == nil {
		migrations = &model.KeyMigrations{Version: "1.0.0", Bump: model.BumpPatch, KeyMap: map[string]string{}}
	}

	targetDir := paths.GeneratedDir()
	if dryRun {
		tmp, err := os.MkdirTemp("", "rulepack-dryrun-*")
		if err != nil {
			return CompileReport{}, err
		}
		defer os.RemoveAll(tmp)
		targetDir = tmp
	}

	if err := writeArtifacts(targetDir, rules, knownValues, parseTemplates, crossValidation, fieldGroups, *migrations, input.UIFieldCatalog); err != nil {
		return CompileReport{}, err
	}

	manifest, err := buildManifest(targetDir)
	if err != nil {
		return CompileReport{}, err
	}
	if !dryRun {
		if err := writeCanonicalJSON(filepath.Join(targetDir, FileManifest), manifest); err != nil {
			return CompileReport{}, err
		}
		// Re-walk to include the manifest's own byte count is unnecessary:
		// the manifest deliberately excludes itself (§3 invariant).
	}

	report := CompileReport{Category: paths.Category, DryRun: dryRun, Manifest: manifest}

	if dryRun {
		added, removed, modified, err := diffAgainstExisting(paths.GeneratedDir(), targetDir)
		if err != nil {
			return CompileReport{}, err
		}
		report.Added, report.Removed, report.Modified = added, removed, modified
	}

	return report, nil
}

func toAnyMap(m map[string][]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		list := make([]any, len(v))
		for i, s := range v {
			list[i] = s
		}
		out[k] = list
	}
	return out
}

func writeArtifacts(
	dir string,
	rules []model.FieldRule,
	knownValues KnownValues,
	parseTemplates map[string][]model.ParsePattern,
	crossValidation []CrossValidationRule,
	fieldGroups FieldGroups,
	migrations model.KeyMigrations,
	uiCatalog map[string]UICatalogEntry,
) error {
	if err := writeCanonicalJSON(filepath.Join(dir, FileFieldRules), map[string]any{"fields": rules}); err != nil {
		return err
	}
	if err := writeCanonicalJSON(filepath.Join(dir, FileUIFieldCatalog), uiCatalog); err != nil {
		return err
	}
	if err := writeCanonicalJSON(filepath.Join(dir, FileKnownValues), knownValues); err != nil {
		return err
	}
	if err := writeCanonicalJSON(filepath.Join(dir, FileParseTemplates), parseTemplates); err != nil {
		return err
	}
	if err := writeCanonicalJSON(filepath.Join(dir, FileCrossValidationRules), crossValidation); err != nil {
		return err
	}
	if err := writeCanonicalJSON(filepath.Join(dir, FileFieldGroups), fieldGroups); err != nil {
		return err
	}
	if err := writeCanonicalJSON(filepath.Join(dir, FileKeyMigrations), migrations); err != nil {
		return err
	}
	// component_db/ is populated separately by seed JSON ingestion
	// (pkg/rulepack/loader owns reading it back with overrides applied);
	// an empty directory is a valid, if warn-worthy, compile output.
	if err := os.MkdirAll(filepath.Join(dir, "component_db"), 0o755); err != nil {
		return err
	}
	return nil
}
