package rulepack

import (
	"os"
	"path/filepath"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

// diffAgainstExisting compares two generated-artifact directories file by
// file, ignoring volatile keys inside JSON bodies (the manifest already
// strips them via buildManifest, so a pure SHA comparison on the manifest
// entries is sufficient and avoids re-parsing every file twice).
func diffAgainstExisting(existingDir, candidateDir string) (added, removed, modified []string, err error) {
	var existingManifest model.Manifest
	if dirExists(existingDir) {
		existingManifest, err = buildManifest(existingDir)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	candidateManifest, err := buildManifest(candidateDir)
	if err != nil {
		return nil, nil, nil, err
	}

	existingByPath := map[string]string{}
	for _, e := range existingManifest.Entries {
		existingByPath[e.RelativePath] = e.SHA256
	}
	candidateByPath := map[string]string{}
	for _, e := range candidateManifest.Entries {
		candidateByPath[e.RelativePath] = e.SHA256
	}

	for path, sum := range candidateByPath {
		oldSum, existed := existingByPath[path]
		if !existed {
			added = append(added, path)
			continue
		}
		if oldSum != sum {
			modified = append(modified, path)
		}
	}
	for path := range existingByPath {
		if _, still := candidateByPath[path]; !still {
			removed = append(removed, path)
		}
	}
	return added, removed, modified, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// BreakingClass classifies a rulesDiff report.
type BreakingClass string

const (
	ClassSafe               BreakingClass = "safe"
	ClassPotentiallyBreaking BreakingClass = "potentially_breaking"
	ClassBreaking           BreakingClass = "breaking"
)

// RulesDiff runs Compile in dry-run mode and classifies the report.
func (c Compiler) RulesDiff(paths Paths, input SourceInput) (CompileReport, BreakingClass, error) {
	report, err := c.Compile(paths, input, true)
	if err != nil {
		return report, "", err
	}

	if len(report.Removed) > 0 {
		return report, ClassBreaking, nil
	}
	var existing struct {
		Fields []model.FieldRule `json:"fields"`
	}
	if err := readJSONFile(fieldRulesPath(paths), &existing); err == nil {
		incoming := make(map[string]bool, len(input.Rows))
		for _, row := range input.Rows {
			incoming[model.NormalizeFieldKey(row.FieldKeyRaw)] = true
		}
		for _, f := range existing.Fields {
			if !incoming[f.FieldKey] {
				return report, ClassBreaking, nil
			}
		}
	}
	if len(report.Modified) > 0 {
		return report, ClassPotentiallyBreaking, nil
	}
	return report, ClassSafe, nil
}

// fieldRulesPath is a small helper kept next to the diff logic because
// both rulesDiff and validate need to locate field_rules.json without
// importing the loader package (which depends on this package instead).
func fieldRulesPath(paths Paths) string {
	return filepath.Join(paths.GeneratedDir(), FileFieldRules)
}
