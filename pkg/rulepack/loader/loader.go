// Package loader provides cached, process-wide read access to a compiled
// rule pack plus component DB overrides, grounded on the teacher's
// internal/config.RWMutexManager mutex-guarded cache pattern. Load returns
// the cached *Pack itself, not a copy, so every caller of an unchanged pack
// shares one Pack value.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/antigravity-dev/specsheet/pkg/model"
	"github.com/antigravity-dev/specsheet/pkg/rulepack"
)

// Pack is the fully loaded, in-memory rule pack for one category, with
// component DB overrides already merged in.
type Pack struct {
	Category             string
	FieldRules           []model.FieldRule
	UIFieldCatalog       map[string]rulepack.UICatalogEntry
	KnownValues          rulepack.KnownValues
	ParseTemplates       map[string][]model.ParsePattern
	CrossValidationRules []rulepack.CrossValidationRule
	FieldGroups          rulepack.FieldGroups
	KeyMigrations        model.KeyMigrations
	Manifest             model.Manifest
	Components           *ComponentDB
}

type cacheKey struct {
	helperRoot string
	category   string
}

type cacheEntry struct {
	pack      *Pack
	signature string
	probedAt  time.Time
}

var (
	cacheMu sync.Mutex
	cache   = map[cacheKey]*cacheEntry{}
)

const signatureProbeTTL = time.Second

// Load returns the cached Pack for (helperRoot, category) when the current
// on-disk filesystem signature matches the cached one, recompiling it from
// disk otherwise. Signature probes within signatureProbeTTL of the previous
// probe reuse the last computed signature, coalescing bursts of concurrent
// callers into a single stat sweep.
func Load(helperRoot, category string) (*Pack, error) {
	normalized := model.NormalizeFieldKey(category)
	key := cacheKey{helperRoot: helperRoot, category: normalized}
	paths := rulepack.Paths{HelperRoot: helperRoot, Category: category}

	cacheMu.Lock()
	entry, hit := cache[key]
	if hit && time.Since(entry.probedAt) < signatureProbeTTL {
		cacheMu.Unlock()
		return entry.pack, nil
	}
	cacheMu.Unlock()

	sig, err := filesystemSignature(paths)
	if err != nil {
		return nil, fmt.Errorf("loader: signature %s: %w", category, err)
	}

	cacheMu.Lock()
	entry, hit = cache[key]
	if hit && entry.signature == sig {
		entry.probedAt = time.Now()
		cacheMu.Unlock()
		return entry.pack, nil
	}
	cacheMu.Unlock()

	pack, err := loadFromDisk(paths)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	cache[key] = &cacheEntry{pack: pack, signature: sig, probedAt: time.Now()}
	cacheMu.Unlock()

	return pack, nil
}

// InvalidateCache clears cache entries whose category contains substr.
// An empty substr clears every entry.
func InvalidateCache(substr string) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if substr == "" {
		cache = map[cacheKey]*cacheEntry{}
		return
	}
	for k := range cache {
		if containsSubstr(k.category, substr) {
			delete(cache, k)
		}
	}
}

func containsSubstr(s, substr string) bool {
	return len(substr) == 0 ||
		(len(s) >= len(substr) && indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func loadFromDisk(paths rulepack.Paths) (*Pack, error) {
	dir := paths.GeneratedDir()

	var wrappedRules struct {
		Fields []model.FieldRule `json:"fields"`
	}
	if err := readJSON(filepath.Join(dir, rulepack.FileFieldRules), &wrappedRules); err != nil {
		return nil, err
	}

	var uiCatalog map[string]rulepack.UICatalogEntry
	if err := readJSON(filepath.Join(dir, rulepack.FileUIFieldCatalog), &uiCatalog); err != nil {
		return nil, err
	}

	var knownValues rulepack.KnownValues
	if err := readJSON(filepath.Join(dir, rulepack.FileKnownValues), &knownValues); err != nil {
		return nil, err
	}

	var parseTemplates map[string][]model.ParsePattern
	if err := readJSON(filepath.Join(dir, rulepack.FileParseTemplates), &parseTemplates); err != nil {
		return nil, err
	}

	var crossValidation []rulepack.CrossValidationRule
	if err := readJSON(filepath.Join(dir, rulepack.FileCrossValidationRules), &crossValidation); err != nil {
		return nil, err
	}

	var fieldGroups rulepack.FieldGroups
	if err := readJSON(filepath.Join(dir, rulepack.FileFieldGroups), &fieldGroups); err != nil {
		return nil, err
	}

	var migrations model.KeyMigrations
	if err := readJSON(filepath.Join(dir, rulepack.FileKeyMigrations), &migrations); err != nil {
		return nil, err
	}

	var manifest model.Manifest
	if err := readJSON(filepath.Join(dir, rulepack.FileManifest), &manifest); err != nil {
		return nil, err
	}

	components, err := loadComponentDB(paths.ComponentDBDir())
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(components, paths.OverridesDir()); err != nil {
		return nil, err
	}

	return &Pack{
		Category:             paths.Category,
		FieldRules:           wrappedRules.Fields,
		UIFieldCatalog:       uiCatalog,
		KnownValues:          knownValues,
		ParseTemplates:       parseTemplates,
		CrossValidationRules: crossValidation,
		FieldGroups:          fieldGroups,
		KeyMigrations:        migrations,
		Manifest:             manifest,
		Components:           components,
	}, nil
}

func readJSON(path string, into any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loader: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("loader: parsing %s: %w", path, err)
	}
	return nil
}
