package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/antigravity-dev/specsheet/pkg/rulepack"
)

func ptrF(v float64) *float64 { return &v }

func sampleRows() []rulepack.WorkbookRow {
	return []rulepack.WorkbookRow{
		{FieldKeyRaw: "DPI (max)", DataType: "number", RangeMin: ptrF(50), RangeMax: ptrF(32000)},
		{FieldKeyRaw: "Wireless", DataType: "boolean"},
	}
}

func compileFixture(t *testing.T, helperRoot, category string) rulepack.Paths {
	t.Helper()
	paths := rulepack.Paths{HelperRoot: helperRoot, Category: category}
	c := rulepack.Compiler{}
	if _, err := c.Compile(paths, rulepack.SourceInput{Rows: sampleRows()}, false); err != nil {
		t.Fatalf("Compile fixture: %v", err)
	}
	return paths
}

func TestLoadReturnsCompiledFieldRules(t *testing.T) {
	root := t.TempDir()
	compileFixture(t, root, "mice")
	InvalidateCache("")

	pack, err := Load(root, "mice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(pack.FieldRules) != 2 {
		t.Fatalf("expected 2 field rules, got %d", len(pack.FieldRules))
	}
}

func TestLoadCachesSameObjectWithoutFilesystemChange(t *testing.T) {
	root := t.TempDir()
	compileFixture(t, root, "mice")
	InvalidateCache("")

	p1, err := Load(root, "mice")
	if err != nil {
		t.Fatalf("Load 1: %v", err)
	}
	p2, err := Load(root, "mice")
	if err != nil {
		t.Fatalf("Load 2: %v", err)
	}
	if p1 != p2 {
		t.Error("expected identical Pack pointer when nothing on disk changed")
	}
}

func TestLoadReloadsAfterManifestChange(t *testing.T) {
	root := t.TempDir()
	paths := compileFixture(t, root, "mice")
	InvalidateCache("")

	p1, err := Load(root, "mice")
	if err != nil {
		t.Fatalf("Load 1: %v", err)
	}

	// Recompile with a changed input, then invalidate so the next Load
	// re-probes the filesystem signature rather than reusing the 1s-memoized
	// probe (callers that recompile are expected to invalidate explicitly).
	time.Sleep(10 * time.Millisecond)
	c := rulepack.Compiler{}
	rows := append(sampleRows(), rulepack.WorkbookRow{FieldKeyRaw: "Weight (g)", DataType: "number"})
	if _, err := c.Compile(paths, rulepack.SourceInput{Rows: rows}, false); err != nil {
		t.Fatalf("recompile: %v", err)
	}
	InvalidateCache("mice")

	p2, err := Load(root, "mice")
	if err != nil {
		t.Fatalf("Load 2: %v", err)
	}
	if p1 == p2 {
		t.Error("expected a fresh Pack after the generated directory changed")
	}
	if len(p2.FieldRules) != 3 {
		t.Errorf("expected 3 field rules after recompile, got %d", len(p2.FieldRules))
	}
}

func TestInvalidateCacheBySubstring(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	compileFixture(t, rootA, "mice")
	compileFixture(t, rootB, "keyboards")
	InvalidateCache("")

	if _, err := Load(rootA, "mice"); err != nil {
		t.Fatalf("Load mice: %v", err)
	}
	if _, err := Load(rootB, "keyboards"); err != nil {
		t.Fatalf("Load keyboards: %v", err)
	}

	InvalidateCache("mice")

	cacheMu.Lock()
	_, miceStillCached := cache[cacheKey{helperRoot: rootA, category: "mice"}]
	_, keyboardsStillCached := cache[cacheKey{helperRoot: rootB, category: "keyboards"}]
	cacheMu.Unlock()

	if miceStillCached {
		t.Error("expected mice entry invalidated")
	}
	if !keyboardsStillCached {
		t.Error("expected keyboards entry untouched")
	}
}

func TestLoadComponentDBAndLookup(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sensors.json"), `[
		{"component_type":"sensor","canonical_name":"PixArt PAW3395","maker":"PixArt","aliases":["PAW3395"]},
		{"component_type":"sensor","canonical_name":"PixArt PAW3335","maker":"PixArt","aliases":["PAW3395 Rev2"]}
	]`)

	db, err := loadComponentDB(dir)
	if err != nil {
		t.Fatalf("loadComponentDB: %v", err)
	}
	if len(db.All()) != 2 {
		t.Fatalf("expected 2 components, got %d", len(db.All()))
	}

	comp, ambiguous := db.Lookup("PAW3395")
	if comp == nil || comp.CanonicalName != "PixArt PAW3395" {
		t.Fatalf("expected exact alias match, got %+v", comp)
	}
	if ambiguous {
		t.Error("exact alias match should not be ambiguous")
	}
}

func TestComponentDBTokenCollisionSuffix(t *testing.T) {
	db := newComponentDB()
	db.insert(&Component{CanonicalName: "Model X", Maker: "Acme"})
	db.insert(&Component{CanonicalName: "Model X", Maker: "Acme"})
	if len(db.byToken) != 2 {
		t.Fatalf("expected collision suffix to keep both entries, got %d", len(db.byToken))
	}
}

func TestApplyOverridesPatchesPropertiesAndReindexesAliases(t *testing.T) {
	dbDir := t.TempDir()
	writeFile(t, filepath.Join(dbDir, "sensors.json"), `[
		{"component_type":"sensor","canonical_name":"PixArt PAW3395","maker":"PixArt","aliases":["PAW3395"],"properties":{"max_dpi":26000}}
	]`)
	overridesDir := t.TempDir()
	writeFile(t, filepath.Join(overridesDir, "fix1.json"), `{
		"component_type":"sensor",
		"name":"PAW3395",
		"aliases":["PAW3395","PAW-3395"],
		"properties":{"max_dpi":26000,"verified":true}
	}`)

	db, err := loadComponentDB(dbDir)
	if err != nil {
		t.Fatalf("loadComponentDB: %v", err)
	}
	if err := applyOverrides(db, overridesDir); err != nil {
		t.Fatalf("applyOverrides: %v", err)
	}

	comp, _ := db.Lookup("PAW-3395")
	if comp == nil {
		t.Fatal("expected override's new alias to be indexed")
	}
	if comp.Properties["verified"] != true {
		t.Errorf("expected verified property patched in, got %+v", comp.Properties)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writeFile %s: %v", path, err)
	}
}
