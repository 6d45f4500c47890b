// Package rulepack compiles a category's source workbook into the
// immutable, hash-manifested JSON rule pack the runtime loads, and
// validates/diffs/watches that pack over its lifetime.
//
// Grounded on the teacher's internal/config (deterministic struct loading
// with filled-in defaults) and internal/graph (stable, hashable on-disk
// state written via canonical JSON).
package rulepack

import (
	"path/filepath"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

// Paths locates a category's source inputs and generated output under a
// helper root, mirroring the §6 filesystem layout.
type Paths struct {
	HelperRoot string
	Category   string
}

func (p Paths) CategoryRoot() string    { return filepath.Join(p.HelperRoot, p.Category) }
func (p Paths) SourceDir() string       { return filepath.Join(p.CategoryRoot(), "_source") }
func (p Paths) ControlPlaneDir() string { return filepath.Join(p.CategoryRoot(), "_control_plane") }
func (p Paths) GeneratedDir() string    { return filepath.Join(p.CategoryRoot(), "_generated") }
func (p Paths) OverridesDir() string    { return filepath.Join(p.CategoryRoot(), "_overrides", "components") }
func (p Paths) SuggestionsDir() string  { return filepath.Join(p.CategoryRoot(), "_suggestions") }
func (p Paths) ComponentDBDir() string  { return filepath.Join(p.GeneratedDir(), "component_db") }

func (p Paths) WorkbookMapPath() string {
	return filepath.Join(p.ControlPlaneDir(), "workbook_map.json")
}

// Generated artifact file names, relative to GeneratedDir().
const (
	FileFieldRules          = "field_rules.json"
	FileUIFieldCatalog       = "ui_field_catalog.json"
	FileKnownValues          = "known_values.json"
	FileParseTemplates       = "parse_templates.json"
	FileCrossValidationRules = "cross_validation_rules.json"
	FileFieldGroups          = "field_groups.json"
	FileKeyMigrations        = "key_migrations.json"
	FileManifest             = "manifest.json"
)

// WorkbookRow is one normalized row parsed out of the category source
// workbook. The workbook parser itself is an external collaborator
// (spec.md §1); this is its output contract (spec.md §6).
type WorkbookRow struct {
	FieldKeyRaw     string
	DisplayName     string
	Group           string
	DataType        string
	OutputShape     string
	RequiredLevel   string
	Availability    string
	Difficulty      string
	Effort          int
	EvidenceRequired bool
	UnknownReason   string
	RangeMin        *float64
	RangeMax        *float64
	ParseTemplate   string
	ParsePatterns   []model.ParsePattern
	ContextKeywords []string
	NegativeKeywords []string
	Unit            string
	PostProcess     string
	AIMode          string
	AIMaxCalls      int
	QueryTerms      []string
	PreferredTypes  []string
	DomainHints     []string
}

// WorkbookMap describes sheet roles for a category, as produced by the
// external workbook parser and consumed here as input.
type WorkbookMap struct {
	SheetRoles map[string]string `json:"sheet_roles"`
	ValueColEnd string           `json:"value_col_end,omitempty"`
}

// SourceInput is everything compile() needs that the external workbook
// parser and category seed JSON supply.
type SourceInput struct {
	Rows        []WorkbookRow
	KnownValues map[string][]string // field -> enum values, "object or array" form pre-normalization
	UIFieldCatalog map[string]UICatalogEntry
	PreviousKeyMigrations *model.KeyMigrations
}

// UICatalogEntry carries UI-only grouping metadata for a field.
type UICatalogEntry struct {
	Group   string `json:"group"`
	Section string `json:"section,omitempty"`
}

// TemplateLibrary is the named set of reusable parse templates a category
// or the shared defaults can reference by name.
type TemplateLibrary map[string]model.ParseBlock
