// Package model defines the shared data types that flow between the
// rule-pack compiler, the planner/fetcher/extractor pipeline, consensus,
// the gate stack, and the convergence orchestrator.
package model

import "time"

// DataType enumerates the scalar types a field rule can hold.
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeNumber  DataType = "number"
	DataTypeURL     DataType = "url"
	DataTypeBoolean DataType = "boolean"
	DataTypeEnum    DataType = "enum"
)

// OutputShape is scalar or list.
type OutputShape string

const (
	ShapeScalar OutputShape = "scalar"
	ShapeList   OutputShape = "list"
)

// RequiredLevel classifies how strongly a field is expected to be present.
type RequiredLevel string

const (
	LevelRequired  RequiredLevel = "required"
	LevelExpected  RequiredLevel = "expected"
	LevelCritical  RequiredLevel = "critical"
	LevelEditorial RequiredLevel = "editorial"
	LevelCommerce  RequiredLevel = "commerce"
	LevelOptional  RequiredLevel = "optional"
)

// Availability describes how often a field is realistically populated.
type Availability string

const (
	AvailabilityExpected     Availability = "expected"
	AvailabilityEditorialOnl Availability = "editorial_only"
	AvailabilitySometimes    Availability = "sometimes"
	AvailabilityRare         Availability = "rare"
)

// Difficulty is the extraction difficulty tier.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Range bounds a numeric field's plausible values.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Contract holds cross-validation constraints for a field.
type Contract struct {
	Range *Range `json:"range,omitempty"`
}

// ParsePattern is one regex/group/unit/convert rule used to pull a value
// out of free text.
type ParsePattern struct {
	Regex   string `json:"regex"`
	Group   int    `json:"group"`
	Unit    string `json:"unit,omitempty"`
	Convert string `json:"convert,omitempty"`
}

// ParseBlock is the optional per-field parsing policy.
type ParseBlock struct {
	Template         string         `json:"template,omitempty"`
	Patterns         []ParsePattern `json:"patterns,omitempty"`
	ContextKeywords  []string       `json:"context_keywords,omitempty"`
	NegativeKeywords []string       `json:"negative_keywords,omitempty"`
	Unit             string         `json:"unit,omitempty"`
	PostProcess      string         `json:"post_process,omitempty"`
}

// SearchHints narrows query construction and discovery for a field.
type SearchHints struct {
	QueryTerms           []string `json:"query_terms,omitempty"`
	PreferredContentType []string `json:"preferred_content_types,omitempty"`
	DomainHints          []string `json:"domain_hints,omitempty"`
}

// FieldRule is the full per-category, per-field metadata and policy record.
type FieldRule struct {
	FieldKey            string        `json:"field_key"`
	DisplayName          string       `json:"display_name"`
	Group                string        `json:"group"`
	DataType             DataType      `json:"data_type"`
	OutputShape          OutputShape   `json:"output_shape"`
	RequiredLevel        RequiredLevel `json:"required_level"`
	Availability         Availability  `json:"availability"`
	Difficulty           Difficulty    `json:"difficulty"`
	Effort               int           `json:"effort"`
	EvidenceRequired     bool          `json:"evidence_required"`
	UnknownReasonDefault string        `json:"unknown_reason_default"`
	Contract             *Contract     `json:"contract,omitempty"`
	Parse                *ParseBlock   `json:"parse,omitempty"`
	AIMode               string        `json:"ai_mode,omitempty"`
	AIMaxCalls           int           `json:"ai_max_calls,omitempty"`
	SearchHints          *SearchHints  `json:"search_hints,omitempty"`
}

// NormalizeFieldKey applies the field_key normalization rule: lowercase,
// non [a-z0-9] runs become a single underscore, leading/trailing
// underscores trimmed.
func NormalizeFieldKey(raw string) string {
	return normalizeKey(raw)
}

// ManifestEntry is one row of a rule-pack manifest.
type ManifestEntry struct {
	RelativePath string `json:"relative_path"`
	SHA256       string `json:"sha256"`
	Bytes        int64  `json:"bytes"`
}

// Manifest is the ordered hash inventory of a compiled rule pack.
type Manifest struct {
	Algorithm string          `json:"algorithm"`
	Entries   []ManifestEntry `json:"entries"`
}

// MigrationType is the closed set of key-migration operations.
type MigrationType string

const (
	MigrationRename    MigrationType = "rename"
	MigrationMerge     MigrationType = "merge"
	MigrationSplit     MigrationType = "split"
	MigrationDeprecate MigrationType = "deprecate"
)

// Migration describes one key-migration step.
type Migration struct {
	Type MigrationType `json:"type"`
	From []string      `json:"from"`
	To   []string      `json:"to"`
	Note string        `json:"note,omitempty"`
}

// SemverBump is the semver bump class of a rule-pack version change.
type SemverBump string

const (
	BumpMajor SemverBump = "major"
	BumpMinor SemverBump = "minor"
	BumpPatch SemverBump = "patch"
)

// KeyMigrations is the full migrations document for a category.
type KeyMigrations struct {
	Version         string            `json:"version"`
	PreviousVersion string            `json:"previous_version"`
	Bump            SemverBump        `json:"bump"`
	Summary         string            `json:"summary"`
	Migrations      []Migration       `json:"migrations"`
	KeyMap          map[string]string `json:"key_map"`
}

// IdentityLock is the brand/model/variant/sku triple a job pins.
type IdentityLock struct {
	Brand   string `json:"brand"`
	Model   string `json:"model"`
	Variant string `json:"variant,omitempty"`
	SKU     string `json:"sku,omitempty"`
}

// Requirements are the per-job override targets.
type Requirements struct {
	RequiredFields    []string `json:"requiredFields,omitempty"`
	TargetCompleteness float64 `json:"targetCompleteness,omitempty"`
	TargetConfidence   float64 `json:"targetConfidence,omitempty"`
}

// Job is the runtime input describing one product to extract.
type Job struct {
	ProductID    string            `json:"productId"`
	Category     string            `json:"category"`
	IdentityLock IdentityLock      `json:"identityLock"`
	Anchors      map[string]string `json:"anchors,omitempty"`
	Requirements Requirements      `json:"requirements,omitempty"`
}

// SourceTier is the trust tier of a source host.
type SourceTier string

const (
	Tier1      SourceTier = "1"
	Tier2      SourceTier = "2"
	Tier3      SourceTier = "3"
	TierUnkown SourceTier = "unknown"
)

// SourceRole classifies what kind of host a source is.
type SourceRole string

const (
	RoleManufacturer SourceRole = "manufacturer"
	RoleLab          SourceRole = "lab"
	RoleReview       SourceRole = "review"
	RoleRetailer     SourceRole = "retailer"
	RoleOther        SourceRole = "other"
)

// Source is one URL under consideration or already fetched.
type Source struct {
	URL            string     `json:"url"`
	Host           string     `json:"host"`
	RootDomain     string     `json:"rootDomain"`
	Tier           SourceTier `json:"tier"`
	Role           SourceRole `json:"role"`
	ApprovedDomain bool       `json:"approvedDomain"`
}

// PageData is everything the fetcher returns for one source.
type PageData struct {
	Status           int               `json:"status"`
	FinalURL         string            `json:"finalUrl"`
	Title            string            `json:"title"`
	HTML             string            `json:"html"`
	LDJSONBlocks     []string          `json:"ldjsonBlocks,omitempty"`
	EmbeddedState    map[string]any    `json:"embeddedState,omitempty"`
	NetworkResponses []NetworkResponse `json:"networkResponses,omitempty"`
	PDFDocs          [][]byte          `json:"-"`
}

// NetworkResponse is one captured XHR/fetch JSON payload.
type NetworkResponse struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// ExtractionMethod is the closed set of candidate-producing methods.
type ExtractionMethod string

const (
	MethodNetworkJSON    ExtractionMethod = "network_json"
	MethodEmbeddedState  ExtractionMethod = "embedded_state"
	MethodLDJSON         ExtractionMethod = "ldjson"
	MethodPDF            ExtractionMethod = "pdf"
	MethodDOM            ExtractionMethod = "dom"
	MethodLLMExtract     ExtractionMethod = "llm_extract"
)

// MethodPriority is the fixed priority weight for each extraction method,
// used both for de-dup precedence and consensus scoring.
var MethodPriority = map[ExtractionMethod]int{
	MethodNetworkJSON:   5,
	MethodEmbeddedState: 4,
	MethodLDJSON:        3,
	MethodPDF:           3,
	MethodDOM:           2,
	MethodLLMExtract:    1,
}

// Candidate is one proposed field value produced by one method on one source.
type Candidate struct {
	Field       string           `json:"field"`
	Value       string           `json:"value"`
	Method      ExtractionMethod `json:"method"`
	KeyPath     string           `json:"keyPath,omitempty"`
	Quote       string           `json:"quote,omitempty"`
	SourceIndex int              `json:"sourceIndex"`
}

// DedupeKey returns the exact de-duplication key for a candidate.
func (c Candidate) DedupeKey() string {
	return c.Field + "|" + c.Value + "|" + string(c.Method) + "|" + c.KeyPath
}

// EvidenceRow is one piece of provenance attached to an accepted field value.
type EvidenceRow struct {
	Tier     SourceTier       `json:"tier"`
	TierName string           `json:"tierName"`
	Method   ExtractionMethod `json:"method"`
	URL      string           `json:"url"`
	Quote    string           `json:"quote,omitempty"`
}

// FieldProvenance is the consensus output for a single field.
type FieldProvenance struct {
	Value                string        `json:"value"`
	Confirmations        int           `json:"confirmations"`
	ApprovedConfirmations int          `json:"approved_confirmations"`
	PassTarget           int           `json:"pass_target"`
	MeetsPassTarget      bool          `json:"meets_pass_target"`
	Confidence           float64       `json:"confidence"`
	Evidence             []EvidenceRow `json:"evidence"`
}

// TrafficLightColor is the per-field evidence-quality signal.
type TrafficLightColor string

const (
	ColorGreen  TrafficLightColor = "green"
	ColorYellow TrafficLightColor = "yellow"
	ColorRed    TrafficLightColor = "red"
)

// TrafficLight is the per-field color plus the reasoning behind it.
type TrafficLight struct {
	Color          TrafficLightColor `json:"color"`
	Reason         string            `json:"reason"`
	SourceTier     SourceTier        `json:"source_tier,omitempty"`
	SourceMethod   ExtractionMethod  `json:"source_method,omitempty"`
	SourceURL      string            `json:"source_url,omitempty"`
	UnknownReason  string            `json:"unknown_reason,omitempty"`
}

// Quality summarizes the validation outcome of a normalized record.
type Quality struct {
	Validated            bool     `json:"validated"`
	Confidence           float64  `json:"confidence"`
	CompletenessRequired float64  `json:"completeness_required"`
	CoverageOverall      float64  `json:"coverage_overall"`
	Notes                []string `json:"notes,omitempty"`
}

// SourceSummary is a lightweight rollup of sources consulted for a record.
type SourceSummary struct {
	TotalSources     int `json:"totalSources"`
	IdentityMatched  int `json:"sourcesIdentityMatched"`
	ApprovedSources  int `json:"approvedSources"`
}

// NormalizedRecord is the final artifact produced for a product.
type NormalizedRecord struct {
	ID            string                 `json:"id"`
	Brand         string                 `json:"brand"`
	Model         string                 `json:"model"`
	BaseModel     string                 `json:"base_model,omitempty"`
	Variant       string                 `json:"variant,omitempty"`
	Category      string                 `json:"category"`
	SKU           string                 `json:"sku,omitempty"`
	Quality       Quality                `json:"quality"`
	Fields        map[string]string      `json:"fields"`
	SourceSummary SourceSummary          `json:"sourceSummary"`
}

// QueueStatus is the closed set of queue-product lifecycle states.
type QueueStatus string

const (
	StatusPending     QueueStatus = "pending"
	StatusRunning     QueueStatus = "running"
	StatusComplete    QueueStatus = "complete"
	StatusFailed      QueueStatus = "failed"
	StatusNeedsManual QueueStatus = "needs_manual"
	StatusExhausted   QueueStatus = "exhausted"
)

// QueueProduct is one row of the per-category product queue.
type QueueProduct struct {
	ProductID      string      `json:"productId"`
	Category       string      `json:"category"`
	S3Key          string      `json:"s3key"`
	Status         QueueStatus `json:"status"`
	Priority       int         `json:"priority"`
	RetryCount     int         `json:"retry_count"`
	MaxAttempts    int         `json:"max_attempts"`
	NextRetryAt    *time.Time  `json:"next_retry_at,omitempty"`
	NextActionHint string      `json:"next_action_hint,omitempty"`
}

// AutomationJobStatus is the closed set of automation-job states.
type AutomationJobStatus string

const (
	AutomationQueued  AutomationJobStatus = "queued"
	AutomationRunning AutomationJobStatus = "running"
	AutomationDone    AutomationJobStatus = "done"
	AutomationFailed  AutomationJobStatus = "failed"
)

// AutomationJob is a deduplicated unit of background work.
type AutomationJob struct {
	ID         string              `json:"id"`
	JobType    string              `json:"job_type"`
	DedupeKey  string              `json:"dedupe_key"`
	Status     AutomationJobStatus `json:"status"`
	Payload    []byte              `json:"payload"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// AutomationTransition is one audit-trail row for an automation job.
type AutomationTransition struct {
	JobID     string    `json:"job_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
