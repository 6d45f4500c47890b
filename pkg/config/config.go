// Package config loads and validates the spec-sheet extractor's TOML
// configuration, adapted from the teacher's internal/config: same
// Duration TOML-(un)marshaling type, same Load/Clone/RWMutexManager shape.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that (un)marshals from TOML strings like "60s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the root configuration document, one file per helper root.
type Config struct {
	General      General                 `toml:"general"`
	Planner      Planner                 `toml:"planner"`
	Fetch        Fetch                   `toml:"fetch"`
	Extract      Extract                 `toml:"extract"`
	LLM          LLM                     `toml:"llm"`
	Consensus    Consensus               `toml:"consensus"`
	Gates        Gates                   `toml:"gates"`
	Orchestrator Orchestrator            `toml:"orchestrator"`
	Queue        Queue                   `toml:"queue"`
	Automation   Automation              `toml:"automation"`
	Search       Search                  `toml:"search"`
	API          API                     `toml:"api"`
	Categories   map[string]CategoryConf `toml:"categories"`
}

// API configures the HTTP status surface (queue/batch/host-yield
// inspection) a separate process can poll, plus the bearer-token check
// and audit log guarding the /queue/ routes, which include an enqueue POST.
type API struct {
	Bind      string `toml:"bind"`
	AuthToken string `toml:"auth_token"`
	AuditLog  string `toml:"audit_log"`
}

// General holds process-wide defaults.
type General struct {
	HelperRoot    string   `toml:"helper_root"`
	LogLevel      string   `toml:"log_level"`
	MaxRunSeconds Duration `toml:"max_run_seconds"`
	StateDB       string   `toml:"state_db"`
}

// Planner configures the source frontier's ordering and per-host budget.
type Planner struct {
	ApprovedHostBonus    int      `toml:"approved_host_bonus"`
	RateLimitBackoff     Duration `toml:"rate_limit_backoff"`
	BlockedBackoff       Duration `toml:"blocked_backoff"`
	ServerErrorBackoff   Duration `toml:"server_error_backoff"`
	MaxDiscoveryPerHost  int      `toml:"max_discovery_per_host"`
}

// Fetch configures the fetcher's network timeouts and dry-run mode.
type Fetch struct {
	Timeout Duration `toml:"timeout"`
	DryRun  bool     `toml:"dry_run"`
}

// Extract configures extraction method toggles.
type Extract struct {
	EnableLLMExtract bool `toml:"enable_llm_extract"`
}

// LLM configures the model tiers and request parameters (token cap,
// temperature, request timeout).
type LLM struct {
	Tiers        Tiers    `toml:"tiers"`
	MaxTokens    int      `toml:"max_tokens"`
	Temperature  float64  `toml:"temperature"`
	RequestTimeout Duration `toml:"request_timeout"`
}

// Tiers names the model per capability tier, mirroring the teacher's own
// fast/balanced/premium tier list shape (here fast/deep/vision per §4.6/§6).
type Tiers struct {
	Fast  string `toml:"fast"`
	Deep  string `toml:"deep"`
	Vision string `toml:"vision"`
}

// Consensus configures reconciliation weights (§4.7).
type Consensus struct {
	WeightIdentity  float64 `toml:"weight_identity"`
	WeightAgreement float64 `toml:"weight_agreement"`
	WeightTier      float64 `toml:"weight_tier"`
	WeightConflict  float64 `toml:"weight_conflict"`
}

// Gates configures gate-stack thresholds (§4.8).
type Gates struct {
	IdentityCertaintyMin float64 `toml:"identity_certainty_min"`
	TargetCompleteness   float64 `toml:"target_completeness"`
	TargetConfidence     float64 `toml:"target_confidence"`
	WeightMinorDiffPct   float64 `toml:"weight_minor_diff_pct"`
}

// Orchestrator configures round behavior (§4.9).
type Orchestrator struct {
	MaxRounds            int      `toml:"max_rounds"`
	Mode                 string   `toml:"mode"` // balanced, aggressive, uber_aggressive
	NoProgressRounds     int      `toml:"no_progress_rounds"`
	IdentityStuckRounds  int      `toml:"identity_stuck_rounds"`
	MaxLowQualityRounds  int      `toml:"max_low_quality_rounds"`
}

// Queue configures the product queue's retry/backoff policy (§4.10).
type Queue struct {
	MaxAttempts       int      `toml:"max_attempts"`
	BackoffBase       Duration `toml:"backoff_base"`
}

// Automation configures the SQL-backed automation job worker (§4.10).
type Automation struct {
	Driver            string   `toml:"driver"` // sqlite, postgres
	DSN               string   `toml:"dsn"`
	MaxDomainFailures int      `toml:"max_domain_failures"`
	BackoffBaseMs     int      `toml:"backoff_base_ms"`
	JobTTL            Duration `toml:"job_ttl"`
}

// Search configures provider selection (§4.11).
type Search struct {
	Provider          string `toml:"provider"` // bing, google, searxng, duckduckgo, dual, none
	BingAPIKey        string `toml:"bing_api_key"`
	GoogleAPIKey      string `toml:"google_api_key"`
	GoogleCSEID       string `toml:"google_cse_id"`
	SearXNGEndpoint   string `toml:"searxng_endpoint"`
	CSERescueOnlyMode bool   `toml:"cse_rescue_only_mode"`
}

// CategoryConf is the small set of per-category overrides a config file
// can carry without reaching into categories/<name>/*.json.
type CategoryConf struct {
	PassTargetCritical int `toml:"pass_target_critical"`
	PassTargetDefault  int `toml:"pass_target_default"`
}

func defaultConfig() *Config {
	return &Config{
		General: General{LogLevel: "info", MaxRunSeconds: Duration{5 * time.Minute}, StateDB: "state.db"},
		Planner: Planner{
			ApprovedHostBonus:   50,
			RateLimitBackoff:    Duration{15 * time.Minute},
			BlockedBackoff:      Duration{30 * time.Minute},
			ServerErrorBackoff:  Duration{6 * time.Hour},
			MaxDiscoveryPerHost: 25,
		},
		Fetch:     Fetch{Timeout: Duration{20 * time.Second}},
		Extract:   Extract{EnableLLMExtract: true},
		LLM:       LLM{Tiers: Tiers{Fast: "claude-haiku-4-5", Deep: "claude-opus-4-1", Vision: "claude-sonnet-4-5"}, MaxTokens: 4096, Temperature: 0, RequestTimeout: Duration{60 * time.Second}},
		Consensus: Consensus{WeightIdentity: 0.35, WeightAgreement: 0.4, WeightTier: 0.25, WeightConflict: 0.3},
		Gates:     Gates{IdentityCertaintyMin: 0.99, TargetCompleteness: 0.9, TargetConfidence: 0.75, WeightMinorDiffPct: 0.02},
		Orchestrator: Orchestrator{
			MaxRounds: 6, Mode: "balanced", NoProgressRounds: 2, IdentityStuckRounds: 2, MaxLowQualityRounds: 3,
		},
		Queue:      Queue{MaxAttempts: 5, BackoffBase: Duration{2 * time.Minute}},
		Automation: Automation{Driver: "sqlite", DSN: "automation.db", MaxDomainFailures: 5, BackoffBaseMs: 1000, JobTTL: Duration{24 * time.Hour}},
		Search:     Search{Provider: "dual"},
		API:        API{Bind: "127.0.0.1:8090", AuditLog: "api-audit.log"},
	}
}

// Clone returns a deep copy, used by RWMutexManager to keep readers
// isolated from concurrent writers (mirrors the teacher's Config.Clone).
func (cfg *Config) Clone() *Config {
	if cfg == nil {
		return nil
	}
	clone := *cfg
	clone.Categories = make(map[string]CategoryConf, len(cfg.Categories))
	for k, v := range cfg.Categories {
		clone.Categories[k] = v
	}
	return &clone
}

// Load reads and validates a TOML configuration file, filling in defaults
// for every field the file omits.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validating: %w", err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Search.Provider {
	case "bing", "google", "searxng", "duckduckgo", "dual", "none":
	default:
		return fmt.Errorf("search.provider %q is not one of bing|google|searxng|duckduckgo|dual|none", cfg.Search.Provider)
	}
	switch cfg.Orchestrator.Mode {
	case "balanced", "aggressive", "uber_aggressive":
	default:
		return fmt.Errorf("orchestrator.mode %q is not one of balanced|aggressive|uber_aggressive", cfg.Orchestrator.Mode)
	}
	switch cfg.Automation.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("automation.driver %q is not one of sqlite|postgres", cfg.Automation.Driver)
	}
	if cfg.Gates.TargetCompleteness <= 0 || cfg.Gates.TargetCompleteness > 1 {
		return fmt.Errorf("gates.target_completeness must be in (0,1]")
	}
	if cfg.Gates.TargetConfidence <= 0 || cfg.Gates.TargetConfidence > 1 {
		return fmt.Errorf("gates.target_confidence must be in (0,1]")
	}
	return nil
}
