// Package orchestrator drives rounds until one of the StopCondition values
// fires (complete, budget or search exhausted, identity stuck, no progress,
// repeated low quality, or max rounds) — as a pure reducer over state, not a
// coroutine, so every stop condition is testable by driving the reducer
// manually (per the "coroutine-style control flow" design note).
package orchestrator

import "sort"

// StopCondition is the closed set of terminal reasons a run can stop on.
type StopCondition string

const (
	StopNone                      StopCondition = ""
	StopComplete                  StopCondition = "complete"
	StopBudgetExhausted           StopCondition = "budget_exhausted"
	StopMaxRoundsReached          StopCondition = "max_rounds_reached"
	StopIdentityGateStuck         StopCondition = "identity_gate_stuck"
	StopNoProgress                StopCondition = "no_progress"
	StopRepeatedLowQuality        StopCondition = "repeated_low_quality"
	StopRequiredSearchExhausted   StopCondition = "required_search_exhausted_no_new_urls_or_fields"
)

// Mode is the closed set of aggressiveness modes.
type Mode string

const (
	ModeBalanced       Mode = "balanced"
	ModeAggressive     Mode = "aggressive"
	ModeUberAggressive Mode = "uber_aggressive"
)

// RoundConfig is the derived configuration for one round.
type RoundConfig struct {
	RoundIndex        int
	DiscoveryEnabled  bool
	SearchProvider    string
	MaxLLMCalls       int
	URLCap            int
	TargetFields      []string
	EscalatedFields   []string
}

// RoundSummary is the object a round produces — the reducer's output,
// validated (warn only) against a schema by the caller.
type RoundSummary struct {
	MissingRequiredFields         []string
	CriticalFieldsBelowPassTarget []string
	Confidence                    float64
	Validated                     bool
	SourcesIdentityMatched        int
	IdentityCertainty             float64
	NewURLsFound                  int
	Contradictions                int
}

// FieldRuleInfo is the slice of a field rule the target-field selector
// needs.
type FieldRuleInfo struct {
	FieldKey        string
	RequiredLevel   string // required, critical, expected, editorial, commerce, optional
	Effort          int
	AIMaxCalls      int
	AICallsUsed     int
	UnknownReason   string
}

// Config is the base configuration driving round derivation and stop
// conditions, sourced from pkg/config.Orchestrator.
type Config struct {
	MaxRounds           int
	Mode                Mode
	NoProgressRounds    int
	IdentityStuckRounds int
	MaxLowQualityRounds int
}

// State accumulates across rounds; the orchestrator loop is `state,
// roundConfig -> roundResult` folded back into state.
type State struct {
	Rounds                []RoundSummary
	NoProgressStreak      int
	IdentityStuckStreak   int
	LowQualityStreak      int
	ExpectedRetryFired    bool
	EscalatedLastRound    map[string]bool
}

// NewState returns a zeroed orchestrator state ready for round 0.
func NewState() State {
	return State{EscalatedLastRound: make(map[string]bool)}
}

// DeriveRoundConfig computes round N's configuration from the base
// config and the previous round's summary (nil for round 0).
func DeriveRoundConfig(cfg Config, roundIndex int, prev *RoundSummary, rules []FieldRuleInfo) RoundConfig {
	if roundIndex == 0 {
		return RoundConfig{
			RoundIndex:       0,
			DiscoveryEnabled: false,
			SearchProvider:   "none",
			MaxLLMCalls:      2,
			URLCap:           3,
			TargetFields:     requiredAndCriticalFields(rules),
		}
	}

	availabilityEffort, contractEffort := effortScores(rules)
	urlCap := 5 + availabilityEffort/3
	llmCalls := 3 + contractEffort/4

	switch cfg.Mode {
	case ModeAggressive:
		urlCap *= 2
		llmCalls *= 2
	case ModeUberAggressive:
		urlCap *= 3
		llmCalls *= 3
	}

	targets := selectTargetFields(prev, rules, cfg.Mode)

	return RoundConfig{
		RoundIndex:       roundIndex,
		DiscoveryEnabled: true,
		SearchProvider:   "dual",
		MaxLLMCalls:      llmCalls,
		URLCap:           urlCap,
		TargetFields:     targets,
	}
}

func requiredAndCriticalFields(rules []FieldRuleInfo) []string {
	var out []string
	for _, r := range rules {
		if r.RequiredLevel == "required" || r.RequiredLevel == "critical" {
			out = append(out, r.FieldKey)
		}
	}
	sort.Strings(out)
	return out
}

func effortScores(rules []FieldRuleInfo) (availability, contract int) {
	for _, r := range rules {
		switch r.RequiredLevel {
		case "expected":
			availability++
		case "commerce", "optional":
			availability += 0
		}
		weight := 1
		switch r.RequiredLevel {
		case "critical":
			weight = 3
		case "required":
			weight = 2
		case "expected":
			weight = 1
		}
		contract += r.Effort * weight
	}
	return availability, contract
}

// selectTargetFields implements §4.9's target-field selection: missing
// required ∪ critical-below-target, falling back to required ∪ critical
// baseline when empty, widened in aggressive modes, excluding
// AI-budget-exhausted fields. Uncertain fields from constraint analysis
// are not added: RoundSummary carries no such list.
func selectTargetFields(prev *RoundSummary, rules []FieldRuleInfo, mode Mode) []string {
	set := make(map[string]bool)
	if prev != nil {
		for _, f := range prev.MissingRequiredFields {
			set[f] = true
		}
		for _, f := range prev.CriticalFieldsBelowPassTarget {
			set[f] = true
		}
	}

	if len(set) == 0 {
		for _, r := range rules {
			if r.RequiredLevel == "required" || r.RequiredLevel == "critical" {
				set[r.FieldKey] = true
			}
		}
	}

	if mode == ModeAggressive || mode == ModeUberAggressive {
		for _, r := range rules {
			if r.RequiredLevel != "editorial" && r.RequiredLevel != "optional" {
				set[r.FieldKey] = true
			}
		}
	}

	budgetByField := make(map[string]FieldRuleInfo, len(rules))
	for _, r := range rules {
		budgetByField[r.FieldKey] = r
	}

	var out []string
	for f := range set {
		r, ok := budgetByField[f]
		if ok && r.AIMaxCalls > 0 && r.AICallsUsed >= r.AIMaxCalls {
			continue
		}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// EscalatedFields returns fields targeted last round that remain missing
// this round — candidates for a deeper LLM tier.
func EscalatedFields(lastTargets []string, stillMissing map[string]bool) []string {
	var out []string
	for _, f := range lastTargets {
		if stillMissing[f] {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// Improved reports the progress-delta rule: newly validated,
// missing_required down, critical down, contradictions down, or
// confidence up by more than 0.01.
func Improved(prev, cur RoundSummary) bool {
	if !prev.Validated && cur.Validated {
		return true
	}
	if len(cur.MissingRequiredFields) < len(prev.MissingRequiredFields) {
		return true
	}
	if len(cur.CriticalFieldsBelowPassTarget) < len(prev.CriticalFieldsBelowPassTarget) {
		return true
	}
	if cur.Contradictions < prev.Contradictions {
		return true
	}
	if cur.Confidence-prev.Confidence > 0.01 {
		return true
	}
	return false
}

// Step folds one round's summary into state and returns the updated
// state plus a stop condition (StopNone if the run should continue).
func Step(cfg Config, state State, roundIndex int, summary RoundSummary, budgetBlocked bool, identityCertaintyMin float64) (State, StopCondition) {
	state.Rounds = append(state.Rounds, summary)

	if summary.Validated && len(summary.MissingRequiredFields) == 0 && len(summary.CriticalFieldsBelowPassTarget) == 0 {
		return state, StopComplete
	}

	if budgetBlocked && roundIndex >= 1 {
		return state, StopBudgetExhausted
	}

	if roundIndex >= cfg.MaxRounds {
		return state, StopMaxRoundsReached
	}

	if summary.IdentityCertainty < identityCertaintyMin {
		improvement := 1.0
		if len(state.Rounds) >= 2 {
			prev := state.Rounds[len(state.Rounds)-2]
			improvement = summary.IdentityCertainty - prev.IdentityCertainty
		}
		if improvement < 0.05 {
			state.IdentityStuckStreak++
		} else {
			state.IdentityStuckStreak = 0
		}
		if state.IdentityStuckStreak >= cfg.IdentityStuckRounds {
			return state, StopIdentityGateStuck
		}
	} else {
		state.IdentityStuckStreak = 0
	}

	if len(state.Rounds) >= 2 {
		prev := state.Rounds[len(state.Rounds)-2]
		if Improved(prev, summary) {
			state.NoProgressStreak = 0
		} else {
			state.NoProgressStreak++
		}
		if state.NoProgressStreak >= cfg.NoProgressRounds {
			return state, StopNoProgress
		}
	}

	lowQuality := summary.SourcesIdentityMatched == 0 || summary.Confidence < 0.3
	if lowQuality {
		state.LowQualityStreak++
	} else {
		state.LowQualityStreak = 0
	}
	if state.LowQualityStreak >= cfg.MaxLowQualityRounds {
		return state, StopRepeatedLowQuality
	}

	if summary.NewURLsFound == 0 && len(summary.MissingRequiredFields) > 0 && roundIndex >= 1 {
		return state, StopRequiredSearchExhausted
	}

	return state, StopNone
}

// ExpectedFieldRetryOverride implements §4.9's forced-extra-round rule:
// if the loop wants to stop while any required-expected field's
// unknown_reason is not_found_after_search (not budget/identity/blocked)
// and the override hasn't fired yet, force one more round targeting
// exactly those fields.
func ExpectedFieldRetryOverride(state *State, wantsToStop bool, rules []FieldRuleInfo) (fields []string, override bool) {
	if !wantsToStop || state.ExpectedRetryFired {
		return nil, false
	}
	for _, r := range rules {
		if r.RequiredLevel == "required" && r.UnknownReason == "not_found_after_search" {
			fields = append(fields, r.FieldKey)
		}
	}
	if len(fields) == 0 {
		return nil, false
	}
	sort.Strings(fields)
	state.ExpectedRetryFired = true
	return fields, true
}
