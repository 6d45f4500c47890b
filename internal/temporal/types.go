// Package temporal adapts the teacher's Temporal-backed agent workflow
// into an optional durable backend for cmd/specsheet's run-until-complete
// convergence loop: the same round-driver logic pkg/orchestrator runs
// in-process, but as a workflow whose history survives a worker restart
// mid-convergence.
package temporal

import "github.com/antigravity-dev/specsheet/pkg/orchestrator"

// ConvergenceInput is the workflow's input: everything DeriveRoundConfig
// and Step need, passed up front so the workflow function stays
// deterministic (no reads of ambient config inside the workflow).
type ConvergenceInput struct {
	Category string
	Config   orchestrator.Config
	Rules    []orchestrator.FieldRuleInfo
}

// ConvergenceResult is the workflow's terminal output.
type ConvergenceResult struct {
	Stop   orchestrator.StopCondition
	Rounds []orchestrator.RoundSummary
}

// RunRoundInput is the activity's input for one round.
type RunRoundInput struct {
	Category     string
	RoundIndex   int
	TargetFields []string
}
