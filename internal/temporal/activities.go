package temporal

import (
	"context"

	"github.com/antigravity-dev/specsheet/pkg/orchestrator"
)

// RoundExecutor runs one extraction round and produces the summary the
// orchestrator reducer folds into its state. cmd/specsheet supplies the
// concrete implementation (its runRound pipeline); this package only
// depends on the interface so it stays free of fetch/extract/consensus
// imports.
type RoundExecutor interface {
	ExecuteRound(ctx context.Context, category string, roundIndex int, targetFields []string) (orchestrator.RoundSummary, error)
}

// Activities holds the dependencies Temporal activity methods close over.
type Activities struct {
	Executor RoundExecutor
}

// RunRoundActivity is the Temporal activity the workflow calls once per
// round; it's a thin adapter so the workflow function itself never touches
// network or disk (both non-deterministic from Temporal's point of view).
func (a *Activities) RunRoundActivity(ctx context.Context, in RunRoundInput) (orchestrator.RoundSummary, error) {
	return a.Executor.ExecuteRound(ctx, in.Category, in.RoundIndex, in.TargetFields)
}
