package temporal

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/antigravity-dev/specsheet/pkg/orchestrator"
)

// ConvergenceWorkflow drives pkg/orchestrator's round reducer as a durable
// Temporal workflow: each round's actual fetch/extract/consensus/gate work
// runs as an activity (so a worker crash mid-round just replays the
// activity, not the whole convergence run), while the stop-condition logic
// itself stays in the workflow function so it can be replayed deterministically
// from history.
func ConvergenceWorkflow(ctx workflow.Context, in ConvergenceInput) (ConvergenceResult, error) {
	activityOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOpts)

	var acts *Activities
	state := orchestrator.NewState()
	var prev *orchestrator.RoundSummary

	for roundIndex := 0; ; roundIndex++ {
		roundCfg := orchestrator.DeriveRoundConfig(in.Config, roundIndex, prev, in.Rules)

		var summary orchestrator.RoundSummary
		err := workflow.ExecuteActivity(ctx, acts.RunRoundActivity, RunRoundInput{
			Category:     in.Category,
			RoundIndex:   roundIndex,
			TargetFields: roundCfg.TargetFields,
		}).Get(ctx, &summary)
		if err != nil {
			return ConvergenceResult{Rounds: state.Rounds}, err
		}

		var stop orchestrator.StopCondition
		state, stop = orchestrator.Step(in.Config, state, roundIndex, summary, false, 0.5)
		prevCopy := summary
		prev = &prevCopy

		if stop != orchestrator.StopNone {
			return ConvergenceResult{Stop: stop, Rounds: state.Rounds}, nil
		}
	}
}
