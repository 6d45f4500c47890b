package temporal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/antigravity-dev/specsheet/pkg/orchestrator"
)

// stubExecutor is a RoundExecutor mock target: the activity method value
// closes over it the same way the real Activities.Executor does, so
// env.OnActivity can intercept RunRoundActivity without a live Temporal
// worker.
type stubExecutor struct{}

func (stubExecutor) ExecuteRound(ctx context.Context, category string, roundIndex int, targetFields []string) (orchestrator.RoundSummary, error) {
	return orchestrator.RoundSummary{}, nil
}

func TestConvergenceWorkflow_StopsOnMaxRounds(t *testing.T) {
	s := testsuite.WorkflowTestSuite{}
	env := s.NewTestWorkflowEnvironment()

	a := &Activities{Executor: stubExecutor{}}
	env.OnActivity(a.RunRoundActivity, mock.Anything, mock.Anything).Return(orchestrator.RoundSummary{
		Validated:              false,
		SourcesIdentityMatched: 1,
		Confidence:             0.5,
		IdentityCertainty:      0.9,
	}, nil)

	env.ExecuteWorkflow(ConvergenceWorkflow, ConvergenceInput{
		Category: "speakers",
		Config: orchestrator.Config{
			MaxRounds:           3,
			NoProgressRounds:    10,
			IdentityStuckRounds: 10,
			MaxLowQualityRounds: 10,
		},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ConvergenceResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, orchestrator.StopMaxRoundsReached, result.Stop)
	require.Len(t, result.Rounds, 4)
}

func TestConvergenceWorkflow_StopsOnComplete(t *testing.T) {
	s := testsuite.WorkflowTestSuite{}
	env := s.NewTestWorkflowEnvironment()

	a := &Activities{Executor: stubExecutor{}}
	env.OnActivity(a.RunRoundActivity, mock.Anything, mock.Anything).Return(orchestrator.RoundSummary{
		Validated:              true,
		SourcesIdentityMatched: 2,
		IdentityCertainty:      0.9,
	}, nil)

	env.ExecuteWorkflow(ConvergenceWorkflow, ConvergenceInput{
		Category: "speakers",
		Config:   orchestrator.Config{MaxRounds: 5},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ConvergenceResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, orchestrator.StopComplete, result.Stop)
	require.Len(t, result.Rounds, 1)
}

func TestRunRoundActivity_DelegatesToExecutor(t *testing.T) {
	want := orchestrator.RoundSummary{Validated: true}
	a := &Activities{Executor: fixedExecutor{summary: want}}

	got, err := a.RunRoundActivity(context.Background(), RunRoundInput{
		Category:   "speakers",
		RoundIndex: 0,
	})
	require.NoError(t, err)
	require.Equal(t, want, got)
}

type fixedExecutor struct {
	summary orchestrator.RoundSummary
}

func (f fixedExecutor) ExecuteRound(ctx context.Context, category string, roundIndex int, targetFields []string) (orchestrator.RoundSummary, error) {
	return f.summary, nil
}
