package temporal

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// TaskQueue is the queue name the convergence worker and workflow client
// agree on.
const TaskQueue = "specsheet-convergence"

// StartWorker connects to Temporal and runs the convergence task queue
// worker until the process receives an interrupt signal
// (worker.InterruptCh). Blocks.
func StartWorker(hostPort string, executor RoundExecutor) error {
	c, err := client.Dial(client.Options{HostPort: hostPort})
	if err != nil {
		return fmt.Errorf("temporal: dialing %s: %w", hostPort, err)
	}
	defer c.Close()

	w := worker.New(c, TaskQueue, worker.Options{})

	acts := &Activities{Executor: executor}
	w.RegisterWorkflow(ConvergenceWorkflow)
	w.RegisterActivity(acts.RunRoundActivity)

	return w.Run(worker.InterruptCh())
}

// NewClient dials a Temporal frontend for workflow submission, separate
// from StartWorker's own client so a caller can submit work without also
// hosting a worker in the same process (though cmd/specsheet's demo runner
// does both).
func NewClient(hostPort string) (client.Client, error) {
	return client.Dial(client.Options{HostPort: hostPort})
}
