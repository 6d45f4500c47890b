package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

func secondsToDuration(s int) time.Duration { return time.Duration(s) * time.Second }

// Handler processes one job of a given job_type. Returning an error
// transitions the job to failed; returning nil transitions it to done.
type Handler func(ctx context.Context, job *Job) error

// Worker consumes queued jobs on a cron schedule, honoring per-domain
// failure tracking and TTL sweeps. Grounded on the teacher's cron usage
// pattern adopted from mercator-hq-jupiter/quaero (robfig/cron/v3 driving
// a periodic tick, the same shape as cortex's own internal/scheduler tick
// loop but expressed with a real scheduling library instead of a bare
// time.Ticker since the domain stack already carries cron/v3 for this).
type Worker struct {
	Store             *Store
	Handlers          map[string]Handler
	MaxDomainFailures int
	BackoffBaseMs     int
	JobTTLSeconds     int
	Logger            *slog.Logger

	cron *cron.Cron
}

// Start schedules the worker's tick on tickSpec (a standard 5-field cron
// expression) and begins running immediately.
func (w *Worker) Start(tickSpec string) error {
	if w.Logger == nil {
		w.Logger = slog.Default()
	}
	w.cron = cron.New()
	_, err := w.cron.AddFunc(tickSpec, func() { w.tick(context.Background()) })
	if err != nil {
		return fmt.Errorf("automation: scheduling worker tick: %w", err)
	}
	w.cron.Start()
	return nil
}

// Stop halts the cron schedule, waiting for any in-flight tick to finish.
func (w *Worker) Stop() {
	if w.cron != nil {
		ctx := w.cron.Stop()
		<-ctx.Done()
	}
}

func (w *Worker) tick(ctx context.Context) {
	if n, err := w.Store.SweepExpired(ctx, secondsToDuration(w.JobTTLSeconds)); err != nil {
		w.Logger.Error("automation: ttl sweep failed", "error", err)
	} else if n > 0 {
		w.Logger.Info("automation: ttl sweep expired jobs", "count", n)
	}

	job, err := w.Store.NextQueued(ctx)
	if err != nil {
		w.Logger.Error("automation: fetching next queued job failed", "error", err)
		return
	}
	if job == nil {
		return
	}
	if err := w.RunOne(ctx, job); err != nil {
		w.Logger.Error("automation: running job failed", "job_id", job.ID, "error", err)
	}
}

// RunOne processes a single queued job: runs its handler, honoring domain
// blocks, and records the transition plus any domain failure.
func (w *Worker) RunOne(ctx context.Context, job *Job) error {
	if job.Domain != "" {
		blocked, err := w.Store.DomainBlocked(ctx, job.Domain)
		if err != nil {
			return fmt.Errorf("automation: checking domain block: %w", err)
		}
		if blocked {
			w.Logger.Warn("automation: domain blocked, leaving job queued", "domain", job.Domain, "job_id", job.ID)
			return nil
		}
	}

	if err := w.Store.Transition(ctx, job.ID, StatusRunning, "worker_claimed"); err != nil {
		return err
	}

	handler, ok := w.Handlers[job.JobType]
	if !ok {
		if err := w.Store.Transition(ctx, job.ID, StatusFailed, "worker_handler_missing"); err != nil {
			return err
		}
		w.Logger.Error("automation: no handler registered", "job_type", job.JobType, "job_id", job.ID)
		return nil
	}

	if err := handler(ctx, job); err != nil {
		if job.Domain != "" {
			if failErr := w.Store.RecordDomainFailure(ctx, job.Domain, w.MaxDomainFailures, w.BackoffBaseMs); failErr != nil {
				w.Logger.Error("automation: recording domain failure", "error", failErr)
			}
		}
		return w.Store.Transition(ctx, job.ID, StatusFailed, err.Error())
	}

	return w.Store.Transition(ctx, job.ID, StatusDone, "completed")
}
