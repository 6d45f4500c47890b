package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"

	"github.com/antigravity-dev/specsheet/internal/temporal"
	"github.com/antigravity-dev/specsheet/pkg/artifact"
	"github.com/antigravity-dev/specsheet/pkg/fetch"
	"github.com/antigravity-dev/specsheet/pkg/learning"
	"github.com/antigravity-dev/specsheet/pkg/model"
	"github.com/antigravity-dev/specsheet/pkg/orchestrator"
	"github.com/antigravity-dev/specsheet/pkg/rulepack/loader"
)

// cliRoundExecutor adapts runRound to temporal.RoundExecutor so the
// durable workflow drives the exact same per-round pipeline
// run-until-complete uses in-process.
type cliRoundExecutor struct {
	logger  *slog.Logger
	pack    *loader.Pack
	fetcher fetch.Fetcher
	store   *learning.Store
	sources []model.Source
}

func (e *cliRoundExecutor) ExecuteRound(ctx context.Context, category string, roundIndex int, targetFields []string) (orchestrator.RoundSummary, error) {
	record, gateResult, err := runRound(ctx, e.logger, category, e.pack, e.fetcher, e.store, e.sources, targetFields)
	if err != nil {
		return orchestrator.RoundSummary{}, err
	}
	return orchestrator.RoundSummary{
		MissingRequiredFields:         lastRunArtifacts.out.Summary.MissingRequiredFields,
		CriticalFieldsBelowPassTarget: lastRunArtifacts.out.Summary.CriticalFieldsBelowPassTarget,
		Confidence:                    record.Quality.Confidence,
		Validated:                     gateResult.Validated,
		SourcesIdentityMatched:        record.SourceSummary.IdentityMatched,
		IdentityCertainty:             1.0,
	}, nil
}

var _ temporal.RoundExecutor = (*cliRoundExecutor)(nil)

// cmdRunTemporal drives run-until-complete's same convergence loop through
// a Temporal workflow instead of the in-process for loop: a worker is
// started in this process (so the demo doesn't need a second binary) and
// the workflow is submitted and awaited against it. This is the durable
// backend named as an option alongside the default in-process driver; it
// requires a reachable Temporal frontend (local `temporal server start-dev`
// or a real cluster).
func cmdRunTemporal(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("run-temporal", flag.ExitOnError)
	helperRoot, category, productID, brand, modelName, sku, sourcesPath, outDir := runFlags(fs)
	dbPath := fs.String("learning-db", "learning.db", "path to the host/key-path learning store")
	maxRounds := fs.Int("max-rounds", 5, "maximum reconciliation rounds before giving up")
	hostPort := fs.String("temporal-host-port", "127.0.0.1:7233", "Temporal frontend address")
	fs.Parse(args)

	if *category == "" || *sourcesPath == "" {
		return fmt.Errorf("run-temporal: -category and -sources are required")
	}
	pack, err := loader.Load(*helperRoot, *category)
	if err != nil {
		return err
	}
	urls, err := readSourceURLs(*sourcesPath)
	if err != nil {
		return err
	}
	sources := make([]model.Source, 0, len(urls))
	for _, u := range urls {
		sources = append(sources, classifySource(u))
	}

	store, err := learning.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("run-temporal: opening learning store: %w", err)
	}
	defer store.Close()

	var rules []orchestrator.FieldRuleInfo
	for _, r := range pack.FieldRules {
		rules = append(rules, orchestrator.FieldRuleInfo{
			FieldKey:      r.FieldKey,
			RequiredLevel: string(r.RequiredLevel),
			Effort:        r.Effort,
			UnknownReason: r.UnknownReasonDefault,
		})
	}

	executor := &cliRoundExecutor{
		logger:  logger,
		pack:    pack,
		fetcher: fetch.NewHTTPFetcher("specsheet-bot/1.0"),
		store:   store,
		sources: sources,
	}

	workerErrCh := make(chan error, 1)
	go func() {
		workerErrCh <- temporal.StartWorker(*hostPort, executor)
	}()
	go func() {
		if err := <-workerErrCh; err != nil {
			logger.Error("temporal worker exited", "error", err)
		}
	}()

	c, err := temporal.NewClient(*hostPort)
	if err != nil {
		return fmt.Errorf("run-temporal: dialing temporal: %w", err)
	}
	defer c.Close()

	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "convergence-" + *category + "-" + *productID,
		TaskQueue: temporal.TaskQueue,
	}, temporal.ConvergenceWorkflow, temporal.ConvergenceInput{
		Category: *category,
		Config:   orchestrator.Config{MaxRounds: *maxRounds},
		Rules:    rules,
	})
	if err != nil {
		return fmt.Errorf("run-temporal: starting workflow: %w", err)
	}

	var result temporal.ConvergenceResult
	if err := run.Get(ctx, &result); err != nil {
		return fmt.Errorf("run-temporal: workflow failed: %w", err)
	}

	record := lastRunArtifacts.out.Record
	record.ID = *productID
	record.Brand = *brand
	record.Model = *modelName
	record.SKU = *sku
	lastRunArtifacts.out.Record = record

	if err := artifact.WriteAll(fsWriter{root: *outDir}, lastRunArtifacts.out); err != nil {
		return fmt.Errorf("run-temporal: writing artifacts: %w", err)
	}
	logger.Info("run-temporal finished", "id", record.ID, "stop", result.Stop, "rounds", len(result.Rounds))
	return nil
}
