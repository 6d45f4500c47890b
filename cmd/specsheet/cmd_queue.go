package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/antigravity-dev/specsheet/pkg/artifact"
	"github.com/antigravity-dev/specsheet/pkg/fetch"
	"github.com/antigravity-dev/specsheet/pkg/learning"
	"github.com/antigravity-dev/specsheet/pkg/model"
	"github.com/antigravity-dev/specsheet/pkg/queue"
	"github.com/antigravity-dev/specsheet/pkg/rulepack/loader"
)

func queuePathFlag(fs *flag.FlagSet) (*string, *int, *time.Duration) {
	path := fs.String("queue", "queue.json", "path to the category's queue state document")
	maxAttempts := fs.Int("max-attempts", 5, "max retry attempts before a product is marked failed")
	backoff := fs.Duration("backoff-base", 30*time.Second, "base exponential backoff delay")
	return path, maxAttempts, backoff
}

func cmdQueueAdd(_ context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("queue-add", flag.ExitOnError)
	path, maxAttempts, backoff := queuePathFlag(fs)
	productID := fs.String("id", "", "product id to enqueue")
	priority := fs.Int("priority", 0, "queue priority, higher runs first")
	hint := fs.String("hint", "", "freeform scheduling hint")
	fs.Parse(args)

	if *productID == "" {
		return fmt.Errorf("queue-add: -id is required")
	}
	q, err := queue.Open(*path, *maxAttempts, *backoff)
	if err != nil {
		return err
	}
	if err := q.Enqueue(*productID, *priority, *hint); err != nil {
		return err
	}
	logger.Info("product enqueued", "id", *productID, "priority", *priority)
	return nil
}

func cmdQueueNext(_ context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("queue-next", flag.ExitOnError)
	path, maxAttempts, backoff := queuePathFlag(fs)
	fs.Parse(args)

	q, err := queue.Open(*path, *maxAttempts, *backoff)
	if err != nil {
		return err
	}
	p, err := q.SelectNextQueueProduct()
	if err != nil {
		return err
	}
	if p == nil {
		logger.Info("queue-next: nothing eligible")
		return nil
	}
	return json.NewEncoder(os.Stdout).Encode(p)
}

func cmdQueueStatus(_ context.Context, _ *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("queue-status", flag.ExitOnError)
	path, maxAttempts, backoff := queuePathFlag(fs)
	fs.Parse(args)

	q, err := queue.Open(*path, *maxAttempts, *backoff)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(q.Snapshot())
}

// batchRunRecord is the on-disk shape cmdBatchStart persists so a later
// batch-status invocation (a separate process) can report progress.
type batchRunRecord struct {
	BatchID  string            `json:"batch_id"`
	Category string            `json:"category"`
	Status   queue.BatchStatus `json:"status"`
	Products map[string]string `json:"products"` // product_id -> BatchProductStatus
}

func batchStatePath(dir, batchID string) string {
	return filepath.Join(dir, batchID+".batch.json")
}

func cmdBatchStart(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("batch-start", flag.ExitOnError)
	helperRoot := fs.String("helper-root", "helpers", "root directory holding per-category rule packs")
	category := fs.String("category", "", "category name")
	batchID := fs.String("batch-id", "", "batch id")
	productsDir := fs.String("products-dir", "", "directory of <product-id>.txt source-list files")
	stateDir := fs.String("state-dir", "batches", "directory to persist batch run state")
	outDir := fs.String("out", "out", "output root; each product gets its own subdirectory")
	maxRetries := fs.Int("max-retries", 2, "per-product retry budget within the batch")
	dbPath := fs.String("learning-db", "learning.db", "path to the host/key-path learning store")
	fs.Parse(args)

	if *category == "" || *batchID == "" || *productsDir == "" {
		return fmt.Errorf("batch-start: -category, -batch-id, and -products-dir are required")
	}
	entries, err := os.ReadDir(*productsDir)
	if err != nil {
		return fmt.Errorf("batch-start: reading products dir: %w", err)
	}
	var productIDs []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		productIDs = append(productIDs, e.Name()[:len(e.Name())-len(".txt")])
	}
	if len(productIDs) == 0 {
		return fmt.Errorf("batch-start: no *.txt product source lists found in %s", *productsDir)
	}

	pack, err := loader.Load(*helperRoot, *category)
	if err != nil {
		return err
	}
	store, err := learning.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("batch-start: opening learning store: %w", err)
	}
	defer store.Close()

	orch := queue.NewBatchOrchestrator()
	batch := queue.NewBatch(*batchID, productIDs, *maxRetries)
	orch.Register(batch)
	if err := orch.Start(*batchID); err != nil {
		return err
	}

	fetcher := fetch.NewHTTPFetcher("specsheet-bot/1.0")
	runner := func(productID string) error {
		urls, err := readSourceURLs(filepath.Join(*productsDir, productID+".txt"))
		if err != nil {
			return err
		}
		sources := make([]model.Source, 0, len(urls))
		for _, u := range urls {
			sources = append(sources, classifySource(u))
		}
		record, gateResult, err := runRound(ctx, logger, *category, pack, fetcher, store, sources, nil)
		if err != nil {
			return err
		}
		record.ID = productID
		lastRunArtifacts.out.Record = record
		if err := artifact.WriteAll(fsWriter{root: filepath.Join(*outDir, productID)}, lastRunArtifacts.out); err != nil {
			return err
		}
		if !gateResult.Validated {
			return fmt.Errorf("product %s did not validate: %s", productID, gateResult.ValidatedReason)
		}
		return nil
	}

	if err := os.MkdirAll(*stateDir, 0o755); err != nil {
		return err
	}
	for {
		pid, err := orch.RunNextProduct(*batchID, runner)
		if err != nil {
			return err
		}
		if pid == "" {
			break
		}
		logger.Info("batch product complete", "batch", *batchID, "product", pid)
		if err := persistBatchState(*stateDir, *category, batch); err != nil {
			logger.Warn("batch state persist failed", "error", err)
		}
	}
	return persistBatchState(*stateDir, *category, batch)
}

func cmdBatchStatus(_ context.Context, _ *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("batch-status", flag.ExitOnError)
	batchID := fs.String("batch-id", "", "batch id")
	stateDir := fs.String("state-dir", "batches", "directory batch run state was persisted to")
	fs.Parse(args)

	if *batchID == "" {
		return fmt.Errorf("batch-status: -batch-id is required")
	}
	raw, err := os.ReadFile(batchStatePath(*stateDir, *batchID))
	if err != nil {
		return fmt.Errorf("batch-status: %w", err)
	}
	var rec batchRunRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(rec)
}

func persistBatchState(stateDir, category string, batch *queue.Batch) error {
	rec := batchRunRecord{BatchID: batch.ID, Category: category, Status: batch.Status, Products: map[string]string{}}
	for pid, p := range batch.Products {
		rec.Products[pid] = string(p.Status)
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(batchStatePath(stateDir, batch.ID), raw, 0o644)
}
