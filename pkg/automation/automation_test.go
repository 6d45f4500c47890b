package automation

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "automation.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnqueueDeduplicatesByKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	j1, err := s.Enqueue(ctx, "fetch_product", "example.com", "dedupe-1", map[string]string{"sku": "abc"})
	if err != nil {
		t.Fatalf("Enqueue 1: %v", err)
	}
	j2, err := s.Enqueue(ctx, "fetch_product", "example.com", "dedupe-1", map[string]string{"sku": "xyz"})
	if err != nil {
		t.Fatalf("Enqueue 2: %v", err)
	}
	if j1.ID != j2.ID {
		t.Errorf("expected same job returned for duplicate dedupe_key, got %s vs %s", j1.ID, j2.ID)
	}
}

func TestTransitionRejectsInvalidMove(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job, err := s.Enqueue(ctx, "fetch_product", "example.com", "dedupe-2", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Transition(ctx, job.ID, StatusDone, "skip ahead"); err == nil {
		t.Fatal("expected queued->done to be rejected")
	}
}

func TestTransitionValidChain(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job, err := s.Enqueue(ctx, "fetch_product", "example.com", "dedupe-3", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Transition(ctx, job.ID, StatusRunning, "claimed"); err != nil {
		t.Fatalf("queued->running: %v", err)
	}
	if err := s.Transition(ctx, job.ID, StatusFailed, "timeout"); err != nil {
		t.Fatalf("running->failed: %v", err)
	}
	if err := s.Transition(ctx, job.ID, StatusQueued, "retry"); err != nil {
		t.Fatalf("failed->queued: %v", err)
	}
}

func TestRecordDomainFailureBlocksAfterThreshold(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.RecordDomainFailure(ctx, "bad.example.com", 3, 100); err != nil {
			t.Fatalf("RecordDomainFailure %d: %v", i, err)
		}
	}
	blocked, err := s.DomainBlocked(ctx, "bad.example.com")
	if err != nil {
		t.Fatalf("DomainBlocked: %v", err)
	}
	if !blocked {
		t.Error("expected domain blocked after reaching max_domain_failures")
	}
}

func TestRunOneNoHandlerFailsJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job, err := s.Enqueue(ctx, "unknown_type", "", "dedupe-4", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	w := &Worker{Store: s, Handlers: map[string]Handler{}}
	if err := w.RunOne(ctx, job); err != nil {
		t.Fatalf("RunOne: %v", err)
	}
	got, err := s.byID(ctx, job.ID)
	if err != nil {
		t.Fatalf("byID: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("expected job failed when no handler registered, got %s", got.Status)
	}
}
