package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"voxbridge/internal/logging"
	"voxbridge/internal/queue"
	"voxbridge/internal/services"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute)

	if err := store.BeginRun(ctx, "run-1", 2, started); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := store.AddOutcome(ctx, Outcome{RunID: "run-1", JobID: "j1", SourcePath: "/a.wav", Status: "completed", FromCache: true, FinishedAt: time.Now()}); err != nil {
		t.Fatalf("outcome: %v", err)
	}
	if err := store.AddOutcome(ctx, Outcome{RunID: "run-1", JobID: "j2", SourcePath: "/b.wav", Status: "failed", Reason: "no text generated", Kind: "recognition", FinishedAt: time.Now()}); err != nil {
		t.Fatalf("outcome: %v", err)
	}
	if err := store.FinishRun(ctx, Run{ID: "run-1", FinishedAt: time.Now(), Completed: 1, Failed: 1}); err != nil {
		t.Fatalf("finish: %v", err)
	}

	runs, err := store.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Completed != 1 || runs[0].Failed != 1 || runs[0].Jobs != 2 || !runs[0].Finished() {
		t.Fatalf("unexpected runs %+v", runs)
	}
	outcomes, err := store.Outcomes(ctx, "run-1")
	if err != nil {
		t.Fatalf("outcomes: %v", err)
	}
	if len(outcomes) != 2 || !outcomes[0].FromCache || outcomes[1].Reason != "no text generated" {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.BeginRun(context.Background(), "r", 1, time.Now()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	_ = first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	runs, err := second.Runs(context.Background(), 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected persisted run, got %v %v", runs, err)
	}
}

func TestSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = store.Close()

	if _, err := Open(path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestPruneRemovesOldRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.BeginRun(ctx, "old", 1, time.Now().Add(-48*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := store.AddOutcome(ctx, Outcome{RunID: "old", JobID: "j", SourcePath: "/x.wav", Status: "completed", FinishedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := store.BeginRun(ctx, "new", 1, time.Now()); err != nil {
		t.Fatal(err)
	}
	n, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("prune removed %d, %v", n, err)
	}
	outcomes, err := store.Outcomes(ctx, "old")
	if err != nil || len(outcomes) != 0 {
		t.Fatalf("expected cascade delete, got %v %v", outcomes, err)
	}
}

func TestIsBusyOnlyMatchesDriverErrors(t *testing.T) {
	tests := []error{
		nil,
		errors.New("database is locked"),
		fmt.Errorf("insert: %w", errors.New("SQLITE_BUSY")),
	}
	for _, err := range tests {
		if isBusy(err) {
			t.Fatalf("isBusy(%v) = true, want false", err)
		}
	}
}

func TestRetryOnBusyReturnsOtherErrorsImmediately(t *testing.T) {
	calls := 0
	want := errors.New("no such table")
	err := retryOnBusy(context.Background(), func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if calls != 1 {
		t.Fatalf("op called %d times, want 1", calls)
	}
}

func TestRecorderPersistsRun(t *testing.T) {
	store := openTestStore(t)
	rec := NewRecorder(store, logging.NewNop())

	rec.RunStarted("run-x", 2)
	rec.JobFinished(queue.Job{ID: "a", SourcePath: "/a.wav", Status: queue.StatusCompleted, FinishedAt: time.Now()})
	rec.JobFinished(queue.Job{ID: "b", SourcePath: "/b.wav", Status: queue.StatusFailed, FailureReason: "bad", FailureKind: services.KindRecognition, FinishedAt: time.Now()})
	rec.RunFinished(queue.Summary{RunID: "run-x", Completed: 1, Failed: 1, FinishedAt: time.Now()})

	runs, err := store.Runs(context.Background(), 1)
	if err != nil || len(runs) != 1 || runs[0].ID != "run-x" || runs[0].Failed != 1 {
		t.Fatalf("unexpected runs %+v %v", runs, err)
	}
	outcomes, err := store.Outcomes(context.Background(), "run-x")
	if err != nil || len(outcomes) != 2 || outcomes[1].Kind != "recognition" {
		t.Fatalf("unexpected outcomes %+v %v", outcomes, err)
	}

	// Outside a run there is nothing to attach an outcome to.
	rec.JobFinished(queue.Job{ID: "stray", SourcePath: "/s.wav", Status: queue.StatusCompleted, FinishedAt: time.Now()})
	outcomes, _ = store.Outcomes(context.Background(), "run-x")
	if len(outcomes) != 2 {
		t.Fatalf("stray outcome recorded: %+v", outcomes)
	}
}
