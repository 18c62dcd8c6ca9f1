package history

import (
	"context"
	"log/slog"
	"time"

	"voxbridge/internal/logging"
	"voxbridge/internal/queue"
)

const writeTimeout = 5 * time.Second

// Recorder writes queue events to the store. Its methods run on the loop
// goroutine, one run at a time. Write failures are logged and never
// interrupt the run.
type Recorder struct {
	queue.NopObserver

	store  *Store
	logger *slog.Logger
	runID  string
}

// NewRecorder adapts store to the queue observer interface.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logging.NewComponentLogger(logger, "history")}
}

func (r *Recorder) RunStarted(runID string, jobs int) {
	r.runID = runID
	r.write("run start", func(ctx context.Context) error {
		return r.store.BeginRun(ctx, runID, jobs, time.Now())
	})
}

func (r *Recorder) JobFinished(job queue.Job) {
	if r.runID == "" {
		return
	}
	r.write("job outcome", func(ctx context.Context) error {
		return r.store.AddOutcome(ctx, Outcome{
			RunID:           r.runID,
			JobID:           job.ID,
			SourcePath:      job.SourcePath,
			Status:          string(job.Status),
			Reason:          job.FailureReason,
			Kind:            string(job.FailureKind),
			FromCache:       job.FromCache,
			DurationSeconds: job.DurationSeconds,
			FinishedAt:      job.FinishedAt,
		})
	})
}

func (r *Recorder) RunFinished(s queue.Summary) {
	r.write("run finish", func(ctx context.Context) error {
		return r.store.FinishRun(ctx, Run{
			ID:           s.RunID,
			FinishedAt:   s.FinishedAt,
			Completed:    s.Completed,
			Failed:       s.Failed,
			Cancelled:    s.Cancelled,
			WasCancelled: s.WasCancelled,
		})
	})
	r.runID = ""
}

func (r *Recorder) write(what string, op func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := op(ctx); err != nil {
		logging.WarnWithContext(r.logger, "history write failed", "history_write_failed",
			logging.String("record", what),
			logging.String(logging.FieldErrorHint, "check paths.history_db"),
			logging.String(logging.FieldImpact, "run history incomplete"),
			logging.Error(err))
	}
}
