package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/flock"

	"voxbridge/internal/history"
	"voxbridge/internal/logging"
	"voxbridge/internal/notifications"
	"voxbridge/internal/queue"
	"voxbridge/internal/services"
	"voxbridge/internal/statusapi"
)

// ErrBatchLocked is returned when another process holds the batch lock.
var ErrBatchLocked = errors.New("another batch run is in progress")

// BatchRequest describes one queued run.
type BatchRequest struct {
	Paths    []string
	EngineID string
	// Observers receive queue events in addition to the built-in transcript
	// writer, history recorder, and notifier.
	Observers []queue.Observer
}

// BatchResult reports how a run ended.
type BatchResult struct {
	Summary queue.Summary
	// Remaining lists jobs left queued after a cancellation.
	Remaining []queue.Job
	// Transcripts maps job id to the written transcript path.
	Transcripts map[string]string
	// EnqueueErr carries the paths rejected while queueing, such as
	// duplicates. Accepted paths still ran.
	EnqueueErr error
}

type finishObserver struct {
	queue.NopObserver
	done chan queue.Summary
}

func (f finishObserver) RunFinished(s queue.Summary) { f.done <- s }

// Batch enqueues paths and runs the queue to completion. Cancelling ctx
// requests a cooperative stop: the in-flight job settles, unstarted jobs are
// returned in Remaining. Only one batch may run per lock file.
func (a *App) Batch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	lock, err := a.acquireLock()
	if err != nil {
		return BatchResult{}, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			a.logger.Warn("failed to release batch lock", logging.Error(err))
		}
	}()

	engineID := strings.TrimSpace(req.EngineID)
	if engineID == "" {
		engineID = a.cfg.Engines.DefaultRecognizer
	}
	if _, err := a.engines.Lookup(engineID); err != nil {
		return BatchResult{}, err
	}

	orch := queue.New(queue.Options{
		Session:  a.sessionOptions(engineID),
		Delay:    a.cfg.InterItemDelay(),
		Failures: a.failures,
		Logger:   a.logger,
	})
	writer := queue.NewTranscriptWriter(a.cfg.Paths.OutputDir, a.logger)
	orch.Subscribe(writer)
	if store := a.openHistory(); store != nil {
		defer store.Close()
		orch.Subscribe(history.NewRecorder(store, a.logger))
	}
	orch.Subscribe(notifications.NewQueueNotifier(a.notifier, a.logger))
	for _, obs := range req.Observers {
		orch.Subscribe(obs)
	}
	finished := finishObserver{done: make(chan queue.Summary, 1)}
	orch.Subscribe(finished)

	jobs, enqueueErr := orch.Enqueue(req.Paths...)
	if len(jobs) == 0 {
		if enqueueErr == nil {
			enqueueErr = queue.ErrEmpty
		}
		return BatchResult{EnqueueErr: enqueueErr}, services.Wrap(services.ErrValidation, "app", "batch", "nothing to process", enqueueErr)
	}

	serverCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()
	server := statusapi.New(statusapi.Options{
		Bind:    a.cfg.Paths.StatusBind,
		Queue:   orch,
		Engines: a.engines,
		Load:    a.dispatcher,
		Metrics: a.cfg.Metrics.Enabled,
		Logger:  a.logger,
	})
	if err := server.Start(serverCtx); err != nil {
		logging.WarnWithContext(a.logger, "status api unavailable", "status_api_start_failed",
			logging.String(logging.FieldErrorHint, "check paths.status_bind"),
			logging.Error(err))
	}

	started := make(chan error, 1)
	runCtx := context.WithoutCancel(ctx)
	a.loop.Post(func() {
		err := orch.Run(runCtx)
		if err == nil && ctx.Err() != nil {
			orch.Cancel()
		}
		started <- err
	})
	if err := <-started; err != nil {
		return BatchResult{EnqueueErr: enqueueErr}, err
	}

	var summary queue.Summary
	select {
	case summary = <-finished.done:
	case <-ctx.Done():
		a.logger.Info("batch cancellation requested", logging.String(logging.FieldEventType, "batch_cancel"))
		a.loop.Post(func() { orch.Cancel() })
		summary = <-finished.done
	}

	result := BatchResult{
		Summary:     summary,
		Remaining:   orch.Snapshot().Jobs,
		Transcripts: make(map[string]string),
		EnqueueErr:  enqueueErr,
	}
	for _, job := range jobs {
		if path, ok := writer.Written(job.ID); ok {
			result.Transcripts[job.ID] = path
		}
	}
	return result, nil
}

func (a *App) acquireLock() (*flock.Flock, error) {
	lock := flock.New(a.cfg.Paths.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrBatchLocked, a.cfg.Paths.LockPath)
	}
	return lock, nil
}

func (a *App) openHistory() *history.Store {
	if strings.TrimSpace(a.cfg.Paths.HistoryDB) == "" {
		return nil
	}
	store, err := history.Open(a.cfg.Paths.HistoryDB)
	if err != nil {
		logging.WarnWithContext(a.logger, "run history disabled", "history_open_failed",
			logging.String(logging.FieldErrorHint, "check paths.history_db or delete the database"),
			logging.String(logging.FieldImpact, "this run is not recorded"),
			logging.Error(err))
		return nil
	}
	return store
}
