package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"voxbridge/internal/dispatch"
	"voxbridge/internal/logging"
	"voxbridge/internal/metrics"
	"voxbridge/internal/services"
	"voxbridge/internal/session"
)

var (
	// ErrRunning is returned by Remove and Clear while a run is active.
	ErrRunning = errors.New("queue is running")
	// ErrAlreadyRunning is returned by Run while a run is active.
	ErrAlreadyRunning = errors.New("queue is already running")
	// ErrEmpty is returned by Run when there is nothing to process.
	ErrEmpty = errors.New("queue is empty")
)

// FailureRecorder persists one line per failed job.
type FailureRecorder interface {
	Record(sourcePath, message string) error
}

// Options configures an Orchestrator.
type Options struct {
	Session  session.Options
	Delay    time.Duration
	Failures FailureRecorder
	Logger   *slog.Logger
}

// Orchestrator is the single owner of the job queue.
type Orchestrator struct {
	opts   Options
	loop   *dispatch.Loop
	logger *slog.Logger

	mu              sync.Mutex
	jobs            []*Job
	running         bool
	cancelRequested bool
	failures        []Failure
	runID           string
	runStarted      time.Time
	completed       int
	failed          int
	cancelled       int
	current         *session.Session
	stopDelay       func() bool
	ctx             context.Context

	observers []Observer
}

// New builds an idle orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		opts:   opts,
		loop:   opts.Session.Dispatcher.Loop(),
		logger: logging.NewComponentLogger(opts.Logger, "queue"),
	}
}

// Subscribe registers an observer. Call before Run.
func (o *Orchestrator) Subscribe(obs Observer) {
	if obs == nil {
		return
	}
	o.mu.Lock()
	o.observers = append(o.observers, obs)
	o.mu.Unlock()
}

// Enqueue appends jobs for paths. It is allowed while idle or running. Paths
// already queued are rejected with a validation error; the others are still
// added and returned.
func (o *Orchestrator) Enqueue(paths ...string) ([]Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	seen := make(map[string]struct{}, len(o.jobs))
	for _, job := range o.jobs {
		seen[job.SourcePath] = struct{}{}
	}
	var (
		created []Job
		errs    []error
	)
	for _, raw := range paths {
		abs, err := filepath.Abs(raw)
		if err != nil {
			errs = append(errs, services.Wrap(services.ErrValidation, "queue", "enqueue", raw, err))
			continue
		}
		if _, dup := seen[abs]; dup {
			errs = append(errs, services.Wrap(services.ErrValidation, "queue", "enqueue",
				fmt.Sprintf("file already in queue: %s", abs), nil))
			o.logger.Warn("duplicate enqueue ignored",
				logging.String(logging.FieldEventType, "queue_duplicate"),
				logging.String(logging.FieldErrorHint, "the file is already queued"),
				logging.String("source", abs))
			continue
		}
		seen[abs] = struct{}{}
		job := &Job{
			ID:         uuid.NewString(),
			SourcePath: abs,
			Status:     StatusPending,
			EnqueuedAt: time.Now(),
		}
		if info, err := os.Stat(abs); err == nil {
			job.FileSizeBytes = info.Size()
		}
		o.jobs = append(o.jobs, job)
		created = append(created, *job)
		o.logger.Info("job enqueued",
			logging.String(logging.FieldJobID, job.ID),
			logging.String("source", abs),
			logging.Int("queued", len(o.jobs)))
	}
	return created, errors.Join(errs...)
}

// Remove deletes the job at index. Idle only.
func (o *Orchestrator) Remove(index int) (Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return Job{}, ErrRunning
	}
	if index < 0 || index >= len(o.jobs) {
		return Job{}, services.Wrap(services.ErrValidation, "queue", "remove",
			fmt.Sprintf("index %d out of range (queue has %d jobs)", index, len(o.jobs)), nil)
	}
	job := *o.jobs[index]
	o.jobs = append(o.jobs[:index], o.jobs[index+1:]...)
	o.logger.Info("job removed", logging.String(logging.FieldJobID, job.ID), logging.String("source", job.SourcePath))
	return job, nil
}

// Clear drops every job and returns how many were removed. Idle only.
func (o *Orchestrator) Clear() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return 0, ErrRunning
	}
	n := len(o.jobs)
	o.jobs = nil
	o.logger.Info("queue cleared", logging.Int("removed", n))
	return n, nil
}

// Run starts processing from the head of the queue. It returns immediately;
// progress arrives through observers. Loop goroutine only.
func (o *Orchestrator) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	if len(o.jobs) == 0 {
		o.mu.Unlock()
		return ErrEmpty
	}
	o.running = true
	o.cancelRequested = false
	o.failures = nil
	o.completed, o.failed, o.cancelled = 0, 0, 0
	o.runID = uuid.NewString()
	o.runStarted = time.Now()
	o.ctx = services.WithRequestID(ctx, o.runID)
	count := len(o.jobs)
	runID := o.runID
	observers := o.observers
	o.mu.Unlock()

	o.logger.Info("queue run started",
		logging.String(logging.FieldEventType, "queue_run_started"),
		logging.String(logging.FieldCorrelationID, runID),
		logging.Int("jobs", count))
	for _, obs := range observers {
		obs.RunStarted(runID, count)
	}
	o.advance()
	return nil
}

// Cancel stops the run after the in-flight job settles. Jobs not yet started
// stay queued. It reports whether a run was active. Loop goroutine only.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	if !o.running || o.cancelRequested {
		active := o.running
		o.mu.Unlock()
		return active
	}
	o.cancelRequested = true
	current := o.current
	stop := o.stopDelay
	o.mu.Unlock()

	o.logger.Info("queue cancel requested", logging.String(logging.FieldEventType, "queue_cancel"))
	if current != nil {
		current.Cancel()
	}
	if stop != nil && stop() {
		// The pacing timer had not fired; finish without waiting it out.
		o.loop.Post(o.advance)
	}
	return true
}

// Running reports whether a run is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Snapshot returns a copy of the queue state. Safe from any goroutine.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := Snapshot{
		RunID:           o.runID,
		Running:         o.running,
		CancelRequested: o.cancelRequested,
		Jobs:            make([]Job, 0, len(o.jobs)),
		Failures:        append([]Failure(nil), o.failures...),
	}
	for _, job := range o.jobs {
		snap.Jobs = append(snap.Jobs, *job)
	}
	return snap
}

// advance starts the head job or finishes the run.
func (o *Orchestrator) advance() {
	o.mu.Lock()
	o.stopDelay = nil
	if !o.running {
		o.mu.Unlock()
		return
	}
	if o.cancelRequested || len(o.jobs) == 0 {
		o.mu.Unlock()
		o.finish()
		return
	}
	head := o.jobs[0]
	head.Status = StatusConverting
	head.StartedAt = time.Now()
	sess := session.New(o.opts.Session, head.ID, head.SourcePath)
	o.current = sess
	job := *head
	ctx := o.ctx
	observers := o.observers
	o.mu.Unlock()

	for _, obs := range observers {
		obs.JobStarted(job)
	}
	_ = sess.Start(ctx, session.Callbacks{
		OnProgress: func(msg string) {
			for _, obs := range observers {
				obs.Progress(job, msg)
			}
		},
		OnDone: o.onJobDone,
	})
}

func (o *Orchestrator) onJobDone(out session.Outcome) {
	o.mu.Lock()
	if len(o.jobs) == 0 {
		o.mu.Unlock()
		return
	}
	head := o.jobs[0]
	o.jobs = o.jobs[1:]
	o.current = nil
	head.FinishedAt = time.Now()
	head.FileSizeBytes = max(head.FileSizeBytes, out.SizeBytes)
	head.DurationSeconds = out.Duration.Seconds()

	var failure *Failure
	switch out.State {
	case session.StateCompleted:
		head.Status = StatusCompleted
		head.Result = out.Text
		head.FromCache = out.FromCache
		o.completed++
	case session.StateCancelled:
		head.Status = StatusCancelled
		o.cancelled++
	default:
		head.Status = StatusFailed
		head.FailureReason = out.Reason()
		head.FailureKind = services.Classify(out.Err)
		o.failed++
		failure = &Failure{Job: *head, Reason: head.FailureReason, At: head.FinishedAt}
		o.failures = append(o.failures, *failure)
	}
	job := *head
	observers := o.observers
	o.mu.Unlock()

	metrics.IncJob(string(job.Status), string(job.FailureKind))
	if failure != nil {
		o.recordFailure(job)
	}
	for _, obs := range observers {
		obs.JobFinished(job)
	}

	if job.Status == StatusCancelled {
		o.advance()
		return
	}
	o.scheduleNext()
}

// scheduleNext waits the inter-item delay after every outcome, then advances.
func (o *Orchestrator) scheduleNext() {
	if o.opts.Delay <= 0 {
		o.loop.Post(o.advance)
		return
	}
	stop := o.loop.After(o.opts.Delay, o.advance)
	o.mu.Lock()
	o.stopDelay = stop
	o.mu.Unlock()
}

func (o *Orchestrator) recordFailure(job Job) {
	logger := o.logger.With(logging.String(logging.FieldJobID, job.ID))
	logging.WarnWithContext(logger, "job failed", "queue_job_failed",
		logging.String("source", job.SourcePath),
		logging.String("reason", job.FailureReason),
		logging.String("kind", string(job.FailureKind)),
		logging.String(logging.FieldImpact, "job skipped; batch continues"))
	if o.opts.Failures == nil {
		return
	}
	if err := o.opts.Failures.Record(job.SourcePath, job.FailureReason); err != nil {
		logging.WarnWithContext(logger, "failure log write failed", "failure_log_write_failed",
			logging.String(logging.FieldErrorHint, "check paths.failure_log permissions"),
			logging.Error(err))
	}
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	now := time.Now()
	summary := Summary{
		RunID:        o.runID,
		Completed:    o.completed,
		Failed:       o.failed,
		Cancelled:    o.cancelled,
		Failures:     append([]Failure(nil), o.failures...),
		StartedAt:    o.runStarted,
		FinishedAt:   now,
		Elapsed:      now.Sub(o.runStarted),
		WasCancelled: o.cancelRequested,
		Remaining:    len(o.jobs),
	}
	for _, job := range o.jobs {
		job.Status = StatusPending
	}
	o.running = false
	o.cancelRequested = false
	o.current = nil
	observers := o.observers
	o.mu.Unlock()

	metrics.IncRun(summary.WasCancelled)
	o.logger.Info("queue run finished",
		logging.String(logging.FieldEventType, "queue_run_finished"),
		logging.String(logging.FieldCorrelationID, summary.RunID),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("cancelled", summary.Cancelled),
		logging.Int("remaining", summary.Remaining),
		logging.Bool("was_cancelled", summary.WasCancelled),
		logging.Duration("elapsed", summary.Elapsed))
	for _, obs := range observers {
		obs.RunFinished(summary)
	}
}
