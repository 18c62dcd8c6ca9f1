package queue

import (
	"time"

	"voxbridge/internal/services"
)

// Status is the lifecycle of one job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConverting Status = "converting"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Job is one file submitted for conversion.
type Job struct {
	ID              string
	SourcePath      string
	FileSizeBytes   int64
	DurationSeconds float64
	Status          Status
	FailureReason   string
	FailureKind     services.Kind
	Result          string
	FromCache       bool
	EnqueuedAt      time.Time
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Failure pairs a job with the reason it did not complete.
type Failure struct {
	Job    Job
	Reason string
	At     time.Time
}

// Summary is emitted once per run.
type Summary struct {
	RunID      string
	Completed  int
	Failed     int
	Cancelled  int
	Failures   []Failure
	StartedAt  time.Time
	FinishedAt time.Time
	Elapsed    time.Duration
	// WasCancelled is set when Cancel ended the run; Remaining jobs stay
	// queued for a later Run.
	WasCancelled bool
	Remaining    int
}

// Total is the number of jobs that reached a terminal state in the run.
func (s Summary) Total() int { return s.Completed + s.Failed + s.Cancelled }

// Snapshot is a point-in-time copy of the queue for display.
type Snapshot struct {
	RunID           string
	Jobs            []Job
	Running         bool
	CancelRequested bool
	Failures        []Failure
}

// Observer receives queue events on the loop goroutine.
type Observer interface {
	RunStarted(runID string, jobs int)
	JobStarted(job Job)
	Progress(job Job, message string)
	JobFinished(job Job)
	RunFinished(summary Summary)
}

// NopObserver implements Observer with no-ops; embed it to handle a subset.
type NopObserver struct{}

func (NopObserver) RunStarted(string, int) {}
func (NopObserver) JobStarted(Job)         {}
func (NopObserver) Progress(Job, string)   {}
func (NopObserver) JobFinished(Job)        {}
func (NopObserver) RunFinished(Summary)    {}
