package statusapi

import (
	"time"

	"voxbridge/internal/engine"
	"voxbridge/internal/queue"
)

// JobView is the wire form of a queued or finished job.
type JobView struct {
	ID              string    `json:"id"`
	SourcePath      string    `json:"sourcePath"`
	Status          string    `json:"status"`
	FileSizeBytes   int64     `json:"fileSizeBytes,omitempty"`
	DurationSeconds float64   `json:"durationSeconds,omitempty"`
	FailureReason   string    `json:"failureReason,omitempty"`
	FailureKind     string    `json:"failureKind,omitempty"`
	EnqueuedAt      time.Time `json:"enqueuedAt"`
	StartedAt       time.Time `json:"startedAt,omitzero"`
	FinishedAt      time.Time `json:"finishedAt,omitzero"`
}

// QueueView is the response of GET /api/queue.
type QueueView struct {
	RunID           string    `json:"runId,omitempty"`
	Running         bool      `json:"running"`
	CancelRequested bool      `json:"cancelRequested"`
	Jobs            []JobView `json:"jobs"`
	Failures        []JobView `json:"failures"`
	Inflight        int       `json:"inflight"`
	Pending         int       `json:"pending"`
}

// EngineView is one entry of GET /api/engines.
type EngineView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Loaded     bool   `json:"loaded"`
	ModelID    string `json:"modelId,omitempty"`
	VocoderID  string `json:"vocoderId,omitempty"`
	Synthesize bool   `json:"synthesize"`
	Recognize  bool   `json:"recognize"`
	Voices     bool   `json:"voices"`
}

func fromJob(job queue.Job) JobView {
	return JobView{
		ID:              job.ID,
		SourcePath:      job.SourcePath,
		Status:          string(job.Status),
		FileSizeBytes:   job.FileSizeBytes,
		DurationSeconds: job.DurationSeconds,
		FailureReason:   job.FailureReason,
		FailureKind:     string(job.FailureKind),
		EnqueuedAt:      job.EnqueuedAt,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
	}
}

func fromSnapshot(snap queue.Snapshot, inflight, pending int) QueueView {
	view := QueueView{
		RunID:           snap.RunID,
		Running:         snap.Running,
		CancelRequested: snap.CancelRequested,
		Jobs:            make([]JobView, 0, len(snap.Jobs)),
		Failures:        make([]JobView, 0, len(snap.Failures)),
		Inflight:        inflight,
		Pending:         pending,
	}
	for _, job := range snap.Jobs {
		view.Jobs = append(view.Jobs, fromJob(job))
	}
	for _, f := range snap.Failures {
		view.Failures = append(view.Failures, fromJob(f.Job))
	}
	return view
}

func fromDescriptor(d engine.Descriptor) EngineView {
	return EngineView{
		ID:         d.ID,
		Name:       d.Name,
		Kind:       string(d.Kind),
		Loaded:     d.Loaded,
		ModelID:    d.ModelID,
		VocoderID:  d.VocoderID,
		Synthesize: d.Capabilities.Synthesize,
		Recognize:  d.Capabilities.Recognize,
		Voices:     d.Capabilities.Voices,
	}
}
