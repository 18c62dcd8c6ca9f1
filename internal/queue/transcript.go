package queue

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"voxbridge/internal/fileutil"
	"voxbridge/internal/logging"
)

// TranscriptWriter saves completed transcripts as text files in a directory.
// An existing file is never overwritten; the name gains a numeric suffix.
type TranscriptWriter struct {
	NopObserver

	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	written map[string]string
}

// NewTranscriptWriter writes into dir, creating it on first use.
func NewTranscriptWriter(dir string, logger *slog.Logger) *TranscriptWriter {
	return &TranscriptWriter{
		dir:     dir,
		logger:  logging.NewComponentLogger(logger, "transcripts"),
		written: make(map[string]string),
	}
}

// JobFinished writes the transcript of a completed job.
func (w *TranscriptWriter) JobFinished(job Job) {
	if job.Status != StatusCompleted {
		return
	}
	target, err := w.Write(job.SourcePath, job.Result)
	if err != nil {
		logging.WarnWithContext(w.logger, "transcript write failed", "transcript_write_failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldErrorHint, "check paths.output_dir permissions"),
			logging.String(logging.FieldImpact, "transcript only available in history"),
			logging.Error(err))
		return
	}
	w.mu.Lock()
	w.written[job.ID] = target
	w.mu.Unlock()
	w.logger.Info("transcript saved",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("path", target))
}

// Written returns the output path recorded for a job id.
func (w *TranscriptWriter) Written(jobID string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	path, ok := w.written[jobID]
	return path, ok
}

// Write stores text under a name derived from source and returns the path.
func (w *TranscriptWriter) Write(source, text string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	target := nextFreeName(w.dir, strings.TrimSuffix(filepath.Base(source), filepath.Ext(source)), ".txt")
	if err := fileutil.WriteFileAtomic(target, []byte(text), 0o644); err != nil {
		return "", err
	}
	return target, nil
}

func nextFreeName(dir, base, ext string) string {
	candidate := filepath.Join(dir, base+ext)
	for n := 2; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, ext))
	}
}
