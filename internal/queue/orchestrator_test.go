package queue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"voxbridge/internal/dispatch"
	"voxbridge/internal/engine"
	"voxbridge/internal/logging"
	"voxbridge/internal/services"
	"voxbridge/internal/session"
	"voxbridge/internal/testsupport"
	"voxbridge/internal/transcriptcache"
)

type scriptedRecognizer struct {
	mu    sync.Mutex
	fail  map[string]error
	gates map[string]chan struct{}
	calls []string
}

func (r *scriptedRecognizer) Recognize(_ context.Context, _ string, path string, progress engine.Progress) (string, error) {
	name := filepath.Base(path)
	r.mu.Lock()
	r.calls = append(r.calls, name)
	gate := r.gates[name]
	err := r.fail[name]
	r.mu.Unlock()
	if progress != nil {
		progress("transcribing " + name)
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return "", err
	}
	return "text of " + name, nil
}

type fixedDuration time.Duration

func (d fixedDuration) Duration(context.Context, string) (time.Duration, error) {
	return time.Duration(d), nil
}

type memoryFailures struct {
	mu    sync.Mutex
	lines []string
}

func (m *memoryFailures) Record(source, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, filepath.Base(source)+": "+message)
	return nil
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []Job
	summary  *Summary
	times    map[string]time.Time
}

func (o *recordingObserver) RunStarted(string, int) {}

func (o *recordingObserver) JobStarted(job Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, filepath.Base(job.SourcePath))
	if o.times == nil {
		o.times = make(map[string]time.Time)
	}
	o.times["start:"+filepath.Base(job.SourcePath)] = time.Now()
}

func (o *recordingObserver) Progress(Job, string) {}

func (o *recordingObserver) JobFinished(job Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, job)
	if o.times == nil {
		o.times = make(map[string]time.Time)
	}
	o.times["end:"+filepath.Base(job.SourcePath)] = time.Now()
}

func (o *recordingObserver) RunFinished(s Summary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summary = &s
}

func (o *recordingObserver) done() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summary != nil
}

type queueHarness struct {
	loop     *dispatch.Loop
	rec      *scriptedRecognizer
	failures *memoryFailures
	obs      *recordingObserver
	orch     *Orchestrator
	dir      string
}

func newQueueHarness(t *testing.T, delay time.Duration, audio time.Duration) *queueHarness {
	t.Helper()
	loop := dispatch.NewLoop(5*time.Millisecond, nil)
	disp := dispatch.New(loop, 3, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = disp.Shutdown(ctx)
	})
	dir := t.TempDir()
	rec := &scriptedRecognizer{fail: map[string]error{}, gates: map[string]chan struct{}{}}
	failures := &memoryFailures{}
	obs := &recordingObserver{}
	orch := New(Options{
		Session: session.Options{
			Dispatcher: disp,
			Cache:      transcriptcache.New(filepath.Join(dir, "cache"), logging.NewNop()),
			Engines:    rec,
			EngineID:   "stub",
			Prober:     fixedDuration(audio),
			Limits:     session.Limits{MaxDuration: 60 * time.Minute},
			Logger:     logging.NewNop(),
		},
		Delay:    delay,
		Failures: failures,
		Logger:   logging.NewNop(),
	})
	orch.Subscribe(obs)
	return &queueHarness{loop: loop, rec: rec, failures: failures, obs: obs, orch: orch, dir: dir}
}

func (h *queueHarness) files(t *testing.T, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(h.dir, name)
		testsupport.WriteFile(t, path, 64)
		paths = append(paths, path)
	}
	return paths
}

func TestRunProcessesInOrderAndIsolatesFailures(t *testing.T) {
	h := newQueueHarness(t, 0, time.Minute)
	h.rec.fail["b.mp3"] = services.Wrap(services.ErrRecognition, "engine", "recognize", "speech not understood", nil)
	if _, err := h.orch.Enqueue(h.files(t, "a.wav", "b.mp3", "c.flac")...); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := h.orch.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	testsupport.Pump(t, h.loop, h.obs.done)

	s := h.obs.summary
	if s.Completed != 2 || s.Failed != 1 || s.Cancelled != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.Total() != 3 || s.Remaining != 0 || s.WasCancelled {
		t.Fatalf("expected all three jobs accounted for, got %+v", s)
	}
	if got := h.obs.started; len(got) != 3 || got[0] != "a.wav" || got[1] != "b.mp3" || got[2] != "c.flac" {
		t.Fatalf("expected FIFO order, got %v", got)
	}
	if len(s.Failures) != 1 || filepath.Base(s.Failures[0].Job.SourcePath) != "b.mp3" {
		t.Fatalf("expected b.mp3 failure, got %+v", s.Failures)
	}
	if s.Failures[0].Reason != "speech not understood" {
		t.Fatalf("unexpected reason %q", s.Failures[0].Reason)
	}
	if len(h.failures.lines) != 1 || h.failures.lines[0] != "b.mp3: speech not understood" {
		t.Fatalf("unexpected failure log %v", h.failures.lines)
	}
	if h.orch.Running() || len(h.orch.Snapshot().Jobs) != 0 {
		t.Fatal("expected idle empty queue after run")
	}
	for _, job := range h.obs.finished {
		if job.Status == StatusCompleted && job.Result != "text of "+filepath.Base(job.SourcePath) {
			t.Fatalf("unexpected result %q", job.Result)
		}
	}
}

func TestRunRejectsOverlongAudioAndContinues(t *testing.T) {
	h := newQueueHarness(t, 0, 60*time.Minute+time.Second)
	if _, err := h.orch.Enqueue(h.files(t, "long.wav")...); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := h.orch.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	testsupport.Pump(t, h.loop, h.obs.done)

	if h.obs.summary.Failed != 1 {
		t.Fatalf("expected rejection counted as failure, got %+v", h.obs.summary)
	}
	job := h.obs.finished[0]
	if job.FailureKind != services.KindValidation {
		t.Fatalf("expected validation kind, got %q", job.FailureKind)
	}
	if job.FailureReason != "duration 60m01s exceeds maximum 60m0s" {
		t.Fatalf("unexpected reason %q", job.FailureReason)
	}
	if len(h.rec.calls) != 0 {
		t.Fatalf("engine must not run for rejected input, got %v", h.rec.calls)
	}
}

func TestRunGuards(t *testing.T) {
	h := newQueueHarness(t, 0, time.Minute)
	if err := h.orch.Run(context.Background()); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}

	gate := make(chan struct{})
	h.rec.gates["a.wav"] = gate
	if _, err := h.orch.Enqueue(h.files(t, "a.wav", "b.wav")...); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := h.orch.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := h.orch.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if _, err := h.orch.Remove(1); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning from Remove, got %v", err)
	}
	if _, err := h.orch.Clear(); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning from Clear, got %v", err)
	}

	late := h.files(t, "c.wav")
	if _, err := h.orch.Enqueue(late...); err != nil {
		t.Fatalf("enqueue while running: %v", err)
	}
	close(gate)
	testsupport.Pump(t, h.loop, h.obs.done)
	if h.obs.summary.Completed != 3 {
		t.Fatalf("expected late job processed, got %+v", h.obs.summary)
	}
}

func TestEnqueueRejectsDuplicates(t *testing.T) {
	h := newQueueHarness(t, 0, time.Minute)
	paths := h.files(t, "a.wav", "b.wav")
	if _, err := h.orch.Enqueue(paths[0]); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	jobs, err := h.orch.Enqueue(paths[0], paths[1])
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(jobs) != 1 || jobs[0].SourcePath != paths[1] {
		t.Fatalf("expected only b.wav added, got %+v", jobs)
	}
	if n := len(h.orch.Snapshot().Jobs); n != 2 {
		t.Fatalf("expected 2 queued jobs, got %d", n)
	}
}

func TestRemoveAndClearWhileIdle(t *testing.T) {
	h := newQueueHarness(t, 0, time.Minute)
	if _, err := h.orch.Enqueue(h.files(t, "a.wav", "b.wav", "c.wav")...); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	removed, err := h.orch.Remove(1)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if filepath.Base(removed.SourcePath) != "b.wav" {
		t.Fatalf("removed wrong job %s", removed.SourcePath)
	}
	if _, err := h.orch.Remove(5); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad index, got %v", err)
	}
	n, err := h.orch.Clear()
	if err != nil || n != 2 {
		t.Fatalf("clear returned %d, %v", n, err)
	}
}

func TestCancelLeavesUnstartedJobsQueued(t *testing.T) {
	h := newQueueHarness(t, 0, time.Minute)
	gate := make(chan struct{})
	h.rec.gates["a.wav"] = gate
	if _, err := h.orch.Enqueue(h.files(t, "a.wav", "b.wav", "c.wav")...); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := h.orch.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	testsupport.Pump(t, h.loop, func() bool {
		h.rec.mu.Lock()
		defer h.rec.mu.Unlock()
		return len(h.rec.calls) == 1
	})

	if !h.orch.Cancel() {
		t.Fatal("expected cancel to report an active run")
	}
	close(gate)
	testsupport.Pump(t, h.loop, h.obs.done)

	s := h.obs.summary
	if !s.WasCancelled || s.Cancelled != 1 || s.Completed != 0 || s.Remaining != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if len(h.obs.started) != 1 {
		t.Fatalf("no later job may start after cancel, started %v", h.obs.started)
	}
	snap := h.orch.Snapshot()
	if snap.Running || len(snap.Jobs) != 2 || snap.Jobs[0].Status != StatusPending {
		t.Fatalf("expected two pending jobs left, got %+v", snap)
	}
	if h.orch.Cancel() {
		t.Fatal("cancel on idle queue should report false")
	}

	// The remaining jobs resume on the next run.
	h.obs.summary = nil
	if err := h.orch.Run(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	testsupport.Pump(t, h.loop, h.obs.done)
	if h.obs.summary.Completed != 2 {
		t.Fatalf("expected resume to finish both, got %+v", h.obs.summary)
	}
}

func TestDelayAppliesAfterFailure(t *testing.T) {
	const delay = 60 * time.Millisecond
	h := newQueueHarness(t, delay, time.Minute)
	h.rec.fail["a.wav"] = services.Wrap(services.ErrRecognition, "engine", "recognize", "bad", nil)
	if _, err := h.orch.Enqueue(h.files(t, "a.wav", "b.wav")...); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := h.orch.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	testsupport.Pump(t, h.loop, h.obs.done)

	gap := h.obs.times["start:b.wav"].Sub(h.obs.times["end:a.wav"])
	if gap < delay {
		t.Fatalf("expected at least %s between jobs, got %s", delay, gap)
	}
}

func TestCancelDuringDelayFinishesWithoutWaiting(t *testing.T) {
	h := newQueueHarness(t, time.Hour, time.Minute)
	if _, err := h.orch.Enqueue(h.files(t, "a.wav", "b.wav")...); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := h.orch.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	testsupport.Pump(t, h.loop, func() bool {
		h.obs.mu.Lock()
		defer h.obs.mu.Unlock()
		return len(h.obs.finished) == 1
	})
	h.orch.Cancel()
	testsupport.Pump(t, h.loop, h.obs.done)
	if s := h.obs.summary; s.Completed != 1 || s.Remaining != 1 || !s.WasCancelled {
		t.Fatalf("unexpected summary %+v", s)
	}
}
