package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voxbridge/internal/dispatch"
	"voxbridge/internal/engine"
	"voxbridge/internal/logging"
	"voxbridge/internal/services"
	"voxbridge/internal/testsupport"
	"voxbridge/internal/transcriptcache"
)

type fakeRecognizer struct {
	calls atomic.Int32
	text  string
	err   error
	gate  chan struct{}
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ string, _ string, progress engine.Progress) (string, error) {
	f.calls.Add(1)
	if progress != nil {
		progress("transcribing")
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.text, f.err
}

type fixedProber struct {
	d   time.Duration
	err error
}

func (p fixedProber) Duration(context.Context, string) (time.Duration, error) { return p.d, p.err }

type harness struct {
	loop  *dispatch.Loop
	disp  *dispatch.Dispatcher
	cache *transcriptcache.Cache
	rec   *fakeRecognizer
	opts  Options
}

func newHarness(t *testing.T, duration time.Duration) *harness {
	t.Helper()
	loop := dispatch.NewLoop(5*time.Millisecond, nil)
	disp := dispatch.New(loop, 3, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = disp.Shutdown(ctx)
	})
	cache := transcriptcache.New(filepath.Join(t.TempDir(), "cache"), logging.NewNop())
	rec := &fakeRecognizer{text: "hello world"}
	return &harness{
		loop:  loop,
		disp:  disp,
		cache: cache,
		rec:   rec,
		opts: Options{
			Dispatcher: disp,
			Cache:      cache,
			Engines:    rec,
			EngineID:   "stub",
			Prober:     fixedProber{d: duration},
			Limits:     Limits{MaxDuration: 60 * time.Minute},
			Logger:     logging.NewNop(),
		},
	}
}

type recorder struct {
	mu       sync.Mutex
	states   []State
	progress []string
	outcome  *Outcome
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnState:    func(s State) { r.mu.Lock(); r.states = append(r.states, s); r.mu.Unlock() },
		OnProgress: func(m string) { r.mu.Lock(); r.progress = append(r.progress, m); r.mu.Unlock() },
		OnDone:     func(o Outcome) { r.mu.Lock(); r.outcome = &o; r.mu.Unlock() },
	}
}

func (r *recorder) done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome != nil
}

func (h *harness) run(t *testing.T, path string) (*Session, *recorder) {
	t.Helper()
	s := New(h.opts, "job-1", path)
	rec := &recorder{}
	if err := s.Start(context.Background(), rec.callbacks()); err != nil {
		t.Fatalf("start: %v", err)
	}
	testsupport.Pump(t, h.loop, rec.done)
	return s, rec
}

func TestSessionConvertsAndCaches(t *testing.T) {
	h := newHarness(t, 30*time.Second)
	path := filepath.Join(t.TempDir(), "a.wav")
	testsupport.WriteFile(t, path, 128)

	s, rec := h.run(t, path)
	if rec.outcome.State != StateCompleted || rec.outcome.Text != "hello world" || rec.outcome.FromCache {
		t.Fatalf("unexpected outcome %#v", rec.outcome)
	}
	if s.State() != StateCompleted {
		t.Fatalf("unexpected session state %s", s.State())
	}
	want := []State{StateValidating, StateConverting, StateCompleted}
	if len(rec.states) != len(want) {
		t.Fatalf("unexpected transitions %v", rec.states)
	}
	for i := range want {
		if rec.states[i] != want[i] {
			t.Fatalf("unexpected transitions %v", rec.states)
		}
	}
	if len(rec.progress) == 0 || rec.progress[0] != "transcribing" {
		t.Fatalf("expected progress relayed through the loop, got %v", rec.progress)
	}

	fp, _ := transcriptcache.Fingerprint(path)
	entry, ok := h.cache.Get(fp)
	if !ok || entry.Text != "hello world" {
		t.Fatalf("expected transcript cached, got %#v (%v)", entry, ok)
	}

	_, second := h.run(t, path)
	if !second.outcome.FromCache || second.outcome.Text != "hello world" {
		t.Fatalf("expected cache hit, got %#v", second.outcome)
	}
	if h.rec.calls.Load() != 1 {
		t.Fatalf("cache hit must not call the engine, calls=%d", h.rec.calls.Load())
	}
}

func TestSessionDurationBoundary(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		state    State
		reason   string
	}{
		{"exactly at limit", 60 * time.Minute, StateCompleted, ""},
		{"one second over", 60*time.Minute + time.Second, StateRejected, "duration 60m01s exceeds maximum 60m0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.duration)
			path := filepath.Join(t.TempDir(), "long.mp3")
			testsupport.WriteFile(t, path, 64)

			_, rec := h.run(t, path)
			if rec.outcome.State != tt.state {
				t.Fatalf("expected %s, got %s (%v)", tt.state, rec.outcome.State, rec.outcome.Err)
			}
			if got := rec.outcome.Reason(); got != tt.reason {
				t.Fatalf("reason = %q, want %q", got, tt.reason)
			}
			if tt.state == StateRejected && !errors.Is(rec.outcome.Err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", rec.outcome.Err)
			}
		})
	}
}

func TestSessionRejectsBadInputs(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.wav")
	testsupport.WriteFile(t, empty, 1)
	if err := os.Truncate(empty, 0); err != nil {
		t.Fatal(err)
	}
	big := filepath.Join(dir, "big.wav")
	testsupport.WriteFile(t, big, 2048)

	tests := []struct {
		name   string
		path   string
		limits Limits
		prober fixedProber
	}{
		{"missing", filepath.Join(dir, "nope.wav"), Limits{}, fixedProber{d: time.Second}},
		{"directory", dir, Limits{}, fixedProber{d: time.Second}},
		{"empty", empty, Limits{}, fixedProber{d: time.Second}},
		{"too large", big, Limits{MaxBytes: 1024}, fixedProber{d: time.Second}},
		{"unprobeable", big, Limits{}, fixedProber{err: errors.New("no audio stream")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 0)
			h.opts.Limits = tt.limits
			h.opts.Prober = tt.prober
			_, rec := h.run(t, tt.path)
			if rec.outcome.State != StateRejected {
				t.Fatalf("expected rejection, got %s (%v)", rec.outcome.State, rec.outcome.Err)
			}
			if h.rec.calls.Load() != 0 {
				t.Fatal("engine must not be called for rejected input")
			}
		})
	}
}

func TestSessionEngineFailure(t *testing.T) {
	h := newHarness(t, time.Second)
	h.rec.err = services.Wrap(services.ErrRecognition, "stub", "recognize", "decoder crashed", nil)
	path := filepath.Join(t.TempDir(), "a.wav")
	testsupport.WriteFile(t, path, 16)

	_, rec := h.run(t, path)
	if rec.outcome.State != StateFailed || !errors.Is(rec.outcome.Err, services.ErrRecognition) {
		t.Fatalf("unexpected outcome %#v", rec.outcome)
	}
	if n, _ := h.cache.Count(); n != 0 {
		t.Fatalf("failed conversion must not be cached, count=%d", n)
	}
}

func TestSessionCancelWhileConverting(t *testing.T) {
	h := newHarness(t, time.Second)
	h.rec.gate = make(chan struct{})
	path := filepath.Join(t.TempDir(), "a.wav")
	testsupport.WriteFile(t, path, 16)

	s := New(h.opts, "job-2", path)
	rec := &recorder{}
	if err := s.Start(context.Background(), rec.callbacks()); err != nil {
		t.Fatal(err)
	}
	testsupport.Pump(t, h.loop, func() bool { return s.State() == StateConverting && h.rec.calls.Load() == 1 })

	s.Cancel()
	if s.State() != StateConverting {
		t.Fatalf("cancel must wait for the continuation, state=%s", s.State())
	}
	close(h.rec.gate)
	testsupport.Pump(t, h.loop, rec.done)
	if rec.outcome.State != StateCancelled || rec.outcome.Text != "" {
		t.Fatalf("expected cancelled outcome without text, got %#v", rec.outcome)
	}
}

func TestFormatClock(t *testing.T) {
	tests := map[time.Duration]string{
		60 * time.Minute:                      "60m0s",
		60*time.Minute + time.Second:          "60m01s",
		60*time.Minute + 400*time.Millisecond: "60m01s",
		90 * time.Second:                      "1m30s",
	}
	for d, want := range tests {
		if got := formatClock(d); got != want {
			t.Errorf("formatClock(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestSessionEmptyTranscriptFails(t *testing.T) {
	h := newHarness(t, time.Second)
	h.rec.text = "   "
	path := filepath.Join(t.TempDir(), "silence.wav")
	testsupport.WriteFile(t, path, 16)

	_, rec := h.run(t, path)
	if rec.outcome.State != StateFailed || rec.outcome.Reason() == "" {
		t.Fatalf("expected failure for empty transcript, got %#v", rec.outcome)
	}
	if !errors.Is(rec.outcome.Err, services.ErrRecognition) {
		t.Fatalf("expected recognition error, got %v", rec.outcome.Err)
	}
}
