package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voxbridge/internal/dispatch"
	"voxbridge/internal/engine"
	"voxbridge/internal/logging"
	"voxbridge/internal/services"
	"voxbridge/internal/transcriptcache"
)

// State is the lifecycle position of a session.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateRejected   State = "rejected"
	StateConverting State = "converting"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateRejected, StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Recognizer is the engine call a session makes on a cache miss.
type Recognizer interface {
	Recognize(ctx context.Context, engineID, audioPath string, progress engine.Progress) (string, error)
}

// DurationProber reads the playing time of an audio file.
type DurationProber interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Limits are the input ceilings checked while validating. Zero disables a
// ceiling.
type Limits struct {
	MaxDuration time.Duration
	MaxBytes    int64
}

// Options wires a session to its collaborators.
type Options struct {
	Dispatcher *dispatch.Dispatcher
	Cache      *transcriptcache.Cache
	Engines    Recognizer
	EngineID   string
	Prober     DurationProber
	Limits     Limits
	Logger     *slog.Logger
}

// Outcome is delivered once, when the session reaches a terminal state.
type Outcome struct {
	State     State
	Text      string
	Err       error
	FromCache bool
	SizeBytes int64
	Duration  time.Duration
	Elapsed   time.Duration
}

// Callbacks receive session events on the loop goroutine.
type Callbacks struct {
	OnState    func(State)
	OnProgress func(message string)
	OnDone     func(Outcome)
}

// Session converts a single file. It is not reusable.
type Session struct {
	opts   Options
	jobID  string
	path   string
	cb     Callbacks
	logger *slog.Logger

	state     State
	started   time.Time
	handle    *dispatch.Handle
	cancelled bool
	size      int64
	duration  time.Duration
}

// New prepares a session for path. jobID tags logs and worker contexts.
func New(opts Options, jobID, path string) *Session {
	ctx := services.WithJobID(services.WithEngineID(context.Background(), opts.EngineID), jobID)
	logger := logging.WithContext(ctx, logging.NewComponentLogger(opts.Logger, "session"))
	return &Session{
		opts:   opts,
		jobID:  jobID,
		path:   path,
		logger: logger,
		state:  StateIdle,
	}
}

// State returns the current state. Loop goroutine only.
func (s *Session) State() State { return s.state }

// Path returns the source file.
func (s *Session) Path() string { return s.path }

// validated is the worker-side result of the Validating step.
type validated struct {
	size        int64
	duration    time.Duration
	fingerprint string
	cached      string
	hit         bool
}

// Start begins validation. Loop goroutine only.
func (s *Session) Start(ctx context.Context, cb Callbacks) error {
	if s.state != StateIdle {
		return fmt.Errorf("session %s already started", s.jobID)
	}
	s.cb = cb
	s.started = time.Now()
	s.setState(StateValidating)

	ctx = services.WithJobID(ctx, s.jobID)
	handle, err := s.opts.Dispatcher.Submit(ctx, dispatch.Task{
		Name: "validate " + filepath.Base(s.path),
		Run: func(ctx context.Context) (any, error) {
			return s.validate(ctx)
		},
		Done: s.onValidated,
	})
	if err != nil {
		s.finish(Outcome{State: StateFailed, Err: services.Wrap(services.ErrWorkerLifecycle, "session", "start", "dispatcher unavailable", err)})
		return nil
	}
	s.handle = handle
	return nil
}

// Cancel requests cancellation. A running engine call still finishes; its
// result is discarded. Loop goroutine only.
func (s *Session) Cancel() {
	if s.state.Terminal() || s.cancelled {
		return
	}
	s.cancelled = true
	if s.handle != nil {
		s.handle.Cancel()
	}
	s.logger.Info("session cancel requested", logging.String("state", string(s.state)))
	if s.state == StateIdle {
		s.finish(Outcome{State: StateCancelled, Err: services.ErrCancelled})
	}
}

// validate runs on a worker: stat, size and duration checks, then the cache
// lookup.
func (s *Session) validate(ctx context.Context) (validated, error) {
	var v validated
	info, err := os.Stat(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return v, reject("file not found: %s", s.path)
	case err != nil:
		return v, services.Wrap(services.ErrValidation, "session", "validate", "stat failed", err)
	case !info.Mode().IsRegular():
		return v, reject("not a regular file: %s", s.path)
	case info.Size() == 0:
		return v, reject("file is empty: %s", s.path)
	}
	v.size = info.Size()
	if limit := s.opts.Limits.MaxBytes; limit > 0 && v.size > limit {
		return v, reject("file size %s exceeds maximum %s", formatBytes(v.size), formatBytes(limit))
	}

	if s.opts.Prober != nil {
		d, err := s.opts.Prober.Duration(ctx, s.path)
		if err != nil {
			return v, services.Wrap(services.ErrValidation, "session", "validate", "unreadable audio", err)
		}
		v.duration = d
		if limit := s.opts.Limits.MaxDuration; limit > 0 && d > limit {
			return v, reject("duration %s exceeds maximum %s", formatClock(d), formatClock(limit))
		}
	}

	if s.opts.Cache != nil {
		fp, err := transcriptcache.Fingerprint(s.path)
		if err != nil {
			return v, services.Wrap(services.ErrValidation, "session", "validate", "fingerprint", err)
		}
		v.fingerprint = fp
		if entry, ok := s.opts.Cache.Get(fp); ok {
			v.cached = entry.Text
			v.hit = true
		}
	}
	return v, nil
}

func (s *Session) onValidated(result any, err error) {
	v, _ := result.(validated)
	s.size, s.duration = v.size, v.duration
	switch {
	case s.cancelled || errors.Is(err, services.ErrCancelled):
		s.finish(Outcome{State: StateCancelled, Err: services.ErrCancelled})
	case errors.Is(err, services.ErrValidation):
		s.finish(Outcome{State: StateRejected, Err: err})
	case err != nil:
		s.finish(Outcome{State: StateFailed, Err: err})
	case v.hit:
		s.setState(StateConverting)
		s.progress("Loaded cached transcript")
		s.finish(Outcome{State: StateCompleted, Text: v.cached, FromCache: true})
	default:
		s.convert(v.fingerprint)
	}
}

func (s *Session) convert(fingerprint string) {
	s.setState(StateConverting)
	loop := s.opts.Dispatcher.Loop()
	progress := func(msg string) {
		loop.Post(func() { s.progress(msg) })
	}
	ctx := services.WithEngineID(services.WithJobID(context.Background(), s.jobID), s.opts.EngineID)
	handle, err := s.opts.Dispatcher.Submit(ctx, dispatch.Task{
		Name: "recognize " + filepath.Base(s.path),
		Lane: dispatch.LaneConversion,
		Run: func(ctx context.Context) (any, error) {
			text, err := s.opts.Engines.Recognize(ctx, s.opts.EngineID, s.path, progress)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(text) == "" {
				return nil, services.Wrap(services.ErrRecognition, "session", "convert", "no text generated", nil)
			}
			if s.opts.Cache != nil && fingerprint != "" {
				if err := s.opts.Cache.Put(fingerprint, s.path, text); err != nil {
					logging.WarnWithContext(s.logger, "transcript not cached", "cache_put_failed",
						logging.String(logging.FieldImpact, "the next run converts this file again"),
						logging.Error(err))
				}
			}
			return text, nil
		},
		Done: s.onConverted,
	})
	if err != nil {
		s.finish(Outcome{State: StateFailed, Err: services.Wrap(services.ErrWorkerLifecycle, "session", "convert", "dispatcher unavailable", err)})
		return
	}
	s.handle = handle
}

func (s *Session) onConverted(result any, err error) {
	switch {
	case s.cancelled || errors.Is(err, services.ErrCancelled):
		s.finish(Outcome{State: StateCancelled, Err: services.ErrCancelled})
	case err != nil:
		s.finish(Outcome{State: StateFailed, Err: err})
	default:
		text, _ := result.(string)
		s.finish(Outcome{State: StateCompleted, Text: text})
	}
}

func (s *Session) finish(out Outcome) {
	if s.state.Terminal() {
		return
	}
	out.SizeBytes = s.size
	out.Duration = s.duration
	if !s.started.IsZero() {
		out.Elapsed = time.Since(s.started)
	}
	s.setState(out.State)

	attrs := []logging.Attr{
		logging.String("source", s.path),
		logging.String("state", string(out.State)),
		logging.Bool("from_cache", out.FromCache),
		logging.Duration("elapsed", out.Elapsed),
	}
	switch out.State {
	case StateCompleted:
		s.logger.Info("session completed", logging.Args(attrs...)...)
	case StateCancelled:
		s.logger.Info("session cancelled", logging.Args(attrs...)...)
	default:
		attrs = append(attrs, logging.String("reason", services.Reason(out.Err)), logging.Error(out.Err))
		logging.WarnWithContext(s.logger, "session did not complete", "session_"+string(out.State), attrs...)
	}
	if s.cb.OnDone != nil {
		s.cb.OnDone(out)
	}
}

func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	s.state = state
	if s.cb.OnState != nil {
		s.cb.OnState(state)
	}
}

func (s *Session) progress(msg string) {
	if s.cb.OnProgress != nil && !s.state.Terminal() {
		s.cb.OnProgress(msg)
	}
}

func reject(format string, args ...any) error {
	return services.Wrap(services.ErrValidation, "", "", fmt.Sprintf(format, args...), nil)
}

// formatClock renders whole minutes and seconds, rounding partial seconds up
// so a file just over the ceiling never prints equal to it: 60m0s, 60m01s.
func formatClock(d time.Duration) string {
	total := int64(math.Ceil(d.Seconds()))
	minutes, seconds := total/60, total%60
	if seconds == 0 {
		return fmt.Sprintf("%dm0s", minutes)
	}
	return fmt.Sprintf("%dm%02ds", minutes, seconds)
}

func formatBytes(n int64) string {
	const mb = 1024 * 1024
	return fmt.Sprintf("%.1f MB", float64(n)/mb)
}

// Reason is the one-line failure text recorded for the outcome, without the
// error class prefix.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return services.Message(o.Err)
}
