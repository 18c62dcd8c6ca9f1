package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"voxbridge/internal/deps"
	"voxbridge/internal/fileutil"
	"voxbridge/internal/logging"
	"voxbridge/internal/metrics"
	"voxbridge/internal/services"
)

const component = "engine"

// Registry keys engines by id and mediates load-then-use.
type Registry struct {
	mu        sync.RWMutex
	engines   map[string]Engine
	outputDir string
	logger    *slog.Logger
	checkDeps func([]deps.Requirement) []deps.Status
}

// NewRegistry constructs an empty registry. outputDir receives wav files for
// engines that return raw samples.
func NewRegistry(outputDir string, logger *slog.Logger) *Registry {
	return &Registry{
		engines:   make(map[string]Engine),
		outputDir: outputDir,
		logger:    logging.NewComponentLogger(logger, component),
		checkDeps: deps.CheckBinaries,
	}
}

// Register adds an engine. Ids must be unique and non-empty.
func (r *Registry) Register(e Engine) error {
	if e == nil {
		return services.Wrap(services.ErrConfiguration, component, "register", "nil engine", nil)
	}
	id := strings.TrimSpace(e.ID())
	if id == "" {
		return services.Wrap(services.ErrConfiguration, component, "register", "engine id required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.engines[id]; exists {
		return services.Wrap(services.ErrConfiguration, component, "register", fmt.Sprintf("engine %q already registered", id), nil)
	}
	r.engines[id] = e
	return nil
}

// Lookup returns the engine registered under id.
func (r *Registry) Lookup(id string) (Engine, error) {
	r.mu.RLock()
	e, ok := r.engines[strings.TrimSpace(id)]
	r.mu.RUnlock()
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, component, "lookup", fmt.Sprintf("unknown engine %q", id), nil)
	}
	return e, nil
}

// Descriptors lists every registered engine sorted by id.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.engines))
	for _, e := range r.engines {
		out = append(out, Describe(e))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Synthesize selects the engine, loads it when needed, and produces audio.
func (r *Registry) Synthesize(ctx context.Context, id, text string, params VoiceParams, progress Progress) (Audio, error) {
	e, err := r.Lookup(id)
	if err != nil {
		return Audio{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Audio{}, services.Wrap(services.ErrValidation, component, "synthesize", "text is empty", nil)
	}
	if err := r.prepare(ctx, e, progress); err != nil {
		return Audio{}, err
	}
	logger := logging.WithContext(services.WithEngineID(ctx, e.ID()), r.logger)

	start := time.Now()
	var audio Audio
	switch s := e.(type) {
	case Synthesizer:
		progress.report("Synthesizing with %s...", e.ID())
		audio, err = s.Synthesize(ctx, text, params)
	case SampleSynthesizer:
		progress.report("Synthesizing with %s...", e.ID())
		audio, err = r.synthesizeSamples(ctx, s, text, params)
	default:
		return Audio{}, services.Wrap(services.ErrConfiguration, component, "synthesize", fmt.Sprintf("engine %q cannot synthesize", e.ID()), nil)
	}
	elapsed := time.Since(start)
	metrics.ObserveEngineCall(e.ID(), "synthesize", elapsed, err == nil)
	if err != nil {
		err = classifyCall(ctx, services.ErrSynthesis, "synthesize", err)
		logger.Warn("synthesis failed",
			logging.String(logging.FieldEventType, "engine_synthesize_failed"),
			logging.String(logging.FieldErrorHint, "check engine configuration and input text"),
			logging.Error(err),
		)
		return Audio{}, err
	}
	logger.Info("synthesis complete",
		logging.String(logging.FieldEventType, "engine_synthesize_complete"),
		logging.String("output", audio.Path),
		logging.Duration("elapsed", elapsed),
	)
	return audio, nil
}

// Recognize selects the engine, loads it when needed, and transcribes audio.
func (r *Registry) Recognize(ctx context.Context, id, audioPath string, progress Progress) (string, error) {
	e, err := r.Lookup(id)
	if err != nil {
		return "", err
	}
	rec, ok := e.(Recognizer)
	if !ok {
		return "", services.Wrap(services.ErrConfiguration, component, "recognize", fmt.Sprintf("engine %q cannot recognize", e.ID()), nil)
	}
	if err := r.prepare(ctx, e, progress); err != nil {
		return "", err
	}
	logger := logging.WithContext(services.WithEngineID(ctx, e.ID()), r.logger)

	progress.report("Transcribing %s with %s...", filepath.Base(audioPath), e.ID())
	start := time.Now()
	text, err := rec.Recognize(ctx, audioPath)
	elapsed := time.Since(start)
	metrics.ObserveEngineCall(e.ID(), "recognize", elapsed, err == nil)
	if err != nil {
		err = classifyCall(ctx, services.ErrRecognition, "recognize", err)
		logger.Warn("recognition failed",
			logging.String(logging.FieldEventType, "engine_recognize_failed"),
			logging.String(logging.FieldErrorHint, "check the audio file and engine logs"),
			logging.String("source", audioPath),
			logging.Error(err),
		)
		return "", err
	}
	logger.Info("recognition complete",
		logging.String(logging.FieldEventType, "engine_recognize_complete"),
		logging.String("source", audioPath),
		logging.Int("chars", len(text)),
		logging.Duration("elapsed", elapsed),
	)
	return text, nil
}

// Load acquires an engine ahead of first use.
func (r *Registry) Load(ctx context.Context, id string, progress Progress) error {
	e, err := r.Lookup(id)
	if err != nil {
		return err
	}
	return r.prepare(ctx, e, progress)
}

// prepare verifies external binaries and loads the engine if it has an
// acquisition step. A loaded engine is left untouched.
func (r *Registry) prepare(ctx context.Context, e Engine, progress Progress) error {
	logger := logging.WithContext(services.WithEngineID(ctx, e.ID()), r.logger)
	if req, ok := e.(Requirer); ok {
		if missing := deps.Missing(r.checkDeps(req.Requirements())); len(missing) > 0 {
			return services.Wrap(services.ErrEngineUnavailable, component, "prepare",
				fmt.Sprintf("engine %q unavailable: %s", e.ID(), deps.Describe(missing)), nil)
		}
	}
	loader, ok := e.(Loader)
	if !ok {
		return nil
	}
	if loader.Loaded() {
		metrics.IncEngineLoad(e.ID(), "skipped")
		logger.Debug("engine load decision", logging.Args(logging.DecisionAttrs("engine_load", "skip", "already loaded")...)...)
		return nil
	}
	logger.Info("engine load decision", logging.Args(logging.DecisionAttrs("engine_load", "load", "not loaded")...)...)
	progress.report("Loading %s...", e.ID())
	if err := loader.Load(ctx, progress); err != nil {
		metrics.IncEngineLoad(e.ID(), "failed")
		if services.Classify(err) == services.KindUnknown {
			err = services.Wrap(services.ErrLoad, component, "load", fmt.Sprintf("load %s", e.ID()), err)
		}
		logging.WarnWithContext(logger, "engine load failed", "engine_load_failed",
			logging.String(logging.FieldErrorHint, "the next selection retries the load"),
			logging.String(logging.FieldImpact, "engine stays unloaded"),
			logging.Error(err),
		)
		return err
	}
	metrics.IncEngineLoad(e.ID(), "loaded")
	progress.report("%s ready", e.ID())
	return nil
}

func (r *Registry) synthesizeSamples(ctx context.Context, s SampleSynthesizer, text string, params VoiceParams) (Audio, error) {
	samples, rate, err := s.ModelSynthesize(ctx, text, strings.TrimSpace(params.Voice))
	if err != nil {
		return Audio{}, err
	}
	path := outputPath(r.outputDir, s.ID(), "wav", params)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Audio{}, services.Wrap(services.ErrSynthesis, component, "write wav", "ensure output dir", err)
	}
	if err := fileutil.WriteAtomic(path, 0o644, func(w io.WriteSeeker) error {
		return EncodeWAV(w, samples, rate)
	}); err != nil {
		return Audio{}, services.Wrap(services.ErrSynthesis, component, "write wav", path, err)
	}
	return Audio{Path: path, Format: "wav", SampleRate: rate}, nil
}

// classifyCall tags untyped engine errors with marker and leaves typed ones
// alone. Only cancellation of ctx itself counts as a cancellation; a deadline
// raised inside the engine (an HTTP client timeout, say) is a call failure.
func classifyCall(ctx context.Context, marker error, operation string, err error) error {
	if ctx.Err() != nil {
		return services.Wrap(services.ErrCancelled, component, operation, "interrupted", err)
	}
	if services.Classify(err) != services.KindUnknown {
		return err
	}
	return services.Wrap(marker, component, operation, "", err)
}
