package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"voxbridge/internal/config"
	"voxbridge/internal/dispatch"
	"voxbridge/internal/engine"
	"voxbridge/internal/failurelog"
	"voxbridge/internal/logging"
	"voxbridge/internal/notifications"
	"voxbridge/internal/probe"
	"voxbridge/internal/session"
	"voxbridge/internal/transcriptcache"
)

// Option customizes how New assembles the core.
type Option func(*builder)

type builder struct {
	runner     engine.CommandRunner
	httpClient *http.Client
	prober     session.DurationProber
	extra      []engine.Engine
	notifier   notifications.Service
}

// WithCommandRunner replaces process execution for every CLI-backed engine
// and for ffprobe.
func WithCommandRunner(run engine.CommandRunner) Option {
	return func(b *builder) { b.runner = run }
}

// WithHTTPClient sets the client used by the cloud engine.
func WithHTTPClient(client *http.Client) Option {
	return func(b *builder) { b.httpClient = client }
}

// WithProber replaces the ffprobe-backed duration probe.
func WithProber(p session.DurationProber) Option {
	return func(b *builder) { b.prober = p }
}

// WithEngine registers an additional engine alongside the built-in ones.
func WithEngine(e engine.Engine) Option {
	return func(b *builder) { b.extra = append(b.extra, e) }
}

// WithNotifier replaces the ntfy service built from configuration.
func WithNotifier(svc notifications.Service) Option {
	return func(b *builder) { b.notifier = svc }
}

// App is a running conversion core.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	loop       *dispatch.Loop
	dispatcher *dispatch.Dispatcher
	cache      *transcriptcache.Cache
	engines    *engine.Registry
	prober     session.DurationProber
	failures   *failurelog.Log
	notifier   notifications.Service
	offline    *engine.OfflineEngine
	models     *engine.ModelEngine

	loopCancel context.CancelFunc
	loopDone   chan struct{}
	closeOnce  sync.Once
	closeErr   error
}

// New builds the core and starts its consumer loop.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	b := &builder{}
	for _, opt := range opts {
		opt(b)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	loop := dispatch.NewLoop(cfg.TickInterval(), logger)
	a := &App{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "app"),
		loop:       loop,
		dispatcher: dispatch.New(loop, cfg.Workers.PoolSize, logger),
		cache:      transcriptcache.New(cfg.Paths.CacheDir, logger),
		engines:    engine.NewRegistry(cfg.Paths.OutputDir, logger),
		failures:   failurelog.New(cfg.Paths.FailureLog),
		notifier:   b.notifier,
	}
	if a.notifier == nil {
		a.notifier = notifications.NewService(cfg)
	}
	a.prober = b.prober
	if a.prober == nil {
		var run probe.Runner
		if b.runner != nil {
			run = probe.Runner(b.runner)
		}
		a.prober = probe.New(cfg.FFprobeBinary(), run)
	}
	if err := a.registerEngines(b, logger); err != nil {
		return nil, err
	}

	// Released only after every worker has returned, so no Put races the
	// removal.
	a.dispatcher.OnRelease(func() error {
		if err := a.cache.Wipe(); err != nil && !errors.Is(err, transcriptcache.ErrWiped) {
			return fmt.Errorf("wipe cache: %w", err)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	a.loopCancel = cancel
	a.loopDone = make(chan struct{})
	go func() {
		defer close(a.loopDone)
		_ = loop.Run(ctx)
	}()

	a.logger.Debug("conversion core started",
		logging.Int("workers", a.dispatcher.Size()),
		logging.Duration("tick", cfg.TickInterval()),
		logging.String("cache_dir", cfg.Paths.CacheDir))
	return a, nil
}

func (a *App) registerEngines(b *builder, logger *slog.Logger) error {
	cfg := a.cfg
	cloud, err := engine.NewCloudEngine(cfg.Engines.Cloud, cfg.Engines.Language, cfg.Paths.OutputDir, b.httpClient, logger)
	if err != nil {
		return err
	}
	a.offline = engine.NewOfflineEngine(cfg.Engines.Offline, cfg.Paths.OutputDir, b.runner, logger)
	downloader := engine.NewDownloader(cfg.Engines.Model.BaseURL, cfg.Engines.Model.DownloadAttempts, cfg.ModelDownloadTimeout(), logger)
	a.models = engine.NewModelEngine(cfg.Engines.Model, engine.NewStore(cfg.Paths.ModelsDir), downloader, b.runner, logger)
	whisperx := engine.NewWhisperXEngine(cfg.Engines.WhisperX, cfg.Engines.Language, b.runner, logger)

	all := append([]engine.Engine{cloud, a.offline, a.models, whisperx}, b.extra...)
	for _, e := range all {
		if err := a.engines.Register(e); err != nil {
			return err
		}
	}
	return nil
}

// Config returns the configuration the core was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Engines returns the engine registry.
func (a *App) Engines() *engine.Registry { return a.engines }

// Cache returns the transcript cache.
func (a *App) Cache() *transcriptcache.Cache { return a.cache }

// Dispatcher returns the worker dispatcher.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Failures returns the failure log.
func (a *App) Failures() *failurelog.Log { return a.failures }

// Offline returns the espeak-ng engine for voice listing and selection.
func (a *App) Offline() *engine.OfflineEngine { return a.offline }

func (a *App) sessionOptions(engineID string) session.Options {
	return session.Options{
		Dispatcher: a.dispatcher,
		Cache:      a.cache,
		Engines:    a.engines,
		EngineID:   engineID,
		Prober:     a.prober,
		Limits: session.Limits{
			MaxDuration: a.cfg.MaxDuration(),
			MaxBytes:    a.cfg.MaxFileSizeBytes(),
		},
		Logger: a.logger,
	}
}

// Close shuts the dispatcher down, runs the release hooks, and stops the
// loop. When ctx expires while an engine call is still running the cache is
// left in place and the error is returned.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		a.closeErr = a.dispatcher.Shutdown(ctx)
		a.loopCancel()
		<-a.loopDone
		// Run continuations posted by the final workers.
		a.loop.Drain()
	})
	return a.closeErr
}
