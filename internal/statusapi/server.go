package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"voxbridge/internal/engine"
	"voxbridge/internal/logging"
	"voxbridge/internal/metrics"
	"voxbridge/internal/queue"
)

// QueueSource is the read side of the orchestrator.
type QueueSource interface {
	Snapshot() queue.Snapshot
}

// EngineSource lists registered engines.
type EngineSource interface {
	Descriptors() []engine.Descriptor
}

// LoadSource reports dispatcher occupancy.
type LoadSource interface {
	Stats() (inflight, pending int)
}

// Options wires the server to its sources. Nil sources answer 503.
type Options struct {
	Bind    string
	Queue   QueueSource
	Engines EngineSource
	Load    LoadSource
	Metrics bool
	Logger  *slog.Logger
}

// Server is the status HTTP server.
type Server struct {
	opts     Options
	logger   *slog.Logger
	router   chi.Router
	server   *http.Server
	listener net.Listener
}

// New builds the server. It returns nil when no bind address is configured.
func New(opts Options) *Server {
	opts.Bind = strings.TrimSpace(opts.Bind)
	if opts.Bind == "" {
		return nil
	}
	s := &Server{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "status-api"),
	}
	s.router = s.routes()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(api chi.Router) {
		api.Get("/queue", s.handleQueue)
		api.Get("/engines", s.handleEngines)
		api.Get("/engines/{id}", s.handleEngine)
	})
	if s.opts.Metrics {
		metrics.MustRegister()
		r.Handle("/metrics", metrics.Handler())
	}
	return r
}

// Start listens on the bind address and serves until ctx ends or Stop.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return fmt.Errorf("status api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("status api listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down with a five second grace period.
func (s *Server) Stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Queue == nil {
		s.writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	var inflight, pending int
	if s.opts.Load != nil {
		inflight, pending = s.opts.Load.Stats()
	}
	s.writeJSON(w, http.StatusOK, fromSnapshot(s.opts.Queue.Snapshot(), inflight, pending))
}

func (s *Server) handleEngines(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Engines == nil {
		s.writeError(w, http.StatusServiceUnavailable, "engines unavailable")
		return
	}
	descs := s.opts.Engines.Descriptors()
	views := make([]EngineView, 0, len(descs))
	for _, d := range descs {
		views = append(views, fromDescriptor(d))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleEngine(w http.ResponseWriter, r *http.Request) {
	if s.opts.Engines == nil {
		s.writeError(w, http.StatusServiceUnavailable, "engines unavailable")
		return
	}
	id := chi.URLParam(r, "id")
	for _, d := range s.opts.Engines.Descriptors() {
		if d.ID == id {
			s.writeJSON(w, http.StatusOK, fromDescriptor(d))
			return
		}
	}
	s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown engine %q", id))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
