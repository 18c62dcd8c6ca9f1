package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voxbridge/internal/engine"
	"voxbridge/internal/logging"
	"voxbridge/internal/queue"
)

type staticQueue queue.Snapshot

func (q staticQueue) Snapshot() queue.Snapshot { return queue.Snapshot(q) }

type staticEngines []engine.Descriptor

func (e staticEngines) Descriptors() []engine.Descriptor { return e }

type staticLoad struct{ inflight, pending int }

func (l staticLoad) Stats() (int, int) { return l.inflight, l.pending }

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	opts.Bind = "127.0.0.1:0"
	opts.Logger = logging.NewNop()
	srv := New(opts)
	if srv == nil {
		t.Fatal("expected server")
	}
	return srv.Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewWithoutBindReturnsNil(t *testing.T) {
	if New(Options{Bind: "  "}) != nil {
		t.Fatal("expected nil server without bind address")
	}
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := get(t, h, "/healthz")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestQueueSnapshot(t *testing.T) {
	snap := queue.Snapshot{
		RunID:   "run-1",
		Running: true,
		Jobs: []queue.Job{
			{ID: "a", SourcePath: "/a.wav", Status: queue.StatusConverting},
			{ID: "b", SourcePath: "/b.wav", Status: queue.StatusPending},
		},
		Failures: []queue.Failure{{Job: queue.Job{ID: "z", SourcePath: "/z.wav", Status: queue.StatusFailed, FailureReason: "no text generated"}}},
	}
	h := newTestServer(t, Options{Queue: staticQueue(snap), Load: staticLoad{inflight: 1, pending: 0}})
	rec := get(t, h, "/api/queue")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var view QueueView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.RunID != "run-1" || !view.Running || len(view.Jobs) != 2 || view.Inflight != 1 {
		t.Fatalf("unexpected view %+v", view)
	}
	if len(view.Failures) != 1 || view.Failures[0].FailureReason != "no text generated" {
		t.Fatalf("unexpected failures %+v", view.Failures)
	}
}

func TestEnginesRoutes(t *testing.T) {
	engines := staticEngines{
		{ID: "cloud", Name: "Cloud", Kind: engine.KindCloud, Loaded: true, Capabilities: engine.Capabilities{Synthesize: true, Recognize: true}},
		{ID: "model", Name: "Model", Kind: engine.KindModel, ModelID: "microsoft/speecht5_tts"},
	}
	h := newTestServer(t, Options{Engines: engines})

	rec := get(t, h, "/api/engines")
	var views []EngineView
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 2 || !views[0].Recognize || views[1].ModelID != "microsoft/speecht5_tts" {
		t.Fatalf("unexpected engines %+v", views)
	}

	if rec := get(t, h, "/api/engines/model"); rec.Code != http.StatusOK {
		t.Fatalf("expected engine lookup to succeed, got %d", rec.Code)
	}
	if rec := get(t, h, "/api/engines/nope"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMissingSourcesReturnUnavailable(t *testing.T) {
	h := newTestServer(t, Options{})
	for _, path := range []string{"/api/queue", "/api/engines"} {
		if rec := get(t, h, path); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, rec.Code)
		}
	}
}

func TestMetricsRouteOnlyWhenEnabled(t *testing.T) {
	if rec := get(t, newTestServer(t, Options{}), "/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with metrics disabled, got %d", rec.Code)
	}
	rec := get(t, newTestServer(t, Options{Metrics: true}), "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "voxbridge_") {
		t.Fatalf("expected metrics exposition, got %d", rec.Code)
	}
}

func TestStartServesOnBind(t *testing.T) {
	srv := New(Options{Bind: "127.0.0.1:0", Logger: logging.NewNop()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Stop()

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
