package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"voxbridge/internal/config"
	"voxbridge/internal/deps"
	"voxbridge/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if r := CheckFreeSpace("cache", dir, 1); !r.Passed {
		t.Fatalf("expected pass with a one byte floor, got %s", r.Detail)
	}
	if r := CheckFreeSpace("cache", dir, ^uint64(0)); r.Passed {
		t.Fatalf("expected failure with an impossible floor, got %s", r.Detail)
	}
	if r := CheckFreeSpace("cache", filepath.Join(dir, "missing"), 1); r.Passed {
		t.Fatal("expected statfs failure for a missing path")
	}
}

func TestCheckCloud_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer srv.Close()

	result := CheckCloud(context.Background(), config.Cloud{APIKey: "good-key", BaseURL: srv.URL})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}

	result = CheckCloud(context.Background(), config.Cloud{APIKey: "bad-key", BaseURL: srv.URL})
	if result.Passed || result.Detail != "auth failed (invalid api key)" {
		t.Fatalf("expected auth failure, got: %+v", result)
	}
}

func TestCheckCloud_MissingKey(t *testing.T) {
	if r := CheckCloud(context.Background(), config.Cloud{}); r.Passed || r.Detail != "API key missing" {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestRunAllChecksLazyCacheDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Engines.Cloud.APIKey = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Name] = r
	}
	if _, ok := byName["Cloud speech API"]; ok {
		t.Fatal("cloud check must be skipped without an API key")
	}
	cache, ok := byName["Cache directory"]
	if !ok || !cache.Passed {
		t.Fatalf("expected cache ancestor check to pass, got %+v", cache)
	}
	if !byName["Output directory"].Passed || !byName["Models directory"].Passed {
		t.Fatalf("expected directories to pass: %+v", results)
	}
}

func TestCheckSystemDepsRequiresSelectedEngines(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ffprobe"))
	cfg.Engines.DefaultSynthesizer = "offline"
	cfg.Engines.DefaultRecognizer = "cloud"
	cfg.Engines.Offline.Binary = "voxbridge-missing-espeak"
	cfg.Engines.Model.Runner = "voxbridge-missing-runner"

	statuses := CheckSystemDeps(cfg)
	missing := deps.Missing(statuses)
	if len(missing) != 1 || missing[0].Name != "espeak-ng" {
		t.Fatalf("expected only espeak-ng required and missing, got %+v", missing)
	}
	for _, s := range statuses {
		if s.Name == "FFprobe" && !s.Available {
			t.Fatalf("expected stubbed ffprobe on PATH: %+v", s)
		}
	}
}
