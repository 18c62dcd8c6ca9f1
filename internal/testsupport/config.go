package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"voxbridge/internal/config"
)

// ConfigOption adjusts the config NewConfig returns.
type ConfigOption func(t testing.TB, base string, cfg *config.Config)

// NewConfig returns defaults rooted in a fresh temp directory, with queue
// pacing removed and a fast scheduler tick so tests never sleep.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	under := func(parts ...string) string { return filepath.Join(append([]string{base}, parts...)...) }

	cfg.Paths.CacheDir = under("cache")
	cfg.Paths.OutputDir = under("output")
	cfg.Paths.LogDir = under("logs")
	cfg.Paths.ModelsDir = under("models")
	cfg.Paths.HistoryDB = under("history.db")
	cfg.Paths.FailureLog = under("logs", "failures.log")
	cfg.Paths.LockPath = under("voxbridge.lock")
	cfg.Queue.InterItemDelaySeconds = 0
	cfg.Workers.TickIntervalMS = 5
	cfg.Engines.Cloud.APIKey = "test"

	for _, opt := range opts {
		opt(t, base, &cfg)
	}
	return &cfg
}

// WithStubbedBinaries puts no-op executables for names at the front of PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(t testing.TB, base string, _ *config.Config) {
		bin := filepath.Join(base, "bin")
		for _, name := range names {
			WriteStubBinary(t, bin, name, "exit 0")
		}
		t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the temp directory NewConfig rooted cfg in.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.CacheDir)
}
