package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"voxbridge/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if want := filepath.Join(tempHome, "voxbridge"); cfg.Paths.OutputDir != want {
		t.Fatalf("unexpected output dir: got %q want %q", cfg.Paths.OutputDir, want)
	}
	if want := filepath.Join(tempHome, ".local", "share", "voxbridge", "models"); cfg.Paths.ModelsDir != want {
		t.Fatalf("unexpected models dir: got %q want %q", cfg.Paths.ModelsDir, want)
	}
	if want := filepath.Join(os.TempDir(), "voxbridge_cache"); cfg.Paths.CacheDir != want {
		t.Fatalf("unexpected cache dir: got %q want %q", cfg.Paths.CacheDir, want)
	}
	if cfg.Engines.Cloud.APIKey != "sk-test" {
		t.Fatalf("expected cloud key from env, got %q", cfg.Engines.Cloud.APIKey)
	}
	if cfg.Workers.PoolSize != 3 {
		t.Fatalf("expected 3 workers, got %d", cfg.Workers.PoolSize)
	}
	if cfg.TickInterval() != 100*time.Millisecond {
		t.Fatalf("unexpected tick interval %s", cfg.TickInterval())
	}
	if cfg.MaxDuration() != time.Hour {
		t.Fatalf("unexpected max duration %s", cfg.MaxDuration())
	}
	if cfg.InterItemDelay() != time.Second {
		t.Fatalf("unexpected inter-item delay %s", cfg.InterItemDelay())
	}
	if cfg.Engines.Model.VocoderID != "microsoft/speecht5_hifigan" {
		t.Fatalf("unexpected vocoder default %q", cfg.Engines.Model.VocoderID)
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "voxbridge.toml")

	payload := map[string]any{
		"paths": map[string]any{
			"cache_dir":  filepath.Join(dir, "cache"),
			"output_dir": filepath.Join(dir, "out"),
		},
		"queue":      map[string]any{"inter_item_delay_seconds": 0.25},
		"validation": map[string]any{"max_duration_minutes": 5},
		"engines": map[string]any{
			"default_synthesizer": " Cloud ",
			"model": map[string]any{
				"model_id":         "/facebook/mms-tts-eng/",
				"vocoder_families": []string{" SpeechT5 ", ""},
			},
		},
		"logging": map[string]any{"format": "JSON", "level": "DEBUG"},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.InterItemDelay() != 250*time.Millisecond {
		t.Fatalf("unexpected delay %s", cfg.InterItemDelay())
	}
	if cfg.MaxDuration() != 5*time.Minute {
		t.Fatalf("unexpected max duration %s", cfg.MaxDuration())
	}
	if cfg.Engines.DefaultSynthesizer != "cloud" {
		t.Fatalf("expected normalized synthesizer, got %q", cfg.Engines.DefaultSynthesizer)
	}
	if cfg.Engines.Model.ModelID != "facebook/mms-tts-eng" {
		t.Fatalf("expected trimmed model id, got %q", cfg.Engines.Model.ModelID)
	}
	if got := cfg.Engines.Model.VocoderFamilies; len(got) != 1 || got[0] != "speecht5" {
		t.Fatalf("unexpected vocoder families %v", got)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "voxbridge.toml")
	if err := os.WriteFile(path, []byte("[queue]\nqueue_delay = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected parse error for unknown key")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"negative delay", func(c *config.Config) { c.Queue.InterItemDelaySeconds = -1 }, "inter_item_delay_seconds"},
		{"zero duration", func(c *config.Config) { c.Validation.MaxDurationMinutes = 0 }, "max_duration_minutes"},
		{"single worker", func(c *config.Config) { c.Workers.PoolSize = 1 }, "pool_size"},
		{"zero tick", func(c *config.Config) { c.Workers.TickIntervalMS = 0 }, "tick_interval_ms"},
		{"flat model id", func(c *config.Config) { c.Engines.Model.ModelID = "speecht5" }, "org/name"},
		{"no model files", func(c *config.Config) { c.Engines.Model.Files = nil }, "engines.model.files"},
		{"bad vad", func(c *config.Config) { c.Engines.WhisperX.VADMethod = "webrtc" }, "vad_method"},
		{"cache equals output", func(c *config.Config) { c.Paths.CacheDir = c.Paths.OutputDir }, "cache_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

func TestEnsureDirectoriesSkipsCache(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.ModelsDir = filepath.Join(base, "models")
	cfg.Paths.HistoryDB = filepath.Join(base, "state", "history.db")
	cfg.Paths.FailureLog = filepath.Join(base, "logs", "failures.log")
	cfg.Paths.LockPath = filepath.Join(base, "state", "voxbridge.lock")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.LogDir, cfg.Paths.ModelsDir, filepath.Join(base, "state")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
	if _, err := os.Stat(cfg.Paths.CacheDir); !os.IsNotExist(err) {
		t.Fatalf("expected cache dir to stay absent, got %v", err)
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Engines.DefaultRecognizer != "whisperx" {
		t.Fatalf("unexpected recognizer %q", cfg.Engines.DefaultRecognizer)
	}
}
