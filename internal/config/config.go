package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	CacheDir   string `toml:"cache_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
	ModelsDir  string `toml:"models_dir"`
	HistoryDB  string `toml:"history_db"`
	FailureLog string `toml:"failure_log"`
	LockPath   string `toml:"lock_path"`
	StatusBind string `toml:"status_bind"`
}

// Queue contains batch orchestration settings.
type Queue struct {
	// InterItemDelaySeconds is waited after every job outcome before the next
	// job starts, regardless of success or failure.
	InterItemDelaySeconds float64 `toml:"inter_item_delay_seconds"`
}

// Validation contains input checks applied before a conversion starts.
type Validation struct {
	MaxDurationMinutes int `toml:"max_duration_minutes"`
	// MaxFileSizeMB of zero disables the size ceiling.
	MaxFileSizeMB int `toml:"max_file_size_mb"`
}

// Workers contains dispatcher pool settings.
type Workers struct {
	PoolSize       int `toml:"pool_size"`
	TickIntervalMS int `toml:"tick_interval_ms"`
}

// Cloud configures the OpenAI-compatible speech API engine.
type Cloud struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	TTSModel          string `toml:"tts_model"`
	Voice             string `toml:"voice"`
	STTModel          string `toml:"stt_model"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// Offline configures the espeak-ng engine.
type Offline struct {
	Binary         string `toml:"binary"`
	Voice          string `toml:"voice"`
	WordsPerMinute int    `toml:"words_per_minute"`
}

// Model configures the downloadable model engine.
type Model struct {
	ModelID                string   `toml:"model_id"`
	VocoderID              string   `toml:"vocoder_id"`
	VocoderFamilies        []string `toml:"vocoder_families"`
	BaseURL                string   `toml:"base_url"`
	Files                  []string `toml:"files"`
	Runner                 string   `toml:"runner"`
	DownloadAttempts       int      `toml:"download_attempts"`
	DownloadTimeoutSeconds int      `toml:"download_timeout_seconds"`
}

// WhisperX configures the local recognition engine.
type WhisperX struct {
	Model       string `toml:"model"`
	CUDAEnabled bool   `toml:"cuda_enabled"`
	VADMethod   string `toml:"vad_method"`
	HFToken     string `toml:"hf_token"`
}

// Engines groups engine selection and per-engine settings.
type Engines struct {
	DefaultSynthesizer string   `toml:"default_synthesizer"`
	DefaultRecognizer  string   `toml:"default_recognizer"`
	Language           string   `toml:"language"`
	Cloud              Cloud    `toml:"cloud"`
	Offline            Offline  `toml:"offline"`
	Model              Model    `toml:"model"`
	WhisperX           WhisperX `toml:"whisperx"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Queue          bool   `toml:"queue"`
	Errors         bool   `toml:"errors"`
	QueueMinItems  int    `toml:"queue_min_items"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics toggles Prometheus collection.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values for voxbridge.
//
// Configuration sections by subsystem:
//   - Paths: cache, output, model store, log, history, and lock locations
//   - Queue: batch pacing
//   - Validation: duration and size ceilings for input audio
//   - Workers: dispatcher pool size and consumer tick
//   - Engines: engine selection plus cloud/offline/model/whisperx settings
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
//   - Metrics: Prometheus collection
type Config struct {
	Paths         Paths         `toml:"paths"`
	Queue         Queue         `toml:"queue"`
	Validation    Validation    `toml:"validation"`
	Workers       Workers       `toml:"workers"`
	Engines       Engines       `toml:"engines"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("voxbridge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the conversion core writes into.
// The cache directory is created lazily by the cache itself so a wiped cache
// stays absent.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputDir, c.Paths.LogDir, c.Paths.ModelsDir}
	for _, file := range []string{c.Paths.HistoryDB, c.Paths.FailureLog, c.Paths.LockPath} {
		if strings.TrimSpace(file) != "" {
			dirs = append(dirs, filepath.Dir(file))
		}
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFprobeBinary returns the ffprobe executable name used for duration probing.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// InterItemDelay returns the pause between batch items.
func (c *Config) InterItemDelay() time.Duration {
	return time.Duration(c.Queue.InterItemDelaySeconds * float64(time.Second))
}

// MaxDuration returns the longest accepted input duration.
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.Validation.MaxDurationMinutes) * time.Minute
}

// MaxFileSizeBytes returns the size ceiling, or zero when unlimited.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.Validation.MaxFileSizeMB) * 1024 * 1024
}

// TickInterval returns the consumer loop tick.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Workers.TickIntervalMS) * time.Millisecond
}

// ModelDownloadTimeout bounds a single model file download. Engine calls
// themselves are never bounded.
func (c *Config) ModelDownloadTimeout() time.Duration {
	return time.Duration(c.Engines.Model.DownloadTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
