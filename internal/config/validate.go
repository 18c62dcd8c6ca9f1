package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateEngines(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.CacheDir == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.ModelsDir == "" {
		return errors.New("paths.models_dir must be set")
	}
	if c.Paths.CacheDir == c.Paths.OutputDir {
		return errors.New("paths.cache_dir must differ from paths.output_dir; the cache is wiped on shutdown")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.InterItemDelaySeconds < 0 {
		return errors.New("queue.inter_item_delay_seconds must be zero or positive")
	}
	if c.Validation.MaxDurationMinutes <= 0 {
		return errors.New("validation.max_duration_minutes must be positive")
	}
	if c.Validation.MaxFileSizeMB < 0 {
		return errors.New("validation.max_file_size_mb must be zero or positive")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.PoolSize < 2 {
		// One conversion and one synthesis must be able to run side by side.
		return errors.New("workers.pool_size must be at least 2")
	}
	if c.Workers.TickIntervalMS <= 0 {
		return errors.New("workers.tick_interval_ms must be positive")
	}
	return nil
}

func (c *Config) validateEngines() error {
	if c.Engines.DefaultSynthesizer == "" {
		return errors.New("engines.default_synthesizer must be set")
	}
	if c.Engines.DefaultRecognizer == "" {
		return errors.New("engines.default_recognizer must be set")
	}
	if c.Engines.Cloud.RequestsPerMinute <= 0 {
		return errors.New("engines.cloud.requests_per_minute must be positive")
	}
	if _, err := url.ParseRequestURI(c.Engines.Cloud.BaseURL); err != nil {
		return fmt.Errorf("engines.cloud.base_url: %w", err)
	}
	if strings.TrimSpace(c.Engines.Offline.Binary) == "" {
		return errors.New("engines.offline.binary must be set")
	}
	model := c.Engines.Model
	if model.ModelID == "" {
		return errors.New("engines.model.model_id must be set")
	}
	if !strings.Contains(model.ModelID, "/") {
		return fmt.Errorf("engines.model.model_id %q must be in org/name form", model.ModelID)
	}
	if model.VocoderID != "" && !strings.Contains(model.VocoderID, "/") {
		return fmt.Errorf("engines.model.vocoder_id %q must be in org/name form", model.VocoderID)
	}
	if len(model.Files) == 0 {
		return errors.New("engines.model.files must list at least one file")
	}
	if model.DownloadAttempts <= 0 {
		return errors.New("engines.model.download_attempts must be positive")
	}
	if model.DownloadTimeoutSeconds <= 0 {
		return errors.New("engines.model.download_timeout_seconds must be positive")
	}
	switch c.Engines.WhisperX.VADMethod {
	case "silero", "pyannote":
	default:
		return fmt.Errorf("engines.whisperx.vad_method %q must be silero or pyannote", c.Engines.WhisperX.VADMethod)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.QueueMinItems < 0 {
		return errors.New("notifications.queue_min_items must be zero or positive")
	}
	return nil
}
