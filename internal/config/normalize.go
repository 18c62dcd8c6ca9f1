package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngines()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"paths.cache_dir", &c.Paths.CacheDir},
		{"paths.output_dir", &c.Paths.OutputDir},
		{"paths.log_dir", &c.Paths.LogDir},
		{"paths.models_dir", &c.Paths.ModelsDir},
		{"paths.history_db", &c.Paths.HistoryDB},
		{"paths.failure_log", &c.Paths.FailureLog},
		{"paths.lock_path", &c.Paths.LockPath},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	c.Paths.StatusBind = strings.TrimSpace(c.Paths.StatusBind)
	return nil
}

func (c *Config) normalizeEngines() {
	c.Engines.DefaultSynthesizer = strings.ToLower(strings.TrimSpace(c.Engines.DefaultSynthesizer))
	c.Engines.DefaultRecognizer = strings.ToLower(strings.TrimSpace(c.Engines.DefaultRecognizer))
	c.Engines.Language = strings.TrimSpace(c.Engines.Language)
	if c.Engines.Language == "" {
		c.Engines.Language = defaultLanguage
	}

	cloud := &c.Engines.Cloud
	cloud.APIKey = strings.TrimSpace(cloud.APIKey)
	if cloud.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			cloud.APIKey = strings.TrimSpace(value)
		}
	}
	cloud.BaseURL = strings.TrimRight(strings.TrimSpace(cloud.BaseURL), "/")
	if cloud.BaseURL == "" {
		cloud.BaseURL = defaultCloudBaseURL
	}

	model := &c.Engines.Model
	model.ModelID = strings.Trim(strings.TrimSpace(model.ModelID), "/")
	model.VocoderID = strings.Trim(strings.TrimSpace(model.VocoderID), "/")
	model.BaseURL = strings.TrimRight(strings.TrimSpace(model.BaseURL), "/")
	families := make([]string, 0, len(model.VocoderFamilies))
	for _, family := range model.VocoderFamilies {
		if family = strings.ToLower(strings.TrimSpace(family)); family != "" {
			families = append(families, family)
		}
	}
	model.VocoderFamilies = families

	whisper := &c.Engines.WhisperX
	whisper.VADMethod = strings.ToLower(strings.TrimSpace(whisper.VADMethod))
	if whisper.VADMethod == "" {
		whisper.VADMethod = defaultWhisperXVADMethod
	}
	whisper.HFToken = strings.TrimSpace(whisper.HFToken)
	if whisper.HFToken == "" {
		if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			whisper.HFToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
