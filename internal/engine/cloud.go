package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"voxbridge/internal/config"
	"voxbridge/internal/fileutil"
	"voxbridge/internal/logging"
	"voxbridge/internal/services"
)

// CloudID is the registry id of the cloud engine.
const CloudID = "cloud"

// CloudEngine speaks to an OpenAI-compatible speech API. It is stateless
// apart from a request throttle; failures are returned without retry.
type CloudEngine struct {
	client    *openai.Client
	cfg       config.Cloud
	language  string
	outputDir string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewCloudEngine builds the engine. lang is a BCP-47 tag used for
// recognition hints and validated up front.
func NewCloudEngine(cfg config.Cloud, lang, outputDir string, httpClient *http.Client, logger *slog.Logger) (*CloudEngine, error) {
	base, err := languageBase(lang)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "cloud", "new", "engines.language", err)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if url := strings.TrimSpace(cfg.BaseURL); url != "" {
		clientCfg.BaseURL = url
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	return &CloudEngine{
		client:    openai.NewClientWithConfig(clientCfg),
		cfg:       cfg,
		language:  base,
		outputDir: outputDir,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logging.NewComponentLogger(logger, "engine.cloud"),
	}, nil
}

func (c *CloudEngine) ID() string { return CloudID }

func (c *CloudEngine) Kind() Kind { return KindCloud }

// Synthesize requests speech for text and writes the mp3 response.
func (c *CloudEngine) Synthesize(ctx context.Context, text string, params VoiceParams) (Audio, error) {
	if err := c.ready("synthesize"); err != nil {
		return Audio{}, err
	}
	if params.Language != "" {
		if _, err := languageBase(params.Language); err != nil {
			return Audio{}, services.Wrap(services.ErrValidation, "cloud", "synthesize", "language", err)
		}
	}
	voice := strings.TrimSpace(params.Voice)
	if voice == "" {
		voice = c.cfg.Voice
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Audio{}, services.Wrap(services.ErrCancelled, "cloud", "synthesize", "throttle wait", err)
	}

	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.cfg.TTSModel),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return Audio{}, apiError(services.ErrSynthesis, "synthesize", err)
	}
	defer resp.Close()

	path := outputPath(c.outputDir, CloudID, "mp3", params)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Audio{}, services.Wrap(services.ErrSynthesis, "cloud", "synthesize", "ensure output dir", err)
	}
	if err := fileutil.WriteAtomic(path, 0o644, func(w io.WriteSeeker) error {
		_, err := io.Copy(w, resp)
		return err
	}); err != nil {
		return Audio{}, services.Wrap(services.ErrSynthesis, "cloud", "synthesize", "write audio", err)
	}
	c.logger.Debug("cloud speech written",
		logging.String("output", path),
		logging.String("voice", voice),
		logging.String("model", c.cfg.TTSModel),
	)
	return Audio{Path: path, Format: "mp3"}, nil
}

// Recognize uploads audioPath for transcription.
func (c *CloudEngine) Recognize(ctx context.Context, audioPath string) (string, error) {
	if err := c.ready("recognize"); err != nil {
		return "", err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", services.Wrap(services.ErrCancelled, "cloud", "recognize", "throttle wait", err)
	}
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.cfg.STTModel,
		FilePath: audioPath,
		Language: c.language,
	})
	if err != nil {
		return "", apiError(services.ErrRecognition, "recognize", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (c *CloudEngine) ready(operation string) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return services.Wrap(services.ErrConfiguration, "cloud", operation, "engines.cloud.api_key is not set (or export OPENAI_API_KEY)", nil)
	}
	return nil
}

// apiError maps authentication failures to configuration errors and
// everything else to the operation marker.
func apiError(marker error, operation string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "cloud", operation, "api key rejected", err)
		}
		return services.Wrap(marker, "cloud", operation, fmt.Sprintf("api status %d", apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return services.Wrap(marker, "cloud", operation, fmt.Sprintf("request status %d", reqErr.HTTPStatusCode), err)
	}
	return services.Wrap(marker, "cloud", operation, "request failed", err)
}

// languageBase validates a BCP-47 tag and returns its ISO 639-1 base.
func languageBase(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.New("language code is empty")
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", code, err)
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return "", fmt.Errorf("language %q has no base", code)
	}
	return base.String(), nil
}
