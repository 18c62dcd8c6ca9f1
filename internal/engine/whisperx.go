package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"voxbridge/internal/config"
	"voxbridge/internal/deps"
	"voxbridge/internal/logging"
	"voxbridge/internal/services"
)

// WhisperXID is the registry id of the local recognition engine.
const WhisperXID = "whisperx"

// WhisperX invocation constants.
const (
	UVXCommand          = "uvx"
	whisperxCUDAIndex   = "https://download.pytorch.org/whl/cu128"
	whisperxPypiIndex   = "https://pypi.org/simple"
	whisperxBatchSize   = "4"
	whisperxChunkSize   = "15"
	whisperxBeamSize    = "5"
	whisperxOutput      = "json"
	whisperxCPUCompute  = "float32"
	VADMethodSilero     = "silero"
	VADMethodPyannote   = "pyannote"
	defaultWhisperModel = "large-v3"
)

// WhisperXEngine transcribes audio by running `uvx whisperx` and joining the
// JSON segments it writes.
type WhisperXEngine struct {
	cfg      config.WhisperX
	language string
	run      CommandRunner
	logger   *slog.Logger
}

// NewWhisperXEngine builds the engine. A nil runner uses ExecRunner.
func NewWhisperXEngine(cfg config.WhisperX, lang string, runner CommandRunner, logger *slog.Logger) *WhisperXEngine {
	if runner == nil {
		runner = ExecRunner
	}
	base, _ := languageBase(lang)
	return &WhisperXEngine{
		cfg:      cfg,
		language: base,
		run:      runner,
		logger:   logging.NewComponentLogger(logger, "engine.whisperx"),
	}
}

func (w *WhisperXEngine) ID() string { return WhisperXID }

func (w *WhisperXEngine) Kind() Kind { return KindModel }

func (w *WhisperXEngine) ModelID() string { return w.model() }

func (w *WhisperXEngine) VocoderID() string { return "" }

func (w *WhisperXEngine) Requirements() []deps.Requirement {
	return []deps.Requirement{{
		Name:        "uvx",
		Command:     UVXCommand,
		Description: "Runs WhisperX for local transcription",
	}}
}

func (w *WhisperXEngine) model() string {
	if m := strings.TrimSpace(w.cfg.Model); m != "" {
		return m
	}
	return defaultWhisperModel
}

// Recognize transcribes audioPath. WhisperX output goes to a scratch
// directory removed afterwards.
func (w *WhisperXEngine) Recognize(ctx context.Context, audioPath string) (string, error) {
	if strings.TrimSpace(audioPath) == "" {
		return "", services.Wrap(services.ErrValidation, "whisperx", "recognize", "source path required", nil)
	}
	outputDir, err := os.MkdirTemp("", "voxbridge-whisperx-*")
	if err != nil {
		return "", services.Wrap(services.ErrRecognition, "whisperx", "recognize", "create output dir", err)
	}
	defer os.RemoveAll(outputDir)

	if _, err := w.run(ctx, UVXCommand, w.buildArgs(audioPath, outputDir)...); err != nil {
		return "", commandError(services.ErrRecognition, "whisperx", "recognize", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outputDir, base+".json")
	segments, err := LoadSegments(jsonPath)
	if err != nil {
		return "", services.Wrap(services.ErrRecognition, "whisperx", "recognize", "read transcript", err)
	}
	text := JoinSegments(segments)
	w.logger.Debug("whisperx transcript loaded",
		logging.String("source", audioPath),
		logging.Int("segments", len(segments)),
	)
	return text, nil
}

func (w *WhisperXEngine) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 32)
	if w.cfg.CUDAEnabled {
		args = append(args, "--index-url", whisperxCUDAIndex, "--extra-index-url", whisperxPypiIndex)
	} else {
		args = append(args, "--index-url", whisperxPypiIndex)
	}
	args = append(args,
		"whisperx",
		source,
		"--model", w.model(),
		"--batch_size", whisperxBatchSize,
		"--chunk_size", whisperxChunkSize,
		"--beam_size", whisperxBeamSize,
		"--output_dir", outputDir,
		"--output_format", whisperxOutput,
	)

	vad := w.cfg.VADMethod
	if vad == "" {
		vad = VADMethodSilero
	}
	args = append(args, "--vad_method", vad)
	if vad == VADMethodPyannote && w.cfg.HFToken != "" {
		args = append(args, "--hf_token", w.cfg.HFToken)
	}
	if w.language != "" {
		args = append(args, "--language", w.language)
	}
	if w.cfg.CUDAEnabled {
		args = append(args, "--device", "cuda")
	} else {
		args = append(args, "--device", "cpu", "--compute_type", whisperxCPUCompute)
	}
	return args
}

// Segment is one transcribed span from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// LoadSegments reads the segments of a WhisperX JSON file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Segments []Segment `json:"segments"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload.Segments, nil
}

// JoinSegments concatenates non-empty segment texts with single spaces.
func JoinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
