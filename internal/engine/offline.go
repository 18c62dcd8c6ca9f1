package engine

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"voxbridge/internal/config"
	"voxbridge/internal/deps"
	"voxbridge/internal/logging"
	"voxbridge/internal/services"
)

// OfflineID is the registry id of the espeak-ng engine.
const OfflineID = "offline"

// OfflineEngine synthesizes speech with a local espeak-ng binary. The
// selected voice persists across calls until changed.
type OfflineEngine struct {
	cfg       config.Offline
	outputDir string
	run       CommandRunner
	logger    *slog.Logger

	mu    sync.Mutex
	voice string
}

// NewOfflineEngine builds the engine. A nil runner uses ExecRunner.
func NewOfflineEngine(cfg config.Offline, outputDir string, runner CommandRunner, logger *slog.Logger) *OfflineEngine {
	if runner == nil {
		runner = ExecRunner
	}
	return &OfflineEngine{
		cfg:       cfg,
		outputDir: outputDir,
		run:       runner,
		logger:    logging.NewComponentLogger(logger, "engine.offline"),
		voice:     strings.TrimSpace(cfg.Voice),
	}
}

func (o *OfflineEngine) ID() string { return OfflineID }

func (o *OfflineEngine) Kind() Kind { return KindOffline }

func (o *OfflineEngine) Requirements() []deps.Requirement {
	return []deps.Requirement{{
		Name:        "espeak-ng",
		Command:     o.cfg.Binary,
		Description: "Offline speech synthesis",
	}}
}

// SelectVoice sets the voice used by later calls that do not name one.
func (o *OfflineEngine) SelectVoice(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return services.Wrap(services.ErrValidation, "offline", "select voice", "voice id is empty", nil)
	}
	o.mu.Lock()
	o.voice = id
	o.mu.Unlock()
	o.logger.Debug("offline voice selected", logging.String("voice", id))
	return nil
}

// SelectedVoice reports the persisted voice.
func (o *OfflineEngine) SelectedVoice() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.voice
}

// Voices enumerates the installed espeak-ng voices.
func (o *OfflineEngine) Voices(ctx context.Context) ([]Voice, error) {
	out, err := o.run(ctx, o.cfg.Binary, "--voices")
	if err != nil {
		return nil, commandError(services.ErrEngineUnavailable, "offline", "voices", err)
	}
	return parseVoices(out), nil
}

// Synthesize writes a wav rendering of text. The text is passed through a
// temporary file so long inputs never hit argument limits.
func (o *OfflineEngine) Synthesize(ctx context.Context, text string, params VoiceParams) (Audio, error) {
	voice := strings.TrimSpace(params.Voice)
	if voice == "" {
		voice = o.SelectedVoice()
	}
	path := outputPath(o.outputDir, OfflineID, "wav", params)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Audio{}, services.Wrap(services.ErrSynthesis, "offline", "synthesize", "ensure output dir", err)
	}

	input, err := os.CreateTemp("", "voxbridge-offline-*.txt")
	if err != nil {
		return Audio{}, services.Wrap(services.ErrSynthesis, "offline", "synthesize", "stage text", err)
	}
	defer os.Remove(input.Name())
	if _, err := input.WriteString(text); err != nil {
		input.Close()
		return Audio{}, services.Wrap(services.ErrSynthesis, "offline", "synthesize", "stage text", err)
	}
	if err := input.Close(); err != nil {
		return Audio{}, services.Wrap(services.ErrSynthesis, "offline", "synthesize", "stage text", err)
	}

	if _, err := o.run(ctx, o.cfg.Binary, o.buildArgs(voice, input.Name(), path)...); err != nil {
		return Audio{}, commandError(services.ErrSynthesis, "offline", "synthesize", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		return Audio{}, services.Wrap(services.ErrSynthesis, "offline", "synthesize", "espeak-ng produced no audio", err)
	}
	return Audio{Path: path, Format: "wav"}, nil
}

func (o *OfflineEngine) buildArgs(voice, inputPath, outputPath string) []string {
	args := make([]string, 0, 8)
	if voice != "" {
		args = append(args, "-v", voice)
	}
	if o.cfg.WordsPerMinute > 0 {
		args = append(args, "-s", strconv.Itoa(o.cfg.WordsPerMinute))
	}
	return append(args, "-w", outputPath, "-f", inputPath)
}

// parseVoices reads the table printed by `espeak-ng --voices`:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  en-us           --/M      English_(America)  gmw/en-US     (en 10)
func parseVoices(out []byte) []Voice {
	var voices []Voice
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}
		gender := ""
		if _, g, ok := strings.Cut(fields[2], "/"); ok {
			switch g {
			case "M":
				gender = "male"
			case "F":
				gender = "female"
			}
		}
		voices = append(voices, Voice{
			ID:       fields[1],
			Name:     strings.ReplaceAll(fields[3], "_", " "),
			Language: fields[1],
			Gender:   gender,
		})
	}
	return voices
}
