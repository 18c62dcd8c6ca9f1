package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"voxbridge/internal/config"
	"voxbridge/internal/deps"
	"voxbridge/internal/logging"
	"voxbridge/internal/services"
)

// ModelEngineID is the registry id of the local model engine.
const ModelEngineID = "model"

var vocoderFiles = []string{"config.json", "pytorch_model.bin"}

// ModelEngine runs a locally stored TTS model through a runner binary.
// Load makes sure the model (and its vocoder when the family needs one) is in
// the store, downloading missing files. A failed load leaves the engine
// unloaded so the next selection retries.
type ModelEngine struct {
	cfg        config.Model
	store      *Store
	downloader *Downloader
	run        CommandRunner
	logger     *slog.Logger

	mu         sync.Mutex
	loaded     bool
	modelDir   string
	vocoderDir string
}

// NewModelEngine builds the engine. A nil runner uses ExecRunner.
func NewModelEngine(cfg config.Model, store *Store, downloader *Downloader, runner CommandRunner, logger *slog.Logger) *ModelEngine {
	if runner == nil {
		runner = ExecRunner
	}
	return &ModelEngine{
		cfg:        cfg,
		store:      store,
		downloader: downloader,
		run:        runner,
		logger:     logging.NewComponentLogger(logger, "engine.model"),
	}
}

func (m *ModelEngine) ID() string { return ModelEngineID }

func (m *ModelEngine) Kind() Kind { return KindModel }

func (m *ModelEngine) ModelID() string { return m.cfg.ModelID }

// VocoderID is empty when the model family synthesizes without a vocoder.
func (m *ModelEngine) VocoderID() string {
	if m.needsVocoder() {
		return m.cfg.VocoderID
	}
	return ""
}

func (m *ModelEngine) Requirements() []deps.Requirement {
	return []deps.Requirement{{
		Name:        "model runner",
		Command:     m.cfg.Runner,
		Description: "Runs local TTS models",
	}}
}

func (m *ModelEngine) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *ModelEngine) needsVocoder() bool {
	return slices.Contains(m.cfg.VocoderFamilies, modelFamily(m.cfg.ModelID))
}

// Load acquires the model and, for vocoder families, the vocoder.
func (m *ModelEngine) Load(ctx context.Context, progress Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return nil
	}
	modelDir, err := m.ensure(ctx, m.cfg.ModelID, m.cfg.Files, progress)
	if err != nil {
		return err
	}
	var vocoderDir string
	if m.needsVocoder() {
		if strings.TrimSpace(m.cfg.VocoderID) == "" {
			return services.Wrap(services.ErrConfiguration, "model", "load",
				fmt.Sprintf("model %s requires engines.model.vocoder_id", m.cfg.ModelID), nil)
		}
		vocoderDir, err = m.ensure(ctx, m.cfg.VocoderID, vocoderFiles, progress)
		if err != nil {
			return err
		}
	}
	m.modelDir = modelDir
	m.vocoderDir = vocoderDir
	m.loaded = true
	m.logger.Info("model loaded",
		logging.String(logging.FieldEventType, "model_loaded"),
		logging.String("model_id", m.cfg.ModelID),
		logging.String("vocoder_id", m.VocoderID()),
		logging.String("model_dir", modelDir),
	)
	return nil
}

// Pull downloads a model into the store without loading it.
func (m *ModelEngine) Pull(ctx context.Context, modelID string, progress Progress) (string, error) {
	files := m.cfg.Files
	if modelID == m.cfg.VocoderID {
		files = vocoderFiles
	}
	return m.ensure(ctx, modelID, files, progress)
}

func (m *ModelEngine) ensure(ctx context.Context, modelID string, files []string, progress Progress) (string, error) {
	dir, err := m.store.Path(modelID)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "model", "load", "model id", err)
	}
	progress.report("Checking if %s is available locally...", modelID)
	if m.store.Present(modelID, files) {
		m.logger.Debug("model store decision", logging.Args(logging.DecisionAttrs("model_store", "hit", modelID)...)...)
		return dir, nil
	}
	m.logger.Info("model store decision", logging.Args(logging.DecisionAttrs("model_store", "miss", modelID)...)...)
	if m.downloader == nil {
		return "", services.Wrap(services.ErrLoad, "model", "load",
			fmt.Sprintf("model %s not found in %s", modelID, m.store.Root()), nil)
	}
	for i, file := range files {
		dest := filepath.Join(dir, file)
		if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
			continue
		}
		progress.report("Downloading %s (%d/%d): %s", modelID, i+1, len(files), file)
		if err := m.downloader.Fetch(ctx, modelID, file, dest); err != nil {
			return "", services.Wrap(services.ErrLoad, "model", "download", fmt.Sprintf("%s/%s", modelID, file), err)
		}
	}
	if err := m.store.MarkComplete(modelID); err != nil {
		return "", services.Wrap(services.ErrLoad, "model", "load", "write model marker", err)
	}
	progress.report("Downloaded %s", modelID)
	return dir, nil
}

// ModelSynthesize runs the runner binary and returns mono PCM samples. A
// non-empty speaker is passed to the runner as --speaker.
func (m *ModelEngine) ModelSynthesize(ctx context.Context, text, speaker string) ([]int16, int, error) {
	m.mu.Lock()
	loaded, modelDir, vocoderDir := m.loaded, m.modelDir, m.vocoderDir
	m.mu.Unlock()
	if !loaded {
		return nil, 0, services.Wrap(services.ErrLoad, "model", "synthesize", "model not loaded", nil)
	}

	work, err := os.MkdirTemp("", "voxbridge-model-*")
	if err != nil {
		return nil, 0, services.Wrap(services.ErrSynthesis, "model", "synthesize", "create work dir", err)
	}
	defer os.RemoveAll(work)
	input := filepath.Join(work, "input.txt")
	output := filepath.Join(work, "output.wav")
	if err := os.WriteFile(input, []byte(text), 0o600); err != nil {
		return nil, 0, services.Wrap(services.ErrSynthesis, "model", "synthesize", "stage text", err)
	}

	args := []string{"--model", modelDir}
	if vocoderDir != "" {
		args = append(args, "--vocoder", vocoderDir)
	}
	if speaker != "" {
		args = append(args, "--speaker", speaker)
	}
	args = append(args, "--input", input, "--output", output)
	if _, err := m.run(ctx, m.cfg.Runner, args...); err != nil {
		return nil, 0, commandError(services.ErrSynthesis, "model", "synthesize", err)
	}

	f, err := os.Open(output)
	if err != nil {
		return nil, 0, services.Wrap(services.ErrSynthesis, "model", "synthesize", "runner produced no audio", err)
	}
	defer f.Close()
	samples, rate, err := DecodeWAV(f)
	if err != nil {
		return nil, 0, services.Wrap(services.ErrSynthesis, "model", "synthesize", "decode runner output", err)
	}
	return samples, rate, nil
}
