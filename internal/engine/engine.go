package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"voxbridge/internal/deps"
)

// Kind distinguishes how an engine obtains its capability.
type Kind string

const (
	KindCloud   Kind = "cloud"
	KindOffline Kind = "offline"
	KindModel   Kind = "model"
)

// Progress receives human-readable status messages during long operations.
type Progress func(message string)

func (p Progress) report(format string, args ...any) {
	if p != nil {
		p(fmt.Sprintf(format, args...))
	}
}

// VoiceParams parameterizes a synthesis call. Empty fields fall back to the
// engine's configured defaults.
type VoiceParams struct {
	Voice    string
	Language string
	// OutputPath is where the audio is written. When empty the engine picks
	// a unique name under its output directory.
	OutputPath string
}

// Audio describes a synthesized artifact.
type Audio struct {
	Path       string
	Format     string
	SampleRate int
}

// Voice is one entry of an engine's voice catalog.
type Voice struct {
	ID       string
	Name     string
	Language string
	Gender   string
}

// Capabilities lists what an engine can do.
type Capabilities struct {
	Synthesize bool
	Recognize  bool
	Voices     bool
}

// Descriptor is the read-only view of a registered engine.
type Descriptor struct {
	ID           string
	Name         string
	Kind         Kind
	Loaded       bool
	ModelID      string
	VocoderID    string
	Capabilities Capabilities
}

// Engine is the minimum every registered engine implements.
type Engine interface {
	ID() string
	Kind() Kind
}

// Synthesizer turns text into an audio file.
type Synthesizer interface {
	Engine
	Synthesize(ctx context.Context, text string, params VoiceParams) (Audio, error)
}

// SampleSynthesizer turns text into raw mono PCM samples. The registry
// persists the samples as a wav file. speaker selects a voice of a
// multi-speaker model; empty means the model default.
type SampleSynthesizer interface {
	Engine
	ModelSynthesize(ctx context.Context, text, speaker string) ([]int16, int, error)
}

// Recognizer turns an audio file into text.
type Recognizer interface {
	Engine
	Recognize(ctx context.Context, audioPath string) (string, error)
}

// Loader is implemented by engines with an acquisition step.
type Loader interface {
	Load(ctx context.Context, progress Progress) error
	Loaded() bool
}

// VoiceLister is implemented by engines with a selectable voice catalog.
type VoiceLister interface {
	Voices(ctx context.Context) ([]Voice, error)
	SelectVoice(id string) error
	SelectedVoice() string
}

// ModelInfo is implemented by engines backed by a model store.
type ModelInfo interface {
	ModelID() string
	VocoderID() string
}

// Requirer is implemented by engines that shell out to external binaries.
type Requirer interface {
	Requirements() []deps.Requirement
}

// Describe builds the descriptor for an engine from the interfaces it
// implements.
func Describe(e Engine) Descriptor {
	d := Descriptor{
		ID:     e.ID(),
		Name:   displayName(e.ID()),
		Kind:   e.Kind(),
		Loaded: true,
	}
	if l, ok := e.(Loader); ok {
		d.Loaded = l.Loaded()
	}
	if m, ok := e.(ModelInfo); ok {
		d.ModelID = m.ModelID()
		d.VocoderID = m.VocoderID()
	}
	_, synth := e.(Synthesizer)
	_, samples := e.(SampleSynthesizer)
	_, recog := e.(Recognizer)
	_, voices := e.(VoiceLister)
	d.Capabilities = Capabilities{Synthesize: synth || samples, Recognize: recog, Voices: voices}
	return d
}

var titler = cases.Title(language.English)

func displayName(id string) string {
	return titler.String(strings.NewReplacer("-", " ", "_", " ").Replace(id))
}

// outputPath returns params.OutputPath or a fresh unique path under dir.
func outputPath(dir, engineID, ext string, params VoiceParams) string {
	if p := strings.TrimSpace(params.OutputPath); p != "" {
		return p
	}
	name := fmt.Sprintf("%s-%s.%s", engineID, uuid.NewString()[:8], ext)
	return filepath.Join(dir, name)
}
