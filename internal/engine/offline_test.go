package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"testing"

	"voxbridge/internal/config"
	"voxbridge/internal/logging"
	"voxbridge/internal/services"
)

func offlineTestConfig() config.Offline {
	return config.Offline{Binary: "espeak-ng", Voice: "en", WordsPerMinute: 160}
}

const sampleVoices = `Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  af              --/M      Afrikaans          gmw/af
 5  en-gb           --/M      English_(Great_Britain) gmw/en            (en 2)
 5  en-us           --/F      English_(America)  gmw/en-US            (en 3)
`

// recordingRunner captures invocations and writes a fake wav to the -w path.
type recordingRunner struct {
	calls [][]string
	err   error
}

func (r *recordingRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.err != nil {
		return nil, r.err
	}
	if len(args) == 1 && args[0] == "--voices" {
		return []byte(sampleVoices), nil
	}
	if i := slices.Index(args, "-w"); i >= 0 {
		if err := os.WriteFile(args[i+1], []byte("RIFF-fake"), 0o644); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func TestOfflineVoicesParsesCatalog(t *testing.T) {
	rec := &recordingRunner{}
	eng := NewOfflineEngine(offlineTestConfig(), t.TempDir(), rec.run, logging.NewNop())

	voices, err := eng.Voices(context.Background())
	if err != nil {
		t.Fatalf("voices: %v", err)
	}
	if len(voices) != 3 {
		t.Fatalf("expected 3 voices, got %d: %#v", len(voices), voices)
	}
	if voices[1].ID != "en-gb" || voices[1].Name != "English (Great Britain)" || voices[1].Gender != "male" {
		t.Fatalf("unexpected voice %#v", voices[1])
	}
	if voices[2].Gender != "female" {
		t.Fatalf("expected female voice, got %#v", voices[2])
	}
}

func TestOfflineSelectedVoicePersists(t *testing.T) {
	rec := &recordingRunner{}
	eng := NewOfflineEngine(offlineTestConfig(), t.TempDir(), rec.run, logging.NewNop())
	if err := eng.SelectVoice("en-us"); err != nil {
		t.Fatalf("select voice: %v", err)
	}

	for range 2 {
		audio, err := eng.Synthesize(context.Background(), "hello there", VoiceParams{})
		if err != nil {
			t.Fatalf("synthesize: %v", err)
		}
		if audio.Format != "wav" {
			t.Fatalf("unexpected format %q", audio.Format)
		}
	}
	for _, call := range rec.calls {
		i := slices.Index(call, "-v")
		if i < 0 || call[i+1] != "en-us" {
			t.Fatalf("expected persisted voice in %v", call)
		}
		if j := slices.Index(call, "-s"); j < 0 || call[j+1] != "160" {
			t.Fatalf("expected rate flag in %v", call)
		}
	}

	if _, err := eng.Synthesize(context.Background(), "hi", VoiceParams{Voice: "af"}); err != nil {
		t.Fatalf("synthesize override: %v", err)
	}
	last := rec.calls[len(rec.calls)-1]
	if last[slices.Index(last, "-v")+1] != "af" {
		t.Fatalf("expected per-call override in %v", last)
	}
	if eng.SelectedVoice() != "en-us" {
		t.Fatalf("per-call voice must not replace the selection, got %q", eng.SelectedVoice())
	}
}

func TestOfflineSelectVoiceRejectsEmpty(t *testing.T) {
	eng := NewOfflineEngine(offlineTestConfig(), t.TempDir(), nil, logging.NewNop())
	if err := eng.SelectVoice(" "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOfflineSynthesisErrorsAreTyped(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		marker error
	}{
		{"binary missing", fmt.Errorf("espeak-ng: %w", exec.ErrNotFound), services.ErrEngineUnavailable},
		{"command failed", errors.New("exit status 1"), services.ErrSynthesis},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingRunner{err: tt.err}
			eng := NewOfflineEngine(offlineTestConfig(), t.TempDir(), rec.run, logging.NewNop())
			_, err := eng.Synthesize(context.Background(), "hello", VoiceParams{})
			if !errors.Is(err, tt.marker) {
				t.Fatalf("expected %v, got %v", tt.marker, err)
			}
		})
	}
}
