package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"voxbridge/internal/dispatch"
	"voxbridge/internal/engine"
	"voxbridge/internal/services"
	"voxbridge/internal/testsupport"
)

type synthFunc func(ctx context.Context, id, text string, params engine.VoiceParams, progress engine.Progress) (engine.Audio, error)

func (f synthFunc) Synthesize(ctx context.Context, id, text string, params engine.VoiceParams, progress engine.Progress) (engine.Audio, error) {
	return f(ctx, id, text, params, progress)
}

func TestSpeakRunsOnSynthesisLane(t *testing.T) {
	loop := dispatch.NewLoop(5*time.Millisecond, nil)
	d := dispatch.New(loop, 2, nil)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })

	laneBusy := make(chan bool, 1)
	synth := synthFunc(func(_ context.Context, id, text string, params engine.VoiceParams, progress engine.Progress) (engine.Audio, error) {
		laneBusy <- d.LaneBusy(dispatch.LaneSynthesis)
		progress("rendering")
		return engine.Audio{Path: "/out/" + id + ".wav", Format: "wav"}, nil
	})

	var (
		got      engine.Audio
		gotErr   error
		finished bool
		messages []string
	)
	_, err := Speak(context.Background(), d, synth, SpeechRequest{EngineID: "offline", Text: "hi"},
		func(m string) { messages = append(messages, m) },
		func(a engine.Audio, err error) { got, gotErr, finished = a, err, true })
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	testsupport.Pump(t, loop, func() bool { return finished })

	if gotErr != nil || got.Path != "/out/offline.wav" {
		t.Fatalf("unexpected result %#v (%v)", got, gotErr)
	}
	if !<-laneBusy {
		t.Fatal("expected synthesis lane to be held during the call")
	}
	if len(messages) != 1 || messages[0] != "rendering" {
		t.Fatalf("unexpected progress %v", messages)
	}
}

func TestSpeakRejectsEmptyText(t *testing.T) {
	loop := dispatch.NewLoop(5*time.Millisecond, nil)
	d := dispatch.New(loop, 2, nil)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })
	if _, err := Speak(context.Background(), d, nil, SpeechRequest{EngineID: "offline"}, nil, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
