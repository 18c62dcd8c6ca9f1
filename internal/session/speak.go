package session

import (
	"context"
	"strings"

	"voxbridge/internal/dispatch"
	"voxbridge/internal/engine"
	"voxbridge/internal/services"
)

// Synthesizer is the engine call behind a speech request.
type Synthesizer interface {
	Synthesize(ctx context.Context, engineID, text string, params engine.VoiceParams, progress engine.Progress) (engine.Audio, error)
}

// SpeechRequest describes one text-to-audio conversion.
type SpeechRequest struct {
	EngineID string
	Text     string
	Params   engine.VoiceParams
}

// Speak submits a synthesis call on the synthesis lane. onProgress and
// onDone run on the loop goroutine. Either may be nil.
func Speak(ctx context.Context, d *dispatch.Dispatcher, synth Synthesizer, req SpeechRequest, onProgress func(string), onDone func(engine.Audio, error)) (*dispatch.Handle, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, services.Wrap(services.ErrValidation, "session", "speak", "text is empty", nil)
	}
	loop := d.Loop()
	progress := func(msg string) {
		if onProgress != nil {
			loop.Post(func() { onProgress(msg) })
		}
	}
	return d.Submit(services.WithEngineID(ctx, req.EngineID), dispatch.Task{
		Name: "synthesize " + req.EngineID,
		Lane: dispatch.LaneSynthesis,
		Run: func(ctx context.Context) (any, error) {
			return synth.Synthesize(ctx, req.EngineID, req.Text, req.Params, progress)
		},
		Done: func(result any, err error) {
			if onDone == nil {
				return
			}
			audio, _ := result.(engine.Audio)
			onDone(audio, err)
		},
	})
}
