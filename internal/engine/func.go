package engine

import "context"

// FuncRecognizer adapts a function into a Recognizer.
type FuncRecognizer struct {
	EngineID string
	Fn       func(ctx context.Context, audioPath string) (string, error)
}

func (f FuncRecognizer) ID() string { return f.EngineID }

func (f FuncRecognizer) Kind() Kind { return KindOffline }

func (f FuncRecognizer) Recognize(ctx context.Context, audioPath string) (string, error) {
	return f.Fn(ctx, audioPath)
}

// FuncSynthesizer adapts a function into a Synthesizer.
type FuncSynthesizer struct {
	EngineID string
	Fn       func(ctx context.Context, text string, params VoiceParams) (Audio, error)
}

func (f FuncSynthesizer) ID() string { return f.EngineID }

func (f FuncSynthesizer) Kind() Kind { return KindOffline }

func (f FuncSynthesizer) Synthesize(ctx context.Context, text string, params VoiceParams) (Audio, error) {
	return f.Fn(ctx, text, params)
}
