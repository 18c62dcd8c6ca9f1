package probe

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestDurationFromFormat(t *testing.T) {
	var args []string
	run := func(_ context.Context, binary string, a ...string) ([]byte, error) {
		args = append([]string{binary}, a...)
		return []byte(`{"streams":[{"codec_type":"audio","codec_name":"mp3"}],"format":{"duration":"3600.000000","size":"1000"}}`), nil
	}
	p := New("", run)
	d, err := p.Duration(context.Background(), "/music/a.mp3")
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if d != time.Hour {
		t.Fatalf("expected 1h, got %v", d)
	}
	if args[0] != "ffprobe" || args[len(args)-1] != "/music/a.mp3" || !slices.Contains(args, "-show_format") {
		t.Fatalf("unexpected invocation %v", args)
	}
}

func TestDurationFallsBackToStream(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", Duration: "12.5"}, {CodecType: "audio", Duration: "bad"}},
		Format:  Format{Duration: "N/A"},
	}
	d, ok := result.Duration()
	if !ok || d != 12500*time.Millisecond {
		t.Fatalf("expected 12.5s, got %v (%v)", d, ok)
	}
	if !result.HasAudio() {
		t.Fatal("expected audio stream")
	}
}

func TestDurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		output string
		err    error
	}{
		{"no audio", `{"streams":[{"codec_type":"video"}],"format":{"duration":"10"}}`, nil},
		{"no duration", `{"streams":[{"codec_type":"audio"}],"format":{}}`, nil},
		{"bad json", `not json`, nil},
		{"command failed", ``, errors.New("exit status 1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New("ffprobe", func(context.Context, string, ...string) ([]byte, error) {
				return []byte(tt.output), tt.err
			})
			if _, err := p.Duration(context.Background(), "/x.wav"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
