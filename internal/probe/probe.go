package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Result is the subset of `ffprobe -show_format -show_streams` output the
// duration gate reads.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream is one entry of the ffprobe streams array.
type Stream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Duration   string `json:"duration"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format is the ffprobe container section.
type Format struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

// Runner executes binary with args and returns stdout.
type Runner func(ctx context.Context, binary string, args ...string) ([]byte, error)

var inspectArgs = []string{"-v", "error", "-hide_banner", "-of", "json", "-show_format", "-show_streams", "--"}

// Prober measures audio files with ffprobe.
type Prober struct {
	binary string
	run    Runner
}

// New returns a Prober for binary (default "ffprobe"). A nil run executes
// the binary as a subprocess.
func New(binary string, run Runner) *Prober {
	p := &Prober{binary: strings.TrimSpace(binary), run: run}
	if p.binary == "" {
		p.binary = "ffprobe"
	}
	if p.run == nil {
		p.run = runCommand
	}
	return p
}

func runCommand(ctx context.Context, binary string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, binary, args...).Output() //nolint:gosec
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}

// Inspect runs ffprobe on path and decodes its JSON report.
func (p *Prober) Inspect(ctx context.Context, path string) (Result, error) {
	if strings.TrimSpace(path) == "" {
		return Result{}, errors.New("ffprobe: empty path")
	}
	args := append(append([]string(nil), inspectArgs...), path)
	raw, err := p.run(ctx, p.binary, args...)
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, fmt.Errorf("ffprobe %s: decode report: %w", path, err)
	}
	return res, nil
}

// Duration reports how long the audio in path plays. Files without an audio
// stream or without any usable duration are errors.
func (p *Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	res, err := p.Inspect(ctx, path)
	if err != nil {
		return 0, err
	}
	if !res.HasAudio() {
		return 0, fmt.Errorf("ffprobe %s: no audio stream", path)
	}
	d, ok := res.Duration()
	if !ok {
		return 0, fmt.Errorf("ffprobe %s: no duration reported", path)
	}
	return d, nil
}

// HasAudio reports whether any stream is an audio stream.
func (r Result) HasAudio() bool {
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "audio") {
			return true
		}
	}
	return false
}

// Duration prefers the container duration and otherwise takes the longest
// stream duration. Values such as "N/A" are ignored.
func (r Result) Duration() (time.Duration, bool) {
	seconds, ok := parseSeconds(r.Format.Duration)
	if !ok {
		for _, s := range r.Streams {
			if v, vok := parseSeconds(s.Duration); vok && v > seconds {
				seconds, ok = v, true
			}
		}
	}
	if !ok {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)).Round(time.Millisecond), true
}

func parseSeconds(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
