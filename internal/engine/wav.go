package engine

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
	wavBitsPerSample    = 16
)

// EncodeWAV writes mono 16-bit PCM samples as a RIFF/WAVE stream. The sizes
// in the header are patched on close, hence the seeker.
func EncodeWAV(w io.WriteSeeker, samples []int16, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("encode wav: invalid sample rate %d", sampleRate)
	}
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	enc := wav.NewEncoder(w, sampleRate, wavBitsPerSample, 1, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: wavBitsPerSample,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode wav: finalize header: %w", err)
	}
	return nil
}

// DecodeWAV reads an integer PCM RIFF/WAVE stream into 16-bit mono samples.
// Other bit depths are rescaled and multi-channel frames are averaged.
func DecodeWAV(r io.ReadSeeker) ([]int16, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("decode wav: not a PCM RIFF/WAVE stream")
	}
	if f := dec.WavAudioFormat; f != wavFormatPCM && f != wavFormatExtensible {
		return nil, 0, fmt.Errorf("decode wav: unsupported encoding (format %d)", f)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, 0, errors.New("decode wav: invalid fmt chunk")
	}
	to16, err := sampleScaler(int(dec.BitDepth))
	if err != nil {
		return nil, 0, err
	}

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	samples := make([]int16, frames)
	for i := range frames {
		var sum int
		for _, v := range buf.Data[i*channels : (i+1)*channels] {
			sum += to16(v)
		}
		samples[i] = int16(sum / channels)
	}
	return samples, buf.Format.SampleRate, nil
}

// sampleScaler maps a decoded sample at bits depth onto the int16 range.
// 8-bit WAV is unsigned; wider depths are signed.
func sampleScaler(bits int) (func(int) int, error) {
	switch bits {
	case 8:
		return func(v int) int { return (v - 128) << 8 }, nil
	case 16:
		return func(v int) int { return v }, nil
	case 24, 32:
		shift := bits - 16
		return func(v int) int { return v >> shift }, nil
	}
	return nil, fmt.Errorf("decode wav: unsupported bit depth %d", bits)
}
