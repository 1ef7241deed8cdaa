package audio

import (
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Clip is decoded mono audio normalized to [-1.0, 1.0].
type Clip struct {
	Samples    []float32
	SampleRate int
	// Channels is the channel count of the source before downmixing.
	Channels int
}

// ReadWAV decodes the WAV file at path.
func ReadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: opening %s: %w", path, err)
	}
	defer f.Close()

	clip, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("audio: %s: %w", path, err)
	}
	return clip, nil
}

// DecodeWAV decodes PCM WAV data, averaging channels down to mono.
func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV data")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding PCM: %w", err)
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	scale := float32(goaudio.IntMaxSignedValue(int(dec.BitDepth)))
	if scale == 0 {
		return nil, fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := range samples {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(buf.Data[i*channels+ch]) / scale
		}
		samples[i] = sum / float32(channels)
	}

	return &Clip{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
	}, nil
}

// EncodeWAV writes mono samples as 16-bit PCM.
func EncodeWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		s = max(-1, min(1, s))
		data[i] = int(math.Round(float64(s) * math.MaxInt16))
	}

	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: writing PCM: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalizing WAV: %w", err)
	}
	return nil
}

// WriteWAV saves mono samples to path.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: creating %s: %w", path, err)
	}
	if err := EncodeWAV(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
