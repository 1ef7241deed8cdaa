// Package audio handles sample buffers: fixed-window chunking, WAV I/O,
// microphone capture and input diagnostics.
package audio

import (
	"fmt"
	"iter"
)

// Chunk is one fixed-length window of the source audio.
type Chunk struct {
	Index int
	// Start is the offset of the first sample in the source.
	Start int
	// Valid is how many leading samples came from the source; the rest is
	// zero padding.
	Valid   int
	Samples []float32
}

// Chunker splits a sample buffer into fixed-length windows. It holds no
// iteration state, so every call recomputes from slice indices.
type Chunker struct {
	samples []float32
	size    int
}

// ChunkSize returns the window length in samples.
func ChunkSize(sampleRate, seconds int) int {
	return sampleRate * seconds
}

// NewChunker creates a chunker over samples with windows of size samples.
func NewChunker(samples []float32, size int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("audio: chunk size must be > 0, got %d", size)
	}
	return &Chunker{samples: samples, size: size}, nil
}

// Len returns the number of chunks. Empty input still yields one chunk.
func (c *Chunker) Len() int {
	if len(c.samples) == 0 {
		return 1
	}
	return (len(c.samples) + c.size - 1) / c.size
}

// Size returns the window length in samples.
func (c *Chunker) Size() int {
	return c.size
}

// Chunk returns window i. Full windows alias the source buffer.
func (c *Chunker) Chunk(i int) Chunk {
	start := min(i*c.size, len(c.samples))
	end := min(start+c.size, len(c.samples))
	return Chunk{
		Index:   i,
		Start:   start,
		Valid:   end - start,
		Samples: PadSamples(c.samples[start:end], c.size),
	}
}

// All yields every chunk in order.
func (c *Chunker) All() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		for i := range c.Len() {
			if !yield(c.Chunk(i)) {
				return
			}
		}
	}
}

// PadSamples pads samples with zeros or truncates them to exactly size.
// A slice already of that length is returned unchanged.
func PadSamples(samples []float32, size int) []float32 {
	if len(samples) >= size {
		return samples[:size]
	}
	padded := make([]float32, size)
	copy(padded, samples)
	return padded
}
