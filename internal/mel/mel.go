// Package mel computes log-mel spectrogram features for one audio window.
package mel

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"github.com/chaz8081/gostt-pipeline/internal/vocab"
)

// ErrComputation is returned when inputs and filter bank do not agree.
var ErrComputation = errors.New("mel: computation error")

const (
	// powerFloor keeps log10 finite for silent bins.
	powerFloor = 1e-10
	// dynamicRange is how far below the peak (in log10 units) values are clamped.
	dynamicRange = 8.0
)

// Params describes the analysis grid.
type Params struct {
	SampleRate int
	FFTSize    int
	HopLength  int
	NMel       int
	// NLen fixes the output frame count. Extra frames are padded with the
	// silence floor and surplus frames are dropped. Zero keeps the natural count.
	NLen int
	// Workers bounds frame-level parallelism. Zero or less uses every CPU.
	Workers int
}

// DefaultParams returns the grid the Whisper models were trained on.
func DefaultParams() Params {
	return Params{
		SampleRate: 16000,
		FFTSize:    400,
		HopLength:  160,
		NMel:       80,
		NLen:       3000,
	}
}

// Bins is the number of one-sided spectrum bins for the FFT size.
func (p Params) Bins() int {
	return p.FFTSize/2 + 1
}

// Frames returns the natural frame count for n samples.
func (p Params) Frames(n int) int {
	if n < p.FFTSize {
		return 0
	}
	return (n-p.FFTSize)/p.HopLength + 1
}

// Spectrogram is an NMel x NLen row-major matrix of normalized log energies.
type Spectrogram struct {
	NMel int
	NLen int
	Data []float32
}

// At returns the value for mel band m at frame i.
func (s *Spectrogram) At(m, i int) float32 {
	return s.Data[m*s.NLen+i]
}

func (p Params) validate(n int, filters *vocab.FilterBank) error {
	if n == 0 {
		return fmt.Errorf("%w: no samples", ErrComputation)
	}
	if filters == nil || !filters.Consistent() {
		return fmt.Errorf("%w: filter bank shape does not match its weights", ErrComputation)
	}
	if p.FFTSize <= 0 || p.HopLength <= 0 || p.NMel <= 0 || p.NLen < 0 {
		return fmt.Errorf("%w: invalid params fft=%d hop=%d n_mel=%d n_len=%d",
			ErrComputation, p.FFTSize, p.HopLength, p.NMel, p.NLen)
	}
	if filters.NMel != p.NMel {
		return fmt.Errorf("%w: filter bank has %d mel bands, want %d", ErrComputation, filters.NMel, p.NMel)
	}
	if filters.NFFT != p.Bins() {
		return fmt.Errorf("%w: filter bank has %d bins, fft size %d needs %d",
			ErrComputation, filters.NFFT, p.FFTSize, p.Bins())
	}
	return nil
}

// Extract computes the log-mel spectrogram of samples. The output does not
// depend on p.Workers.
func Extract(samples []float32, filters *vocab.FilterBank, p Params) (*Spectrogram, error) {
	if err := p.validate(len(samples), filters); err != nil {
		return nil, err
	}

	frames := p.Frames(len(samples))
	nLen := p.NLen
	if nLen == 0 {
		nLen = frames
	}
	if nLen == 0 {
		return nil, fmt.Errorf("%w: %d samples is shorter than one %d-sample frame",
			ErrComputation, len(samples), p.FFTSize)
	}
	computed := min(frames, nLen)

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = max(1, min(workers, computed))

	mels := &Spectrogram{NMel: p.NMel, NLen: nLen, Data: make([]float32, p.NMel*nLen)}
	window := hann(p.FFTSize)

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fw := newFrameWorker(p.FFTSize, window)
			for i := w; i < computed; i += workers {
				fw.frame(samples, i*p.HopLength)
				fw.project(filters, mels, i)
			}
		}()
	}
	wg.Wait()

	silence := float32(math.Log10(powerFloor))
	for i := computed; i < nLen; i++ {
		for m := 0; m < p.NMel; m++ {
			mels.Data[m*nLen+i] = silence
		}
	}

	normalize(mels.Data)

	slog.Debug("mel spectrogram",
		"samples", len(samples),
		"frames", frames,
		"n_len", nLen,
		"workers", workers)

	return mels, nil
}

// normalize clamps to dynamicRange below the peak and rescales into the
// range the model saw in training.
func normalize(data []float32) {
	peak := float32(math.Inf(-1))
	for _, v := range data {
		peak = max(peak, v)
	}
	floor := peak - dynamicRange
	for i, v := range data {
		data[i] = (max(v, floor) + 4) / 4
	}
}

// hann returns a periodic Hann window of length n.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}
