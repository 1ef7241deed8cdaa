package mel

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/chaz8081/gostt-pipeline/internal/vocab"
)

// frameWorker owns the scratch buffers for one goroutine. gonum's FFT keeps
// internal work space, so it is never shared.
type frameWorker struct {
	fft    *fourier.FFT
	window []float64
	in     []float64
	coeffs []complex128
	power  []float64
}

func newFrameWorker(n int, window []float64) *frameWorker {
	return &frameWorker{
		fft:    fourier.NewFFT(n),
		window: window,
		in:     make([]float64, n),
		coeffs: make([]complex128, n/2+1),
		power:  make([]float64, n/2+1),
	}
}

// frame fills fw.power with the one-sided power spectrum of the windowed
// frame starting at offset. Samples past the end are treated as zero.
func (fw *frameWorker) frame(samples []float32, offset int) {
	n := len(fw.in)
	for j := range fw.in {
		if offset+j < len(samples) {
			fw.in[j] = fw.window[j] * float64(samples[offset+j])
		} else {
			fw.in[j] = 0
		}
	}

	fw.coeffs = fw.fft.Coefficients(fw.coeffs, fw.in)

	for k, c := range fw.coeffs {
		p := real(c)*real(c) + imag(c)*imag(c)
		// Fold the negative frequencies back in; DC and Nyquist have no mirror.
		if k > 0 && 2*k < n {
			p *= 2
		}
		fw.power[k] = p
	}
}

// project writes the log mel energies of the current frame into column i.
func (fw *frameWorker) project(filters *vocab.FilterBank, mels *Spectrogram, i int) {
	for m := 0; m < filters.NMel; m++ {
		row := filters.Row(m)
		var sum float64
		for k, w := range row {
			sum += fw.power[k] * float64(w)
		}
		mels.Data[m*mels.NLen+i] = float32(math.Log10(max(sum, powerFloor)))
	}
}
