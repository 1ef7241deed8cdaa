package audio

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/zeozeozeo/gomplerate"
)

// Resample converts mono samples from one rate to another. Samples pass
// through 16-bit PCM on the way, which is the precision WAV input has.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("audio: invalid resample rates %d -> %d", from, to)
	}
	if from == to || len(samples) == 0 {
		return samples, nil
	}

	r, err := gomplerate.NewResampler(1, from, to)
	if err != nil {
		return nil, fmt.Errorf("audio: creating resampler: %w", err)
	}

	pcm := make([]int16, len(samples))
	for i, s := range samples {
		pcm[i] = int16(math.Round(float64(max(-1, min(1, s))) * math.MaxInt16))
	}
	out := r.ResampleInt16(pcm)

	res := make([]float32, len(out))
	for i, s := range out {
		res[i] = float32(s) / math.MaxInt16
	}
	slog.Debug("Resampled audio", "from", from, "to", to, "in", len(samples), "out", len(res))
	return res, nil
}
