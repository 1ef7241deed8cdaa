package audio

import (
	"fmt"
	"time"
)

const silenceThreshold = 0.001

// Stats summarizes an input buffer before transcription.
type Stats struct {
	Samples      int
	Duration     time.Duration
	Min          float32
	Max          float32
	Mean         float32
	SilenceRatio float64
}

// Analyze computes Stats for samples recorded at sampleRate.
func Analyze(samples []float32, sampleRate int) Stats {
	s := Stats{Samples: len(samples)}
	if len(samples) == 0 {
		return s
	}
	if sampleRate > 0 {
		s.Duration = time.Duration(float64(len(samples)) / float64(sampleRate) * float64(time.Second))
	}

	s.Min, s.Max = samples[0], samples[0]
	var sum float64
	silent := 0
	for _, v := range samples {
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
		sum += float64(v)
		if v < silenceThreshold && v > -silenceThreshold {
			silent++
		}
	}
	s.Mean = float32(sum / float64(len(samples)))
	s.SilenceRatio = float64(silent) / float64(len(samples))
	return s
}

// Warnings lists signal problems likely to hurt recognition.
func (s Stats) Warnings() []string {
	if s.Samples == 0 {
		return []string{"no audio samples"}
	}
	var w []string
	switch {
	case s.SilenceRatio > 0.9:
		w = append(w, fmt.Sprintf("audio is mostly silent (%.0f%%)", s.SilenceRatio*100))
	case s.Max > 1:
		w = append(w, fmt.Sprintf("samples exceed 1.0 (max %.3f)", s.Max))
	case s.Min < -1:
		w = append(w, fmt.Sprintf("samples below -1.0 (min %.3f)", s.Min))
	case s.Max < 0.01 && s.Min > -0.01:
		w = append(w, fmt.Sprintf("signal is very weak (%.4f to %.4f)", s.Min, s.Max))
	}
	if s.Duration > 0 && s.Duration < 100*time.Millisecond {
		w = append(w, fmt.Sprintf("audio is very short (%s)", s.Duration))
	}
	return w
}
