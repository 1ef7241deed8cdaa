// Package transcribe runs the speech-to-text pipeline: fixed windows of
// audio are turned into log-mel features, passed through an inference
// Engine, and the resulting tokens are decoded to text.
//
// Supported engine backends:
//   - http: JSON inference server (see internal/engine)
package transcribe

import (
	"fmt"
	"os"

	"github.com/chaz8081/gostt-pipeline/internal/config"
	"github.com/chaz8081/gostt-pipeline/internal/engine"
	"github.com/chaz8081/gostt-pipeline/internal/mel"
	"github.com/chaz8081/gostt-pipeline/internal/metrics"
)

// Transcriber converts audio samples to text.
type Transcriber interface {
	// Process transcribes mono float32 audio samples to text.
	Process(samples []float32) (string, error)
	// Close releases backend resources.
	Close() error
}

var _ Transcriber = (*Session)(nil)

// NewEngine creates an Engine based on the config backend setting.
func NewEngine(cfg *config.Config, m *metrics.Metrics) (Engine, error) {
	switch cfg.Engine.Backend {
	case "http", "":
		return engine.NewHTTP(engine.HTTPConfig{
			URL:        cfg.Engine.URL,
			Timeout:    cfg.Engine.Timeout,
			OutputSize: cfg.Engine.OutputSize,
			MaxRetries: cfg.Engine.MaxRetries,
			NMel:       cfg.Mel.NMel,
			Metrics:    m,
		})
	default:
		return nil, fmt.Errorf("transcribe: unknown backend %q (supported: http)", cfg.Engine.Backend)
	}
}

// OptionsFromConfig maps the audio and mel config sections to Options.
func OptionsFromConfig(cfg *config.Config, m *metrics.Metrics) Options {
	return Options{
		SampleRate:   int(cfg.Audio.SampleRate),
		ChunkSeconds: cfg.Audio.ChunkSeconds,
		Mel: mel.Params{
			SampleRate: int(cfg.Audio.SampleRate),
			FFTSize:    cfg.Mel.NFFT,
			HopLength:  cfg.Mel.HopLength,
			NMel:       cfg.Mel.NMel,
			NLen:       cfg.Mel.NLen,
			Workers:    cfg.Mel.Workers,
		},
		Metrics: m,
	}
}

// Open creates the configured engine, reads the vocabulary blob and
// returns a loaded Session. The caller must call Close when done.
func Open(cfg *config.Config, m *metrics.Metrics) (*Session, error) {
	s, err := NewSession(OptionsFromConfig(cfg, m))
	if err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(cfg.Vocab.Path)
	if err != nil {
		return nil, fmt.Errorf("transcribe: read vocab %q: %w", cfg.Vocab.Path, err)
	}

	e, err := NewEngine(cfg, m)
	if err != nil {
		return nil, err
	}
	if err := s.Load(e, blob, cfg.Vocab.Multilingual); err != nil {
		e.Close()
		return nil, err
	}
	return s, nil
}
