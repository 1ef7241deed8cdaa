package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/gostt-pipeline/internal/audio"
	"github.com/chaz8081/gostt-pipeline/internal/mel"
	"github.com/chaz8081/gostt-pipeline/internal/metrics"
	"github.com/chaz8081/gostt-pipeline/internal/vocab"
)

var (
	// ErrInference wraps failures reported by the Engine.
	ErrInference = errors.New("transcribe: inference error")
	// ErrNotLoaded is returned when transcribing before Load.
	ErrNotLoaded = errors.New("transcribe: session not loaded")
	// ErrBusy is returned by TryTranscribe while another call is running.
	ErrBusy = errors.New("transcribe: transcription already in progress")
)

// Options configures a Session.
type Options struct {
	SampleRate   int
	ChunkSeconds int
	Mel          mel.Params
	Metrics      *metrics.Metrics // optional
}

// DefaultOptions returns 16 kHz audio in 30 second windows.
func DefaultOptions() Options {
	return Options{
		SampleRate:   16000,
		ChunkSeconds: 30,
		Mel:          mel.DefaultParams(),
	}
}

// Session owns one loaded model: its filter bank, vocabulary, engine and
// the engine's input/output buffers. All methods are safe for concurrent
// use; transcriptions are serialized.
type Session struct {
	opts Options

	// mu serializes Load, Unload and transcriptions.
	mu      sync.Mutex
	loaded  atomic.Bool
	filters *vocab.FilterBank
	vocab   *vocab.Vocabulary
	engine  Engine
	in      []float32
	out     []int32
}

// NewSession creates an unloaded session.
func NewSession(opts Options) (*Session, error) {
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("transcribe: sample rate must be > 0, got %d", opts.SampleRate)
	}
	if opts.ChunkSeconds <= 0 {
		return nil, fmt.Errorf("transcribe: chunk seconds must be > 0, got %d", opts.ChunkSeconds)
	}
	if opts.Mel.SampleRate == 0 {
		opts.Mel.SampleRate = opts.SampleRate
	}
	return &Session{opts: opts}, nil
}

// Load parses the filter/vocabulary blob and takes ownership of engine.
// Calling Load on a loaded session is a no-op and leaves engine with the
// caller. On error nothing is retained and the session stays unloaded.
func (s *Session) Load(engine Engine, blob []byte, multilingual bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded.Load() {
		slog.Debug("Session already loaded")
		return nil
	}
	if engine == nil {
		return fmt.Errorf("transcribe: load: nil engine")
	}
	size := engine.OutputSize()
	if size <= 0 {
		return fmt.Errorf("transcribe: load: engine output size must be > 0, got %d", size)
	}

	filters, v, err := vocab.Load(blob, multilingual)
	if err != nil {
		return fmt.Errorf("transcribe: load: %w", err)
	}
	if filters.NMel != s.opts.Mel.NMel {
		slog.Warn("Filter bank does not match configured mel bands; transcription will fail",
			"filter_n_mel", filters.NMel, "n_mel", s.opts.Mel.NMel)
	}

	s.filters = filters
	s.vocab = v
	s.engine = engine
	s.in = make([]float32, 0, s.opts.Mel.NMel*max(s.opts.Mel.NLen, 0))
	s.out = make([]int32, size)
	s.loaded.Store(true)
	s.opts.Metrics.SetLoaded(true)

	slog.Info("Session loaded",
		"n_mel", filters.NMel,
		"n_fft", filters.NFFT,
		"vocab", v.Explicit,
		"multilingual", multilingual,
		"output_size", size,
	)
	return nil
}

// Loaded reports whether Load has succeeded since the last Unload. It does
// not wait for a running transcription.
func (s *Session) Loaded() bool {
	return s.loaded.Load()
}

// Unload closes the engine and releases the filter bank, vocabulary and
// buffers. The session can be loaded again afterwards.
func (s *Session) Unload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded.Load() {
		return nil
	}
	err := s.engine.Close()

	s.filters = nil
	s.vocab = nil
	s.engine = nil
	s.in = nil
	s.out = nil
	s.loaded.Store(false)
	s.opts.Metrics.SetLoaded(false)

	if err != nil {
		return fmt.Errorf("transcribe: close engine: %w", err)
	}
	return nil
}

// Transcribe converts mono samples at the session's sample rate to text,
// one window at a time, waiting for any running transcription to finish
// first. On any error the returned text is empty.
func (s *Session) Transcribe(ctx context.Context, samples []float32) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcribe(ctx, samples)
}

// TryTranscribe is like Transcribe but fails with ErrBusy instead of
// waiting when another transcription is running.
func (s *Session) TryTranscribe(ctx context.Context, samples []float32) (string, error) {
	if !s.mu.TryLock() {
		s.opts.Metrics.RecordTranscription(metrics.ResultBusy, 0, 0)
		return "", ErrBusy
	}
	defer s.mu.Unlock()
	return s.transcribe(ctx, samples)
}

// Process transcribes samples without a deadline.
func (s *Session) Process(samples []float32) (string, error) {
	return s.Transcribe(context.Background(), samples)
}

// Close unloads the session.
func (s *Session) Close() error {
	return s.Unload()
}

// transcribe runs with s.mu held.
func (s *Session) transcribe(ctx context.Context, samples []float32) (string, error) {
	start := time.Now()
	text, err := s.run(ctx, samples)
	elapsed := time.Since(start)
	seconds := float64(len(samples)) / float64(s.opts.SampleRate)

	switch {
	case err == nil:
		s.opts.Metrics.RecordTranscription(metrics.ResultOK, elapsed, seconds)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.opts.Metrics.RecordTranscription(metrics.ResultCancelled, elapsed, seconds)
	default:
		s.opts.Metrics.RecordTranscription(metrics.ResultError, elapsed, seconds)
	}
	if err != nil {
		return "", err
	}

	slog.Debug("Transcription complete", "elapsed", elapsed, "audio_seconds", seconds, "chars", len(text))
	return text, nil
}

func (s *Session) run(ctx context.Context, samples []float32) (string, error) {
	if !s.loaded.Load() {
		return "", ErrNotLoaded
	}

	stats := audio.Analyze(samples, s.opts.SampleRate)
	slog.Debug("Audio stats",
		"samples", stats.Samples,
		"duration", stats.Duration,
		"min", stats.Min,
		"max", stats.Max,
		"mean", stats.Mean,
		"silence_ratio", stats.SilenceRatio,
	)
	for _, w := range stats.Warnings() {
		slog.Warn("Audio input", "warning", w)
	}

	chunker, err := audio.NewChunker(samples, audio.ChunkSize(s.opts.SampleRate, s.opts.ChunkSeconds))
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	var b strings.Builder
	n := chunker.Len()
	for ch := range chunker.All() {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("transcribe: stopped before chunk %d/%d: %w", ch.Index+1, n, err)
		}
		text, err := s.chunk(ctx, ch)
		if err != nil {
			return "", fmt.Errorf("transcribe: chunk %d/%d: %w", ch.Index+1, n, err)
		}
		slog.Debug("Chunk decoded", "chunk", ch.Index+1, "of", n, "valid", ch.Valid, "chars", len(text))
		b.WriteString(text)
	}
	return b.String(), nil
}

// chunk extracts features for one window, runs the engine and decodes.
func (s *Session) chunk(ctx context.Context, ch audio.Chunk) (string, error) {
	featStart := time.Now()
	mels, err := mel.Extract(ch.Samples, s.filters, s.opts.Mel)
	if err != nil {
		return "", err
	}
	features := time.Since(featStart)

	s.in = append(s.in[:0], mels.Data...)
	eot := int32(s.vocab.Special.EndOfText)
	for i := range s.out {
		s.out[i] = eot
	}

	inferStart := time.Now()
	if err := s.engine.Run(ctx, s.in, s.out); err != nil {
		s.opts.Metrics.RecordInferenceError()
		return "", fmt.Errorf("%w: %w", ErrInference, err)
	}
	s.opts.Metrics.RecordChunk(features, time.Since(inferStart))

	return DecodeTokens(s.out, s.vocab), nil
}
