package transcribe

import "context"

// Engine runs the sequence model on one feature window.
//
// Run reads an n_mel*n_len row-major spectrogram from in and writes the
// token sequence into out, which has OutputSize() elements. The session
// never calls Run concurrently on the same engine.
type Engine interface {
	Run(ctx context.Context, in []float32, out []int32) error
	OutputSize() int
	Close() error
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc struct {
	Size int
	Fn   func(ctx context.Context, in []float32, out []int32) error
}

// Run calls f.Fn.
func (f EngineFunc) Run(ctx context.Context, in []float32, out []int32) error {
	return f.Fn(ctx, in, out)
}

// OutputSize returns f.Size.
func (f EngineFunc) OutputSize() int { return f.Size }

// Close is a no-op.
func (f EngineFunc) Close() error { return nil }
