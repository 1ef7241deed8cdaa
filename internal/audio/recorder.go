package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Recorder captures the default microphone into a mono float32 buffer.
// The whole take is returned at once; nothing is streamed.
type Recorder struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate uint32
	channels   uint32

	mu        sync.Mutex
	buf       []float32
	recording bool
}

// NewRecorder initializes the audio backend. Call Close when done.
func NewRecorder(sampleRate, channels uint32) (*Recorder, error) {
	if sampleRate == 0 || channels == 0 {
		return nil, fmt.Errorf("audio: sample rate and channels must be > 0")
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: initializing context: %w", err)
	}
	return &Recorder{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// Start opens the capture device and begins buffering.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return fmt.Errorf("audio: already recording")
	}
	r.buf = r.buf[:0]
	r.recording = true
	r.mu.Unlock()

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = r.channels
	cfg.SampleRate = r.sampleRate

	device, err := malgo.InitDevice(r.ctx.Context, cfg, malgo.DeviceCallbacks{Data: r.onData})
	if err != nil {
		r.setRecording(false)
		return fmt.Errorf("audio: initializing capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		r.setRecording(false)
		return fmt.Errorf("audio: starting capture device: %w", err)
	}

	r.mu.Lock()
	r.device = device
	r.mu.Unlock()
	return nil
}

// Stop closes the device and returns a copy of the captured samples.
// It returns nil when not recording.
func (r *Recorder) Stop() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return nil
	}
	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	r.recording = false

	out := make([]float32, len(r.buf))
	copy(out, r.buf)
	return out
}

// Record captures until ctx is done or limit elapses, whichever is first.
// A zero limit records until ctx is done.
func (r *Recorder) Record(ctx context.Context, limit time.Duration) ([]float32, error) {
	if err := r.Start(); err != nil {
		return nil, err
	}
	slog.Debug("recording", "sample_rate", r.sampleRate, "channels", r.channels, "limit", limit)

	var timeout <-chan time.Time
	if limit > 0 {
		t := time.NewTimer(limit)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctx.Done():
	case <-timeout:
	}
	return r.Stop(), nil
}

// IsRecording reports whether capture is active.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Close releases the device and backend context.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	r.recording = false
	r.mu.Unlock()

	if r.ctx != nil {
		if err := r.ctx.Uninit(); err != nil {
			return fmt.Errorf("audio: uninitializing context: %w", err)
		}
		r.ctx.Free()
		r.ctx = nil
	}
	return nil
}

func (r *Recorder) setRecording(v bool) {
	r.mu.Lock()
	r.recording = v
	r.mu.Unlock()
}

// onData is the malgo capture callback; pSample holds interleaved f32 frames.
func (r *Recorder) onData(_, pSample []byte, frameCount uint32) {
	mono := downmixF32LE(pSample, int(frameCount), int(r.channels))

	r.mu.Lock()
	r.buf = append(r.buf, mono...)
	r.mu.Unlock()
}

// downmixF32LE decodes interleaved little-endian float32 frames and averages
// each frame's channels. A trailing partial frame is dropped.
func downmixF32LE(data []byte, frames, channels int) []float32 {
	frames = min(frames, len(data)/(4*channels))
	out := make([]float32, frames)
	for i := range out {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 4
			sum += math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
		}
		out[i] = sum / float32(channels)
	}
	return out
}
