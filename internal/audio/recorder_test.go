package audio

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := NewRecorder(16000, 1)
	if err != nil {
		t.Skipf("audio backend unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := r.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return r
}

func TestNewRecorder(t *testing.T) {
	r := newTestRecorder(t)
	if r.sampleRate != 16000 {
		t.Errorf("sampleRate = %d, want 16000", r.sampleRate)
	}
	if r.IsRecording() {
		t.Error("IsRecording() should be false after creation")
	}
}

func TestNewRecorderRejectsZeroRate(t *testing.T) {
	if _, err := NewRecorder(0, 1); err == nil {
		t.Error("NewRecorder(0, 1) should fail")
	}
}

func TestStopWithoutStart(t *testing.T) {
	r := newTestRecorder(t)
	if samples := r.Stop(); samples != nil {
		t.Errorf("Stop() without Start() = %d samples, want nil", len(samples))
	}
}

func TestRecordCancelled(t *testing.T) {
	r := newTestRecorder(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Record(ctx, time.Second); err != nil {
		t.Skipf("no capture device: %v", err)
	}
	if r.IsRecording() {
		t.Error("IsRecording() should be false after Record returns")
	}
}

func f32le(values ...float32) []byte {
	var b []byte
	for _, v := range values {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

func TestDownmixF32LE(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		frames   int
		channels int
		want     []float32
	}{
		{"mono", f32le(0.5, -0.25), 2, 1, []float32{0.5, -0.25}},
		{"stereo", f32le(1, 0, -0.5, -0.5), 2, 2, []float32{0.5, -0.5}},
		{"frame count larger than data", f32le(0.1), 4, 1, []float32{0.1}},
		{"partial trailing frame", append(f32le(0.2, 0.4), 0x00, 0x01), 2, 2, []float32{0.3}},
		{"empty", nil, 0, 1, []float32{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := downmixF32LE(tt.data, tt.frames, tt.channels)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Errorf("[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
