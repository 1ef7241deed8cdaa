package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTranscription(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordTranscription(ResultOK, time.Second, 45)
	m.RecordTranscription(ResultOK, time.Second, 5)
	m.RecordTranscription(ResultError, time.Second, 30)

	if got := testutil.ToFloat64(m.Transcriptions.WithLabelValues(ResultOK)); got != 2 {
		t.Errorf("ok transcriptions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Transcriptions.WithLabelValues(ResultError)); got != 1 {
		t.Errorf("error transcriptions = %v, want 1", got)
	}
	// Failed calls do not count toward transcribed audio.
	if got := testutil.ToFloat64(m.AudioSeconds); got != 50 {
		t.Errorf("audio seconds = %v, want 50", got)
	}
}

func TestRecordChunk(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordChunk(10*time.Millisecond, 200*time.Millisecond)
	m.RecordChunk(12*time.Millisecond, 180*time.Millisecond)
	m.RecordInferenceError()
	m.RecordRetry()

	if got := testutil.ToFloat64(m.Chunks); got != 2 {
		t.Errorf("chunks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.InferenceErrors); got != 1 {
		t.Errorf("inference errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EngineRetries); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
}

func TestSetLoaded(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetLoaded(true)
	if got := testutil.ToFloat64(m.Loaded); got != 1 {
		t.Errorf("loaded = %v, want 1", got)
	}
	m.SetLoaded(false)
	if got := testutil.ToFloat64(m.Loaded); got != 0 {
		t.Errorf("loaded = %v, want 0", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	// None of these may panic.
	m.RecordTranscription(ResultOK, time.Second, 1)
	m.RecordChunk(time.Millisecond, time.Millisecond)
	m.RecordInferenceError()
	m.RecordRetry()
	m.SetLoaded(true)
	m.RecordHTTPRequest("/healthz", "200")
}

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	// Vec metrics with no observed labels are not gathered.
	if len(families) == 0 {
		t.Error("expected registered metric families")
	}

	defer func() {
		if recover() == nil {
			t.Error("registering twice on the same registry should panic")
		}
	}()
	New(reg)
}
