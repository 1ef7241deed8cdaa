// Package metrics defines the Prometheus metrics for the transcription
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for Transcriptions.
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultBusy      = "busy"
	ResultCancelled = "cancelled"
)

// Metrics contains all Prometheus metrics for the pipeline
type Metrics struct {
	// Session metrics
	Transcriptions        *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	AudioSeconds          prometheus.Counter
	Loaded                prometheus.Gauge

	// Per-chunk metrics
	Chunks            prometheus.Counter
	FeatureDuration   prometheus.Histogram
	InferenceDuration prometheus.Histogram
	InferenceErrors   prometheus.Counter
	EngineRetries     prometheus.Counter

	// HTTP API metrics
	HTTPRequests *prometheus.CounterVec
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transcriptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gostt_transcriptions_total",
			Help: "Total number of transcription calls by result",
		}, []string{"result"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gostt_transcription_duration_seconds",
			Help:    "Wall time of a full transcription call",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		AudioSeconds: f.NewCounter(prometheus.CounterOpts{
			Name: "gostt_audio_seconds_total",
			Help: "Total seconds of audio submitted for transcription",
		}),
		Loaded: f.NewGauge(prometheus.GaugeOpts{
			Name: "gostt_session_loaded",
			Help: "1 while the filter bank, vocabulary and engine are loaded",
		}),

		Chunks: f.NewCounter(prometheus.CounterOpts{
			Name: "gostt_chunks_processed_total",
			Help: "Total number of audio chunks run through the model",
		}),
		FeatureDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gostt_feature_extraction_duration_seconds",
			Help:    "Time spent computing the log-mel spectrogram of one chunk",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		InferenceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gostt_inference_duration_seconds",
			Help:    "Time spent in the inference engine for one chunk",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		InferenceErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "gostt_inference_errors_total",
			Help: "Total number of failed inference runs",
		}),
		EngineRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "gostt_engine_retries_total",
			Help: "Total number of retried inference requests",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gostt_http_requests_total",
			Help: "Total number of API requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// RecordTranscription records one finished transcription call.
func (m *Metrics) RecordTranscription(result string, elapsed time.Duration, audioSeconds float64) {
	if m == nil {
		return
	}
	m.Transcriptions.WithLabelValues(result).Inc()
	m.TranscriptionDuration.Observe(elapsed.Seconds())
	if result == ResultOK {
		m.AudioSeconds.Add(audioSeconds)
	}
}

// RecordChunk records the feature and inference time of one chunk.
func (m *Metrics) RecordChunk(features, inference time.Duration) {
	if m == nil {
		return
	}
	m.Chunks.Inc()
	m.FeatureDuration.Observe(features.Seconds())
	m.InferenceDuration.Observe(inference.Seconds())
}

// RecordInferenceError counts a failed engine run.
func (m *Metrics) RecordInferenceError() {
	if m == nil {
		return
	}
	m.InferenceErrors.Inc()
}

// RecordRetry counts a retried engine request.
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.EngineRetries.Inc()
}

// SetLoaded reports whether the session holds loaded resources.
func (m *Metrics) SetLoaded(loaded bool) {
	if m == nil {
		return
	}
	if loaded {
		m.Loaded.Set(1)
	} else {
		m.Loaded.Set(0)
	}
}

// RecordHTTPRequest counts one API request.
func (m *Metrics) RecordHTTPRequest(route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}
