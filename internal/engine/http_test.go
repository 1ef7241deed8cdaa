package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/chaz8081/gostt-pipeline/internal/metrics"
)

func newTestEngine(t *testing.T, url string, retries int, m *metrics.Metrics) *HTTPEngine {
	t.Helper()
	e, err := NewHTTP(HTTPConfig{
		URL:        url,
		Timeout:    5 * time.Second,
		OutputSize: 4,
		MaxRetries: retries,
		NMel:       2,
		Metrics:    m,
	})
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func tokenServer(t *testing.T, tokens []int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.NMel*req.NLen != len(req.Features) {
			http.Error(w, "shape mismatch", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(Response{Tokens: tokens})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewHTTPValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  HTTPConfig
	}{
		{"empty url", HTTPConfig{OutputSize: 4, NMel: 80}},
		{"zero output size", HTTPConfig{URL: "http://x", NMel: 80}},
		{"zero n_mel", HTTPConfig{URL: "http://x", OutputSize: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewHTTP(tt.cfg); err == nil {
				t.Error("NewHTTP() should fail")
			}
		})
	}
}

func TestRun(t *testing.T) {
	srv := tokenServer(t, []int32{11, 12, 50256, 7})
	e := newTestEngine(t, srv.URL, 0, nil)

	out := make([]int32, e.OutputSize())
	if err := e.Run(context.Background(), []float32{0, 1, 2, 3, 4, 5}, out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := []int32{11, 12, 50256, 7}; !slices.Equal(out, want) {
		t.Errorf("out = %v, want %v", out, want)
	}
}

func TestRunShortAndLongResponses(t *testing.T) {
	tests := []struct {
		name   string
		tokens []int32
		want   []int32
	}{
		{"short keeps prefill", []int32{1, 2}, []int32{1, 2, -1, -1}},
		{"long is truncated", []int32{1, 2, 3, 4, 5, 6}, []int32{1, 2, 3, 4}},
		{"empty", nil, []int32{-1, -1, -1, -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := tokenServer(t, tt.tokens)
			e := newTestEngine(t, srv.URL, 0, nil)

			out := []int32{-1, -1, -1, -1}
			if err := e.Run(context.Background(), []float32{0, 0}, out); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if !slices.Equal(out, tt.want) {
				t.Errorf("out = %v, want %v", out, tt.want)
			}
		})
	}
}

func TestRunRejectsRaggedInput(t *testing.T) {
	e := newTestEngine(t, "http://127.0.0.1:1", 0, nil)
	if err := e.Run(context.Background(), []float32{1, 2, 3}, make([]int32, 4)); err == nil {
		t.Error("Run() should reject features that are not a multiple of n_mel")
	}
}

func TestRunRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Response{Tokens: []int32{42}})
	}))
	defer srv.Close()

	m := metrics.New(prometheus.NewRegistry())
	e := newTestEngine(t, srv.URL, 2, m)

	out := make([]int32, 4)
	if err := e.Run(context.Background(), []float32{0, 0}, out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out[0] != 42 {
		t.Errorf("out[0] = %d, want 42", out[0])
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
	if got := testutil.ToFloat64(m.EngineRetries); got != 1 {
		t.Errorf("retries metric = %v, want 1", got)
	}
}

func TestRunDoesNotRetryClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad features", http.StatusBadRequest)
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"tokens": [1, 2`))
		}},
		{"wrong json type", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"tokens": "abc"}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			}))
			defer srv.Close()

			e := newTestEngine(t, srv.URL, 3, nil)
			if err := e.Run(context.Background(), []float32{0, 0}, make([]int32, 4)); err == nil {
				t.Fatal("Run() should fail")
			}
			if got := calls.Load(); got != 1 {
				t.Errorf("server calls = %d, want 1", got)
			}
		})
	}
}

func TestRunGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := newTestEngine(t, srv.URL, 1, nil)
	err := e.Run(context.Background(), []float32{0, 0}, make([]int32, 4))
	if err == nil {
		t.Fatal("Run() should fail")
	}
	var se *statusError
	if !errors.As(err, &se) || se.code != http.StatusInternalServerError {
		t.Errorf("Run() error = %v, want wrapped 500 status error", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
}

func TestRunCancelledContext(t *testing.T) {
	srv := tokenServer(t, []int32{1})
	e := newTestEngine(t, srv.URL, 3, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Run(ctx, []float32{0, 0}, make([]int32, 4))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{10, maxBackoff},
		{80, maxBackoff},
	}
	for _, tt := range tests {
		if got := backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
