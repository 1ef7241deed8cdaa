// Package engine provides inference engines that turn a window of log-mel
// features into a token sequence.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chaz8081/gostt-pipeline/internal/metrics"
)

const (
	baseBackoff = 250 * time.Millisecond
	maxBackoff  = 5 * time.Second
)

// HTTPConfig configures an HTTPEngine.
type HTTPConfig struct {
	URL        string
	Timeout    time.Duration
	OutputSize int
	MaxRetries int
	NMel       int
	Metrics    *metrics.Metrics
}

// Request is the JSON body sent to the inference server.
type Request struct {
	NMel     int       `json:"n_mel"`
	NLen     int       `json:"n_len"`
	Features []float32 `json:"features"`
}

// Response is the JSON body returned by the inference server.
type Response struct {
	Tokens []int32 `json:"tokens"`
}

// statusError is a non-2xx reply from the inference server.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.code, e.body)
}

// HTTPEngine runs inference on a remote server over JSON/HTTP.
type HTTPEngine struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTP creates an HTTPEngine.
func NewHTTP(cfg HTTPConfig) (*HTTPEngine, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("engine: url cannot be empty")
	}
	if cfg.OutputSize <= 0 {
		return nil, fmt.Errorf("engine: output size must be > 0, got %d", cfg.OutputSize)
	}
	if cfg.NMel <= 0 {
		return nil, fmt.Errorf("engine: n_mel must be > 0, got %d", cfg.NMel)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &HTTPEngine{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// OutputSize returns the token sequence length per window.
func (e *HTTPEngine) OutputSize() int {
	return e.cfg.OutputSize
}

// Run sends the features in `in` to the server and copies the returned
// tokens into out. Tokens beyond len(out) are dropped and positions past
// the returned sequence are left untouched.
func (e *HTTPEngine) Run(ctx context.Context, in []float32, out []int32) error {
	if len(in)%e.cfg.NMel != 0 {
		return fmt.Errorf("engine: %d features is not a multiple of n_mel %d", len(in), e.cfg.NMel)
	}
	body, err := json.Marshal(Request{
		NMel:     e.cfg.NMel,
		NLen:     len(in) / e.cfg.NMel,
		Features: in,
	})
	if err != nil {
		return fmt.Errorf("engine: encoding request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			e.cfg.Metrics.RecordRetry()
			wait := backoff(attempt)
			slog.Debug("Retrying inference request", "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		resp, err := e.do(ctx, body)
		if err == nil {
			n := copy(out, resp.Tokens)
			if n < len(resp.Tokens) {
				slog.Debug("Inference output truncated", "returned", len(resp.Tokens), "kept", n)
			}
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			break
		}
	}
	return fmt.Errorf("engine: inference failed after %d attempts: %w", e.cfg.MaxRetries+1, lastErr)
}

// do performs a single request.
func (e *HTTPEngine) do(ctx context.Context, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, body: string(bytes.TrimSpace(respBody))}
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &out, nil
}

// Close releases idle connections.
func (e *HTTPEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// retryable reports whether a failed request may succeed if repeated.
// Client errors and malformed responses are final.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return !errors.As(err, &syntax) && !errors.As(err, &typeErr)
}

func backoff(attempt int) time.Duration {
	if attempt > 16 {
		return maxBackoff
	}
	return min(baseBackoff<<(attempt-1), maxBackoff)
}
