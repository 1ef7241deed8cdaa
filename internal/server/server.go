// Package server exposes a transcription session over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaz8081/gostt-pipeline/internal/audio"
	"github.com/chaz8081/gostt-pipeline/internal/metrics"
	"github.com/chaz8081/gostt-pipeline/internal/transcribe"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Transcriber is the part of a session the API needs.
type Transcriber interface {
	TryTranscribe(ctx context.Context, samples []float32) (string, error)
	Loaded() bool
}

// Config holds API settings.
type Config struct {
	SampleRate   int
	ChunkSeconds int
	BodyLimitMB  int
}

// TranscribeResponse is the body of a successful POST /v1/transcribe.
type TranscribeResponse struct {
	ID           string  `json:"id"`
	Text         string  `json:"text"`
	Chunks       int     `json:"chunks"`
	AudioSeconds float64 `json:"audio_seconds"`
	ElapsedMS    int64   `json:"elapsed_ms"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

// Server serves the transcription API.
type Server struct {
	app     *fiber.App
	t       Transcriber
	cfg     Config
	metrics *metrics.Metrics
}

// New builds the API around t. Metrics are served from gatherer when it is
// non-nil.
func New(t Transcriber, cfg Config, gatherer prometheus.Gatherer, m *metrics.Metrics) *Server {
	if cfg.BodyLimitMB <= 0 {
		cfg.BodyLimitMB = 64
	}
	s := &Server{
		t:       t,
		cfg:     cfg,
		metrics: m,
		app: fiber.New(fiber.Config{
			AppName:               "gostt-pipeline",
			BodyLimit:             cfg.BodyLimitMB << 20,
			DisableStartupMessage: true,
		}),
	}

	s.app.Use(s.countRequests)
	s.app.Post("/v1/transcribe", s.handleTranscribe)
	s.app.Get("/healthz", s.handleHealth)
	if gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	slog.Info("HTTP API listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) countRequests(c *fiber.Ctx) error {
	err := c.Next()
	s.metrics.RecordHTTPRequest(c.Route().Path, strconv.Itoa(c.Response().StatusCode()))
	return err
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "loaded": s.t.Loaded()})
}

func (s *Server) handleTranscribe(c *fiber.Ctx) error {
	id := c.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(RequestIDHeader, id)

	clip, err := audio.DecodeWAV(bytes.NewReader(c.Body()))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, id, err)
	}
	samples, err := audio.Resample(clip.Samples, clip.SampleRate, s.cfg.SampleRate)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, id, err)
	}
	audioSeconds := float64(len(samples)) / float64(s.cfg.SampleRate)

	chunks := 0
	if ch, err := audio.NewChunker(samples, audio.ChunkSize(s.cfg.SampleRate, s.cfg.ChunkSeconds)); err == nil {
		chunks = ch.Len()
	}

	start := time.Now()
	text, err := s.t.TryTranscribe(c.UserContext(), samples)
	elapsed := time.Since(start)
	switch {
	case errors.Is(err, transcribe.ErrBusy), errors.Is(err, transcribe.ErrNotLoaded):
		return fail(c, fiber.StatusServiceUnavailable, id, err)
	case err != nil:
		slog.Error("Transcription failed", "id", id, "error", err)
		return fail(c, fiber.StatusInternalServerError, id, err)
	}

	slog.Info("Transcribed request",
		"id", id,
		"chunks", chunks,
		"audio_seconds", audioSeconds,
		"elapsed", elapsed,
	)
	return c.JSON(TranscribeResponse{
		ID:           id,
		Text:         text,
		Chunks:       chunks,
		AudioSeconds: audioSeconds,
		ElapsedMS:    elapsed.Milliseconds(),
	})
}

func fail(c *fiber.Ctx, status int, id string, err error) error {
	return c.Status(status).JSON(ErrorResponse{ID: id, Error: err.Error()})
}
