package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/chaz8081/gostt-pipeline/internal/audio"
	"github.com/chaz8081/gostt-pipeline/internal/config"
	"github.com/chaz8081/gostt-pipeline/internal/metrics"
	"github.com/chaz8081/gostt-pipeline/internal/models"
	"github.com/chaz8081/gostt-pipeline/internal/server"
	"github.com/chaz8081/gostt-pipeline/internal/transcribe"
	"github.com/chaz8081/gostt-pipeline/internal/vocab"
)

// minRecording is the shortest take worth transcribing.
const minRecording = 300 * time.Millisecond

// TranscribeCmd transcribes WAV files.
type TranscribeCmd struct {
	Files []string `arg:"" name:"file" help:"WAV files, resampled to the configured rate when needed."`
	JSON  bool     `help:"Print one JSON object per file."`
	Score bool     `help:"Compare each transcript with the .txt file beside its WAV and report word error rate."`
}

type fileResult struct {
	File         string            `json:"file"`
	Text         string            `json:"text"`
	AudioSeconds float64           `json:"audio_seconds"`
	ElapsedMS    int64             `json:"elapsed_ms"`
	Score        *transcribe.Score `json:"score,omitempty"`
}

func (c *TranscribeCmd) Run(app *App) error {
	session, err := openSession(app.cfg, nil)
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	for _, path := range c.Files {
		clip, err := audio.ReadWAV(path)
		if err != nil {
			return err
		}
		samples, err := audio.Resample(clip.Samples, clip.SampleRate, int(app.cfg.Audio.SampleRate))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		start := time.Now()
		text, err := session.Transcribe(ctx, samples)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		elapsed := time.Since(start).Round(time.Millisecond)

		var score *transcribe.Score
		if c.Score {
			ref, err := os.ReadFile(strings.TrimSuffix(path, filepath.Ext(path)) + ".txt")
			if err != nil {
				return fmt.Errorf("%s: reading reference: %w", path, err)
			}
			sc := transcribe.ScoreTranscript(string(ref), text)
			score = &sc
		}

		if c.JSON {
			if err := enc.Encode(fileResult{
				File:         path,
				Text:         text,
				AudioSeconds: float64(len(samples)) / float64(app.cfg.Audio.SampleRate),
				ElapsedMS:    elapsed.Milliseconds(),
				Score:        score,
			}); err != nil {
				return err
			}
			continue
		}
		slog.Info("Transcribed", "file", path, "elapsed", elapsed)
		printTranscript(text)
		if score != nil {
			fmt.Printf("WER %.1f%% (%d sub, %d ins, %d del / %d words)\n",
				score.WER*100, score.Substitutions, score.Insertions, score.Deletions, score.RefWords)
		}
	}
	return nil
}

// RecordCmd captures one take from the default microphone.
type RecordCmd struct {
	Duration time.Duration `help:"Maximum recording length; Ctrl+C stops early." default:"30s"`
	Save     string        `help:"Also write the captured audio to this WAV file." type:"path"`
}

func (c *RecordCmd) Run(app *App) error {
	session, err := openSession(app.cfg, nil)
	if err != nil {
		return err
	}
	defer session.Close()

	recorder, err := audio.NewRecorder(app.cfg.Audio.SampleRate, app.cfg.Audio.Channels)
	if err != nil {
		return fmt.Errorf("initializing audio recorder: %w\n\nEnsure microphone access is granted", err)
	}
	defer recorder.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	fmt.Printf("Recording for up to %s, press Ctrl+C to stop...\n", c.Duration)
	samples, err := recorder.Record(ctx, c.Duration)
	stop()
	if err != nil {
		return fmt.Errorf("recording: %w", err)
	}

	rate := int(app.cfg.Audio.SampleRate)
	duration := time.Duration(float64(len(samples)) / float64(rate) * float64(time.Second))
	if duration < minRecording {
		fmt.Printf("Recording too short (%.1fs), skipping\n", duration.Seconds())
		return nil
	}

	if c.Save != "" {
		if err := audio.WriteWAV(c.Save, samples, rate); err != nil {
			return err
		}
		slog.Info("Recording saved", "path", c.Save)
	}

	fmt.Printf("Captured %.1fs of audio, transcribing...\n", duration.Seconds())
	start := time.Now()
	text, err := session.Transcribe(context.Background(), samples)
	if err != nil {
		return err
	}
	slog.Info("Transcribed", "elapsed", time.Since(start).Round(time.Millisecond))
	printTranscript(text)
	return nil
}

// ServeCmd runs the HTTP API.
type ServeCmd struct {
	Listen string `help:"Listen address (overrides server.listen)."`
}

func (c *ServeCmd) Run(app *App) error {
	cfg := app.cfg
	if c.Listen != "" {
		cfg.Server.Listen = c.Listen
	}
	printBanner(cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	session, err := openSession(cfg, m)
	if err != nil {
		return err
	}
	defer session.Close()

	srv := server.New(session, server.Config{
		SampleRate:   int(cfg.Audio.SampleRate),
		ChunkSeconds: cfg.Audio.ChunkSeconds,
		BodyLimitMB:  cfg.Server.BodyLimitMB,
	}, reg, m)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(cfg.Server.Listen) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	fmt.Println("Goodbye!")
	return nil
}

// InspectCmd prints what a blob contains.
type InspectCmd struct {
	Blob         string `arg:"" help:"Filter bank and vocabulary blob." type:"existingfile"`
	Multilingual bool   `help:"Use multilingual special token ids."`
	Token        []int  `help:"Print the text of these token ids." sep:","`
}

func (c *InspectCmd) Run(app *App) error {
	filters, v, err := vocab.LoadFile(c.Blob, c.Multilingual)
	if err != nil {
		return err
	}

	sp := v.Special
	fmt.Printf("Blob:          %s\n", c.Blob)
	fmt.Printf("Magic:         0x%08X\n", vocab.Magic)
	fmt.Printf("Filters:       %d mel x %d bins\n", filters.NMel, filters.NFFT)
	fmt.Printf("Tokens:        %d serialized, %d total\n", v.Explicit, v.Len())
	fmt.Printf("Multilingual:  %v\n", v.Multilingual)
	fmt.Printf("Special ids:   eot=%d sot=%d translate=%d transcribe=%d prev=%d solm=%d not=%d beg=%d\n",
		sp.EndOfText, sp.StartOfTranscript, sp.Translate, sp.Transcribe,
		sp.Previous, sp.SOLM, sp.NoTimestamps, sp.BeginTimestamp)

	if filters.NMel != app.cfg.Mel.NMel || filters.NFFT != app.cfg.Mel.NFFT/2+1 {
		fmt.Printf("Warning:       config expects %d mel x %d bins\n", app.cfg.Mel.NMel, app.cfg.Mel.NFFT/2+1)
	}

	for _, id := range c.Token {
		text, ok := v.Token(id)
		if !ok {
			fmt.Printf("  %6d  (none)\n", id)
			continue
		}
		fmt.Printf("  %6d  %q\n", id, text)
	}
	return nil
}

// DownloadCmd fetches the blob to vocab.path.
type DownloadCmd struct {
	URL string `help:"Source URL (default: vocab.url, then the published blob)."`
}

func (c *DownloadCmd) Run(app *App) error {
	url := c.URL
	if url == "" {
		url = app.cfg.Vocab.URL
	}
	if url == "" {
		url = models.DefaultURL(app.cfg.Vocab.Multilingual)
	}

	fmt.Println("=== Vocabulary Download ===")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return models.Download(ctx, url, app.cfg.Vocab.Path, os.Stdout)
}

// InitConfigCmd writes the default config file.
type InitConfigCmd struct{}

func (c *InitConfigCmd) Run(app *App) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists: %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

// openSession loads the configured session and reports how long it took.
func openSession(cfg *config.Config, m *metrics.Metrics) (*transcribe.Session, error) {
	start := time.Now()
	session, err := transcribe.Open(cfg, m)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w\n\nRun 'gostt-pipeline download' to fetch %s", err, cfg.Vocab.Path)
		}
		return nil, err
	}
	slog.Info("Session ready", "elapsed", time.Since(start).Round(time.Millisecond))
	return session, nil
}

func printTranscript(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		fmt.Println("No speech detected")
		return
	}
	fmt.Println(text)
}
