package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Vocab    VocabConfig  `yaml:"vocab"`
	Audio    AudioConfig  `yaml:"audio"`
	Mel      MelConfig    `yaml:"mel"`
	Engine   EngineConfig `yaml:"engine"`
	Server   ServerConfig `yaml:"server"`
	LogLevel string       `yaml:"log_level"`
}

// VocabConfig locates the filter bank and vocabulary blob.
type VocabConfig struct {
	Path         string `yaml:"path"`
	Multilingual bool   `yaml:"multilingual"`
	// URL is where `download` fetches the blob from.
	URL string `yaml:"url"`
}

// AudioConfig holds input and chunking settings.
type AudioConfig struct {
	SampleRate   uint32 `yaml:"sample_rate"`
	Channels     uint32 `yaml:"channels"`
	ChunkSeconds int    `yaml:"chunk_seconds"`
}

// MelConfig holds feature extraction settings.
type MelConfig struct {
	NFFT      int `yaml:"n_fft"`
	HopLength int `yaml:"hop_length"`
	NMel      int `yaml:"n_mel"`
	NLen      int `yaml:"n_len"`
	Workers   int `yaml:"workers"` // 0 = all CPUs
}

// EngineConfig selects and configures the inference engine.
type EngineConfig struct {
	Backend    string        `yaml:"backend"` // "http"
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	OutputSize int           `yaml:"output_size"`
	MaxRetries int           `yaml:"max_retries"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Listen      string `yaml:"listen"`
	BodyLimitMB int    `yaml:"body_limit_mb"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gostt-pipeline")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelsDir returns where downloaded assets are stored.
func DefaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "models"
	}
	return filepath.Join(home, ".local", "share", "gostt-pipeline", "models")
}

// Default returns a Config with the Whisper model constants.
func Default() *Config {
	return &Config{
		Vocab: VocabConfig{
			Path: filepath.Join(DefaultModelsDir(), "filters_vocab_en.bin"),
		},
		Audio: AudioConfig{
			SampleRate:   16000,
			Channels:     1,
			ChunkSeconds: 30,
		},
		Mel: MelConfig{
			NFFT:      400,
			HopLength: 160,
			NMel:      80,
			NLen:      3000,
		},
		Engine: EngineConfig{
			Backend:    "http",
			URL:        "http://127.0.0.1:8501/v1/models/whisper:infer",
			Timeout:    60 * time.Second,
			OutputSize: 448,
			MaxRetries: 2,
		},
		Server: ServerConfig{
			Listen:      ":8080",
			BodyLimitMB: 64,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields keep their
// defaults and a leading ~ in paths is expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Vocab.Path = expandTilde(cfg.Vocab.Path)
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides fields from GOSTT_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("GOSTT_VOCAB_PATH"); v != "" {
		c.Vocab.Path = expandTilde(v)
	}
	if v := os.Getenv("GOSTT_MULTILINGUAL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GOSTT_MULTILINGUAL: %w", err)
		}
		c.Vocab.Multilingual = b
	}
	if v := os.Getenv("GOSTT_ENGINE_URL"); v != "" {
		c.Engine.URL = v
	}
	if v := os.Getenv("GOSTT_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("GOSTT_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	return nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Vocab.Path == "" {
		return fmt.Errorf("vocab.path must not be empty")
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}
	if c.Audio.Channels == 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}
	if c.Audio.ChunkSeconds <= 0 {
		return fmt.Errorf("audio.chunk_seconds must be > 0")
	}

	if c.Mel.NFFT <= 0 || c.Mel.HopLength <= 0 || c.Mel.NMel <= 0 || c.Mel.NLen <= 0 {
		return fmt.Errorf("mel.n_fft, mel.hop_length, mel.n_mel and mel.n_len must be > 0")
	}
	if c.Mel.Workers < 0 {
		return fmt.Errorf("mel.workers must be >= 0")
	}

	switch c.Engine.Backend {
	case "http":
		if c.Engine.URL == "" {
			return fmt.Errorf("engine.url must not be empty for the http backend")
		}
	default:
		return fmt.Errorf("engine.backend must be \"http\", got %q", c.Engine.Backend)
	}
	if c.Engine.OutputSize <= 0 {
		return fmt.Errorf("engine.output_size must be > 0")
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must be >= 0")
	}

	if c.Server.BodyLimitMB <= 0 {
		return fmt.Errorf("server.body_limit_mb must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

const defaultHeader = `# gostt-pipeline configuration
# Environment overrides: GOSTT_VOCAB_PATH, GOSTT_MULTILINGUAL, GOSTT_ENGINE_URL,
# GOSTT_LISTEN, GOSTT_LOG_LEVEL (also read from .env).

`

// WriteDefault writes the default config to DefaultConfigPath and returns the
// path. If a config file already exists it returns ("", nil) and leaves it alone.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	data = append([]byte(defaultHeader), data...)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ParseLogLevel converts a level name to a slog.Level. Unknown names map to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
