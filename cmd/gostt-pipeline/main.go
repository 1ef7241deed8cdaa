package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/chaz8081/gostt-pipeline/internal/config"
)

// version is set via ldflags at build time
var version = "dev"

// CLI is the command line grammar.
type CLI struct {
	Config   string           `help:"Path to config file (default: ~/.config/gostt-pipeline/config.yaml)." type:"path"`
	EnvFile  string           `help:"Load environment overrides from this file." default:".env" type:"path"`
	LogLevel string           `help:"Override log level (debug, info, warn, error)."`
	Version  kong.VersionFlag `help:"Show version information."`

	Transcribe TranscribeCmd `cmd:"" help:"Transcribe WAV files."`
	Record     RecordCmd     `cmd:"" help:"Record from the microphone, then transcribe."`
	Serve      ServeCmd      `cmd:"" help:"Serve the HTTP transcription API."`
	Inspect    InspectCmd    `cmd:"" help:"Describe a filter bank and vocabulary blob."`
	Download   DownloadCmd   `cmd:"" help:"Download the filter bank and vocabulary blob."`
	InitConfig InitConfigCmd `cmd:"" name:"init-config" help:"Write the default config file."`
}

// App is passed to every command's Run method.
type App struct {
	cfg *config.Config
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("gostt-pipeline"),
		kong.Description("Offline speech-to-text: log-mel features, pluggable inference, token decoding."),
		kong.Vars{"version": version},
		kong.UsageOnError(),
	)

	if err := config.LoadDotEnv(cli.EnvFile); err != nil {
		fatal("env file: %v", err)
	}

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		fatal("config: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		fatal("config: %v", err)
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		fatal("config validation: %v", err)
	}

	setupLogging(cfg.LogLevel)

	ctx.FatalIfErrorf(ctx.Run(&App{cfg: cfg}))
}

// setupLogging routes slog through a charmbracelet/log handler.
func setupLogging(level string) {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           log.Level(config.ParseLogLevel(level)),
	})
	slog.SetDefault(slog.New(logger))
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Debug("Config loaded", "path", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	slog.Debug("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== gostt-pipeline ===")
	fmt.Printf("  Vocab:   %s (multilingual: %v)\n", cfg.Vocab.Path, cfg.Vocab.Multilingual)
	fmt.Printf("  Audio:   %dHz, %ds chunks\n", cfg.Audio.SampleRate, cfg.Audio.ChunkSeconds)
	fmt.Printf("  Mel:     %d bands x %d frames (n_fft %d, hop %d)\n", cfg.Mel.NMel, cfg.Mel.NLen, cfg.Mel.NFFT, cfg.Mel.HopLength)
	fmt.Printf("  Engine:  %s %s\n", cfg.Engine.Backend, cfg.Engine.URL)
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("======================")
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "gostt-pipeline: "+format+"\n", args...)
	os.Exit(1)
}
