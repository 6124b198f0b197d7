package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/config"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/version"
)

const defaultConfigPath = "configs/config.yaml"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "whispertype",
	Short: "Live meeting recorder with streaming transcription",
	Long: `whispertype captures meeting audio from the microphone and/or system
output, mixes it into a mono stream, writes 30-second WAV chunks to
disk, and produces a rolling live transcript through a Whisper-style
transcription API.`,
	Version:       version.Full(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"path to configuration file (YAML)")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(doctorCmd)
}

// loadConfig resolves configuration: an explicit --config path, then
// the default path when the file exists, then built-in defaults.
func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return config.Load(defaultConfigPath)
	}
	return config.Default(), nil
}

// initLogger creates the structured logger from configuration.
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
