package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/audio"
)

// Env variables honored after file load. A .env file is read by the
// entrypoint before config loading.
const (
	EnvASRAPIKey   = "WHISPERTYPE_ASR_API_KEY"
	EnvASREndpoint = "WHISPERTYPE_ASR_ENDPOINT"
)

// Config represents the complete service configuration.
type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	Capture       CaptureConfig       `yaml:"capture"`
	Transcriber   TranscriberConfig   `yaml:"transcriber"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Storage       StorageConfig       `yaml:"storage"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// AudioConfig contains chunking and mixing parameters.
type AudioConfig struct {
	SampleRate    int     `yaml:"sample_rate"`
	ChunkDuration float64 `yaml:"chunk_duration"` // seconds
	MicWeight     float32 `yaml:"mic_weight"`
	SystemWeight  float32 `yaml:"system_weight"`
	Normalize     bool    `yaml:"normalize"`
}

// CaptureConfig contains ffmpeg capture configuration.
type CaptureConfig struct {
	Backend        string  `yaml:"backend"` // avfoundation, pulse, alsa; empty = per-OS default
	MicInput       string  `yaml:"mic_input"`
	SystemInput    string  `yaml:"system_input"`
	FFmpegPath     string  `yaml:"ffmpeg_path"`
	FrameSize      int     `yaml:"frame_size"`      // samples per delivered frame
	StartupTimeout float64 `yaml:"startup_timeout"` // seconds
}

// TranscriberConfig contains streaming transcription window parameters.
type TranscriberConfig struct {
	Profile            string  `yaml:"profile"`             // "standard" or "fast"
	BufferDuration     float64 `yaml:"buffer_duration"`     // seconds, 0 = profile default
	ProcessingInterval float64 `yaml:"processing_interval"` // seconds, 0 = profile default
	ContextWordCount   int     `yaml:"context_word_count"`  // 0 = profile default
}

// TranscriptionConfig contains transcription API configuration.
type TranscriptionConfig struct {
	Endpoint      string  `yaml:"endpoint"`
	APIKey        string  `yaml:"api_key"`
	Model         string  `yaml:"model"`
	Language      string  `yaml:"language"`
	Temperature   float32 `yaml:"temperature"`
	Timeout       int     `yaml:"timeout"` // seconds
	MaxRetries    int     `yaml:"max_retries"`
	MaxConcurrent int     `yaml:"max_concurrent"`
	OutputFormat  string  `yaml:"output_format"`
}

// StorageConfig contains recording and catalog storage locations.
type StorageConfig struct {
	RecordingsDir string `yaml:"recordings_dir"`
	CatalogPath   string `yaml:"catalog_path"`
}

// HTTPConfig contains the monitor HTTP server configuration.
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a complete, runnable configuration pointed at the
// local development stub endpoint, so recording works with no file.
func Default() *Config {
	cfg := &Config{
		Audio: AudioConfig{
			SampleRate:    audio.ChunkSampleRate,
			ChunkDuration: 30,
			MicWeight:     0.5,
			SystemWeight:  0.5,
			Normalize:     true,
		},
		Capture: CaptureConfig{
			FrameSize:      1600,
			StartupTimeout: 3,
		},
		Transcriber: TranscriberConfig{
			Profile: "standard",
		},
		Transcription: TranscriptionConfig{
			Endpoint:      "http://localhost:9000/transcribe",
			Timeout:       30,
			MaxRetries:    2,
			MaxConcurrent: 4,
			OutputFormat:  "json",
		},
		Storage: StorageConfig{
			RecordingsDir: "recordings",
			CatalogPath:   "recordings/catalog.db",
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
	cfg.ApplyEnvOverrides()
	return cfg
}

// Load reads and parses the configuration file, applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.ApplyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ApplyEnvOverrides replaces config values with their environment
// counterparts when set.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(EnvASRAPIKey); v != "" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv(EnvASREndpoint); v != "" {
		c.Transcription.Endpoint = v
	}
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Transcriber.Validate(); err != nil {
		return fmt.Errorf("transcriber config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration.
func (a *AudioConfig) Validate() error {
	if a.SampleRate != audio.ChunkSampleRate {
		return fmt.Errorf("sample_rate must be %d Hz for the chunk WAV format, got %d",
			audio.ChunkSampleRate, a.SampleRate)
	}

	if a.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", a.ChunkDuration)
	}

	if a.MicWeight < 0 || a.SystemWeight < 0 {
		return fmt.Errorf("mix weights cannot be negative, got mic=%f system=%f",
			a.MicWeight, a.SystemWeight)
	}

	if a.MicWeight == 0 && a.SystemWeight == 0 {
		return fmt.Errorf("at least one mix weight must be positive")
	}

	return nil
}

// Validate validates capture configuration.
func (c *CaptureConfig) Validate() error {
	if c.FrameSize < 160 {
		return fmt.Errorf("frame_size must be at least 160 samples, got %d", c.FrameSize)
	}

	if c.StartupTimeout <= 0 {
		return fmt.Errorf("startup_timeout must be positive, got %f", c.StartupTimeout)
	}

	return nil
}

// Validate validates transcriber configuration.
func (t *TranscriberConfig) Validate() error {
	validProfiles := map[string]bool{"standard": true, "fast": true, "": true}
	if !validProfiles[t.Profile] {
		return fmt.Errorf("profile must be 'standard' or 'fast', got '%s'", t.Profile)
	}

	if t.BufferDuration < 0 {
		return fmt.Errorf("buffer_duration cannot be negative, got %f", t.BufferDuration)
	}

	if t.ProcessingInterval < 0 {
		return fmt.Errorf("processing_interval cannot be negative, got %f", t.ProcessingInterval)
	}

	if t.BufferDuration > 0 && t.ProcessingInterval > t.BufferDuration {
		return fmt.Errorf("processing_interval (%f) cannot exceed buffer_duration (%f)",
			t.ProcessingInterval, t.BufferDuration)
	}

	if t.ContextWordCount < 0 {
		return fmt.Errorf("context_word_count cannot be negative, got %d", t.ContextWordCount)
	}

	return nil
}

// Validate validates transcription configuration.
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[t.OutputFormat] {
		return fmt.Errorf("output_format must be 'json' or 'text', got '%s'", t.OutputFormat)
	}

	return nil
}

// Validate validates storage configuration.
func (s *StorageConfig) Validate() error {
	if s.RecordingsDir == "" {
		return fmt.Errorf("recordings_dir cannot be empty")
	}

	if s.CatalogPath == "" {
		return fmt.Errorf("catalog_path cannot be empty")
	}

	return nil
}

// Validate validates HTTP configuration.
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Level and format are constrained; output may also be a file path.
	return nil
}

// GetChunkDuration returns the chunk duration as a time.Duration.
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkDuration * float64(time.Second))
}

// GetStartupTimeout returns the capture startup timeout as a
// time.Duration.
func (c *CaptureConfig) GetStartupTimeout() time.Duration {
	return time.Duration(c.StartupTimeout * float64(time.Second))
}

// GetBufferDuration returns the rolling window length as a
// time.Duration, zero when unset.
func (t *TranscriberConfig) GetBufferDuration() time.Duration {
	return time.Duration(t.BufferDuration * float64(time.Second))
}

// GetProcessingInterval returns the cycle cadence as a time.Duration,
// zero when unset.
func (t *TranscriberConfig) GetProcessingInterval() time.Duration {
	return time.Duration(t.ProcessingInterval * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a
// time.Duration.
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
