package cli

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/audio"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/capture"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/config"
)

func TestProcessorConfigProfiles(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*config.Config)
		wantBuffer   time.Duration
		wantInterval time.Duration
		wantContext  int
	}{
		{
			name:         "standard profile",
			mutate:       func(c *config.Config) { c.Transcriber.Profile = "standard" },
			wantBuffer:   10 * time.Second,
			wantInterval: 5 * time.Second,
			wantContext:  50,
		},
		{
			name:         "fast profile",
			mutate:       func(c *config.Config) { c.Transcriber.Profile = "fast" },
			wantBuffer:   5 * time.Second,
			wantInterval: 3 * time.Second,
			wantContext:  30,
		},
		{
			name: "explicit values override profile",
			mutate: func(c *config.Config) {
				c.Transcriber.Profile = "fast"
				c.Transcriber.BufferDuration = 8
				c.Transcriber.ContextWordCount = 40
			},
			wantBuffer:   8 * time.Second,
			wantInterval: 3 * time.Second,
			wantContext:  40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			pc := processorConfig(cfg)
			if pc.BufferDuration != tt.wantBuffer {
				t.Errorf("buffer = %v, want %v", pc.BufferDuration, tt.wantBuffer)
			}
			if pc.ProcessingInterval != tt.wantInterval {
				t.Errorf("interval = %v, want %v", pc.ProcessingInterval, tt.wantInterval)
			}
			if pc.ContextWordCount != tt.wantContext {
				t.Errorf("context words = %d, want %d", pc.ContextWordCount, tt.wantContext)
			}
			if pc.SampleRate != cfg.Audio.SampleRate {
				t.Errorf("sample rate = %d, want %d", pc.SampleRate, cfg.Audio.SampleRate)
			}
		})
	}
}

func TestBuildDevices(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		source     audio.Source
		wantMic    bool
		wantSystem bool
	}{
		{audio.SourceMicrophone, true, false},
		{audio.SourceSystem, false, true},
		{audio.SourceBoth, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.source.String(), func(t *testing.T) {
			mic, system := buildDevices(config.Default(), tt.source, logger)
			if (mic != nil) != tt.wantMic {
				t.Errorf("mic device present = %v, want %v", mic != nil, tt.wantMic)
			}
			if (system != nil) != tt.wantSystem {
				t.Errorf("system device present = %v, want %v", system != nil, tt.wantSystem)
			}
			// The preflight in runRecord checks the binary on whichever
			// device exposes the check before any audio flows.
			for _, dev := range []capture.Device{mic, system} {
				if dev == nil {
					continue
				}
				if _, ok := dev.(interface{ CheckBinary() error }); !ok {
					t.Errorf("%T does not expose CheckBinary", dev)
				}
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0s"},
		{30, "30s"},
		{90.4, "1m30s"},
		{5400, "1h30m0s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.seconds); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("a very long meeting title", 10); len([]rune(got)) != 10 {
		t.Errorf("truncate length = %d, want 10", len([]rune(got)))
	}
}
