package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Defaults for ffmpeg-backed capture. A frame is 100 ms of audio, small
// enough to keep level meters lively without burning syscalls.
const (
	DefaultSampleRate     = 16000
	DefaultFrameSize      = 1600
	defaultStartupTimeout = 3 * time.Second
)

// FFmpegConfig configures one ffmpeg capture process.
type FFmpegConfig struct {
	// Backend is the ffmpeg input format: avfoundation, pulse, alsa.
	// Empty selects a per-OS default.
	Backend string
	// Input is the device selector passed to -i, e.g. ":default" for
	// avfoundation or "default" for pulse.
	Input string
	// SampleRate of delivered samples. Defaults to DefaultSampleRate.
	SampleRate int
	// FrameSize is samples per delivered frame. Defaults to
	// DefaultFrameSize.
	FrameSize int
	// BinaryPath overrides the ffmpeg executable name.
	BinaryPath string
	// StartupTimeout bounds how long Start waits for the first frame.
	StartupTimeout time.Duration
}

// FFmpegDevice captures one input channel by running ffmpeg and
// streaming raw 16-bit PCM from its stdout.
type FFmpegDevice struct {
	cfg     FFmpegConfig
	channel Channel
	logger  *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFFmpegDevice creates a device for the given channel. Zero-valued
// config fields get defaults.
func NewFFmpegDevice(cfg FFmpegConfig, channel Channel, logger *slog.Logger) *FFmpegDevice {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "ffmpeg"
	}
	if cfg.Backend == "" {
		cfg.Backend = defaultBackend()
	}
	if cfg.Input == "" {
		cfg.Input = defaultInput(cfg.Backend)
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = defaultStartupTimeout
	}
	return &FFmpegDevice{cfg: cfg, channel: channel, logger: logger}
}

func defaultBackend() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "linux":
		return "pulse"
	default:
		return "pulse"
	}
}

func defaultInput(backend string) string {
	if backend == "avfoundation" {
		return ":default"
	}
	return "default"
}

// CheckBinary verifies the ffmpeg executable is on PATH.
func (d *FFmpegDevice) CheckBinary() error {
	if _, err := exec.LookPath(d.cfg.BinaryPath); err != nil {
		return fmt.Errorf("%s not found. Install with: brew install ffmpeg", d.cfg.BinaryPath)
	}
	return nil
}

func (d *FFmpegDevice) SampleRate() int {
	return d.cfg.SampleRate
}

func (d *FFmpegDevice) Channel() Channel {
	return d.channel
}

// buildArgs assembles the ffmpeg argument list: capture the configured
// input as mono at the configured rate and stream raw little-endian
// 16-bit PCM to stdout.
func (d *FFmpegDevice) buildArgs() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", d.cfg.Backend,
		"-i", d.cfg.Input,
		"-ac", "1",
		"-ar", strconv.Itoa(d.cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Start launches ffmpeg and begins delivering frames. It waits for the
// first frame before returning so open failures surface here rather
// than mid-recording; a process that dies complaining about device
// access maps to ErrPermissionDenied.
func (d *FFmpegDevice) Start(ctx context.Context, fn FrameFunc) error {
	if err := d.CheckBinary(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd != nil {
		return fmt.Errorf("%s capture already started", d.channel)
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, d.cfg.BinaryPath, d.buildArgs()...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	firstFrame := make(chan struct{})
	exited := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		d.readFrames(stdout, fn, firstFrame)
		exited <- cmd.Wait()
	}()

	select {
	case <-firstFrame:
	case err := <-exited:
		cancel()
		return classifyStartError(err, stderr.String())
	case <-time.After(d.cfg.StartupTimeout):
		cancel()
		<-done
		return classifyStartError(fmt.Errorf("no audio within %v", d.cfg.StartupTimeout), stderr.String())
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}

	d.cmd = cmd
	d.cancel = cancel
	d.done = done
	d.logger.Info("Capture started",
		slog.String("channel", d.channel.String()),
		slog.String("backend", d.cfg.Backend),
		slog.String("input", d.cfg.Input),
		slog.Int("sample_rate", d.cfg.SampleRate),
	)
	return nil
}

// readFrames converts the raw PCM stream into float32 frames.
func (d *FFmpegDevice) readFrames(r io.Reader, fn FrameFunc, firstFrame chan<- struct{}) {
	buf := make([]byte, d.cfg.FrameSize*2)
	delivered := false

	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return
		}
		samples := make([]float32, d.cfg.FrameSize)
		for i := range samples {
			samples[i] = float32(int16(binary.LittleEndian.Uint16(buf[2*i:]))) / 32768.0
		}
		if !delivered {
			delivered = true
			close(firstFrame)
		}
		fn(samples)
	}
}

// Stop terminates the ffmpeg process and waits for the reader to drain.
func (d *FFmpegDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd == nil {
		return nil
	}
	d.cancel()
	<-d.done
	d.cmd = nil
	d.cancel = nil
	d.done = nil
	d.logger.Info("Capture stopped", slog.String("channel", d.channel.String()))
	return nil
}

// classifyStartError maps ffmpeg's startup failure output onto the
// capture error taxonomy.
func classifyStartError(err error, stderr string) error {
	if isPermissionOutput(stderr) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, firstLine(stderr))
	}
	if s := firstLine(stderr); s != "" {
		return fmt.Errorf("capture failed to start: %v: %s", err, s)
	}
	return fmt.Errorf("capture failed to start: %w", err)
}

func isPermissionOutput(stderr string) bool {
	s := strings.ToLower(stderr)
	patterns := []string{
		"operation not permitted",
		"permission denied",
		"not authorized",
		"access denied",
		"cannot open audio device",
	}
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
