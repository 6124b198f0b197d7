package capture

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildArgs(t *testing.T) {
	d := NewFFmpegDevice(FFmpegConfig{
		Backend:    "avfoundation",
		Input:      ":default",
		SampleRate: 16000,
	}, ChannelMicrophone, testLogger())

	args := strings.Join(d.buildArgs(), " ")
	for _, want := range []string{
		"-f avfoundation",
		"-i :default",
		"-ac 1",
		"-ar 16000",
		"-f s16le",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}
	if !strings.HasSuffix(args, "-") {
		t.Errorf("args should end with stdout marker: %s", args)
	}
}

func TestConfigDefaults(t *testing.T) {
	d := NewFFmpegDevice(FFmpegConfig{}, ChannelSystem, testLogger())
	if d.SampleRate() != DefaultSampleRate {
		t.Errorf("sample rate = %d, want %d", d.SampleRate(), DefaultSampleRate)
	}
	if d.cfg.FrameSize != DefaultFrameSize {
		t.Errorf("frame size = %d, want %d", d.cfg.FrameSize, DefaultFrameSize)
	}
	if d.cfg.Backend == "" || d.cfg.Input == "" {
		t.Errorf("backend/input defaults not applied: %+v", d.cfg)
	}
	if d.Channel() != ChannelSystem {
		t.Errorf("channel = %s, want system", d.Channel())
	}
}

func TestClassifyStartError(t *testing.T) {
	cases := []struct {
		stderr     string
		permission bool
	}{
		{":default: Operation not permitted", true},
		{"pulse: access denied by policy", true},
		{"ALSA lib: cannot open audio device hw:0", true},
		{"Unknown input format: avfoundation", false},
		{"", false},
	}
	for _, tc := range cases {
		err := classifyStartError(errors.New("exit status 1"), tc.stderr)
		if got := errors.Is(err, ErrPermissionDenied); got != tc.permission {
			t.Errorf("classifyStartError(%q): permission = %v, want %v (err: %v)",
				tc.stderr, got, tc.permission, err)
		}
	}
}

func TestChannelString(t *testing.T) {
	if ChannelMicrophone.String() != "microphone" || ChannelSystem.String() != "system" {
		t.Errorf("unexpected channel names: %s, %s", ChannelMicrophone, ChannelSystem)
	}
}
