package capture

import (
	"context"
	"errors"
	"fmt"
)

// ErrPermissionDenied reports that the OS refused access to the capture
// input. Fatal to starting a session; never retried.
var ErrPermissionDenied = errors.New("audio capture permission denied")

// Channel identifies which input a device captures.
type Channel int

const (
	ChannelMicrophone Channel = iota
	ChannelSystem
)

func (c Channel) String() string {
	switch c {
	case ChannelMicrophone:
		return "microphone"
	case ChannelSystem:
		return "system"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// FrameFunc receives one batch of mono float32 samples in [-1, 1]. It
// runs on the device's delivery goroutine and must not block; heavy
// work belongs behind a queue.
type FrameFunc func(samples []float32)

// Device produces mono float32 samples at a fixed rate for one channel.
// Implementations deliver frames from their own goroutine until Stop or
// context cancellation.
type Device interface {
	// Start opens the input and begins delivering frames to fn. It
	// returns ErrPermissionDenied (possibly wrapped) when the OS blocks
	// the input, and a plain error for other open failures.
	Start(ctx context.Context, fn FrameFunc) error
	// Stop ends capture and releases the input. Safe to call when not
	// started.
	Stop() error
	// SampleRate is the rate of delivered samples in Hz.
	SampleRate() int
	// Channel reports which input this device captures.
	Channel() Channel
}
