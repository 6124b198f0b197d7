// Package capture abstracts the OS audio inputs behind a small Device
// interface and provides an ffmpeg-backed implementation that streams
// raw PCM from the microphone or a system-audio loopback.
package capture
