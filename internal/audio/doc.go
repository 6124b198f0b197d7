// Package audio provides the sample-level building blocks of the recording
// pipeline: chunk and level types, pure mixing and resampling utilities, a
// fixed-capacity ring buffer for chunk assembly, and the WAV codec.
package audio
