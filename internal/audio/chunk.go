package audio

import (
	"fmt"
	"strings"
)

// Source identifies which capture inputs feed a recording.
type Source int

const (
	SourceMicrophone Source = iota
	SourceSystem
	SourceBoth
)

// String returns the canonical config/CLI spelling of the source.
func (s Source) String() string {
	switch s {
	case SourceMicrophone:
		return "microphone"
	case SourceSystem:
		return "system"
	case SourceBoth:
		return "both"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalJSON renders the source as its canonical string.
func (s Source) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts any spelling ParseSource does.
func (s *Source) UnmarshalJSON(data []byte) error {
	v, err := ParseSource(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSource maps a config or CLI spelling onto a Source.
func ParseSource(s string) (Source, error) {
	switch s {
	case "microphone", "mic":
		return SourceMicrophone, nil
	case "system":
		return SourceSystem, nil
	case "both":
		return SourceBoth, nil
	default:
		return SourceMicrophone, fmt.Errorf("unknown audio source %q (want microphone, system, or both)", s)
	}
}

// AudioChunk is one fixed-duration segment of recorded audio, the unit of
// disk persistence and stream distribution. Chunks are immutable once
// created; ownership moves from the producer through the bus to each
// consumer, and Samples must never be written to after construction.
type AudioChunk struct {
	Samples    []float32 `json:"-"`
	Timestamp  float64   `json:"timestamp"` // seconds from session start
	Duration   float64   `json:"duration"`  // seconds of audio in Samples
	SampleRate int       `json:"sample_rate"`
	ChunkIndex int       `json:"chunk_index"` // zero-based, contiguous per session
}

// NewChunk builds a chunk over samples, deriving Duration from the sample
// count and rate.
func NewChunk(samples []float32, sampleRate, index int, timestamp float64) AudioChunk {
	duration := 0.0
	if sampleRate > 0 {
		duration = float64(len(samples)) / float64(sampleRate)
	}
	return AudioChunk{
		Samples:    samples,
		Timestamp:  timestamp,
		Duration:   duration,
		SampleRate: sampleRate,
		ChunkIndex: index,
	}
}

// AudioLevel is an instantaneous loudness reading in dBFS. Readings are
// transient: they feed meters and metrics and are never persisted.
type AudioLevel struct {
	MicDB     float64 `json:"mic_db"`
	SystemDB  float64 `json:"system_db,omitempty"`
	HasSystem bool    `json:"has_system"`
}
