package transcription

import "context"

// Engine is the external speech-to-text interface: a window of mono
// samples plus textual continuity context in, plain text out. Engine
// internals (model, server, batching) are behind this boundary.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, contextText string) (string, error)
}
