// Package transcription implements the HTTP client for the Whisper-style
// transcription API and the streaming processor that feeds it rolling
// audio windows. The client handles multipart form data requests, retry
// logic with exponential backoff, and rate limiting; the processor owns
// the window buffer, the processing cadence, and the transcript updates.
package transcription
