// Package transcript holds the streamed transcript update type and the
// append-only per-session store that persists partial transcripts for
// crash recovery and live display.
package transcript
