// Package diskwriter persists the chunk stream as numbered WAV files in
// a per-session directory, tracking counts and bytes for storage
// accounting.
package diskwriter
