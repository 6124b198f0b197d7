// Package session models one meeting recording as a table-driven finite
// state machine with typed transition errors, plus the duration limits
// that bound a recording.
package session
