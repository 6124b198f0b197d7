// Package server implements the monitor HTTP API: health, session
// snapshot, live transcript, statistics, sanitized configuration,
// Prometheus metrics, and a websocket lifecycle event feed. It is
// read-only; all session mutations go through the CLI and coordinator.
package server
