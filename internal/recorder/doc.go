// Package recorder drives the live audio pipeline: capture frames flow
// through a bounded ingest queue into per-channel ring buffers, and each
// completed block is mixed, stamped, and published as a chunk.
package recorder
