// Package bus implements the broadcast hub between the audio recorder
// and its consumers. Publishes fan out to per-subscriber queues and
// never block the publisher; slow subscribers drop independently.
package bus
