package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/audio"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/bus"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/capture"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/session"
)

// Config tunes one recorder instance. Zero values get defaults.
type Config struct {
	Source        audio.Source
	SampleRate    int
	ChunkDuration time.Duration
	// Mix weights apply when Source is both. Normalize rescales the mix
	// so its peak stays under the mixer target.
	MicWeight    float32
	SystemWeight float32
	Normalize    bool
	// Duration limits. Defaults come from the session package.
	WarningDuration time.Duration
	MaxDuration     time.Duration
	// IngestQueueSize bounds the capture-to-assembly queue.
	IngestQueueSize int
}

// DefaultChunkDuration is the nominal chunk length.
const DefaultChunkDuration = 30 * time.Second

const defaultIngestQueueSize = 64

// Stats is a snapshot of recorder counters.
type Stats struct {
	Recording            bool    `json:"recording"`
	Paused               bool    `json:"paused"`
	DurationSeconds      float64 `json:"duration_seconds"`
	ChunksEmitted        int64   `json:"chunks_emitted"`
	IngestDroppedBatches uint64  `json:"ingest_dropped_batches"`
	RingDroppedSamples   uint64  `json:"ring_dropped_samples"`
}

// inputBatch is one capture frame moving from a device tap to the
// assembly goroutine.
type inputBatch struct {
	channel capture.Channel
	samples []float32
}

// Recorder owns the real-time audio pipeline: capture taps feed a
// bounded ingest queue, a single assembly goroutine accumulates samples
// in per-channel ring buffers, and every completed block becomes an
// AudioChunk published on the bus. The capture tap never blocks and
// never touches the rings; when the queue is full the batch is dropped
// and counted.
type Recorder struct {
	cfg    Config
	logger *slog.Logger
	bus    *bus.Bus

	primary        capture.Device
	secondary      capture.Device
	primaryChannel capture.Channel

	recording atomic.Bool
	paused    atomic.Bool
	discard   atomic.Bool

	totalSamples  atomic.Int64
	chunksEmitted atomic.Int64
	ingestDropped atomic.Uint64
	ringDropped   atomic.Uint64

	mu     sync.Mutex // serializes Start, Stop, Cancel
	ingest chan inputBatch
	wg     sync.WaitGroup

	// Assembly-goroutine state. Only ingestLoop touches these.
	primaryRing    *audio.RingBuffer
	secondaryRing  *audio.RingBuffer
	nextIndex      int
	emittedSamples int64
	lastSystemDB   float64
	warned         bool
	maxFired       bool

	onWarning func()
	onMax     func()
}

// New creates a recorder for the configured source. mic and system may
// be nil when the source does not use them.
func New(cfg Config, mic, system capture.Device, b *bus.Bus, logger *slog.Logger) (*Recorder, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.ChunkSampleRate
	}
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = DefaultChunkDuration
	}
	if cfg.MicWeight == 0 && cfg.SystemWeight == 0 {
		cfg.MicWeight = 0.5
		cfg.SystemWeight = 0.5
	}
	if cfg.WarningDuration <= 0 {
		cfg.WarningDuration = session.WarningDuration
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = session.MaxDuration
	}
	if cfg.IngestQueueSize <= 0 {
		cfg.IngestQueueSize = defaultIngestQueueSize
	}

	r := &Recorder{
		cfg:    cfg,
		logger: logger,
		bus:    b,
	}

	switch cfg.Source {
	case audio.SourceMicrophone:
		if mic == nil {
			return nil, fmt.Errorf("microphone device required for source %s", cfg.Source)
		}
		r.primary = mic
		r.primaryChannel = capture.ChannelMicrophone
	case audio.SourceSystem:
		if system == nil {
			return nil, fmt.Errorf("system device required for source %s", cfg.Source)
		}
		r.primary = system
		r.primaryChannel = capture.ChannelSystem
	case audio.SourceBoth:
		if mic == nil || system == nil {
			return nil, fmt.Errorf("microphone and system devices required for source %s", cfg.Source)
		}
		r.primary = mic
		r.primaryChannel = capture.ChannelMicrophone
		r.secondary = system
	default:
		return nil, fmt.Errorf("unknown audio source %d", cfg.Source)
	}

	return r, nil
}

// SetWarningFunc registers the one-time duration warning callback. It
// runs on its own goroutine.
func (r *Recorder) SetWarningFunc(fn func()) {
	r.onWarning = fn
}

// SetMaxDurationFunc registers the hard-cap callback. It runs on its
// own goroutine and is expected to trigger a stop.
func (r *Recorder) SetMaxDurationFunc(fn func()) {
	r.onMax = fn
}

// Start opens the capture devices and begins assembling chunks. A
// device that cannot be opened surfaces its error here, including
// capture.ErrPermissionDenied.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording.Load() {
		return fmt.Errorf("recorder already running")
	}

	blockSize := int(r.cfg.ChunkDuration.Seconds() * float64(r.cfg.SampleRate))
	r.primaryRing = audio.NewRingBuffer(blockSize)
	r.secondaryRing = nil
	if r.secondary != nil {
		r.secondaryRing = audio.NewRingBuffer(blockSize)
	}
	r.nextIndex = 0
	r.emittedSamples = 0
	r.lastSystemDB = math.Inf(-1)
	r.warned = false
	r.maxFired = false
	r.totalSamples.Store(0)
	r.chunksEmitted.Store(0)
	r.ingestDropped.Store(0)
	r.ringDropped.Store(0)
	r.discard.Store(false)
	r.paused.Store(false)

	r.ingest = make(chan inputBatch, r.cfg.IngestQueueSize)
	r.wg.Add(1)
	go r.ingestLoop()

	r.recording.Store(true)

	if err := r.primary.Start(ctx, r.tapFor(r.primaryChannel)); err != nil {
		r.abortStartLocked(nil)
		return fmt.Errorf("failed to open %s capture: %w", r.primaryChannel, err)
	}
	if r.secondary != nil {
		if err := r.secondary.Start(ctx, r.tapFor(capture.ChannelSystem)); err != nil {
			r.abortStartLocked(r.primary)
			return fmt.Errorf("failed to open system capture: %w", err)
		}
	}

	r.logger.Info("Recording started",
		slog.String("source", r.cfg.Source.String()),
		slog.Int("sample_rate", r.cfg.SampleRate),
		slog.Duration("chunk_duration", r.cfg.ChunkDuration),
	)
	return nil
}

// abortStartLocked unwinds a partial Start.
func (r *Recorder) abortStartLocked(started capture.Device) {
	r.recording.Store(false)
	r.discard.Store(true)
	if started != nil {
		started.Stop()
	}
	close(r.ingest)
	r.wg.Wait()
}

// Stop ends capture and flushes the in-progress partial block as a
// final, shorter chunk before returning. No-op when not recording.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording.Load() {
		return nil
	}
	r.recording.Store(false)

	r.stopDevicesLocked()
	close(r.ingest)
	r.wg.Wait()

	r.logger.Info("Recording stopped",
		slog.Float64("duration", r.Duration()),
		slog.Int64("chunks", r.chunksEmitted.Load()),
	)
	return nil
}

// Cancel ends capture and discards all buffered, unflushed audio. Safe
// to call when not recording.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording.Load() {
		return
	}
	r.discard.Store(true)
	r.recording.Store(false)

	r.stopDevicesLocked()
	close(r.ingest)
	r.wg.Wait()

	r.logger.Info("Recording cancelled, buffered audio discarded")
}

func (r *Recorder) stopDevicesLocked() {
	if err := r.primary.Stop(); err != nil {
		r.logger.Warn("Failed to stop capture device",
			slog.String("channel", r.primaryChannel.String()),
			slog.String("error", err.Error()),
		)
	}
	if r.secondary != nil {
		if err := r.secondary.Stop(); err != nil {
			r.logger.Warn("Failed to stop capture device",
				slog.String("channel", "system"),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Pause suspends ingestion; frames arriving while paused are discarded
// and duration does not advance. No-op when not recording.
func (r *Recorder) Pause() {
	if !r.recording.Load() {
		return
	}
	if r.paused.CompareAndSwap(false, true) {
		r.logger.Info("Recording paused", slog.Float64("duration", r.Duration()))
	}
}

// Resume continues ingestion after Pause. No-op when not paused.
func (r *Recorder) Resume() {
	if !r.recording.Load() {
		return
	}
	if r.paused.CompareAndSwap(true, false) {
		r.logger.Info("Recording resumed", slog.Float64("duration", r.Duration()))
	}
}

// IsRecording reports whether capture is active (paused counts as
// recording).
func (r *Recorder) IsRecording() bool {
	return r.recording.Load()
}

// IsPaused reports whether ingestion is suspended.
func (r *Recorder) IsPaused() bool {
	return r.paused.Load()
}

// Duration returns the seconds of audio ingested so far.
func (r *Recorder) Duration() float64 {
	return float64(r.totalSamples.Load()) / float64(r.cfg.SampleRate)
}

// GetStats returns a counter snapshot.
func (r *Recorder) GetStats() Stats {
	return Stats{
		Recording:            r.recording.Load(),
		Paused:               r.paused.Load(),
		DurationSeconds:      r.Duration(),
		ChunksEmitted:        r.chunksEmitted.Load(),
		IngestDroppedBatches: r.ingestDropped.Load(),
		RingDroppedSamples:   r.ringDropped.Load(),
	}
}

// tapFor builds the FrameFunc for one channel. It runs on the device's
// delivery goroutine and must stay allocation-free and non-blocking: a
// full queue drops the batch.
func (r *Recorder) tapFor(ch capture.Channel) capture.FrameFunc {
	return func(samples []float32) {
		if !r.recording.Load() || r.paused.Load() {
			return
		}
		select {
		case r.ingest <- inputBatch{channel: ch, samples: samples}:
		default:
			r.ingestDropped.Add(1)
		}
	}
}

// ingestLoop is the single owner of the ring buffers. It drains the
// queue until close, then flushes the final partial block unless the
// recording was cancelled.
func (r *Recorder) ingestLoop() {
	defer r.wg.Done()

	for batch := range r.ingest {
		if r.discard.Load() {
			continue
		}
		r.handleBatch(batch)
	}

	if !r.discard.Load() {
		r.flushPartial()
	}
}

func (r *Recorder) handleBatch(b inputBatch) {
	if b.channel != r.primaryChannel {
		if r.secondaryRing == nil {
			return
		}
		if dropped := r.secondaryRing.Write(b.samples); dropped > 0 {
			r.ringDropped.Add(uint64(dropped))
		}
		r.lastSystemDB = audio.RMSLevel(b.samples)
		return
	}

	// The primary channel is the chunk clock: duration, levels, and
	// block completion all follow it. Samples the ring rejects never
	// reach a chunk, so only accepted samples advance the clock.
	dropped := r.primaryRing.Write(b.samples)
	if dropped > 0 {
		r.ringDropped.Add(uint64(dropped))
	}
	r.totalSamples.Add(int64(len(b.samples) - dropped))

	r.publishLevel(b.samples)

	for r.primaryRing.Blocks() > 0 {
		block := r.primaryRing.ReadBlock()
		r.emitChunk(block)
	}

	r.checkDuration()
}

// emitChunk turns one completed primary block into a published chunk,
// mixing in whatever system audio accumulated for the same span.
func (r *Recorder) emitChunk(block []float32) {
	samples := block
	if r.secondaryRing != nil {
		sysPart := r.secondaryRing.TakeUpTo(len(block))
		if len(sysPart) > 0 {
			// Mix zero-pads the shorter side, so a system shortfall
			// degrades to silence rather than shifting the timeline.
			samples = audio.Mix(block, sysPart, r.cfg.MicWeight, r.cfg.SystemWeight, r.cfg.Normalize)
		}
	}

	timestamp := float64(r.emittedSamples) / float64(r.cfg.SampleRate)
	chunk := audio.NewChunk(samples, r.cfg.SampleRate, r.nextIndex, timestamp)

	r.nextIndex++
	r.emittedSamples += int64(len(block))
	r.chunksEmitted.Add(1)

	r.bus.PublishChunk(chunk)

	r.logger.Debug("Chunk assembled",
		slog.Int("index", chunk.ChunkIndex),
		slog.Float64("timestamp", chunk.Timestamp),
		slog.Float64("duration", chunk.Duration),
	)
}

// flushPartial emits whatever is left in the primary ring as a final,
// shorter-than-nominal chunk.
func (r *Recorder) flushPartial() {
	block := r.primaryRing.Flush()
	if len(block) == 0 {
		return
	}
	r.emitChunk(block)
}

func (r *Recorder) publishLevel(samples []float32) {
	level := audio.AudioLevel{
		MicDB:     audio.RMSLevel(samples),
		HasSystem: r.cfg.Source != audio.SourceMicrophone,
	}
	switch r.cfg.Source {
	case audio.SourceSystem:
		level.SystemDB = level.MicDB
		level.MicDB = math.Inf(-1)
	case audio.SourceBoth:
		level.SystemDB = r.lastSystemDB
	}
	r.bus.PublishLevel(level)
}

// checkDuration fires the warning and hard-cap callbacks exactly once
// each. Callbacks run on their own goroutine so a stop triggered from
// the hard cap does not deadlock against the assembly loop.
func (r *Recorder) checkDuration() {
	d := r.Duration()

	if !r.warned && d >= r.cfg.WarningDuration.Seconds() && d < r.cfg.MaxDuration.Seconds() {
		r.warned = true
		r.logger.Warn("Recording approaching maximum duration",
			slog.Float64("duration", d),
			slog.Duration("max", r.cfg.MaxDuration),
		)
		if fn := r.onWarning; fn != nil {
			go fn()
		}
	}

	if !r.maxFired && d >= r.cfg.MaxDuration.Seconds() {
		r.maxFired = true
		r.logger.Warn("Recording reached maximum duration, stopping",
			slog.Float64("duration", d),
		)
		if fn := r.onMax; fn != nil {
			go fn()
		}
	}
}
