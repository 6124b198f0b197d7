package transcription

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/audio"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/metrics"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/transcript"
)

// ProcessorConfig tunes the streaming transcription loop.
type ProcessorConfig struct {
	// BufferDuration is the rolling window of audio submitted each cycle.
	BufferDuration time.Duration
	// ProcessingInterval is the cycle cadence.
	ProcessingInterval time.Duration
	// ContextWordCount is how many trailing words of prior output are
	// passed to the engine as continuity context.
	ContextWordCount int
	// SampleRate of buffered audio.
	SampleRate int
}

// DefaultProcessorConfig is the standard streaming profile.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		BufferDuration:     10 * time.Second,
		ProcessingInterval: 5 * time.Second,
		ContextWordCount:   50,
		SampleRate:         audio.ChunkSampleRate,
	}
}

// FastProcessorConfig trades context for latency.
func FastProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		BufferDuration:     5 * time.Second,
		ProcessingInterval: 3 * time.Second,
		ContextWordCount:   30,
		SampleRate:         audio.ChunkSampleRate,
	}
}

// ProcessorStats is a snapshot of processor counters.
type ProcessorStats struct {
	Running       bool    `json:"running"`
	Processing    bool    `json:"processing"`
	CyclesRun     uint64  `json:"cycles_run"`
	CyclesSkipped uint64  `json:"cycles_skipped"`
	WindowsFailed uint64  `json:"windows_failed"`
	UpdateCount   int     `json:"update_count"`
	BufferSeconds float64 `json:"buffer_seconds"`
}

// StreamProcessor turns the live chunk stream into rolling transcript
// updates. Chunks accumulate into a bounded sample buffer; on a fixed
// cadence the current window goes to the engine together with the tail
// of prior output as context, and the result is appended as a
// TranscriptUpdate. A cycle that would overlap the previous one is
// skipped, never queued.
type StreamProcessor struct {
	cfg     ProcessorConfig
	engine  Engine
	logger  *slog.Logger
	metrics *metrics.Metrics

	running    atomic.Bool
	processing atomic.Bool
	// generation invalidates in-flight results after Clear or Stop so a
	// late engine response cannot land in an emptied transcript.
	generation atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	buffer      []float32
	bufferStart float64 // session seconds of buffer[0]
	updates     []transcript.TranscriptUpdate
	onUpdate    func(transcript.TranscriptUpdate)

	cyclesRun     uint64
	cyclesSkipped uint64
	windowsFailed uint64
}

// NewStreamProcessor creates a stopped processor. Zero-valued config
// fields get the default profile's values.
func NewStreamProcessor(cfg ProcessorConfig, engine Engine, logger *slog.Logger) *StreamProcessor {
	def := DefaultProcessorConfig()
	if cfg.BufferDuration <= 0 {
		cfg.BufferDuration = def.BufferDuration
	}
	if cfg.ProcessingInterval <= 0 {
		cfg.ProcessingInterval = def.ProcessingInterval
	}
	if cfg.ContextWordCount <= 0 {
		cfg.ContextWordCount = def.ContextWordCount
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	return &StreamProcessor{
		cfg:    cfg,
		engine: engine,
		logger: logger,
	}
}

// SetMetrics registers the metrics sink for engine-call counters. Call
// before Start; nil disables recording.
func (p *StreamProcessor) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// SetUpdateFunc registers fn to receive each appended update. Call
// before Start.
func (p *StreamProcessor) SetUpdateFunc(fn func(transcript.TranscriptUpdate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUpdate = fn
}

// Start launches the periodic processing loop. No-op if already running.
func (p *StreamProcessor) Start(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.processLoop(runCtx)
	}()

	p.logger.Info("Streaming transcription started",
		slog.Duration("interval", p.cfg.ProcessingInterval),
		slog.Duration("window", p.cfg.BufferDuration),
		slog.Int("context_words", p.cfg.ContextWordCount),
	)
}

// Stop cancels the loop and any in-flight transcription, discarding its
// result, and waits for background work to finish. No-op if not running.
func (p *StreamProcessor) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}

	p.mu.Lock()
	p.generation.Add(1)
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()

	p.logger.Info("Streaming transcription stopped",
		slog.Int("updates", p.updateCount()),
	)
}

// IsRunning reports whether the periodic loop is active.
func (p *StreamProcessor) IsRunning() bool {
	return p.running.Load()
}

// IsProcessing reports whether a transcription call is outstanding.
func (p *StreamProcessor) IsProcessing() bool {
	return p.processing.Load()
}

// AddChunk appends a chunk's samples to the rolling buffer, trimming
// from the front to stay within the configured window. Chunks at a
// foreign rate are resampled first.
func (p *StreamProcessor) AddChunk(chunk audio.AudioChunk) {
	samples := chunk.Samples
	if chunk.SampleRate != p.cfg.SampleRate && chunk.SampleRate > 0 {
		samples = audio.Resample(samples, chunk.SampleRate, p.cfg.SampleRate)
	}
	if len(samples) == 0 {
		return
	}

	maxSamples := int(p.cfg.BufferDuration.Seconds() * float64(p.cfg.SampleRate))

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer) == 0 {
		p.bufferStart = chunk.Timestamp
	}
	p.buffer = append(p.buffer, samples...)

	if excess := len(p.buffer) - maxSamples; excess > 0 {
		p.buffer = p.buffer[excess:]
		p.bufferStart += float64(excess) / float64(p.cfg.SampleRate)
	}
}

// Clear empties the accumulated updates and the sample buffer, and
// invalidates any in-flight result.
func (p *StreamProcessor) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation.Add(1)
	p.buffer = nil
	p.bufferStart = 0
	p.updates = nil
}

// TranscriptUpdates returns a copy of the append-ordered updates.
func (p *StreamProcessor) TranscriptUpdates() []transcript.TranscriptUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]transcript.TranscriptUpdate, len(p.updates))
	copy(out, p.updates)
	return out
}

// FullTranscript concatenates all update texts in append order.
func (p *StreamProcessor) FullTranscript() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fullTranscriptLocked()
}

// GetStats returns a counter snapshot.
func (p *StreamProcessor) GetStats() ProcessorStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProcessorStats{
		Running:       p.running.Load(),
		Processing:    p.processing.Load(),
		CyclesRun:     p.cyclesRun,
		CyclesSkipped: p.cyclesSkipped,
		WindowsFailed: p.windowsFailed,
		UpdateCount:   len(p.updates),
		BufferSeconds: float64(len(p.buffer)) / float64(p.cfg.SampleRate),
	}
}

func (p *StreamProcessor) processLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ProcessingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// runCycle snapshots the current window and submits it on a background
// goroutine. The processing flag enforces the no-overlap invariant: if
// the previous call is still outstanding this cycle is counted as
// skipped and nothing is submitted.
func (p *StreamProcessor) runCycle(ctx context.Context) {
	if !p.processing.CompareAndSwap(false, true) {
		p.mu.Lock()
		p.cyclesSkipped++
		p.mu.Unlock()
		p.logger.Debug("Transcription still in flight, skipping cycle")
		return
	}

	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		p.processing.Store(false)
		return
	}
	window := make([]float32, len(p.buffer))
	copy(window, p.buffer)
	windowStart := p.bufferStart
	contextText := p.contextTailLocked()
	gen := p.generation.Load()
	p.cyclesRun++
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.processing.Store(false)
		p.transcribeWindow(ctx, window, windowStart, contextText, gen)
	}()
}

func (p *StreamProcessor) transcribeWindow(ctx context.Context, window []float32, windowStart float64, contextText string, gen uint64) {
	if p.metrics != nil {
		p.metrics.RecordTranscriptionRequest()
	}
	start := time.Now()

	text, err := p.engine.Transcribe(ctx, window, p.cfg.SampleRate, contextText)
	if err != nil {
		// Failed windows are dropped; the next cycle proceeds normally.
		p.mu.Lock()
		p.windowsFailed++
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.RecordTranscriptionFailure(time.Since(start).Seconds())
		}
		if ctx.Err() == nil {
			p.logger.Warn("Transcription window failed",
				slog.Float64("window_start", windowStart),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if p.metrics != nil {
		p.metrics.RecordTranscriptionSuccess(time.Since(start).Seconds())
	}

	if strings.TrimSpace(text) == "" {
		return
	}

	if windowStart < 0 {
		windowStart = 0
	}
	update := transcript.TranscriptUpdate{
		Text:          strings.TrimSpace(text),
		Timestamp:     windowStart,
		AudioDuration: float64(len(window)) / float64(p.cfg.SampleRate),
	}

	p.mu.Lock()
	if p.generation.Load() != gen {
		// Cleared or stopped while the call was in flight.
		p.mu.Unlock()
		return
	}
	p.updates = append(p.updates, update)
	fn := p.onUpdate
	p.mu.Unlock()

	if fn != nil {
		fn(update)
	}
}

func (p *StreamProcessor) fullTranscriptLocked() string {
	parts := make([]string, 0, len(p.updates))
	for _, u := range p.updates {
		parts = append(parts, strings.TrimSpace(u.Text))
	}
	return strings.Join(parts, " ")
}

// contextTailLocked returns the last ContextWordCount words of output.
func (p *StreamProcessor) contextTailLocked() string {
	words := strings.Fields(p.fullTranscriptLocked())
	if len(words) > p.cfg.ContextWordCount {
		words = words[len(words)-p.cfg.ContextWordCount:]
	}
	return strings.Join(words, " ")
}

func (p *StreamProcessor) updateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}
