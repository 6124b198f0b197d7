package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/audio"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/bus"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/capture"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/catalog"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/diskwriter"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/events"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/metrics"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/recorder"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/session"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/transcript"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/transcription"
)

var (
	// ErrBusy reports an attempt to start a recording while a session is
	// already active. Starting never queues; callers fail fast.
	ErrBusy = errors.New("a recording session is already active")
	// ErrNoSession reports an operation that needs an active session.
	ErrNoSession = errors.New("no active recording session")
)

// durationPollInterval is how often the ingested duration is mirrored
// to the session and the metrics gauge.
const durationPollInterval = 500 * time.Millisecond

// Deps carries the collaborators a coordinator is constructed from.
// Metrics, Pipeline, Catalog, and OnUpdate are optional.
type Deps struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Bus      *bus.Bus
	Events   *events.Bus
	Writer   *diskwriter.Writer
	Engine   transcription.Engine
	Pipeline Pipeline
	Catalog  *catalog.Catalog

	// Capture devices. Either may be nil when the corresponding source is
	// never requested.
	Mic    capture.Device
	System capture.Device

	// RecorderConfig seeds each session's recorder; Source is set per
	// StartRecording call.
	RecorderConfig recorder.Config
	// ProcessorConfig seeds each session's stream processor.
	ProcessorConfig transcription.ProcessorConfig

	// OnUpdate, when set, receives every appended transcript update. Used
	// by the CLI for live display.
	OnUpdate func(transcript.TranscriptUpdate)
}

// Snapshot is a read-only view of the current session for the monitor
// server and the CLI.
type Snapshot struct {
	SessionID       string                  `json:"session_id"`
	Title           string                  `json:"title"`
	State           session.State           `json:"state"`
	Stage           session.ProcessingStage `json:"processing_stage"`
	StageProgress   float64                 `json:"stage_progress"`
	AudioSource     audio.Source            `json:"audio_source"`
	DurationSeconds float64                 `json:"duration_seconds"`
	SessionDir      string                  `json:"session_dir,omitempty"`
	StartedAt       time.Time               `json:"started_at"`
	ErrorMessage    string                  `json:"error_message,omitempty"`
	ChunksWritten   int                     `json:"chunks_written"`
	BytesWritten    int64                   `json:"bytes_written"`
	UpdateCount     int                     `json:"update_count"`
}

// Summary describes one finished recording, returned by StopRecording.
type Summary struct {
	SessionID       string   `json:"session_id"`
	Title           string   `json:"title"`
	DurationSeconds float64  `json:"duration_seconds"`
	ChunkCount      int      `json:"chunk_count"`
	BytesWritten    int64    `json:"bytes_written"`
	SessionDir      string   `json:"session_dir"`
	ChunkPaths      []string `json:"-"`
	TranscriptPath  string   `json:"transcript_path"`
	Transcript      string   `json:"transcript"`
}

// Stats aggregates the pipeline component counters for monitoring.
// Recorder and Processor are nil when no session is active.
type Stats struct {
	Bus       bus.Stats                       `json:"bus"`
	Writer    diskwriter.Stats                `json:"writer"`
	Recorder  *recorder.Stats                 `json:"recorder,omitempty"`
	Processor *transcription.ProcessorStats   `json:"processor,omitempty"`
	Events    uint64                          `json:"events_published"`
}

// Coordinator serializes all session lifecycle mutations behind one
// mutex: StartRecording, StopRecording, CancelRecording, Pause, and
// Resume are mutually exclusive, and at most one session exists at a
// time.
type Coordinator struct {
	deps   Deps
	logger *slog.Logger

	mu  sync.Mutex
	ses *session.Session

	rec      *recorder.Recorder
	proc     *transcription.StreamProcessor
	store    *transcript.Store
	diskSub  *bus.Subscription
	procSub  *bus.Subscription
	levelSub *bus.Subscription

	runCtx    context.Context
	runCancel context.CancelFunc

	// durationBits mirrors the recorder's ingested seconds without
	// needing the lifecycle mutex (read by Snapshot, written by the
	// polling goroutine).
	durationBits atomic.Uint64

	resumes int
}

// New creates a coordinator. Pipeline defaults to NoopPipeline.
func New(deps Deps) *Coordinator {
	if deps.Pipeline == nil {
		deps.Pipeline = NoopPipeline{Logger: deps.Logger}
	}
	if deps.Metrics != nil {
		deps.Bus.SetDropFunc(deps.Metrics.RecordBusDrop)
	}
	return &Coordinator{
		deps:   deps,
		logger: deps.Logger,
	}
}

// StartRecording creates a session, its directory, and the full capture
// pipeline, then transitions to recording. Allowed with no session
// (fresh start) or from the error state (user-initiated resume, which
// reuses the session id and title and gets a fresh directory). Any
// other active session fails fast with ErrBusy. A capture device that
// cannot be opened surfaces its error, permission failures included,
// and tears the partial start back down leaving no files.
func (c *Coordinator) StartRecording(ctx context.Context, title string, source audio.Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	resume := false
	switch {
	case c.ses == nil:
		c.ses = session.New(title, source)
	case c.ses.State == session.StateError:
		resume = true
		c.ses.AudioSource = source
	default:
		return fmt.Errorf("%w (session %s is %s)", ErrBusy, c.ses.ID, c.ses.State)
	}

	dirID := c.ses.ID
	if resume {
		// The errored directory is preserved; the resumed run writes into
		// a fresh one so chunk indices stay contiguous per directory.
		c.resumes++
		dirID = fmt.Sprintf("%s-r%d", c.ses.ID, c.resumes)
	}

	if err := c.startPipelineLocked(ctx, dirID, source); err != nil {
		if resume {
			c.ses.SetError(err.Error())
		} else {
			c.ses = nil
			c.store = nil
		}
		return err
	}

	if err := c.ses.Transition(session.StateRecording); err != nil {
		// Unreachable for the idle/error entry states; surface rather
		// than swallow if the table ever disagrees.
		c.teardownPipelineLocked(true)
		if !resume {
			c.ses = nil
		}
		return err
	}

	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordSessionStarted()
	}

	c.publishEvent(events.TypeRecordingStarted, map[string]any{
		"title":  c.ses.Title,
		"source": source.String(),
	})
	c.publishStateChanged()

	c.logger.Info("Meeting recording started",
		slog.String("session_id", c.ses.ID),
		slog.String("title", c.ses.Title),
		slog.String("source", source.String()),
		slog.Bool("resumed", resume),
	)
	return nil
}

// startPipelineLocked builds and starts every per-session component.
// On error everything already started is torn down and the session
// directory removed.
func (c *Coordinator) startPipelineLocked(ctx context.Context, dirID string, source audio.Source) error {
	sessionDir, err := c.deps.Writer.StartSession(dirID)
	if err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	c.ses.SessionDir = sessionDir
	c.store = transcript.NewStore(c.ses.ID, sessionDir)

	c.runCtx, c.runCancel = context.WithCancel(context.Background())

	c.deps.Bus.Reset()
	c.deps.Bus.Start()

	sid := c.ses.ID
	c.diskSub = c.deps.Bus.SubscribeChunks(func(chunk audio.AudioChunk) {
		c.writeChunk(sid, chunk)
	})

	recCfg := c.deps.RecorderConfig
	recCfg.Source = source
	rec, err := recorder.New(recCfg, c.deps.Mic, c.deps.System, c.deps.Bus, c.logger)
	if err != nil {
		c.teardownPipelineLocked(true)
		return err
	}
	c.rec = rec

	c.proc = transcription.NewStreamProcessor(c.deps.ProcessorConfig, c.deps.Engine, c.logger)
	c.proc.SetMetrics(c.deps.Metrics)
	store := c.store
	c.proc.SetUpdateFunc(func(update transcript.TranscriptUpdate) {
		c.handleUpdate(store, update)
	})
	c.procSub = c.deps.Bus.SubscribeChunks(c.proc.AddChunk)
	c.levelSub = c.deps.Bus.SubscribeLevels(c.handleLevel)
	c.proc.Start(c.runCtx)

	rec.SetWarningFunc(func() { c.handleDurationWarning(sid) })
	rec.SetMaxDurationFunc(func() { c.handleMaxDuration(sid) })

	if err := rec.Start(ctx); err != nil {
		c.teardownPipelineLocked(true)
		return err
	}

	go c.durationLoop(c.runCtx, rec)
	return nil
}

// teardownPipelineLocked unwinds the per-session components. When
// discard is true the session directory is deleted.
func (c *Coordinator) teardownPipelineLocked(discard bool) {
	if c.rec != nil {
		c.rec.Cancel()
	}
	if c.proc != nil {
		c.proc.Stop()
		c.proc.Clear()
	}
	c.cancelSubsLocked()
	c.deps.Bus.Stop()
	if c.runCancel != nil {
		c.runCancel()
	}

	if discard {
		if err := c.deps.Writer.CancelSession(); err != nil {
			c.logger.Warn("Failed to remove session directory",
				slog.String("error", err.Error()),
			)
		}
	} else if c.deps.Writer.IsActive() {
		if _, err := c.deps.Writer.EndSession(); err != nil {
			c.logger.Warn("Failed to finalize disk writer",
				slog.String("error", err.Error()),
			)
		}
	}

	c.rec = nil
	c.proc = nil
	c.durationBits.Store(0)
}

func (c *Coordinator) cancelSubsLocked() {
	for _, sub := range []*bus.Subscription{c.diskSub, c.procSub, c.levelSub} {
		if sub != nil {
			sub.Cancel()
		}
	}
	c.diskSub = nil
	c.procSub = nil
	c.levelSub = nil
}

// StopRecording ends the recording, flushes the final partial chunk,
// hands the session to the processing pipeline, and returns the session
// summary once the pipeline acknowledges. The session then returns to
// idle. Valid from recording or paused; anything else fails with the
// session's typed transition error.
func (c *Coordinator) StopRecording(ctx context.Context) (*Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ses == nil {
		return nil, ErrNoSession
	}
	if err := c.ses.Transition(session.StateProcessing); err != nil {
		return nil, err
	}

	c.publishEvent(events.TypeRecordingStopped, map[string]any{
		"duration_seconds": c.rec.Duration(),
	})
	c.publishStateChanged()

	// Stop capture; the recorder flushes its in-progress partial block
	// through the bus as a final short chunk.
	if err := c.rec.Stop(); err != nil {
		c.logger.Warn("Recorder stop reported error", slog.String("error", err.Error()))
	}
	c.ses.Duration = c.rec.Duration()

	// Let queued chunk deliveries (disk writes, processor buffering)
	// finish before finalizing.
	drainCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}
	for _, sub := range []*bus.Subscription{c.diskSub, c.procSub} {
		if err := sub.Drain(drainCtx); err != nil {
			c.logger.Warn("Timed out draining chunk deliveries", slog.String("error", err.Error()))
		}
	}

	c.proc.Stop()
	c.cancelSubsLocked()
	c.deps.Bus.Stop()
	c.runCancel()

	chunkPaths, err := c.deps.Writer.EndSession()
	if err != nil {
		return nil, c.failLocked(fmt.Sprintf("failed to finalize chunk files: %v", err))
	}

	if err := c.store.Save(); err != nil {
		c.logger.Warn("Failed to save partial transcript", slog.String("error", err.Error()))
	}

	transcriptText := c.proc.FullTranscript()
	snap := c.snapshotLocked()

	if err := c.deps.Pipeline.Process(ctx, snap, chunkPaths, c.store, func(stage session.ProcessingStage) {
		c.ses.SetProcessingStage(stage)
		c.publishStateChanged()
	}); err != nil {
		return nil, c.failLocked(fmt.Sprintf("processing pipeline failed: %v", err))
	}

	if err := c.ses.Transition(session.StateComplete); err != nil {
		return nil, c.failLocked(err.Error())
	}

	writerStats := c.deps.Writer.GetStats()
	summary := &Summary{
		SessionID:       c.ses.ID,
		Title:           c.ses.Title,
		DurationSeconds: c.ses.Duration,
		ChunkCount:      len(chunkPaths),
		BytesWritten:    writerStats.BytesWritten,
		SessionDir:      c.ses.SessionDir,
		ChunkPaths:      chunkPaths,
		TranscriptPath:  c.store.FilePath(),
		Transcript:      transcriptText,
	}

	c.writeCatalogLocked("completed", summary.ChunkCount, summary.BytesWritten)

	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordSessionCompleted(c.ses.Duration)
	}

	c.publishEvent(events.TypeProcessingComplete, map[string]any{
		"chunks":           summary.ChunkCount,
		"duration_seconds": summary.DurationSeconds,
	})
	c.publishStateChanged()

	c.logger.Info("Meeting recording complete",
		slog.String("session_id", c.ses.ID),
		slog.Float64("duration", summary.DurationSeconds),
		slog.Int("chunks", summary.ChunkCount),
		slog.Int64("bytes", summary.BytesWritten),
	)

	// complete -> idle: the session object is destroyed and the
	// coordinator is ready for the next recording.
	if err := c.ses.Transition(session.StateIdle); err != nil {
		return summary, err
	}
	c.publishStateChanged()
	c.resetLocked()

	return summary, nil
}

// CancelRecording discards the session unconditionally from any active
// state: capture stops, buffered audio is dropped, in-flight disk
// writes are allowed to land, the session directory is then deleted,
// and any in-flight transcription result is discarded. Safe no-op with
// no session.
func (c *Coordinator) CancelRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ses == nil {
		return
	}

	sid := c.ses.ID

	if c.rec != nil {
		c.rec.Cancel()
	}

	// Let writes already queued on the disk subscription complete before
	// the directory is removed, so removal is total.
	if c.diskSub != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.diskSub.Drain(drainCtx); err != nil {
			c.logger.Warn("Timed out draining disk writes during cancel",
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}

	if c.proc != nil {
		c.proc.Stop()
		c.proc.Clear()
	}
	c.cancelSubsLocked()
	c.deps.Bus.Stop()
	if c.runCancel != nil {
		c.runCancel()
	}

	if err := c.deps.Writer.CancelSession(); err != nil {
		c.logger.Warn("Failed to remove cancelled session directory",
			slog.String("error", err.Error()),
		)
	}

	c.writeCatalogLocked("cancelled", 0, 0)

	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordSessionCancelled()
	}

	c.publishEvent(events.TypeRecordingCancelled, nil)

	c.logger.Info("Meeting recording cancelled", slog.String("session_id", sid))

	c.rec = nil
	c.proc = nil
	c.durationBits.Store(0)
	c.resetLocked()
	c.publishEvent(events.TypeStateChanged, map[string]any{
		"state": session.StateIdle.String(),
	})
}

// PauseRecording suspends ingestion without tearing down capture.
func (c *Coordinator) PauseRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ses == nil {
		return ErrNoSession
	}
	if err := c.ses.Transition(session.StatePaused); err != nil {
		return err
	}
	c.rec.Pause()
	c.ses.Duration = c.rec.Duration()
	c.publishStateChanged()
	return nil
}

// ResumeRecording continues a paused recording.
func (c *Coordinator) ResumeRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ses == nil {
		return ErrNoSession
	}
	if c.ses.State != session.StatePaused {
		return &session.InvalidTransitionError{From: c.ses.State, To: session.StateRecording}
	}
	if err := c.ses.Transition(session.StateRecording); err != nil {
		return err
	}
	c.rec.Resume()
	c.publishStateChanged()
	return nil
}

// Snapshot returns the current session view, false when no session
// exists.
func (c *Coordinator) Snapshot() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ses == nil {
		return Snapshot{}, false
	}
	return c.snapshotLocked(), true
}

func (c *Coordinator) snapshotLocked() Snapshot {
	duration := c.ses.Duration
	if live := math.Float64frombits(c.durationBits.Load()); live > duration {
		duration = live
	}

	writerStats := c.deps.Writer.GetStats()
	updateCount := 0
	if c.store != nil {
		updateCount = c.store.Count()
	}

	return Snapshot{
		SessionID:       c.ses.ID,
		Title:           c.ses.Title,
		State:           c.ses.State,
		Stage:           c.ses.Stage,
		StageProgress:   c.ses.Stage.Progress(),
		AudioSource:     c.ses.AudioSource,
		DurationSeconds: duration,
		SessionDir:      c.ses.SessionDir,
		StartedAt:       c.ses.StartedAt,
		ErrorMessage:    c.ses.ErrorMessage,
		ChunksWritten:   writerStats.ChunksWritten,
		BytesWritten:    writerStats.BytesWritten,
		UpdateCount:     updateCount,
	}
}

// GetStats returns a counter snapshot across the pipeline components.
func (c *Coordinator) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Bus:    c.deps.Bus.GetStats(),
		Writer: c.deps.Writer.GetStats(),
		Events: c.deps.Events.Published(),
	}
	if c.rec != nil {
		rs := c.rec.GetStats()
		stats.Recorder = &rs
	}
	if c.proc != nil {
		ps := c.proc.GetStats()
		stats.Processor = &ps
	}
	return stats
}

// TranscriptUpdates returns the current session's partial transcript
// entries in timestamp order, nil when no session exists.
func (c *Coordinator) TranscriptUpdates() []transcript.TranscriptUpdate {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()

	if store == nil {
		return nil
	}
	return store.GetAll()
}

// TranscriptMarkdown renders the current partial transcript, false when
// no session exists.
func (c *Coordinator) TranscriptMarkdown() (string, bool) {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()

	if store == nil {
		return "", false
	}
	return store.ExportToMarkdown(), true
}

// writeChunk is the disk sink bus subscription. It runs on the
// subscription's pump goroutine and must not take the lifecycle mutex:
// StopRecording drains this subscription while holding it.
func (c *Coordinator) writeChunk(sessionID string, chunk audio.AudioChunk) {
	start := time.Now()
	_, err := c.deps.Writer.WriteChunk(chunk)
	if err != nil {
		if c.deps.Metrics != nil {
			c.deps.Metrics.RecordWriteError()
		}
		c.logger.Error("Chunk write failed",
			slog.Int("chunk_index", chunk.ChunkIndex),
			slog.String("error", err.Error()),
		)
		// Surface to the lifecycle asynchronously; already-written chunks
		// are preserved.
		go c.failSession(sessionID, fmt.Sprintf("disk write failed: %v", err))
		return
	}

	if c.deps.Metrics != nil {
		sizeBytes := 44 + 2*len(chunk.Samples) // header + 16-bit PCM
		c.deps.Metrics.RecordChunkPublished(chunk.Duration)
		c.deps.Metrics.RecordChunkWritten(sizeBytes, time.Since(start).Seconds())
	}
}

func (c *Coordinator) handleLevel(level audio.AudioLevel) {
	if c.deps.Metrics != nil {
		c.deps.Metrics.SetAudioLevels(level.MicDB, level.SystemDB)
	}
}

// handleUpdate receives each transcript update on the processor's
// goroutine: append to the store, persist immediately so a crash loses
// at most one fragment, and notify the live display hook. The store is
// bound at pipeline start; this must never take c.mu, because Stop and
// Cancel hold it while waiting for in-flight transcriptions to land.
func (c *Coordinator) handleUpdate(store *transcript.Store, update transcript.TranscriptUpdate) {
	if store == nil {
		return
	}

	store.Append(update)
	if err := store.Save(); err != nil {
		c.logger.Warn("Failed to persist partial transcript",
			slog.String("error", err.Error()),
		)
	}

	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordTranscriptUpdate()
	}
	if fn := c.deps.OnUpdate; fn != nil {
		fn(update)
	}
}

func (c *Coordinator) handleDurationWarning(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ses == nil || c.ses.ID != sessionID {
		return
	}
	c.publishEvent(events.TypeDurationWarning, map[string]any{
		"duration_seconds":       c.rec.Duration(),
		"time_remaining_seconds": c.ses.TimeRemaining().Seconds(),
	})
}

// handleMaxDuration runs on the recorder's callback goroutine and
// triggers the automatic stop at the hard cap.
func (c *Coordinator) handleMaxDuration(sessionID string) {
	c.logger.Warn("Maximum recording duration reached, stopping automatically",
		slog.String("session_id", sessionID),
	)
	if _, err := c.StopRecording(context.Background()); err != nil {
		c.logger.Error("Automatic stop at maximum duration failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}

// failSession moves the named session to the error state, preserving
// everything already on disk. No-op if the session has since changed.
func (c *Coordinator) failSession(sessionID, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ses == nil || c.ses.ID != sessionID || c.ses.State == session.StateError {
		return
	}
	c.failLocked(message)
}

// failLocked tears the pipeline down without deleting files, records
// the error on the session, and reports it. Returns an error carrying
// the message for callers that propagate it.
func (c *Coordinator) failLocked(message string) error {
	c.teardownPipelineLocked(false)

	c.ses.SetError(message)
	c.writeCatalogLocked("error", 0, 0)

	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordSessionErrored()
	}

	c.publishStateChanged()

	c.logger.Error("Recording session failed",
		slog.String("session_id", c.ses.ID),
		slog.String("error", message),
	)
	return errors.New(message)
}

// durationLoop mirrors the recorder's ingested duration while the
// session runs. It reads only atomics, never the lifecycle mutex.
func (c *Coordinator) durationLoop(ctx context.Context, rec *recorder.Recorder) {
	ticker := time.NewTicker(durationPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d := rec.Duration()
			c.durationBits.Store(math.Float64bits(d))
			if c.deps.Metrics != nil {
				c.deps.Metrics.SetRecordingSeconds(d)
			}
		}
	}
}

// resetLocked drops the session and per-session state, returning the
// coordinator to idle.
func (c *Coordinator) resetLocked() {
	c.ses = nil
	c.store = nil
	c.rec = nil
	c.proc = nil
	c.resumes = 0
	c.durationBits.Store(0)
	c.deps.Bus.Reset()
}

func (c *Coordinator) writeCatalogLocked(status string, chunkCount int, bytesWritten int64) {
	if c.deps.Catalog == nil {
		return
	}

	duration := c.ses.Duration
	if live := math.Float64frombits(c.durationBits.Load()); live > duration {
		duration = live
	}

	rec := catalog.Record{
		ID:           c.ses.ID,
		Title:        c.ses.Title,
		AudioSource:  c.ses.AudioSource.String(),
		State:        status,
		DurationSecs: duration,
		ChunkCount:   chunkCount,
		BytesWritten: bytesWritten,
		SessionDir:   c.ses.SessionDir,
		ErrorMessage: c.ses.ErrorMessage,
		StartedAt:    c.ses.StartedAt,
		CompletedAt:  time.Now(),
	}
	if status == "cancelled" {
		// No files survive a cancel; the record is metadata only.
		rec.SessionDir = ""
	}

	if err := c.deps.Catalog.SaveSession(rec); err != nil {
		c.logger.Warn("Failed to write session catalog record",
			slog.String("session_id", c.ses.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Coordinator) publishEvent(t events.Type, data map[string]any) {
	ev := events.Event{Type: t, Data: data}
	if c.ses != nil {
		ev.SessionID = c.ses.ID
	}
	c.deps.Events.Publish(ev)
}

func (c *Coordinator) publishStateChanged() {
	data := map[string]any{"state": c.ses.State.String()}
	if c.ses.State == session.StateProcessing {
		data["stage"] = c.ses.Stage.String()
		data["progress"] = c.ses.Stage.Progress()
	}
	c.publishEvent(events.TypeStateChanged, data)
}
