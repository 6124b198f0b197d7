package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/audio"
)

// Per-subscriber queue depths. The chunk queue holds every chunk of a
// maximum-length session (180 at the nominal 30s size over 90 minutes),
// so a consumer that stalls or is never scheduled cannot lose a chunk
// and hole the contiguous chunk_NNN.wav sequence; levels are transient
// meter readings and may be shed freely.
const (
	chunkQueueSize = 256
	levelQueueSize = 64
)

// drainPollInterval is how often Drain re-checks a subscriber's queue.
const drainPollInterval = 10 * time.Millisecond

// Bus is the in-process broadcast hub connecting the recorder to the
// disk writer, the streaming transcriber, and any monitoring consumers.
// Publishing never blocks the caller: each subscriber owns a buffered
// queue drained by its own goroutine, and a full queue drops for that
// subscriber alone. Publishing while the bus is inactive is a deliberate
// drop, not a buffered queue.
type Bus struct {
	logger *slog.Logger

	active atomic.Bool

	mu        sync.RWMutex
	nextID    int
	chunkSubs map[int]*chunkSub
	levelSubs map[int]*levelSub
	onDrop    func()

	chunkCount atomic.Uint64
	levelCount atomic.Uint64
	dropped    atomic.Uint64
}

// Stats is a snapshot of bus counters for monitoring.
type Stats struct {
	Active           bool   `json:"active"`
	ChunksPublished  uint64 `json:"chunks_published"`
	LevelsPublished  uint64 `json:"levels_published"`
	Dropped          uint64 `json:"dropped"`
	ChunkSubscribers int    `json:"chunk_subscribers"`
	LevelSubscribers int    `json:"level_subscribers"`
}

// New creates an inactive bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		logger:    logger,
		chunkSubs: make(map[int]*chunkSub),
		levelSubs: make(map[int]*levelSub),
	}
}

// SetDropFunc registers fn to be called once per dropped item. Call
// before publishing begins.
func (b *Bus) SetDropFunc(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Start enables publishing.
func (b *Bus) Start() {
	b.active.Store(true)
}

// Stop disables publishing. Subscriptions stay registered; items already
// queued are still delivered.
func (b *Bus) Stop() {
	b.active.Store(false)
}

// IsActive reports whether publishes are currently accepted.
func (b *Bus) IsActive() bool {
	return b.active.Load()
}

// Reset clears all counters and forces the bus inactive.
func (b *Bus) Reset() {
	b.active.Store(false)
	b.chunkCount.Store(0)
	b.levelCount.Store(0)
	b.dropped.Store(0)
}

// ChunkCount returns the number of accepted chunk publishes.
func (b *Bus) ChunkCount() uint64 {
	return b.chunkCount.Load()
}

// PublishChunk broadcasts a chunk to every chunk subscriber in publish
// order. No-op while inactive. Safe to call from the ingest goroutine:
// it never blocks on a subscriber.
func (b *Bus) PublishChunk(chunk audio.AudioChunk) {
	if !b.active.Load() {
		return
	}
	b.chunkCount.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.chunkSubs {
		sub.pending.Add(1)
		select {
		case sub.ch <- chunk:
		default:
			sub.pending.Add(-1)
			sub.dropped.Add(1)
			b.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop()
			}
			b.logger.Warn("Chunk dropped for slow subscriber",
				slog.Int("chunk_index", chunk.ChunkIndex),
			)
		}
	}
}

// PublishLevel broadcasts a level reading to every level subscriber.
// No-op while inactive; never blocks.
func (b *Bus) PublishLevel(level audio.AudioLevel) {
	if !b.active.Load() {
		return
	}
	b.levelCount.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.levelSubs {
		sub.pending.Add(1)
		select {
		case sub.ch <- level:
		default:
			sub.pending.Add(-1)
			sub.dropped.Add(1)
			b.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop()
			}
		}
	}
}

// SubscribeChunks registers fn to receive every chunk accepted after this
// call, in publish order, each exactly once. fn runs on the
// subscription's own goroutine and should stay short or dispatch long
// work itself.
func (b *Bus) SubscribeChunks(fn func(audio.AudioChunk)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &chunkSub{
		ch: make(chan audio.AudioChunk, chunkQueueSize),
		fn: fn,
	}
	b.chunkSubs[id] = sub
	go sub.pump()

	return &Subscription{
		cancel:  func() { b.cancelChunkSub(id) },
		pending: &sub.pending,
		dropped: &sub.dropped,
	}
}

// SubscribeLevels registers fn to receive every level reading accepted
// after this call.
func (b *Bus) SubscribeLevels(fn func(audio.AudioLevel)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &levelSub{
		ch: make(chan audio.AudioLevel, levelQueueSize),
		fn: fn,
	}
	b.levelSubs[id] = sub
	go sub.pump()

	return &Subscription{
		cancel:  func() { b.cancelLevelSub(id) },
		pending: &sub.pending,
		dropped: &sub.dropped,
	}
}

// GetStats returns a counter snapshot.
func (b *Bus) GetStats() Stats {
	b.mu.RLock()
	chunkSubs := len(b.chunkSubs)
	levelSubs := len(b.levelSubs)
	b.mu.RUnlock()

	return Stats{
		Active:           b.active.Load(),
		ChunksPublished:  b.chunkCount.Load(),
		LevelsPublished:  b.levelCount.Load(),
		Dropped:          b.dropped.Load(),
		ChunkSubscribers: chunkSubs,
		LevelSubscribers: levelSubs,
	}
}

func (b *Bus) cancelChunkSub(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.chunkSubs[id]; ok {
		delete(b.chunkSubs, id)
		close(sub.ch)
	}
}

func (b *Bus) cancelLevelSub(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.levelSubs[id]; ok {
		delete(b.levelSubs, id)
		close(sub.ch)
	}
}

// chunkSub pairs a subscriber callback with its delivery queue. pending
// counts queued items plus any callback still executing, so Drain can
// tell when the subscriber has truly gone idle.
type chunkSub struct {
	ch      chan audio.AudioChunk
	fn      func(audio.AudioChunk)
	pending atomic.Int64
	dropped atomic.Uint64
}

func (s *chunkSub) pump() {
	for chunk := range s.ch {
		s.fn(chunk)
		s.pending.Add(-1)
	}
}

type levelSub struct {
	ch      chan audio.AudioLevel
	fn      func(audio.AudioLevel)
	pending atomic.Int64
	dropped atomic.Uint64
}

func (s *levelSub) pump() {
	for level := range s.ch {
		s.fn(level)
		s.pending.Add(-1)
	}
}

// Subscription is the cancellable handle returned by the subscribe calls.
type Subscription struct {
	cancel  func()
	pending *atomic.Int64
	dropped *atomic.Uint64
	once    sync.Once
}

// Cancel removes the subscription. Items already queued are still
// delivered; nothing published afterwards reaches the callback.
// Idempotent.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Drain blocks until every queued item has been delivered and the
// callback has returned, or the context expires. Used before finalizing
// a session so pending disk writes complete.
func (s *Subscription) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		if s.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Dropped returns how many items were dropped for this subscriber.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}
