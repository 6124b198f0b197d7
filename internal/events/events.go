package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Type names a lifecycle event.
type Type string

const (
	TypeRecordingStarted   Type = "recording_started"
	TypeRecordingStopped   Type = "recording_stopped"
	TypeRecordingCancelled Type = "recording_cancelled"
	TypeProcessingComplete Type = "processing_complete"
	TypeStateChanged       Type = "state_changed"
	TypeDurationWarning    Type = "duration_warning"
)

// Event is one fire-and-forget lifecycle notification.
type Event struct {
	Type      Type           `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

const subscriberQueueSize = 32

// Bus fans lifecycle events out to subscribers. Publishing never blocks
// and never fails: a subscriber that cannot keep up loses events.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber

	published atomic.Uint64
	dropped   atomic.Uint64
}

type subscriber struct {
	ch chan Event
	fn func(Event)
}

func (s *subscriber) pump() {
	for ev := range s.ch {
		s.fn(ev)
	}
}

// Subscription cancels delivery to one subscriber.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Cancel stops delivery. Idempotent.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[int]*subscriber),
	}
}

// Publish delivers the event to every subscriber in publish order. A
// zero Timestamp is stamped with the current time.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.published.Add(1)

	b.logger.Debug("Lifecycle event",
		slog.String("type", string(ev.Type)),
		slog.String("session_id", ev.SessionID),
	)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers fn to receive future events on its own goroutine.
func (b *Bus) Subscribe(fn func(Event)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, subscriberQueueSize), fn: fn}
	b.subs[id] = sub
	go sub.pump()

	return &Subscription{cancel: func() { b.remove(id) }}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Published returns how many events have been published.
func (b *Bus) Published() uint64 {
	return b.published.Load()
}
