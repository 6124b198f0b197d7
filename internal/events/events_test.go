package events

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestPublishFansOutInOrder(t *testing.T) {
	b := NewBus(testLogger())

	var mu sync.Mutex
	var got []Type
	sub := b.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
	})
	defer sub.Cancel()

	sequence := []Type{TypeRecordingStarted, TypeDurationWarning, TypeRecordingStopped, TypeProcessingComplete}
	for _, typ := range sequence {
		b.Publish(Event{Type: typ, SessionID: "s1"})
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(sequence)
	})

	mu.Lock()
	defer mu.Unlock()
	for i, typ := range sequence {
		if got[i] != typ {
			t.Errorf("event %d = %s, want %s", i, got[i], typ)
		}
	}
}

func TestPublishStampsTimestamp(t *testing.T) {
	b := NewBus(testLogger())

	var mu sync.Mutex
	var stamped time.Time
	sub := b.Subscribe(func(ev Event) {
		mu.Lock()
		stamped = ev.Timestamp
		mu.Unlock()
	})
	defer sub.Cancel()

	before := time.Now()
	b.Publish(Event{Type: TypeStateChanged})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return !stamped.IsZero()
	})

	mu.Lock()
	defer mu.Unlock()
	if stamped.Before(before) {
		t.Errorf("timestamp %v precedes publish time %v", stamped, before)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := NewBus(testLogger())

	var mu sync.Mutex
	count := 0
	sub := b.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Publish(Event{Type: TypeRecordingStarted})
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	sub.Cancel()
	sub.Cancel()
	b.Publish(Event{Type: TypeRecordingStopped})

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("cancelled subscriber received %d events, want 1", count)
	}
	if b.Published() != 2 {
		t.Errorf("published = %d, want 2", b.Published())
	}
}

func TestPublishWithoutSubscribersIsSafe(t *testing.T) {
	b := NewBus(testLogger())
	b.Publish(Event{Type: TypeRecordingCancelled, Data: map[string]any{"reason": "user"}})
	if b.Published() != 1 {
		t.Errorf("published = %d, want 1", b.Published())
	}
}
