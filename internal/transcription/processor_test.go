package transcription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/audio"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/transcript"
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

type engineCall struct {
	sampleCount int
	sampleRate  int
	contextText string
}

// stubEngine scripts transcription results and records every call.
type stubEngine struct {
	mu      sync.Mutex
	calls   []engineCall
	results []string
	errs    []error
	block   chan struct{} // when set, calls wait here or for ctx
}

func (e *stubEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int, contextText string) (string, error) {
	e.mu.Lock()
	n := len(e.calls)
	e.calls = append(e.calls, engineCall{
		sampleCount: len(samples),
		sampleRate:  sampleRate,
		contextText: contextText,
	})
	block := e.block
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if n < len(e.errs) && e.errs[n] != nil {
		return "", e.errs[n]
	}
	if len(e.results) == 0 {
		return "", nil
	}
	if n >= len(e.results) {
		n = len(e.results) - 1
	}
	return e.results[n], nil
}

func (e *stubEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *stubEngine) call(i int) engineCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[i]
}

func fastConfig() ProcessorConfig {
	return ProcessorConfig{
		BufferDuration:     time.Second,
		ProcessingInterval: 20 * time.Millisecond,
		ContextWordCount:   3,
		SampleRate:         100,
	}
}

func chunkAt(timestamp float64, samples int, rate int) audio.AudioChunk {
	return audio.NewChunk(make([]float32, samples), rate, 0, timestamp)
}

func TestProcessorEmitsUpdates(t *testing.T) {
	engine := &stubEngine{results: []string{"hello from the meeting"}}
	p := NewStreamProcessor(fastConfig(), engine, testLogger())

	p.AddChunk(chunkAt(12.0, 50, 100))
	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return len(p.TranscriptUpdates()) >= 1 })

	updates := p.TranscriptUpdates()
	u := updates[0]
	if u.Text != "hello from the meeting" {
		t.Errorf("update text = %q", u.Text)
	}
	if u.Timestamp != 12.0 {
		t.Errorf("update timestamp = %v, want 12.0", u.Timestamp)
	}
	if math.Abs(u.AudioDuration-0.5) > 1e-9 {
		t.Errorf("audio duration = %v, want 0.5", u.AudioDuration)
	}
	if got := p.FullTranscript(); !strings.Contains(got, "hello from the meeting") {
		t.Errorf("full transcript = %q", got)
	}
}

func TestProcessorSkipsWhileCallOutstanding(t *testing.T) {
	block := make(chan struct{})
	engine := &stubEngine{results: []string{"slow answer"}, block: block}
	p := NewStreamProcessor(fastConfig(), engine, testLogger())

	p.AddChunk(chunkAt(0, 50, 100))
	p.Start(context.Background())
	defer p.Stop()

	// Let several intervals elapse while the first call is stuck.
	waitFor(t, time.Second, func() bool { return p.GetStats().CyclesSkipped >= 2 })

	if got := engine.callCount(); got != 1 {
		t.Errorf("engine called %d times while blocked, want 1", got)
	}
	if !p.IsProcessing() {
		t.Error("IsProcessing should be true with a call outstanding")
	}

	close(block)
	waitFor(t, time.Second, func() bool { return len(p.TranscriptUpdates()) >= 1 })
}

func TestProcessorPassesContextTail(t *testing.T) {
	engine := &stubEngine{results: []string{"one two three four five"}}
	p := NewStreamProcessor(fastConfig(), engine, testLogger())

	p.AddChunk(chunkAt(0, 50, 100))
	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return engine.callCount() >= 2 })

	if got := engine.call(0).contextText; got != "" {
		t.Errorf("first call context = %q, want empty", got)
	}
	// ContextWordCount is 3, so later calls carry the last three words.
	waitFor(t, time.Second, func() bool {
		n := engine.callCount()
		return n >= 2 && engine.call(n-1).contextText == "three four five"
	})
}

func TestProcessorDropsFailedWindowAndContinues(t *testing.T) {
	engine := &stubEngine{
		errs:    []error{errors.New("HTTP error 503: unavailable")},
		results: []string{"", "recovered text"},
	}
	p := NewStreamProcessor(fastConfig(), engine, testLogger())

	p.AddChunk(chunkAt(0, 50, 100))
	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return len(p.TranscriptUpdates()) >= 1 })

	if stats := p.GetStats(); stats.WindowsFailed == 0 {
		t.Error("expected at least one failed window")
	}
	if got := p.TranscriptUpdates()[0].Text; got != "recovered text" {
		t.Errorf("first appended update = %q, want the post-failure result", got)
	}
}

func TestClearDiscardsInFlightResult(t *testing.T) {
	block := make(chan struct{})
	engine := &stubEngine{results: []string{"stale words"}, block: block}
	p := NewStreamProcessor(fastConfig(), engine, testLogger())

	p.AddChunk(chunkAt(0, 50, 100))
	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return engine.callCount() == 1 })

	// Clear while the call is outstanding, then let it return.
	p.Clear()
	close(block)

	time.Sleep(100 * time.Millisecond)
	if got := p.TranscriptUpdates(); len(got) != 0 {
		t.Errorf("stale result landed after clear: %+v", got)
	}
	if stats := p.GetStats(); stats.BufferSeconds != 0 {
		t.Errorf("buffer not cleared: %v seconds", stats.BufferSeconds)
	}
}

func TestStopCancelsInFlightCall(t *testing.T) {
	engine := &stubEngine{results: []string{"never delivered"}, block: make(chan struct{})}
	p := NewStreamProcessor(fastConfig(), engine, testLogger())

	p.AddChunk(chunkAt(0, 50, 100))
	p.Start(context.Background())

	waitFor(t, time.Second, func() bool { return engine.callCount() == 1 })

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the in-flight call")
	}

	if got := p.TranscriptUpdates(); len(got) != 0 {
		t.Errorf("cancelled call still appended: %+v", got)
	}
	if p.IsRunning() {
		t.Error("processor still running after Stop")
	}
}

func TestRollingBufferTrimsFromFront(t *testing.T) {
	engine := &stubEngine{results: []string{"x"}}
	cfg := fastConfig() // one second of buffer at rate 100
	p := NewStreamProcessor(cfg, engine, testLogger())

	p.AddChunk(chunkAt(0, 80, 100))
	p.AddChunk(chunkAt(0.8, 80, 100))

	if got := p.GetStats().BufferSeconds; math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("buffer = %v seconds, want 1.0", got)
	}

	// 60 samples were trimmed, so the window now starts at 0.6.
	p.Start(context.Background())
	defer p.Stop()
	waitFor(t, time.Second, func() bool { return len(p.TranscriptUpdates()) >= 1 })
	if ts := p.TranscriptUpdates()[0].Timestamp; math.Abs(ts-0.6) > 1e-9 {
		t.Errorf("window start = %v, want 0.6", ts)
	}
}

func TestAddChunkResamplesForeignRate(t *testing.T) {
	engine := &stubEngine{}
	cfg := fastConfig()
	p := NewStreamProcessor(cfg, engine, testLogger())

	// 200 samples at twice the processor rate decimate to 100.
	p.AddChunk(chunkAt(0, 200, 200))
	if got := p.GetStats().BufferSeconds; math.Abs(got-1.0) > 1e-9 {
		t.Errorf("buffer = %v seconds after resample, want 1.0", got)
	}
}

func TestUpdateCallbackReceivesAppends(t *testing.T) {
	engine := &stubEngine{results: []string{"called back"}}
	p := NewStreamProcessor(fastConfig(), engine, testLogger())

	var mu sync.Mutex
	var texts []string
	p.SetUpdateFunc(func(u transcript.TranscriptUpdate) {
		mu.Lock()
		texts = append(texts, u.Text)
		mu.Unlock()
	})

	p.AddChunk(chunkAt(0, 50, 100))
	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(texts) >= 1
	})

	mu.Lock()
	defer mu.Unlock()
	if texts[0] != "called back" {
		t.Errorf("callback text = %q", texts[0])
	}
}
