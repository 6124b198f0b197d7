package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/audio"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/bus"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/capture"
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

// fakeDevice lets tests push frames by hand. Stop guarantees no further
// tap calls, matching the Device contract.
type fakeDevice struct {
	channel  capture.Channel
	rate     int
	startErr error

	mu sync.Mutex
	fn capture.FrameFunc
}

func (d *fakeDevice) Start(_ context.Context, fn capture.FrameFunc) error {
	if d.startErr != nil {
		return d.startErr
	}
	d.mu.Lock()
	d.fn = fn
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	d.fn = nil
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) SampleRate() int          { return d.rate }
func (d *fakeDevice) Channel() capture.Channel { return d.channel }

func (d *fakeDevice) push(value float32, n int) {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = value
	}
	d.mu.Lock()
	fn := d.fn
	d.mu.Unlock()
	if fn != nil {
		fn(samples)
	}
}

type chunkCollector struct {
	mu     sync.Mutex
	chunks []audio.AudioChunk
}

func (c *chunkCollector) add(chunk audio.AudioChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, chunk)
}

func (c *chunkCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chunks)
}

func (c *chunkCollector) get(i int) audio.AudioChunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunks[i]
}

// testConfig uses one-second chunks at a tiny rate so tests can fill
// blocks with a handful of samples.
func testConfig(source audio.Source) Config {
	return Config{
		Source:          source,
		SampleRate:      100,
		ChunkDuration:   time.Second,
		Normalize:       true,
		WarningDuration: time.Hour,
		MaxDuration:     2 * time.Hour,
	}
}

func newTestPipeline(t *testing.T, cfg Config, mic, system *fakeDevice) (*Recorder, *bus.Bus, *chunkCollector) {
	t.Helper()
	b := bus.New(testLogger())
	b.Start()

	var micDev, sysDev capture.Device
	if mic != nil {
		micDev = mic
	}
	if system != nil {
		sysDev = system
	}
	r, err := New(cfg, micDev, sysDev, b, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var got chunkCollector
	b.SubscribeChunks(got.add)
	return r, b, &got
}

func TestRecorderEmitsSequentialChunks(t *testing.T) {
	mic := &fakeDevice{channel: capture.ChannelMicrophone, rate: 100}
	r, _, got := newTestPipeline(t, testConfig(audio.SourceMicrophone), mic, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		mic.push(0.1, 100)
	}
	waitFor(t, time.Second, func() bool { return got.count() == 3 })

	for i := 0; i < 3; i++ {
		chunk := got.get(i)
		if chunk.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, chunk.ChunkIndex)
		}
		if math.Abs(chunk.Timestamp-float64(i)) > 1e-9 {
			t.Errorf("chunk %d timestamp = %v, want %v", i, chunk.Timestamp, float64(i))
		}
		if math.Abs(chunk.Duration-1.0) > 1e-9 {
			t.Errorf("chunk %d duration = %v, want 1.0", i, chunk.Duration)
		}
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := r.Duration(); math.Abs(got-3.0) > 1e-9 {
		t.Errorf("duration = %v, want 3.0", got)
	}
}

func TestStopFlushesPartialChunk(t *testing.T) {
	mic := &fakeDevice{channel: capture.ChannelMicrophone, rate: 100}
	r, _, got := newTestPipeline(t, testConfig(audio.SourceMicrophone), mic, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Two and a half blocks: two full chunks plus a flushed partial.
	mic.push(0.1, 100)
	mic.push(0.1, 100)
	mic.push(0.1, 50)
	waitFor(t, time.Second, func() bool { return got.count() == 2 })

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return got.count() == 3 })

	final := got.get(2)
	if final.ChunkIndex != 2 {
		t.Errorf("final chunk index = %d, want 2", final.ChunkIndex)
	}
	if math.Abs(final.Duration-0.5) > 1e-9 {
		t.Errorf("final chunk duration = %v, want 0.5", final.Duration)
	}
	if math.Abs(final.Timestamp-2.0) > 1e-9 {
		t.Errorf("final chunk timestamp = %v, want 2.0", final.Timestamp)
	}
}

func TestOverflowedSamplesDoNotAdvanceDuration(t *testing.T) {
	mic := &fakeDevice{channel: capture.ChannelMicrophone, rate: 100}
	r, _, got := newTestPipeline(t, testConfig(audio.SourceMicrophone), mic, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// One oversized frame: the primary ring holds two blocks (200
	// samples here), so the last 50 are rejected and never reach a
	// chunk. The duration clock must not count them.
	mic.push(0.1, 250)
	waitFor(t, time.Second, func() bool { return got.count() == 2 })

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got.count() != 2 {
		t.Errorf("expected 2 chunks, got %d", got.count())
	}
	if d := r.Duration(); math.Abs(d-2.0) > 1e-9 {
		t.Errorf("duration = %v, want 2.0", d)
	}
}

func TestCancelDiscardsBufferedAudio(t *testing.T) {
	mic := &fakeDevice{channel: capture.ChannelMicrophone, rate: 100}
	r, _, got := newTestPipeline(t, testConfig(audio.SourceMicrophone), mic, nil)

	// Cancel before start is a no-op.
	r.Cancel()

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	mic.push(0.1, 150)
	waitFor(t, time.Second, func() bool { return got.count() == 1 })

	r.Cancel()
	time.Sleep(50 * time.Millisecond)
	if got.count() != 1 {
		t.Errorf("cancel flushed a partial chunk: %d chunks", got.count())
	}
	if r.IsRecording() {
		t.Error("recorder still recording after cancel")
	}
}

func TestMixedSourceCombinesChannels(t *testing.T) {
	mic := &fakeDevice{channel: capture.ChannelMicrophone, rate: 100}
	system := &fakeDevice{channel: capture.ChannelSystem, rate: 100}
	r, _, got := newTestPipeline(t, testConfig(audio.SourceBoth), mic, system)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// System audio lands first, then the mic block completes the chunk.
	system.push(0.4, 100)
	mic.push(0.2, 100)
	waitFor(t, time.Second, func() bool { return got.count() == 1 })

	chunk := got.get(0)
	if len(chunk.Samples) != 100 {
		t.Fatalf("chunk has %d samples, want 100", len(chunk.Samples))
	}
	// Equal weights: 0.5*0.2 + 0.5*0.4, under the normalize target.
	if math.Abs(float64(chunk.Samples[0])-0.3) > 1e-6 {
		t.Errorf("mixed sample = %v, want 0.3", chunk.Samples[0])
	}

	r.Stop()
}

func TestMixedSourcePadsSystemShortfall(t *testing.T) {
	mic := &fakeDevice{channel: capture.ChannelMicrophone, rate: 100}
	system := &fakeDevice{channel: capture.ChannelSystem, rate: 100}
	r, _, got := newTestPipeline(t, testConfig(audio.SourceBoth), mic, system)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Only half the system audio arrives for this block.
	system.push(0.4, 50)
	mic.push(0.4, 100)
	waitFor(t, time.Second, func() bool { return got.count() == 1 })

	chunk := got.get(0)
	if len(chunk.Samples) != 100 {
		t.Fatalf("chunk has %d samples, want 100", len(chunk.Samples))
	}
	if math.Abs(float64(chunk.Samples[10])-0.4) > 1e-6 {
		t.Errorf("mixed span sample = %v, want 0.4", chunk.Samples[10])
	}
	// Past the shortfall only the weighted mic side remains.
	if math.Abs(float64(chunk.Samples[80])-0.2) > 1e-6 {
		t.Errorf("padded span sample = %v, want 0.2", chunk.Samples[80])
	}

	r.Stop()
}

func TestPermissionErrorSurfacesOnStart(t *testing.T) {
	mic := &fakeDevice{
		channel:  capture.ChannelMicrophone,
		rate:     100,
		startErr: fmt.Errorf("%w: microphone blocked", capture.ErrPermissionDenied),
	}
	r, _, _ := newTestPipeline(t, testConfig(audio.SourceMicrophone), mic, nil)

	err := r.Start(context.Background())
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if r.IsRecording() {
		t.Error("recorder recording after failed start")
	}

	// A later start with a working device succeeds.
	mic.startErr = nil
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	r.Stop()
}

func TestDurationWarningFiresOnce(t *testing.T) {
	cfg := testConfig(audio.SourceMicrophone)
	cfg.WarningDuration = 2 * time.Second
	cfg.MaxDuration = time.Hour

	mic := &fakeDevice{channel: capture.ChannelMicrophone, rate: 100}
	r, _, _ := newTestPipeline(t, cfg, mic, nil)

	var warnings atomic.Int32
	r.SetWarningFunc(func() { warnings.Add(1) })

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	for i := 0; i < 5; i++ {
		mic.push(0.1, 100)
	}
	waitFor(t, time.Second, func() bool { return warnings.Load() == 1 })

	// Pushing past the threshold again must not refire.
	mic.push(0.1, 100)
	time.Sleep(50 * time.Millisecond)
	if got := warnings.Load(); got != 1 {
		t.Errorf("warning fired %d times, want 1", got)
	}
}

func TestMaxDurationTriggersCallback(t *testing.T) {
	cfg := testConfig(audio.SourceMicrophone)
	cfg.WarningDuration = time.Second
	cfg.MaxDuration = 3 * time.Second

	mic := &fakeDevice{channel: capture.ChannelMicrophone, rate: 100}
	r, _, _ := newTestPipeline(t, cfg, mic, nil)

	var maxed atomic.Int32
	r.SetMaxDurationFunc(func() { maxed.Add(1) })

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	for i := 0; i < 3; i++ {
		mic.push(0.1, 100)
	}
	waitFor(t, time.Second, func() bool { return maxed.Load() == 1 })
}

func TestPauseSuspendsIngestion(t *testing.T) {
	mic := &fakeDevice{channel: capture.ChannelMicrophone, rate: 100}
	r, _, got := newTestPipeline(t, testConfig(audio.SourceMicrophone), mic, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	r.Pause()
	if !r.IsPaused() {
		t.Fatal("recorder not paused")
	}
	mic.push(0.1, 100)
	time.Sleep(50 * time.Millisecond)
	if got.count() != 0 {
		t.Errorf("paused recorder emitted %d chunks", got.count())
	}
	if r.Duration() != 0 {
		t.Errorf("paused recorder advanced duration to %v", r.Duration())
	}

	r.Resume()
	mic.push(0.1, 100)
	waitFor(t, time.Second, func() bool { return got.count() == 1 })
	if math.Abs(r.Duration()-1.0) > 1e-9 {
		t.Errorf("duration after resume = %v, want 1.0", r.Duration())
	}
}

func TestLevelReadingsFollowSource(t *testing.T) {
	mic := &fakeDevice{channel: capture.ChannelMicrophone, rate: 100}
	system := &fakeDevice{channel: capture.ChannelSystem, rate: 100}
	cfg := testConfig(audio.SourceBoth)

	b := bus.New(testLogger())
	b.Start()
	r, err := New(cfg, mic, system, b, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var mu sync.Mutex
	var levels []audio.AudioLevel
	b.SubscribeLevels(func(l audio.AudioLevel) {
		mu.Lock()
		levels = append(levels, l)
		mu.Unlock()
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	system.push(0.5, 10)
	mic.push(0.5, 10)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(levels) >= 1
	})

	mu.Lock()
	defer mu.Unlock()
	l := levels[0]
	if !l.HasSystem {
		t.Error("expected HasSystem for mixed source")
	}
	// 0.5 RMS is about -6 dBFS on both channels.
	if math.Abs(l.MicDB+6.02) > 0.1 || math.Abs(l.SystemDB+6.02) > 0.1 {
		t.Errorf("levels = %+v, want about -6 dB on both", l)
	}
}
