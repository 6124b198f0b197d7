package diskwriter

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/audio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sineChunk(index, samples int) audio.AudioChunk {
	data := make([]float32, samples)
	for i := range data {
		data[i] = 0.25
	}
	return audio.NewChunk(data, audio.ChunkSampleRate, index, float64(index)*30.0)
}

func TestWriteChunkNamesFilesSequentially(t *testing.T) {
	w := NewWriter(t.TempDir(), testLogger())

	dir, err := w.StartSession("session-abc")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		path, err := w.WriteChunk(sineChunk(i, 1600))
		if err != nil {
			t.Fatalf("WriteChunk %d failed: %v", i, err)
		}
		want := filepath.Join(dir, AudioSubdir, []string{"chunk_001.wav", "chunk_002.wav", "chunk_003.wav"}[i])
		if path != want {
			t.Errorf("chunk %d path = %s, want %s", i, path, want)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("chunk file missing: %v", err)
		}
	}

	paths, err := w.EndSession()
	if err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 paths, got %d", len(paths))
	}
	for i, p := range paths {
		if filepath.Base(p) != []string{"chunk_001.wav", "chunk_002.wav", "chunk_003.wav"}[i] {
			t.Errorf("path %d out of order: %s", i, p)
		}
	}
}

func TestWriteChunkCountsBytesIncludingHeader(t *testing.T) {
	w := NewWriter(t.TempDir(), testLogger())
	if _, err := w.StartSession("session-bytes"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	const samples = 800
	if _, err := w.WriteChunk(sineChunk(0, samples)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}

	stats := w.GetStats()
	if stats.ChunksWritten != 1 {
		t.Errorf("chunks written = %d, want 1", stats.ChunksWritten)
	}
	if want := int64(44 + samples*2); stats.BytesWritten != want {
		t.Errorf("bytes written = %d, want %d", stats.BytesWritten, want)
	}
}

func TestWriteChunkWithoutSessionFails(t *testing.T) {
	w := NewWriter(t.TempDir(), testLogger())

	_, err := w.WriteChunk(sineChunk(0, 100))
	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected *WriteError, got %v", err)
	}
	if !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestWriteEmptyChunkFails(t *testing.T) {
	w := NewWriter(t.TempDir(), testLogger())
	if _, err := w.StartSession("session-empty"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	_, err := w.WriteChunk(audio.NewChunk(nil, audio.ChunkSampleRate, 0, 0))
	if !errors.Is(err, ErrEmptyChunk) {
		t.Errorf("expected ErrEmptyChunk, got %v", err)
	}

	if stats := w.GetStats(); stats.ChunksWritten != 0 {
		t.Errorf("failed write still counted: %+v", stats)
	}
}

func TestStartSessionWhileActiveFails(t *testing.T) {
	w := NewWriter(t.TempDir(), testLogger())
	if _, err := w.StartSession("first"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if _, err := w.StartSession("second"); !errors.Is(err, ErrSessionActive) {
		t.Errorf("expected ErrSessionActive, got %v", err)
	}
}

func TestCancelSessionRemovesDirectory(t *testing.T) {
	w := NewWriter(t.TempDir(), testLogger())
	dir, err := w.StartSession("session-cancel")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if _, err := w.WriteChunk(sineChunk(0, 1600)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}

	if err := w.CancelSession(); err != nil {
		t.Fatalf("CancelSession failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("session directory still exists after cancel")
	}
	if w.IsActive() {
		t.Error("writer still active after cancel")
	}

	// Cancel again is a no-op.
	if err := w.CancelSession(); err != nil {
		t.Errorf("second cancel failed: %v", err)
	}
}

func TestEndSessionKeepsFiles(t *testing.T) {
	w := NewWriter(t.TempDir(), testLogger())
	dir, err := w.StartSession("session-keep")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if _, err := w.WriteChunk(sineChunk(0, 1600)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}

	paths, err := w.EndSession()
	if err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("chunk removed by EndSession: %v", err)
		}
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("session dir removed by EndSession: %v", err)
	}

	// Writes after the session ends are rejected.
	if _, err := w.WriteChunk(sineChunk(1, 100)); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("expected ErrNoActiveSession after end, got %v", err)
	}

	// A new session can start once the previous one ended.
	if _, err := w.StartSession("session-next"); err != nil {
		t.Errorf("restart after end failed: %v", err)
	}
}

func TestWrittenFilesAreValidWAV(t *testing.T) {
	w := NewWriter(t.TempDir(), testLogger())
	if _, err := w.StartSession("session-wav"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	path, err := w.WriteChunk(sineChunk(0, 4800))
	if err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if err := audio.ValidateWAV(data); err != nil {
		t.Errorf("written chunk is not valid WAV: %v", err)
	}
	info, err := audio.GetWAVInfo(data)
	if err != nil {
		t.Fatalf("GetWAVInfo failed: %v", err)
	}
	if info.SampleRate != audio.ChunkSampleRate || info.NumSamples != 4800 {
		t.Errorf("unexpected WAV contents: %+v", info)
	}
}
