package diskwriter

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/audio"
)

// AudioSubdir is the per-session directory holding chunk WAV files.
const AudioSubdir = "audio"

var (
	// ErrNoActiveSession reports a write or end without a started session.
	ErrNoActiveSession = errors.New("no active recording session")
	// ErrEmptyChunk reports a chunk with zero samples.
	ErrEmptyChunk = errors.New("chunk contains no samples")
	// ErrSessionActive reports starting a session over an active one.
	ErrSessionActive = errors.New("a recording session is already active")
)

// WriteError wraps any chunk write failure with the chunk it concerned.
type WriteError struct {
	ChunkIndex int
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("chunk %d write failed: %v", e.ChunkIndex, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Stats is a snapshot of writer counters for monitoring.
type Stats struct {
	Active        bool   `json:"active"`
	SessionID     string `json:"session_id,omitempty"`
	ChunksWritten int    `json:"chunks_written"`
	BytesWritten  int64  `json:"bytes_written"`
}

// Writer persists audio chunks as sequentially numbered WAV files under
// one directory per session. All methods are safe for concurrent use;
// in practice writes arrive from a single bus subscription.
type Writer struct {
	rootDir string
	logger  *slog.Logger

	mu            sync.Mutex
	active        bool
	sessionID     string
	sessionDir    string
	chunkPaths    []string
	chunksWritten int
	bytesWritten  int64
}

// NewWriter creates a writer placing session directories under rootDir.
func NewWriter(rootDir string, logger *slog.Logger) *Writer {
	return &Writer{rootDir: rootDir, logger: logger}
}

// StartSession creates the session directory with its audio subdirectory
// and activates the writer. Fails with ErrSessionActive if a session is
// already in progress.
func (w *Writer) StartSession(sessionID string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active {
		return "", ErrSessionActive
	}

	sessionDir := filepath.Join(w.rootDir, sessionID)
	audioDir := filepath.Join(sessionDir, AudioSubdir)
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}

	w.active = true
	w.sessionID = sessionID
	w.sessionDir = sessionDir
	w.chunkPaths = nil
	w.chunksWritten = 0
	w.bytesWritten = 0

	w.logger.Info("Recording session directory created",
		slog.String("session_id", sessionID),
		slog.String("dir", sessionDir),
	)
	return sessionDir, nil
}

// WriteChunk encodes the chunk as a 16-bit PCM mono WAV file named by
// its 1-based index (chunk_001.wav, chunk_002.wav, ...) and returns the
// file path. Fails with a *WriteError wrapping ErrNoActiveSession or
// ErrEmptyChunk for the documented misuse cases.
func (w *Writer) WriteChunk(chunk audio.AudioChunk) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active {
		return "", &WriteError{ChunkIndex: chunk.ChunkIndex, Err: ErrNoActiveSession}
	}
	if len(chunk.Samples) == 0 {
		return "", &WriteError{ChunkIndex: chunk.ChunkIndex, Err: ErrEmptyChunk}
	}

	data, err := audio.EncodeWAV(chunk.Samples, chunk.SampleRate)
	if err != nil {
		return "", &WriteError{ChunkIndex: chunk.ChunkIndex, Err: err}
	}

	filename := fmt.Sprintf("chunk_%03d.wav", chunk.ChunkIndex+1)
	path := filepath.Join(w.sessionDir, AudioSubdir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", &WriteError{ChunkIndex: chunk.ChunkIndex, Err: err}
	}

	w.chunkPaths = append(w.chunkPaths, path)
	w.chunksWritten++
	w.bytesWritten += int64(len(data))

	w.logger.Debug("Chunk written",
		slog.String("file", filename),
		slog.Int("bytes", len(data)),
		slog.Float64("duration", chunk.Duration),
	)
	return path, nil
}

// EndSession deactivates the writer and returns the ordered chunk paths.
// Nothing is deleted.
func (w *Writer) EndSession() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active {
		return nil, ErrNoActiveSession
	}

	paths := make([]string, len(w.chunkPaths))
	copy(paths, w.chunkPaths)

	w.logger.Info("Recording session finalized",
		slog.String("session_id", w.sessionID),
		slog.Int("chunks", w.chunksWritten),
		slog.Int64("bytes", w.bytesWritten),
	)

	w.active = false
	return paths, nil
}

// CancelSession deletes the entire session directory and deactivates.
// No-op when no session was started.
func (w *Writer) CancelSession() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sessionDir == "" {
		return nil
	}

	dir := w.sessionDir
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}

	w.logger.Info("Recording session discarded",
		slog.String("session_id", w.sessionID),
		slog.String("dir", dir),
	)

	w.active = false
	w.sessionDir = ""
	w.sessionID = ""
	w.chunkPaths = nil
	return nil
}

// SessionDir returns the current session directory, empty when none.
func (w *Writer) SessionDir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionDir
}

// IsActive reports whether a session is in progress.
func (w *Writer) IsActive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// GetStats returns a counter snapshot.
func (w *Writer) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Active:        w.active,
		SessionID:     w.sessionID,
		ChunksWritten: w.chunksWritten,
		BytesWritten:  w.bytesWritten,
	}
}
