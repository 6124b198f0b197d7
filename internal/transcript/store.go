package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// StoreFileName is the per-session partial transcript file inside the
// session directory.
const StoreFileName = "partial_transcript.json"

// Store is the append-only per-session log of transcript updates, kept
// for crash recovery and live display. It is independent of the final
// transcript produced after the session ends.
type Store struct {
	mu        sync.RWMutex
	sessionID string
	path      string
	entries   []TranscriptUpdate
}

// NewStore creates an empty store for sessionID persisting under dir.
func NewStore(sessionID, dir string) *Store {
	return &Store{
		sessionID: sessionID,
		path:      filepath.Join(dir, StoreFileName),
	}
}

// SessionID returns the session this store belongs to.
func (s *Store) SessionID() string {
	return s.sessionID
}

// FilePath returns where Save and Load persist the entries.
func (s *Store) FilePath() string {
	return s.path
}

// Append records an update. Updates whose text is empty after trimming
// are silently ignored.
func (s *Store) Append(update TranscriptUpdate) {
	if update.IsEmpty() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, update)
}

// GetAll returns a copy of all entries sorted by timestamp ascending,
// regardless of append order.
func (s *Store) GetAll() []TranscriptUpdate {
	s.mu.RLock()
	out := make([]TranscriptUpdate, len(s.entries))
	copy(out, s.entries)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// GetInRange returns entries whose timestamp falls within [start, end],
// inclusive on both ends, sorted by timestamp.
func (s *Store) GetInRange(start, end float64) []TranscriptUpdate {
	all := s.GetAll()
	out := make([]TranscriptUpdate, 0, len(all))
	for _, e := range all {
		if e.Timestamp >= start && e.Timestamp <= end {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of stored entries.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Save writes the full entry set to the store's JSON file.
func (s *Store) Save() error {
	entries := s.GetAll()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write transcript file: %w", err)
	}
	return nil
}

// Load replaces the entry set with the contents of the store's JSON
// file. A missing file is not an error and leaves the store empty.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read transcript file: %w", err)
	}

	var entries []TranscriptUpdate
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to decode transcript file: %w", err)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// ExportToMarkdown renders a heading plus one "[timestamp] text" line
// per entry in timestamp order.
func (s *Store) ExportToMarkdown() string {
	var b strings.Builder
	b.WriteString("# Partial Transcript\n\n")
	for _, e := range s.GetAll() {
		b.WriteString(e.FormattedTimestamp())
		b.WriteString(" ")
		b.WriteString(strings.TrimSpace(e.Text))
		b.WriteString("\n")
	}
	return b.String()
}
