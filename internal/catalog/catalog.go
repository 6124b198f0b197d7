package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS sessions (
    id            TEXT PRIMARY KEY,
    title         TEXT NOT NULL DEFAULT '',
    audio_source  TEXT NOT NULL DEFAULT 'microphone',
    state         TEXT NOT NULL,
    duration_secs REAL NOT NULL DEFAULT 0,
    chunk_count   INTEGER NOT NULL DEFAULT 0,
    bytes_written INTEGER NOT NULL DEFAULT 0,
    session_dir   TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    started_at    TEXT NOT NULL DEFAULT '',
    completed_at  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS sessions_started_at ON sessions(started_at);
`

// Record is one finished (or failed) session as persisted in the
// catalog.
type Record struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	AudioSource  string    `json:"audio_source"`
	State        string    `json:"state"`
	DurationSecs float64   `json:"duration_seconds"`
	ChunkCount   int       `json:"chunk_count"`
	BytesWritten int64     `json:"bytes_written"`
	SessionDir   string    `json:"session_dir"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Catalog is the session metadata store backed by SQLite.
type Catalog struct {
	db *sql.DB
}

// Open creates or opens the catalog database at dbPath.
func Open(dbPath string) (*Catalog, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init catalog schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// SaveSession inserts or replaces the record for rec.ID.
func (c *Catalog) SaveSession(rec Record) error {
	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO sessions
		(id, title, audio_source, state, duration_secs, chunk_count, bytes_written, session_dir, error_message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.AudioSource, rec.State, rec.DurationSecs,
		rec.ChunkCount, rec.BytesWritten, rec.SessionDir, rec.ErrorMessage,
		formatTime(rec.StartedAt), formatTime(rec.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.ID, err)
	}
	return nil
}

// GetSession returns the record for id, or nil when absent.
func (c *Catalog) GetSession(id string) (*Record, error) {
	row := c.db.QueryRow(`
		SELECT id, title, audio_source, state, duration_secs, chunk_count, bytes_written, session_dir, error_message, started_at, completed_at
		FROM sessions WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListSessions returns records newest first. limit <= 0 returns all.
func (c *Catalog) ListSessions(limit int) ([]Record, error) {
	query := `
		SELECT id, title, audio_source, state, duration_secs, chunk_count, bytes_written, session_dir, error_message, started_at, completed_at
		FROM sessions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// DeleteSession removes the record for id. Missing ids are not an error.
func (c *Catalog) DeleteSession(id string) error {
	_, err := c.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	return err
}

// SessionCount returns the number of stored records.
func (c *Catalog) SessionCount() (int, error) {
	var n int
	err := c.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var startedAt, completedAt string
	err := s.Scan(
		&rec.ID, &rec.Title, &rec.AudioSource, &rec.State, &rec.DurationSecs,
		&rec.ChunkCount, &rec.BytesWritten, &rec.SessionDir, &rec.ErrorMessage,
		&startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.StartedAt = parseTime(startedAt)
	rec.CompletedAt = parseTime(completedAt)
	return &rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
