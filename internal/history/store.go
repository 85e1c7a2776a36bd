package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one saved dictation.
type Entry struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	Title           string    `json:"title"`
	Transcript      string    `json:"transcript"`
	Summary         string    `json:"summary,omitempty"`
	Language        string    `json:"language"`
	Profile         string    `json:"profile"`
	MimeType        string    `json:"mime_type,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	ExportDir       string    `json:"export_dir"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store persists dictation history in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS dictation_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	title TEXT NOT NULL,
	transcript TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT '',
	profile TEXT NOT NULL DEFAULT '',
	mime_type TEXT NOT NULL DEFAULT '',
	duration_seconds REAL NOT NULL DEFAULT 0,
	export_dir TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_created_at ON dictation_history(created_at);
`

// Open opens (or creates) the history database with WAL journaling.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With(slog.String("component", "history")),
	}, nil
}

// Insert records one saved dictation and returns its row ID.
func (s *Store) Insert(ctx context.Context, entry *Entry) (int64, error) {
	if entry.Title == "" {
		return 0, fmt.Errorf("entry title cannot be empty")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO dictation_history
			(session_id, title, transcript, summary, language, profile, mime_type, duration_seconds, export_dir, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID, entry.Title, entry.Transcript, entry.Summary,
		entry.Language, entry.Profile, entry.MimeType, entry.DurationSeconds, entry.ExportDir,
		entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("insert history entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted id: %w", err)
	}

	s.logger.Info("dictation saved to history",
		slog.Int64("id", id),
		slog.String("session_id", entry.SessionID),
		slog.String("title", entry.Title))

	return id, nil
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, title, transcript, summary, language, profile,
		       mime_type, duration_seconds, export_dir, created_at
		FROM dictation_history
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Search returns entries whose title or transcript contains the query,
// most recent first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, title, transcript, summary, language, profile,
		       mime_type, duration_seconds, export_dir, created_at
		FROM dictation_history
		WHERE title LIKE ? OR transcript LIKE ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Delete removes an entry by ID. It returns false when no such entry exists.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM dictation_history WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete entry %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete entry %d: %w", id, err)
	}
	if affected > 0 {
		s.logger.Info("dictation removed from history", slog.Int64("id", id))
	}
	return affected > 0, nil
}

// Count returns the total number of saved dictations.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dictation_history`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Title, &e.Transcript, &e.Summary,
			&e.Language, &e.Profile, &e.MimeType, &e.DurationSeconds, &e.ExportDir, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}
