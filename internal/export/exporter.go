package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// Request carries everything needed to export one finished dictation.
type Request struct {
	SessionID       string    `json:"session_id"`
	Title           string    `json:"title"`
	Text            string    `json:"text"`
	Summary         string    `json:"summary,omitempty"`
	Language        string    `json:"language"`
	Profile         string    `json:"profile"`
	MimeType        string    `json:"mime_type,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

// Result reports where the artifacts were written.
type Result struct {
	Dir   string
	Paths []string
}

// Config selects which artifacts to write and where.
type Config struct {
	OutputDir    string
	SaveTxt      bool
	SaveJSON     bool
	SaveMarkdown bool
}

// Exporter writes dictation artifacts to the local filesystem.
type Exporter struct {
	cfg    Config
	logger *slog.Logger
}

// NewExporter creates an exporter.
func NewExporter(cfg Config, logger *slog.Logger) *Exporter {
	return &Exporter{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "exporter")),
	}
}

// Export writes the enabled artifacts and returns their paths. Partial
// writes are not rolled back; a retried save overwrites into a fresh
// directory because the timestamp differs.
func (e *Exporter) Export(req *Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("nothing to export: empty transcript")
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	if req.Title == "" {
		req.Title = "dictation"
	}

	dir := filepath.Join(e.cfg.OutputDir,
		fmt.Sprintf("%s-%s", req.CreatedAt.Format("20060102-150405"), slugify(req.Title)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	result := &Result{Dir: dir}

	if e.cfg.SaveTxt {
		path := filepath.Join(dir, "transcript.txt")
		if err := os.WriteFile(path, []byte(req.Text+"\n"), 0o644); err != nil {
			return nil, fmt.Errorf("write transcript.txt: %w", err)
		}
		result.Paths = append(result.Paths, path)
	}

	if e.cfg.SaveJSON {
		path := filepath.Join(dir, "transcript.json")
		data, err := json.MarshalIndent(req, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal transcript record: %w", err)
		}
		if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			return nil, fmt.Errorf("write transcript.json: %w", err)
		}
		result.Paths = append(result.Paths, path)
	}

	if e.cfg.SaveMarkdown {
		path := filepath.Join(dir, "note.md")
		if err := os.WriteFile(path, []byte(renderNote(req)), 0o644); err != nil {
			return nil, fmt.Errorf("write note.md: %w", err)
		}
		result.Paths = append(result.Paths, path)
	}

	e.logger.Info("dictation exported",
		slog.String("session_id", req.SessionID),
		slog.String("dir", dir),
		slog.Int("artifacts", len(result.Paths)))

	return result, nil
}

// renderNote builds the Markdown note: title, metadata line, optional
// summary section, then the full transcript.
func renderNote(req *Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", req.Title)
	fmt.Fprintf(&b, "- Date: %s\n", req.CreatedAt.Format("2006-01-02 15:04"))
	if req.Language != "" {
		fmt.Fprintf(&b, "- Language: %s\n", req.Language)
	}
	if req.Profile != "" {
		fmt.Fprintf(&b, "- Profile: %s\n", req.Profile)
	}
	if req.DurationSeconds > 0 {
		fmt.Fprintf(&b, "- Duration: %.1fs\n", req.DurationSeconds)
	}
	b.WriteString("\n")

	if req.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(strings.TrimSpace(req.Summary))
		b.WriteString("\n\n")
	}

	b.WriteString("## Transcript\n\n")
	b.WriteString(strings.TrimSpace(req.Text))
	b.WriteString("\n")

	return b.String()
}

const maxSlugRunes = 48

// slugify folds a title into a filesystem-safe directory suffix.
func slugify(title string) string {
	var b strings.Builder
	lastDash := true // suppress leading dash

	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
		if b.Len() >= maxSlugRunes {
			break
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "dictation"
	}
	return slug
}
