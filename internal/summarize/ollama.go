package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ollamasdk "github.com/rozoomcool/go-ollama-sdk"
)

// ErrDisabled is returned when summarization is turned off in config.
var ErrDisabled = errors.New("summarization disabled")

const (
	summaryPrompt = "Summarize the following dictation transcript as a concise note. " +
		"Keep the original language of the transcript. Use short bullet points for " +
		"distinct topics and a one-sentence opening line.\n\nTranscript:\n%s"

	condensePrompt = "Combine the following partial summaries of one dictation into a " +
		"single coherent note. Keep the original language.\n\n%s"

	titlePrompt = "Give a short title (at most six words, no quotes, no trailing " +
		"punctuation) for the following transcript. Keep the original language. " +
		"Reply with the title only.\n\nTranscript:\n%s"

	maxTitleRunes = 80
)

// Service generates summaries and titles for finished transcripts.
type Service interface {
	Summarize(ctx context.Context, text string) (string, error)
	Title(ctx context.Context, text string) (string, error)
}

// Config holds summarizer settings.
type Config struct {
	Enabled  bool
	URL      string
	Model    string
	Timeout  time.Duration
	MaxChars int
}

// Ollama implements Service against a local Ollama server.
type Ollama struct {
	cfg    Config
	client *ollamasdk.OllamaClient
	logger *slog.Logger
}

// NewOllama creates an Ollama-backed summarizer.
func NewOllama(cfg Config, logger *slog.Logger) *Ollama {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:11434"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxChars < 1000 {
		cfg.MaxChars = 6000
	}

	return &Ollama{
		cfg:    cfg,
		client: ollamasdk.NewClient(cfg.URL),
		logger: logger.With(slog.String("component", "summarizer")),
	}
}

// Summarize produces a note summary for the transcript. Transcripts longer
// than MaxChars are summarized chunk by chunk, then condensed.
func (o *Ollama) Summarize(ctx context.Context, text string) (string, error) {
	if !o.cfg.Enabled {
		return "", ErrDisabled
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty transcript")
	}

	chunks := splitChunks(text, o.cfg.MaxChars)
	start := time.Now()

	summaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		summary, err := o.chat(ctx, fmt.Sprintf(summaryPrompt, chunk))
		if err != nil {
			return "", fmt.Errorf("summarize chunk %d/%d: %w", i+1, len(chunks), err)
		}
		summaries = append(summaries, summary)
	}

	result := summaries[0]
	if len(summaries) > 1 {
		var combined strings.Builder
		for i, summary := range summaries {
			fmt.Fprintf(&combined, "Summary chunk %d:\n%s\n\n", i+1, summary)
		}

		condensed, err := o.chat(ctx, fmt.Sprintf(condensePrompt, combined.String()))
		if err != nil {
			return "", fmt.Errorf("condense %d chunk summaries: %w", len(summaries), err)
		}
		result = condensed
	}

	o.logger.Info("transcript summarized",
		slog.Int("transcript_chars", len(text)),
		slog.Int("chunks", len(chunks)),
		slog.Duration("elapsed", time.Since(start)))

	return result, nil
}

// Title asks the model for a short note title. Callers should fall back to
// FallbackTitle when this fails; a missing title never blocks a save.
func (o *Ollama) Title(ctx context.Context, text string) (string, error) {
	if !o.cfg.Enabled {
		return "", ErrDisabled
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty transcript")
	}

	// The opening of the transcript is enough to name it.
	sample := text
	if len(sample) > o.cfg.MaxChars {
		sample = sample[:o.cfg.MaxChars]
	}

	raw, err := o.chat(ctx, fmt.Sprintf(titlePrompt, sample))
	if err != nil {
		return "", err
	}

	title := sanitizeTitle(raw)
	if title == "" {
		return "", fmt.Errorf("model returned empty title")
	}
	return title, nil
}

// chat runs one blocking SDK call bounded by the configured timeout. The
// SDK client has no context support, so the call is decoupled through a
// channel; an abandoned call finishes in the background.
func (o *Ollama) chat(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	type chatResult struct {
		text string
		err  error
	}
	done := make(chan chatResult, 1)

	go func() {
		text, err := o.client.Chat(o.cfg.Model, []ollamasdk.ChatMessage{
			{Role: "user", Content: prompt},
		})
		done <- chatResult{text: text, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("ollama chat: %w", res.err)
		}
		text := strings.TrimSpace(res.text)
		if text == "" {
			return "", fmt.Errorf("ollama returned empty response")
		}
		return text, nil
	case <-ctx.Done():
		return "", fmt.Errorf("ollama chat: %w", ctx.Err())
	}
}

// splitChunks splits text at line boundaries into pieces of at most
// maxChars. A single line longer than maxChars stays intact; Ollama accepts
// oversized prompts, this only bounds the common case.
func splitChunks(text string, maxChars int) []string {
	if len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	var current []string
	currentLen := 0

	for _, line := range strings.Split(text, "\n") {
		addition := len(line) + 1
		if len(current) > 0 && currentLen+addition > maxChars {
			chunks = append(chunks, strings.TrimSpace(strings.Join(current, "\n")))
			current = []string{line}
			currentLen = len(line)
		} else {
			current = append(current, line)
			currentLen += addition
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.TrimSpace(strings.Join(current, "\n")))
	}

	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// sanitizeTitle reduces a model reply to a single clean title line.
func sanitizeTitle(raw string) string {
	line := raw
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	line = strings.Trim(line, `"'`+"`")
	line = strings.TrimRight(line, ".!?,;:")
	line = strings.TrimSpace(line)

	runes := []rune(line)
	if len(runes) > maxTitleRunes {
		line = strings.TrimSpace(string(runes[:maxTitleRunes]))
	}
	return line
}

// FallbackTitle derives a title from the transcript's opening words, used
// when the summarizer is disabled or unavailable.
func FallbackTitle(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return "Dictation " + time.Now().Format("2006-01-02 15:04")
	}
	if len(words) > 6 {
		words = words[:6]
	}
	return sanitizeTitle(strings.Join(words, " "))
}
