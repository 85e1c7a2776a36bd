package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrNeedsMoreData marks a transient decode failure: the container snapshot
// ends mid-frame or is still too short to parse. The caller should skip the
// cycle and retry once more audio has arrived.
var ErrNeedsMoreData = errors.New("container needs more data")

// Config holds the decoder parameters.
type Config struct {
	// FFmpegPath is the decoder binary; empty means "ffmpeg" on PATH.
	FFmpegPath string
	// SampleRate is the output PCM rate in Hz.
	SampleRate int
	// Channels is the output PCM channel count.
	Channels int
	// TailWindow bounds the primary decode to the trailing portion of the
	// container.
	TailWindow time.Duration
}

// FFmpeg decodes container snapshots by invoking ffmpeg with an -sseof tail
// seek, falling back to a full decode when the windowed pass fails.
type FFmpeg struct {
	cfg    Config
	logger *slog.Logger
}

// NewFFmpeg creates an ffmpeg-backed decoder.
func NewFFmpeg(cfg Config, logger *slog.Logger) *FFmpeg {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.TailWindow == 0 {
		cfg.TailWindow = 10 * time.Second
	}

	return &FFmpeg{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "decoder")),
	}
}

// DecodePCM converts a container snapshot into raw s16le mono PCM. The
// snapshot is written to a temp file because tail seeking requires a
// seekable input. Returns ErrNeedsMoreData for failures that more audio
// will resolve.
func (f *FFmpeg) DecodePCM(ctx context.Context, container []byte) ([]byte, error) {
	if len(container) == 0 {
		return nil, fmt.Errorf("%w: empty container snapshot", ErrNeedsMoreData)
	}

	path, err := f.writeSnapshot(container)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	start := time.Now()

	pcm, tailStderr, tailErr := f.run(ctx, f.tailArgs(path))
	if tailErr == nil && len(pcm) > 0 {
		f.logger.Debug("tail decode succeeded",
			slog.Int("container_bytes", len(container)),
			slog.Int("pcm_bytes", len(pcm)),
			slog.Duration("elapsed", time.Since(start)))
		return pcm, nil
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("decode canceled: %w", ctx.Err())
	}

	f.logger.Debug("tail decode failed, retrying with full buffer",
		slog.Int("container_bytes", len(container)),
		slog.String("stderr", truncateStderr(tailStderr)))

	pcm, fullStderr, fullErr := f.run(ctx, f.fullArgs(path))
	if fullErr == nil && len(pcm) > 0 {
		f.logger.Debug("full decode succeeded",
			slog.Int("container_bytes", len(container)),
			slog.Int("pcm_bytes", len(pcm)),
			slog.Duration("elapsed", time.Since(start)))
		return pcm, nil
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("decode canceled: %w", ctx.Err())
	}

	if fullErr == nil {
		// ffmpeg exited cleanly but produced nothing: the container parses
		// but holds no complete audio frames yet.
		return nil, fmt.Errorf("%w: decoder produced no samples", ErrNeedsMoreData)
	}

	if isTransientFailure(fullStderr) {
		return nil, fmt.Errorf("%w: %s", ErrNeedsMoreData, truncateStderr(fullStderr))
	}

	return nil, fmt.Errorf("decode failed: %s: %w", truncateStderr(fullStderr), fullErr)
}

// tailArgs builds the windowed decode command: seek to TailWindow before
// end-of-file and decode from there.
func (f *FFmpeg) tailArgs(path string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-sseof", fmt.Sprintf("-%g", f.cfg.TailWindow.Seconds()),
		"-i", path,
		"-f", "s16le",
		"-ac", fmt.Sprintf("%d", f.cfg.Channels),
		"-ar", fmt.Sprintf("%d", f.cfg.SampleRate),
		"-",
	}
}

// fullArgs builds the whole-buffer decode command.
func (f *FFmpeg) fullArgs(path string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", path,
		"-f", "s16le",
		"-ac", fmt.Sprintf("%d", f.cfg.Channels),
		"-ar", fmt.Sprintf("%d", f.cfg.SampleRate),
		"-",
	}
}

func (f *FFmpeg) run(ctx context.Context, args []string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, f.cfg.FFmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.String(), err
}

func (f *FFmpeg) writeSnapshot(container []byte) (string, error) {
	tmp, err := os.CreateTemp("", "dictation-*.media")
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot file: %w", err)
	}

	if _, err := tmp.Write(container); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write snapshot file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close snapshot file: %w", err)
	}

	return tmp.Name(), nil
}

// transientMarkers are ffmpeg stderr fragments produced by a truncated or
// still-growing container rather than by genuinely corrupt input.
var transientMarkers = []string{
	"invalid data found when processing input",
	"moov atom not found",
	"ebml header parsing failed",
	"end of file",
	"partial file",
	"error reading header",
}

// isTransientFailure reports whether the stderr output indicates a
// truncated-container failure that more data will resolve.
func isTransientFailure(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func truncateStderr(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if len(stderr) > 300 {
		return stderr[:300] + "..."
	}
	return stderr
}
