package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/EddSaulys-senior/Transcribelite/internal/audio"
	"github.com/EddSaulys-senior/Transcribelite/internal/decode"
	"github.com/EddSaulys-senior/Transcribelite/internal/export"
	"github.com/EddSaulys-senior/Transcribelite/internal/history"
	"github.com/EddSaulys-senior/Transcribelite/internal/merge"
	"github.com/EddSaulys-senior/Transcribelite/internal/metrics"
	"github.com/EddSaulys-senior/Transcribelite/internal/protocol"
	"github.com/EddSaulys-senior/Transcribelite/internal/summarize"
	"github.com/EddSaulys-senior/Transcribelite/internal/transcription"
)

// State identifies the lifecycle phase of a dictation session.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopping
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Decoder converts a snapshot of the growing media container into raw PCM.
type Decoder interface {
	DecodePCM(ctx context.Context, container []byte) ([]byte, error)
}

// Exporter writes a finished dictation to disk.
type Exporter interface {
	Export(req *export.Request) (*export.Result, error)
}

// Historian records finished dictations for later retrieval.
type Historian interface {
	Insert(ctx context.Context, entry *history.Entry) (int64, error)
}

// EventSink delivers protocol events back to the client. Implementations
// must be safe for concurrent use; the session calls Send from both the
// cycle goroutine and command handlers.
type EventSink interface {
	Send(event *protocol.Event) error
}

// ProfileResolver maps a requested profile name to the model parameters the
// transcription engine needs. Unknown names resolve to the default profile.
type ProfileResolver func(name string) (resolved string, model string, beamSize int)

// Config carries the per-session behavior knobs.
type Config struct {
	CycleInterval          time.Duration
	FinalCycleTimeout      time.Duration
	DisconnectCycleTimeout time.Duration
	SaveWaitTimeout        time.Duration
	MinBufferBytes         int
	SampleRate             int
	DecodeFailureThreshold int
	EngineFailureThreshold int
	AutoSave               bool
	DefaultLanguage        string
	DefaultSummarize       bool
	DefaultMimeType        string
}

// Deps bundles the collaborators a session needs. All of them are shared
// across sessions; only the audio buffer and merge state are per-session.
type Deps struct {
	Decoder    Decoder
	Engine     transcription.Engine
	Merger     *merge.Engine
	Exporter   Exporter
	Summarizer summarize.Service
	History    Historian
	Resolve    ProfileResolver
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// settings are resolved once per start command.
type settings struct {
	Profile   string
	Model     string
	BeamSize  int
	Language  string
	Summarize bool
	MimeType  string
}

// Session is a single dictation session bound to one connection.
type Session struct {
	ID        string
	CreatedAt time.Time

	cfg    Config
	deps   Deps
	sink   EventSink
	logger *slog.Logger

	buffer *audio.Buffer

	mu             sync.RWMutex
	state          State
	settings       settings
	committedText  string
	manualText     *string
	savedOnce      bool
	decodeFailures int
	engineFailures int
	cyclesRun      uint64
	lastRTF        float64
	audioSeconds   float64
	lastActivity   time.Time

	// sessionCtx outlives the recording loop so an in-flight cycle is not
	// aborted when stop cancels the ticker.
	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	loopCtx    context.Context
	loopCancel context.CancelFunc
	loopWG     sync.WaitGroup

	cycleToken chan struct{}
	flushCh    chan struct{}
}

// Info is the JSON shape exposed on the monitoring API.
type Info struct {
	ID            string    `json:"id"`
	State         string    `json:"state"`
	Profile       string    `json:"profile,omitempty"`
	Language      string    `json:"language,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
	BufferBytes   int       `json:"buffer_bytes"`
	TranscriptLen int       `json:"transcript_len"`
	CyclesRun     uint64    `json:"cycles_run"`
	LastRTF       float64   `json:"last_rtf"`
}

// New creates a session in the idle state. The recording loop starts on the
// first start command.
func New(id string, cfg Config, deps Deps, sink EventSink) *Session {
	sessionCtx, sessionCancel := context.WithCancel(context.Background())
	s := &Session{
		ID:            id,
		CreatedAt:     time.Now(),
		cfg:           cfg,
		deps:          deps,
		sink:          sink,
		logger:        deps.Logger.With(slog.String("session_id", id)),
		buffer:        audio.NewBuffer(),
		state:         StateIdle,
		lastActivity:  time.Now(),
		sessionCtx:    sessionCtx,
		sessionCancel: sessionCancel,
		cycleToken:    make(chan struct{}, 1),
		flushCh:       make(chan struct{}, 1),
	}
	s.cycleToken <- struct{}{}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastActivity reports when the session last saw a command or audio chunk.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Info snapshots the session for the monitoring API.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:            s.ID,
		State:         s.state.String(),
		Profile:       s.settings.Profile,
		Language:      s.settings.Language,
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.lastActivity,
		BufferBytes:   s.buffer.Len(),
		TranscriptLen: len(s.effectiveTextLocked()),
		CyclesRun:     s.cyclesRun,
		LastRTF:       s.lastRTF,
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// AppendAudio accepts a binary audio chunk. Chunks are only accepted while
// recording; anything else is dropped so a late frame after stop cannot
// corrupt the finalized transcript.
func (s *Session) AppendAudio(chunk []byte) error {
	s.touch()
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	if state != StateRecording {
		s.logger.Debug("Dropping audio chunk outside recording",
			slog.String("state", state.String()),
			slog.Int("size", len(chunk)))
		return fmt.Errorf("audio not accepted in state %s", state)
	}
	total, err := s.buffer.Append(chunk)
	if err != nil {
		return err
	}
	s.deps.Metrics.RecordAudioChunk(len(chunk))
	s.logger.Debug("Audio chunk appended",
		slog.Int("size", len(chunk)),
		slog.Int("buffer_bytes", total))
	return nil
}

// HandleCommand dispatches a parsed control command.
func (s *Session) HandleCommand(cmd *protocol.Command) {
	s.touch()
	s.deps.Metrics.RecordCommand(cmd.Cmd)
	switch cmd.Cmd {
	case protocol.CmdStart:
		s.handleStart(cmd)
	case protocol.CmdStop:
		s.handleStop()
	case protocol.CmdFlush:
		s.handleFlush()
	case protocol.CmdClear:
		s.handleClear()
	case protocol.CmdSetText:
		s.handleSetText(cmd.Text)
	case protocol.CmdSave:
		s.handleSave(cmd.TextOverride)
	default:
		// ParseCommand rejects unknown names; this is unreachable in practice.
		s.sendError(fmt.Sprintf("unknown command %q", cmd.Cmd))
	}
}

func (s *Session) handleStart(cmd *protocol.Command) {
	s.mu.Lock()
	if s.state == StateRecording || s.state == StateStopping {
		state := s.state
		s.mu.Unlock()
		s.rejectCommand(fmt.Sprintf("start not allowed in state %s", state))
		return
	}

	profile, model, beamSize := s.deps.Resolve(cmd.Profile)
	language := cmd.Language
	if language == "" {
		language = s.cfg.DefaultLanguage
	}
	wantSummary := s.cfg.DefaultSummarize
	if cmd.Summarize != nil {
		wantSummary = *cmd.Summarize
	}
	mimeType := cmd.MimeType
	if mimeType == "" {
		mimeType = s.cfg.DefaultMimeType
	}

	s.buffer.Reset()
	s.committedText = ""
	s.manualText = nil
	s.savedOnce = false
	s.decodeFailures = 0
	s.engineFailures = 0
	s.audioSeconds = 0
	s.settings = settings{
		Profile:   profile,
		Model:     model,
		BeamSize:  beamSize,
		Language:  language,
		Summarize: wantSummary,
		MimeType:  mimeType,
	}
	s.state = StateRecording
	s.loopCtx, s.loopCancel = context.WithCancel(s.sessionCtx)
	s.mu.Unlock()

	s.logger.Info("Recording started",
		slog.String("profile", profile),
		slog.String("model", model),
		slog.String("language", language),
		slog.Bool("summarize", wantSummary))

	s.send(protocol.NewStartedEvent(profile, language))
	s.send(protocol.NewStateEvent(StateRecording.String()))

	s.loopWG.Add(1)
	go s.runLoop(s.loopCtx)
}

func (s *Session) runLoop(ctx context.Context) {
	defer s.loopWG.Done()

	ticker := time.NewTicker(s.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tryCycle("tick")
		case <-s.flushCh:
			s.tryCycle("flush")
		}
	}
}

// tryCycle runs one cycle if no other is in flight. Ticks that land while a
// cycle is running are dropped rather than queued.
func (s *Session) tryCycle(trigger string) {
	if s.State() != StateRecording {
		return
	}
	select {
	case <-s.cycleToken:
	default:
		s.deps.Metrics.RecordCycleSkipped()
		s.logger.Debug("Cycle skipped, previous still in flight",
			slog.String("trigger", trigger))
		return
	}
	defer func() { s.cycleToken <- struct{}{} }()

	ctx, cancel := context.WithTimeout(s.sessionCtx, s.cfg.FinalCycleTimeout)
	defer cancel()
	s.runCycle(ctx, trigger)
}

// runCycle performs one decode/transcribe/merge pass over the current
// buffer snapshot. The caller must hold the cycle token.
func (s *Session) runCycle(ctx context.Context, trigger string) {
	if s.buffer.Len() < s.cfg.MinBufferBytes {
		s.logger.Debug("Buffer below decode threshold",
			slog.Int("buffer_bytes", s.buffer.Len()),
			slog.Int("min_bytes", s.cfg.MinBufferBytes))
		return
	}

	s.deps.Metrics.RecordCycleStarted()
	start := time.Now()
	snapshot := s.buffer.Snapshot()

	pcm, err := s.deps.Decoder.DecodePCM(ctx, snapshot)
	if err != nil {
		s.onDecodeFailure(err)
		return
	}
	if len(pcm) == 0 {
		s.onDecodeFailure(decode.ErrNeedsMoreData)
		return
	}

	wav, err := audio.EncodeWAV(pcm, s.cfg.SampleRate)
	if err != nil {
		s.logger.Warn("WAV encode failed", slog.String("error", err.Error()))
		return
	}
	audioSeconds := audio.PCMDuration(len(pcm), s.cfg.SampleRate)

	s.mu.RLock()
	cfg := s.settings
	committed := s.committedText
	s.mu.RUnlock()

	s.deps.Metrics.RecordTranscriptionRequest()
	trStart := time.Now()
	resp, err := s.deps.Engine.Transcribe(ctx, &transcription.Request{
		WAV:      wav,
		Language: cfg.Language,
		Model:    cfg.Model,
		BeamSize: cfg.BeamSize,
	})
	if err != nil {
		s.deps.Metrics.RecordTranscriptionFailure(time.Since(trStart).Seconds())
		s.onEngineFailure(err)
		return
	}
	s.deps.Metrics.RecordTranscriptionSuccess(time.Since(trStart).Seconds())

	result := s.deps.Merger.Merge(committed, resp.Text)
	elapsed := time.Since(start)
	rtf := 0.0
	if audioSeconds > 0 {
		rtf = elapsed.Seconds() / audioSeconds
	}

	s.mu.Lock()
	s.decodeFailures = 0
	s.engineFailures = 0
	s.cyclesRun++
	s.lastRTF = rtf
	s.audioSeconds = audioSeconds
	changed := false
	if result.Outcome == merge.OutcomeInitial || result.Outcome == merge.OutcomeAppended {
		s.committedText = result.Text
		changed = true
	}
	text := s.committedText
	state := s.state
	s.mu.Unlock()

	s.deps.Metrics.RecordCycleCompleted(elapsed.Seconds(), rtf, result.Outcome.String())
	s.logger.Debug("Cycle completed",
		slog.String("trigger", trigger),
		slog.String("outcome", result.Outcome.String()),
		slog.Int("anchor", result.Anchor),
		slog.Duration("elapsed", elapsed),
		slog.Float64("audio_seconds", audioSeconds),
		slog.Float64("rtf", rtf))

	// A stop may have landed while this cycle was running; the final event
	// supersedes any partial, so stay quiet here.
	if changed && state == StateRecording {
		s.send(protocol.NewPartialEvent(text))
	}
	if state == StateRecording {
		s.send(protocol.NewStatsEvent(rtf, audioSeconds))
	}
}

func (s *Session) onDecodeFailure(err error) {
	s.mu.Lock()
	s.decodeFailures++
	count := s.decodeFailures
	s.mu.Unlock()

	s.deps.Metrics.RecordDecodeFailure()
	if errors.Is(err, decode.ErrNeedsMoreData) {
		s.logger.Debug("Decode needs more data",
			slog.Int("consecutive_failures", count))
	} else {
		s.logger.Warn("Decode failed",
			slog.Int("consecutive_failures", count),
			slog.String("error", err.Error()))
	}
	if count >= s.cfg.DecodeFailureThreshold {
		s.fail(fmt.Sprintf("decoder failed %d consecutive cycles", count))
	}
}

func (s *Session) onEngineFailure(err error) {
	s.mu.Lock()
	s.engineFailures++
	count := s.engineFailures
	s.mu.Unlock()

	s.logger.Warn("Transcription failed",
		slog.Int("consecutive_failures", count),
		slog.String("error", err.Error()))
	if count >= s.cfg.EngineFailureThreshold {
		s.fail(fmt.Sprintf("transcription engine failed %d consecutive cycles", count))
		return
	}
	// Below the threshold the next tick retries; let the client know the
	// session is still alive.
	s.send(protocol.NewStatusEvent(s.State().String()))
}

// fail moves the session to the terminal error state and halts the loop.
func (s *Session) fail(message string) {
	s.mu.Lock()
	if s.state == StateError {
		s.mu.Unlock()
		return
	}
	s.state = StateError
	cancel := s.loopCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.deps.Metrics.RecordSessionError()
	s.logger.Error("Session entered error state", slog.String("reason", message))
	s.send(protocol.NewErrorEvent(message))
	s.send(protocol.NewStateEvent(StateError.String()))
}

func (s *Session) handleStop() {
	s.mu.Lock()
	if s.state != StateRecording {
		state := s.state
		s.mu.Unlock()
		s.rejectCommand(fmt.Sprintf("stop not allowed in state %s", state))
		return
	}
	s.state = StateStopping
	cancel := s.loopCancel
	s.mu.Unlock()

	s.send(protocol.NewStateEvent(StateStopping.String()))
	cancel()
	s.finalize(s.cfg.FinalCycleTimeout, true)
}

// finalize runs one last bounded cycle over the full buffer, publishes the
// final transcript and moves the session to stopped. With emit=false the
// events are skipped (disconnect path, nobody is listening).
func (s *Session) finalize(timeout time.Duration, emit bool) {
	if s.acquireCycle(timeout) {
		// The stopping state gates partial/stats emission inside runCycle,
		// so the final cycle only updates committed text.
		ctx, cancel := context.WithTimeout(s.sessionCtx, timeout)
		s.runFinalCycle(ctx)
		cancel()
		s.releaseCycle()
	} else {
		s.logger.Warn("Final cycle abandoned, previous cycle exceeded timeout",
			slog.Duration("timeout", timeout))
	}

	s.mu.Lock()
	if s.state != StateStopping {
		// An error mid-final-cycle wins.
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	text := s.effectiveTextLocked()
	autoSave := s.cfg.AutoSave && !s.savedOnce && text != ""
	s.mu.Unlock()

	s.logger.Info("Recording stopped", slog.Int("transcript_len", len(text)))
	if emit {
		s.send(protocol.NewFinalEvent(text))
		s.send(protocol.NewStoppedEvent())
		s.send(protocol.NewStateEvent(StateStopped.String()))
	}
	if autoSave {
		s.performSave(emit)
	}
}

// runFinalCycle is runCycle minus the failure-threshold escalation: a decode
// or engine hiccup on the very last pass should not flip a clean session
// into the error state when committed text already exists.
func (s *Session) runFinalCycle(ctx context.Context) {
	if s.buffer.Len() < s.cfg.MinBufferBytes {
		return
	}
	s.deps.Metrics.RecordCycleStarted()
	start := time.Now()
	snapshot := s.buffer.Snapshot()

	pcm, err := s.deps.Decoder.DecodePCM(ctx, snapshot)
	if err != nil || len(pcm) == 0 {
		s.logger.Warn("Final decode failed, keeping committed text",
			slog.String("error", errString(err)))
		return
	}
	wav, err := audio.EncodeWAV(pcm, s.cfg.SampleRate)
	if err != nil {
		return
	}
	audioSeconds := audio.PCMDuration(len(pcm), s.cfg.SampleRate)

	s.mu.RLock()
	cfg := s.settings
	committed := s.committedText
	s.mu.RUnlock()

	s.deps.Metrics.RecordTranscriptionRequest()
	trStart := time.Now()
	resp, err := s.deps.Engine.Transcribe(ctx, &transcription.Request{
		WAV:      wav,
		Language: cfg.Language,
		Model:    cfg.Model,
		BeamSize: cfg.BeamSize,
	})
	if err != nil {
		s.deps.Metrics.RecordTranscriptionFailure(time.Since(trStart).Seconds())
		s.logger.Warn("Final transcription failed, keeping committed text",
			slog.String("error", err.Error()))
		return
	}
	s.deps.Metrics.RecordTranscriptionSuccess(time.Since(trStart).Seconds())

	result := s.deps.Merger.Merge(committed, resp.Text)
	elapsed := time.Since(start)
	rtf := 0.0
	if audioSeconds > 0 {
		rtf = elapsed.Seconds() / audioSeconds
	}

	s.mu.Lock()
	s.cyclesRun++
	s.lastRTF = rtf
	s.audioSeconds = audioSeconds
	if result.Outcome == merge.OutcomeInitial || result.Outcome == merge.OutcomeAppended {
		s.committedText = result.Text
	}
	s.mu.Unlock()
	s.deps.Metrics.RecordCycleCompleted(elapsed.Seconds(), rtf, result.Outcome.String())
}

func (s *Session) handleFlush() {
	if s.State() != StateRecording {
		s.rejectCommand("flush not allowed outside recording")
		return
	}
	select {
	case s.flushCh <- struct{}{}:
	default:
		// A flush is already pending; coalesce.
	}
}

func (s *Session) handleClear() {
	s.mu.Lock()
	if s.state == StateRecording || s.state == StateStopping {
		state := s.state
		s.mu.Unlock()
		s.rejectCommand(fmt.Sprintf("clear not allowed in state %s", state))
		return
	}
	s.buffer.Reset()
	s.committedText = ""
	s.manualText = nil
	s.savedOnce = false
	s.decodeFailures = 0
	s.engineFailures = 0
	s.audioSeconds = 0
	s.state = StateIdle
	s.mu.Unlock()

	s.logger.Info("Session cleared")
	s.send(protocol.NewStateEvent(StateIdle.String()))
}

func (s *Session) handleSetText(text string) {
	s.mu.Lock()
	if s.state == StateError {
		s.mu.Unlock()
		s.rejectCommand("set_text not allowed in state error")
		return
	}
	s.manualText = &text
	s.mu.Unlock()
	s.logger.Info("Transcript replaced by client", slog.Int("len", len(text)))
	s.send(protocol.NewPartialEvent(text))
}

func (s *Session) handleSave(textOverride string) {
	// Wait for any in-flight cycle so the saved transcript is never a
	// half-merged intermediate.
	if !s.acquireCycle(s.cfg.SaveWaitTimeout) {
		s.deps.Metrics.RecordSaveFailure()
		s.sendError("save timed out waiting for the current cycle")
		return
	}
	s.releaseCycle()
	if textOverride != "" {
		s.mu.Lock()
		s.manualText = &textOverride
		s.mu.Unlock()
	}
	s.performSave(true)
}

// performSave titles, optionally summarizes, exports and records the
// current transcript. Failures leave the session state untouched so the
// client can retry.
func (s *Session) performSave(emit bool) {
	s.mu.RLock()
	text := s.effectiveTextLocked()
	cfg := s.settings
	audioSeconds := s.audioSeconds
	s.mu.RUnlock()

	if strings.TrimSpace(text) == "" {
		if emit {
			s.sendError("nothing to save")
		}
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(s.sessionCtx, s.cfg.SaveWaitTimeout)
	defer cancel()

	title, err := s.deps.Summarizer.Title(ctx, text)
	if err != nil || strings.TrimSpace(title) == "" {
		if err != nil && !errors.Is(err, summarize.ErrDisabled) {
			s.logger.Warn("Title generation failed, using fallback",
				slog.String("error", err.Error()))
		}
		title = summarize.FallbackTitle(text)
	}

	var summary string
	if cfg.Summarize {
		summary, err = s.deps.Summarizer.Summarize(ctx, text)
		if err != nil && !errors.Is(err, summarize.ErrDisabled) {
			s.logger.Warn("Summarization failed, saving without summary",
				slog.String("error", err.Error()))
			summary = ""
		}
	}

	result, err := s.deps.Exporter.Export(&export.Request{
		SessionID:       s.ID,
		Title:           title,
		Text:            text,
		Summary:         summary,
		Language:        cfg.Language,
		Profile:         cfg.Profile,
		MimeType:        cfg.MimeType,
		DurationSeconds: audioSeconds,
		CreatedAt:       time.Now(),
	})
	if err != nil {
		s.deps.Metrics.RecordSaveFailure()
		s.logger.Error("Export failed", slog.String("error", err.Error()))
		if emit {
			s.sendError(fmt.Sprintf("save failed: %v", err))
		}
		return
	}

	if _, err := s.deps.History.Insert(ctx, &history.Entry{
		SessionID:       s.ID,
		Title:           title,
		Transcript:      text,
		Summary:         summary,
		Language:        cfg.Language,
		Profile:         cfg.Profile,
		MimeType:        cfg.MimeType,
		DurationSeconds: audioSeconds,
		ExportDir:       result.Dir,
	}); err != nil {
		// The files are on disk; a history miss is not worth failing the save.
		s.logger.Warn("History insert failed", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	s.savedOnce = true
	s.mu.Unlock()

	s.deps.Metrics.RecordSaveCompleted(time.Since(start).Seconds())
	s.logger.Info("Dictation saved",
		slog.String("title", title),
		slog.String("dir", result.Dir),
		slog.Int("files", len(result.Paths)))
	if emit {
		s.send(protocol.NewSavedEvent(title, result.Paths))
	}
}

// Close shuts the session down on disconnect. A recording session gets one
// best-effort final cycle so buffered audio is not silently lost, then the
// transcript is auto-saved if configured.
func (s *Session) Close() {
	s.mu.Lock()
	state := s.state
	if state == StateRecording {
		s.state = StateStopping
	}
	cancel := s.loopCancel
	s.mu.Unlock()

	if state == StateRecording {
		if cancel != nil {
			cancel()
		}
		s.logger.Info("Connection lost while recording, running final cycle")
		s.finalize(s.cfg.DisconnectCycleTimeout, false)
	}

	s.sessionCancel()
	s.loopWG.Wait()
	s.logger.Debug("Session closed", slog.String("state", s.State().String()))
}

func (s *Session) acquireCycle(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-s.cycleToken:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.cycleToken:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Session) releaseCycle() {
	s.cycleToken <- struct{}{}
}

// effectiveTextLocked returns the client-visible transcript: a set_text
// override wins over merged cycle output. Caller holds s.mu.
func (s *Session) effectiveTextLocked() string {
	if s.manualText != nil {
		return *s.manualText
	}
	return s.committedText
}

func (s *Session) rejectCommand(message string) {
	s.deps.Metrics.RecordCommandError()
	s.logger.Warn("Command rejected", slog.String("reason", message))
	s.sendError(message)
}

func (s *Session) sendError(message string) {
	s.send(protocol.NewErrorEvent(message))
}

func (s *Session) send(event *protocol.Event) {
	if err := s.sink.Send(event); err != nil {
		s.logger.Debug("Event delivery failed",
			slog.String("type", event.Type),
			slog.String("error", err.Error()))
	}
}

func errString(err error) string {
	if err == nil {
		return "empty decode output"
	}
	return err.Error()
}
