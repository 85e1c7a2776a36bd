package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/EddSaulys-senior/Transcribelite/internal/decode"
	"github.com/EddSaulys-senior/Transcribelite/internal/export"
	"github.com/EddSaulys-senior/Transcribelite/internal/history"
	"github.com/EddSaulys-senior/Transcribelite/internal/merge"
	"github.com/EddSaulys-senior/Transcribelite/internal/metrics"
	"github.com/EddSaulys-senior/Transcribelite/internal/protocol"
	"github.com/EddSaulys-senior/Transcribelite/internal/summarize"
	"github.com/EddSaulys-senior/Transcribelite/internal/transcription"
)

// Prometheus collectors register once per process, so the package shares a
// single instance across tests.
var testMetrics = metrics.NewMetrics()

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubDecoder returns a fixed PCM payload or error.
type stubDecoder struct {
	mu    sync.Mutex
	pcm   []byte
	err   error
	calls int
}

func (d *stubDecoder) DecodePCM(ctx context.Context, container []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.pcm, nil
}

func (d *stubDecoder) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// stubEngine returns canned transcripts in order, repeating the last one.
type stubEngine struct {
	mu    sync.Mutex
	texts []string
	err   error
	calls int
}

func (e *stubEngine) Transcribe(ctx context.Context, req *transcription.Request) (*transcription.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	idx := e.calls - 1
	if idx >= len(e.texts) {
		idx = len(e.texts) - 1
	}
	return &transcription.Response{Text: e.texts[idx]}, nil
}

func (e *stubEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type stubExporter struct {
	mu   sync.Mutex
	reqs []*export.Request
	err  error
}

func (x *stubExporter) Export(req *export.Request) (*export.Result, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.err != nil {
		return nil, x.err
	}
	x.reqs = append(x.reqs, req)
	return &export.Result{Dir: "/tmp/out", Paths: []string{"/tmp/out/transcript.txt"}}, nil
}

func (x *stubExporter) requests() []*export.Request {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]*export.Request(nil), x.reqs...)
}

type stubHistory struct {
	mu      sync.Mutex
	entries []*history.Entry
}

func (h *stubHistory) Insert(ctx context.Context, entry *history.Entry) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	return int64(len(h.entries)), nil
}

// disabledSummarizer behaves like a summarize.Ollama with enabled: false.
type disabledSummarizer struct{}

func (disabledSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	return "", summarize.ErrDisabled
}

func (disabledSummarizer) Title(ctx context.Context, text string) (string, error) {
	return "", summarize.ErrDisabled
}

// captureSink records every event the session emits.
type captureSink struct {
	mu     sync.Mutex
	events []*protocol.Event
}

func (c *captureSink) Send(event *protocol.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) byType(eventType string) []*protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*protocol.Event
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (c *captureSink) all() []*protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*protocol.Event(nil), c.events...)
}

// testConfig parks the ticker far away so tests drive cycles with flush;
// the threshold tests shorten CycleInterval themselves.
func testConfig() Config {
	return Config{
		CycleInterval:          time.Hour,
		FinalCycleTimeout:      2 * time.Second,
		DisconnectCycleTimeout: 2 * time.Second,
		SaveWaitTimeout:        2 * time.Second,
		MinBufferBytes:         4,
		SampleRate:             16000,
		DecodeFailureThreshold: 5,
		EngineFailureThreshold: 3,
		DefaultLanguage:        "en",
		DefaultMimeType:        "audio/webm",
	}
}

type testFixture struct {
	session  *Session
	sink     *captureSink
	decoder  *stubDecoder
	engine   *stubEngine
	exporter *stubExporter
	history  *stubHistory
}

func newTestFixture(t *testing.T, cfg Config) *testFixture {
	t.Helper()
	sink := &captureSink{}
	// 3200 bytes of s16le mono at 16 kHz is 100 ms of audio.
	decoder := &stubDecoder{pcm: make([]byte, 3200)}
	engine := &stubEngine{texts: []string{"hello world"}}
	exporter := &stubExporter{}
	hist := &stubHistory{}

	deps := Deps{
		Decoder:    decoder,
		Engine:     engine,
		Merger:     merge.NewEngine(merge.Config{}),
		Exporter:   exporter,
		Summarizer: disabledSummarizer{},
		History:    hist,
		Resolve: func(name string) (string, string, int) {
			if name == "" || name == "auto" {
				return "fast", "whisper-base", 1
			}
			return name, "whisper-" + name, 1
		},
		Metrics: testMetrics,
		Logger:  testLogger(),
	}
	sess := New("test-session", cfg, deps, sink)
	t.Cleanup(sess.Close)
	return &testFixture{
		session:  sess,
		sink:     sink,
		decoder:  decoder,
		engine:   engine,
		exporter: exporter,
		history:  hist,
	}
}

func (f *testFixture) start(t *testing.T) {
	t.Helper()
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStart})
	if got := f.session.State(); got != StateRecording {
		t.Fatalf("Expected recording state after start, got %s", got)
	}
}

func (f *testFixture) feedAudio(t *testing.T, size int) {
	t.Helper()
	if err := f.session.AppendAudio(make([]byte, size)); err != nil {
		t.Fatalf("AppendAudio failed: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestStartTransitionsToRecording(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.start(t)

	started := f.sink.byType(protocol.EventStarted)
	if len(started) != 1 {
		t.Fatalf("Expected 1 started event, got %d", len(started))
	}
	if started[0].Profile != "fast" {
		t.Errorf("Expected profile 'fast', got %q", started[0].Profile)
	}
	if started[0].Language != "en" {
		t.Errorf("Expected language 'en', got %q", started[0].Language)
	}
}

func TestStartRejectedWhileRecording(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.start(t)

	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStart})
	if len(f.sink.byType(protocol.EventError)) != 1 {
		t.Error("Expected error event for start while recording")
	}
	if got := f.session.State(); got != StateRecording {
		t.Errorf("Expected state unchanged, got %s", got)
	}
}

func TestStartResolvesRequestedProfile(t *testing.T) {
	f := newTestFixture(t, testConfig())
	lang := "uk"
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStart, Profile: "accurate", Language: lang})

	started := f.sink.byType(protocol.EventStarted)
	if len(started) != 1 {
		t.Fatalf("Expected 1 started event, got %d", len(started))
	}
	if started[0].Profile != "accurate" {
		t.Errorf("Expected profile 'accurate', got %q", started[0].Profile)
	}
	if started[0].Language != "uk" {
		t.Errorf("Expected language 'uk', got %q", started[0].Language)
	}
}

func TestFlushCycleEmitsPartialAndStats(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.start(t)
	f.feedAudio(t, 4096)

	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdFlush})

	if !waitFor(t, 2*time.Second, func() bool {
		return len(f.sink.byType(protocol.EventPartial)) > 0
	}) {
		t.Fatal("Expected a partial event after flush")
	}

	partials := f.sink.byType(protocol.EventPartial)
	if partials[0].Text != "hello world" {
		t.Errorf("Expected partial 'hello world', got %q", partials[0].Text)
	}

	if !waitFor(t, time.Second, func() bool {
		return len(f.sink.byType(protocol.EventStats)) > 0
	}) {
		t.Fatal("Expected a stats event after a successful cycle")
	}
	stats := f.sink.byType(protocol.EventStats)
	if stats[0].Seconds == nil || *stats[0].Seconds <= 0 {
		t.Error("Expected positive audio seconds in stats event")
	}
}

func TestRepeatHypothesisEmitsNoDuplicatePartial(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.engine.texts = []string{"hello world", "hello world"}
	f.start(t)
	f.feedAudio(t, 4096)

	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdFlush})
	if !waitFor(t, 2*time.Second, func() bool { return f.engine.callCount() >= 1 }) {
		t.Fatal("First cycle never ran")
	}

	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdFlush})
	if !waitFor(t, 2*time.Second, func() bool { return f.engine.callCount() >= 2 }) {
		t.Fatal("Second cycle never ran")
	}

	// Give the second cycle time to publish if it (wrongly) would.
	time.Sleep(50 * time.Millisecond)
	if got := len(f.sink.byType(protocol.EventPartial)); got != 1 {
		t.Errorf("Expected exactly 1 partial for repeated hypothesis, got %d", got)
	}
}

func TestGrowingHypothesisAppends(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.engine.texts = []string{"the quick brown fox", "brown fox jumps over"}
	f.start(t)
	f.feedAudio(t, 4096)

	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdFlush})
	if !waitFor(t, 2*time.Second, func() bool { return f.engine.callCount() >= 1 }) {
		t.Fatal("First cycle never ran")
	}
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdFlush})
	if !waitFor(t, 2*time.Second, func() bool {
		return len(f.sink.byType(protocol.EventPartial)) >= 2
	}) {
		t.Fatal("Second partial never arrived")
	}

	partials := f.sink.byType(protocol.EventPartial)
	last := partials[len(partials)-1].Text
	if last != "the quick brown fox jumps over" {
		t.Errorf("Expected merged transcript, got %q", last)
	}
}

func TestBufferBelowThresholdSkipsDecode(t *testing.T) {
	cfg := testConfig()
	cfg.MinBufferBytes = 2048
	f := newTestFixture(t, cfg)
	f.start(t)
	f.feedAudio(t, 100)

	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdFlush})
	time.Sleep(100 * time.Millisecond)

	if got := f.decoder.callCount(); got != 0 {
		t.Errorf("Expected no decode below buffer threshold, got %d calls", got)
	}
}

func TestDecodeFailuresBelowThresholdStayRecording(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.decoder.err = decode.ErrNeedsMoreData
	f.start(t)
	f.feedAudio(t, 4096)

	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdFlush})
	if !waitFor(t, 2*time.Second, func() bool { return f.decoder.callCount() >= 1 }) {
		t.Fatal("First cycle never ran")
	}
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdFlush})
	if !waitFor(t, 2*time.Second, func() bool { return f.decoder.callCount() >= 2 }) {
		t.Fatal("Second cycle never ran")
	}

	if got := f.session.State(); got != StateRecording {
		t.Errorf("Expected recording after transient decode failures, got %s", got)
	}
	if len(f.sink.byType(protocol.EventPartial)) != 0 {
		t.Error("Expected no partial events while decoding fails")
	}
	if len(f.sink.byType(protocol.EventError)) != 0 {
		t.Error("Expected no error events below failure threshold")
	}
}

func TestDecodeFailureThresholdEntersErrorState(t *testing.T) {
	cfg := testConfig()
	cfg.CycleInterval = 20 * time.Millisecond
	cfg.DecodeFailureThreshold = 2
	f := newTestFixture(t, cfg)
	f.decoder.err = errors.New("broken container")
	f.start(t)
	f.feedAudio(t, 4096)

	// The ticker keeps driving cycles until the threshold trips.
	if !waitFor(t, 3*time.Second, func() bool {
		return f.session.State() == StateError
	}) {
		t.Fatal("Expected error state after repeated decode failures")
	}
	if len(f.sink.byType(protocol.EventError)) == 0 {
		t.Error("Expected an error event")
	}
}

func TestEngineFailureThresholdEntersErrorState(t *testing.T) {
	cfg := testConfig()
	cfg.CycleInterval = 20 * time.Millisecond
	cfg.EngineFailureThreshold = 2
	f := newTestFixture(t, cfg)
	f.engine.err = errors.New("engine unavailable")
	f.start(t)
	f.feedAudio(t, 4096)

	if !waitFor(t, 3*time.Second, func() bool {
		return f.session.State() == StateError
	}) {
		t.Fatal("Expected error state after repeated engine failures")
	}
}

func TestClearRejectedWhileRecording(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.start(t)

	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdClear})
	if got := f.session.State(); got != StateRecording {
		t.Errorf("Expected recording after rejected clear, got %s", got)
	}
	if len(f.sink.byType(protocol.EventError)) != 1 {
		t.Error("Expected error event for clear while recording")
	}
}

func TestSetTextRejectedInErrorState(t *testing.T) {
	cfg := testConfig()
	cfg.CycleInterval = 20 * time.Millisecond
	cfg.DecodeFailureThreshold = 1
	f := newTestFixture(t, cfg)
	f.decoder.err = errors.New("broken container")
	f.start(t)
	f.feedAudio(t, 4096)

	if !waitFor(t, 3*time.Second, func() bool {
		return f.session.State() == StateError
	}) {
		t.Fatal("Expected error state after decode failure")
	}

	before := len(f.sink.byType(protocol.EventError))
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdSetText, Text: "should not apply"})
	if len(f.sink.byType(protocol.EventError)) != before+1 {
		t.Error("Expected an error event rejecting set_text")
	}
	for _, e := range f.sink.byType(protocol.EventPartial) {
		if e.Text == "should not apply" {
			t.Error("set_text must not replace the transcript in the error state")
		}
	}
}

func TestClearResetsStoppedSession(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.start(t)
	f.feedAudio(t, 4096)
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStop})

	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdClear})
	if got := f.session.State(); got != StateIdle {
		t.Errorf("Expected idle after clear, got %s", got)
	}
	if got := f.session.Info().TranscriptLen; got != 0 {
		t.Errorf("Expected empty transcript after clear, got len %d", got)
	}
	if got := f.session.Info().BufferBytes; got != 0 {
		t.Errorf("Expected empty buffer after clear, got %d bytes", got)
	}
}

func TestStopEmitsFinalThenStopped(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.start(t)
	f.feedAudio(t, 4096)

	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStop})

	if got := f.session.State(); got != StateStopped {
		t.Fatalf("Expected stopped state, got %s", got)
	}
	finals := f.sink.byType(protocol.EventFinal)
	if len(finals) != 1 {
		t.Fatalf("Expected exactly 1 final event, got %d", len(finals))
	}
	if finals[0].Text != "hello world" {
		t.Errorf("Expected final 'hello world', got %q", finals[0].Text)
	}
	if len(f.sink.byType(protocol.EventStopped)) != 1 {
		t.Error("Expected a stopped event")
	}

	// final must precede stopped.
	var finalIdx, stoppedIdx int
	for i, e := range f.sink.all() {
		switch e.Type {
		case protocol.EventFinal:
			finalIdx = i
		case protocol.EventStopped:
			stoppedIdx = i
		}
	}
	if finalIdx > stoppedIdx {
		t.Error("Expected final event before stopped event")
	}
}

func TestStopRejectedWhenIdle(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStop})
	if len(f.sink.byType(protocol.EventError)) != 1 {
		t.Error("Expected error event for stop while idle")
	}
	if got := f.session.State(); got != StateIdle {
		t.Errorf("Expected idle, got %s", got)
	}
}

func TestSetTextThenSaveExportsOverride(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.start(t)
	f.feedAudio(t, 4096)
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStop})

	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdSetText, Text: "corrected transcript"})
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdSave})

	reqs := f.exporter.requests()
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 export, got %d", len(reqs))
	}
	if reqs[0].Text != "corrected transcript" {
		t.Errorf("Expected exported text to match set_text, got %q", reqs[0].Text)
	}
	saved := f.sink.byType(protocol.EventSaved)
	if len(saved) != 1 {
		t.Fatalf("Expected 1 saved event, got %d", len(saved))
	}
	if saved[0].Title == "" {
		t.Error("Expected a non-empty title in saved event")
	}
}

func TestSaveTextOverrideBeatsCommittedText(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.start(t)
	f.feedAudio(t, 4096)
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStop})

	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdSave, TextOverride: "override wins"})

	reqs := f.exporter.requests()
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 export, got %d", len(reqs))
	}
	if reqs[0].Text != "override wins" {
		t.Errorf("Expected exported text to match the save override, got %q", reqs[0].Text)
	}
}

func TestStartMimeTypeCarriedThroughSave(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStart, MimeType: "audio/ogg"})
	f.feedAudio(t, 4096)
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStop})
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdSave})

	reqs := f.exporter.requests()
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 export, got %d", len(reqs))
	}
	if reqs[0].MimeType != "audio/ogg" {
		t.Errorf("Expected export mime type 'audio/ogg', got %q", reqs[0].MimeType)
	}

	f.history.mu.Lock()
	defer f.history.mu.Unlock()
	if len(f.history.entries) != 1 || f.history.entries[0].MimeType != "audio/ogg" {
		t.Error("Expected history entry to carry the session mime type")
	}
}

func TestStartWithoutMimeTypeUsesDefault(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.start(t)
	f.feedAudio(t, 4096)
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStop})
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdSave})

	reqs := f.exporter.requests()
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 export, got %d", len(reqs))
	}
	if reqs[0].MimeType != "audio/webm" {
		t.Errorf("Expected configured default mime type, got %q", reqs[0].MimeType)
	}
}

func TestSaveWithNothingToSave(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdSave})

	if len(f.exporter.requests()) != 0 {
		t.Error("Expected no export for empty transcript")
	}
	if len(f.sink.byType(protocol.EventError)) != 1 {
		t.Error("Expected error event for empty save")
	}
}

func TestSaveRecordsHistory(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.start(t)
	f.feedAudio(t, 4096)
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStop})
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdSave})

	f.history.mu.Lock()
	entries := len(f.history.entries)
	f.history.mu.Unlock()
	if entries != 1 {
		t.Fatalf("Expected 1 history entry, got %d", entries)
	}
}

func TestSaveFailureKeepsStateAndAllowsRetry(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.start(t)
	f.feedAudio(t, 4096)
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStop})

	f.exporter.err = errors.New("disk full")
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdSave})
	if got := f.session.State(); got != StateStopped {
		t.Errorf("Expected state preserved after save failure, got %s", got)
	}
	if len(f.sink.byType(protocol.EventError)) == 0 {
		t.Error("Expected error event for failed save")
	}

	f.exporter.err = nil
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdSave})
	if len(f.sink.byType(protocol.EventSaved)) != 1 {
		t.Error("Expected retry save to succeed")
	}
}

func TestAutoSaveOnStop(t *testing.T) {
	cfg := testConfig()
	cfg.AutoSave = true
	f := newTestFixture(t, cfg)
	f.start(t)
	f.feedAudio(t, 4096)

	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStop})

	if !waitFor(t, 2*time.Second, func() bool {
		return len(f.exporter.requests()) == 1
	}) {
		t.Fatal("Expected auto-save export after stop")
	}
	if len(f.sink.byType(protocol.EventSaved)) != 1 {
		t.Error("Expected saved event from auto-save")
	}
}

func TestAppendAudioRejectedOutsideRecording(t *testing.T) {
	f := newTestFixture(t, testConfig())
	if err := f.session.AppendAudio([]byte{1, 2, 3, 4}); err == nil {
		t.Error("Expected error appending audio while idle")
	}

	f.start(t)
	f.feedAudio(t, 4096)
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStop})

	if err := f.session.AppendAudio([]byte{1, 2, 3, 4}); err == nil {
		t.Error("Expected error appending audio after stop")
	}
}

func TestRestartAfterStopResetsTranscript(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.start(t)
	f.feedAudio(t, 4096)
	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStop})

	if got := f.session.Info().TranscriptLen; got == 0 {
		t.Fatal("Expected transcript after first recording")
	}

	f.session.HandleCommand(&protocol.Command{Cmd: protocol.CmdStart})
	if got := f.session.State(); got != StateRecording {
		t.Fatalf("Expected recording after restart, got %s", got)
	}
	if got := f.session.Info().TranscriptLen; got != 0 {
		t.Errorf("Expected transcript reset on restart, got len %d", got)
	}
}

func TestCloseWhileRecordingRunsFinalCycle(t *testing.T) {
	f := newTestFixture(t, testConfig())
	f.start(t)
	f.feedAudio(t, 4096)

	f.session.Close()

	if got := f.session.State(); got != StateStopped {
		t.Errorf("Expected stopped after disconnect close, got %s", got)
	}
	if f.engine.callCount() == 0 {
		t.Error("Expected a best-effort final cycle on disconnect")
	}
}
