package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EddSaulys-senior/Transcribelite/internal/config"
	"github.com/EddSaulys-senior/Transcribelite/internal/export"
	"github.com/EddSaulys-senior/Transcribelite/internal/history"
	"github.com/EddSaulys-senior/Transcribelite/internal/merge"
	"github.com/EddSaulys-senior/Transcribelite/internal/metrics"
	"github.com/EddSaulys-senior/Transcribelite/internal/protocol"
	"github.com/EddSaulys-senior/Transcribelite/internal/session"
	"github.com/EddSaulys-senior/Transcribelite/internal/summarize"
	"github.com/EddSaulys-senior/Transcribelite/internal/transcription"
)

// Prometheus collectors register once per process.
var testMetrics = metrics.NewMetrics()

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixedDecoder struct{ pcm []byte }

func (d fixedDecoder) DecodePCM(ctx context.Context, container []byte) ([]byte, error) {
	return d.pcm, nil
}

type fixedEngine struct{ text string }

func (e fixedEngine) Transcribe(ctx context.Context, req *transcription.Request) (*transcription.Response, error) {
	return &transcription.Response{Text: e.text}, nil
}

type nopExporter struct{}

func (nopExporter) Export(req *export.Request) (*export.Result, error) {
	return &export.Result{Dir: "/tmp/out", Paths: []string{"/tmp/out/transcript.txt"}}, nil
}

type nopHistory struct{}

func (nopHistory) Insert(ctx context.Context, entry *history.Entry) (int64, error) {
	return 1, nil
}

type noSummaries struct{}

func (noSummaries) Summarize(ctx context.Context, text string) (string, error) {
	return "", summarize.ErrDisabled
}

func (noSummaries) Title(ctx context.Context, text string) (string, error) {
	return "", summarize.ErrDisabled
}

func testSessionConfig() session.Config {
	return session.Config{
		CycleInterval:          time.Hour, // flush-driven in tests
		FinalCycleTimeout:      2 * time.Second,
		DisconnectCycleTimeout: 2 * time.Second,
		SaveWaitTimeout:        2 * time.Second,
		MinBufferBytes:         4,
		SampleRate:             16000,
		DecodeFailureThreshold: 5,
		EngineFailureThreshold: 3,
		DefaultLanguage:        "en",
	}
}

func newTestManager(t *testing.T, maxSessions int) *session.Manager {
	t.Helper()
	deps := session.Deps{
		Decoder:    fixedDecoder{pcm: make([]byte, 3200)},
		Engine:     fixedEngine{text: "hello world"},
		Merger:     merge.NewEngine(merge.Config{}),
		Exporter:   nopExporter{},
		Summarizer: noSummaries{},
		History:    nopHistory{},
		Resolve: func(name string) (string, string, int) {
			return "fast", "whisper-base", 1
		},
		Metrics: testMetrics,
		Logger:  testLogger(),
	}
	mgr := session.NewManager(testSessionConfig(), deps, maxSessions, time.Minute)
	t.Cleanup(mgr.Stop)
	return mgr
}

func dialTestServer(t *testing.T, mgr *session.Manager) *websocket.Conn {
	t.Helper()
	ws := NewWSServer(config.ServerConfig{
		BindAddress:     "127.0.0.1",
		Port:            0,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}, mgr, testLogger(), testMetrics)

	ts := httptest.NewServer(ws.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/dictation"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForEvent reads frames until an event of the wanted type arrives.
func waitForEvent(t *testing.T, conn *websocket.Conn, eventType string) *protocol.Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Read failed waiting for %q event: %v", eventType, err)
		}
		var event protocol.Event
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("Bad event frame: %v", err)
		}
		if event.Type == eventType {
			return &event
		}
	}
	t.Fatalf("Timed out waiting for %q event", eventType)
	return nil
}

func sendCommand(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func TestWebSocketDictationRoundTrip(t *testing.T) {
	mgr := newTestManager(t, 10)
	conn := dialTestServer(t, mgr)

	status := waitForEvent(t, conn, protocol.EventStatus)
	if status.State != "idle" {
		t.Errorf("Expected initial status 'idle', got %q", status.State)
	}

	sendCommand(t, conn, `{"cmd":"start"}`)
	started := waitForEvent(t, conn, protocol.EventStarted)
	if started.Profile != "fast" {
		t.Errorf("Expected profile 'fast', got %q", started.Profile)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 4096)); err != nil {
		t.Fatalf("Binary write failed: %v", err)
	}
	sendCommand(t, conn, `{"cmd":"flush"}`)

	partial := waitForEvent(t, conn, protocol.EventPartial)
	if partial.Text != "hello world" {
		t.Errorf("Expected partial 'hello world', got %q", partial.Text)
	}

	sendCommand(t, conn, `{"cmd":"stop"}`)
	final := waitForEvent(t, conn, protocol.EventFinal)
	if final.Text != "hello world" {
		t.Errorf("Expected final 'hello world', got %q", final.Text)
	}
	waitForEvent(t, conn, protocol.EventStopped)
}

func TestWebSocketRejectsMalformedCommand(t *testing.T) {
	mgr := newTestManager(t, 10)
	conn := dialTestServer(t, mgr)
	waitForEvent(t, conn, protocol.EventStatus)

	sendCommand(t, conn, `{not json`)
	errEvent := waitForEvent(t, conn, protocol.EventError)
	if errEvent.Message == "" {
		t.Error("Expected error message for malformed frame")
	}

	// The connection survives a bad frame.
	sendCommand(t, conn, `{"cmd":"start"}`)
	waitForEvent(t, conn, protocol.EventStarted)
}

func TestWebSocketUnknownCommand(t *testing.T) {
	mgr := newTestManager(t, 10)
	conn := dialTestServer(t, mgr)
	waitForEvent(t, conn, protocol.EventStatus)

	sendCommand(t, conn, `{"cmd":"reboot"}`)
	errEvent := waitForEvent(t, conn, protocol.EventError)
	if !strings.Contains(errEvent.Message, "reboot") {
		t.Errorf("Expected error naming the bad command, got %q", errEvent.Message)
	}
}

func TestWebSocketSessionLimit(t *testing.T) {
	mgr := newTestManager(t, 1)

	first := dialTestServer(t, mgr)
	waitForEvent(t, first, protocol.EventStatus)

	second := dialTestServer(t, mgr)
	errEvent := waitForEvent(t, second, protocol.EventError)
	if !strings.Contains(errEvent.Message, "limit") {
		t.Errorf("Expected session limit error, got %q", errEvent.Message)
	}
}

func TestWebSocketDisconnectRemovesSession(t *testing.T) {
	mgr := newTestManager(t, 10)
	conn := dialTestServer(t, mgr)
	waitForEvent(t, conn, protocol.EventStatus)

	if mgr.Count() != 1 {
		t.Fatalf("Expected 1 session, got %d", mgr.Count())
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && mgr.Count() != 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if mgr.Count() != 0 {
		t.Errorf("Expected session removed after disconnect, got %d", mgr.Count())
	}
}
