package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testWAV() []byte {
	// A fake payload is fine: the client treats the WAV as opaque bytes.
	return []byte("RIFF fake wav payload")
}

func TestTranscribeSuccess(t *testing.T) {
	var gotLanguage, gotModel, gotBeam string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error: %v", err)
		}
		gotLanguage = r.FormValue("language")
		gotModel = r.FormValue("model")
		gotBeam = r.FormValue("beam_size")

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() error: %v", err)
		} else {
			file.Close()
		}

		json.NewEncoder(w).Encode(Response{Text: "hello world", Duration: 3.2})
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL, Timeout: 5 * time.Second, MaxConcurrent: 1})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	resp, err := client.Transcribe(context.Background(), &Request{
		WAV:      testWAV(),
		Language: "uk",
		Model:    "medium",
		BeamSize: 2,
	})
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}

	if resp.Text != "hello world" {
		t.Errorf("Text = %q, want %q", resp.Text, "hello world")
	}
	if resp.Duration != 3.2 {
		t.Errorf("Duration = %f, want 3.2", resp.Duration)
	}
	if gotLanguage != "uk" || gotModel != "medium" || gotBeam != "2" {
		t.Errorf("form fields = (%q, %q, %q), want (uk, medium, 2)", gotLanguage, gotModel, gotBeam)
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "engine busy", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(Response{Text: "recovered"})
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL, Timeout: 5 * time.Second, MaxRetries: 2, MaxConcurrent: 1})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	resp, err := client.Transcribe(context.Background(), &Request{WAV: testWAV()})
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}

	if resp.Text != "recovered" {
		t.Errorf("Text = %q, want recovered", resp.Text)
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2", calls.Load())
	}
}

func TestTranscribeClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unsupported audio", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL, Timeout: 5 * time.Second, MaxRetries: 3, MaxConcurrent: 1})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	_, err = client.Transcribe(context.Background(), &Request{WAV: testWAV()})
	if err == nil {
		t.Fatal("Transcribe() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "HTTP error 400") {
		t.Errorf("error = %v, want to carry HTTP error 400", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1 (4xx must not be retried)", calls.Load())
	}
}

func TestTranscribeEmptyWAVRejected(t *testing.T) {
	client, err := NewClient(Config{Endpoint: "http://localhost:1", MaxConcurrent: 1})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	if _, err := client.Transcribe(context.Background(), &Request{}); err == nil {
		t.Error("Transcribe(empty) expected error, got nil")
	}
}

func TestTranscribeRespectsContextWhileQueued(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(Response{Text: "slow"})
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient(Config{Endpoint: srv.URL, Timeout: 30 * time.Second, MaxConcurrent: 1})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	// First request occupies the single engine slot.
	go client.Transcribe(context.Background(), &Request{WAV: testWAV()})
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = client.Transcribe(ctx, &Request{WAV: testWAV()})
	if err == nil {
		t.Fatal("Transcribe() expected context error while queued, got nil")
	}
	if ctx.Err() == nil {
		t.Error("context should have expired")
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("NewClient() expected error for empty endpoint, got nil")
	}
}

func TestClientStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{Text: "ok"})
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL, Timeout: 5 * time.Second, MaxConcurrent: 1})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := client.Transcribe(context.Background(), &Request{WAV: testWAV()}); err != nil {
			t.Fatalf("Transcribe() error: %v", err)
		}
	}

	stats := client.GetStats()
	if stats.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", stats.TotalRequests)
	}
	if stats.SuccessRequests != 3 {
		t.Errorf("SuccessRequests = %d, want 3", stats.SuccessRequests)
	}
	if stats.SuccessRate != 100 {
		t.Errorf("SuccessRate = %f, want 100", stats.SuccessRate)
	}
}
