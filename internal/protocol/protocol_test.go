package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantCmd string
		wantErr string
	}{
		{
			name:    "start with settings",
			input:   `{"cmd":"start","profile":"accurate","language":"uk","summarize":true}`,
			wantCmd: CmdStart,
		},
		{
			name:    "bare stop",
			input:   `{"cmd":"stop"}`,
			wantCmd: CmdStop,
		},
		{
			name:    "flush",
			input:   `{"cmd":"flush"}`,
			wantCmd: CmdFlush,
		},
		{
			name:    "clear",
			input:   `{"cmd":"clear"}`,
			wantCmd: CmdClear,
		},
		{
			name:    "set_text with text",
			input:   `{"cmd":"set_text","text":"corrected transcript"}`,
			wantCmd: CmdSetText,
		},
		{
			name:    "set_text with empty text",
			input:   `{"cmd":"set_text","text":""}`,
			wantCmd: CmdSetText,
		},
		{
			name:    "save",
			input:   `{"cmd":"save"}`,
			wantCmd: CmdSave,
		},
		{
			name:    "whitespace around name",
			input:   `{"cmd":" stop "}`,
			wantCmd: CmdStop,
		},
		{
			name:    "unknown command",
			input:   `{"cmd":"pause"}`,
			wantErr: "unknown command",
		},
		{
			name:    "missing cmd field",
			input:   `{"text":"hello"}`,
			wantErr: "missing cmd field",
		},
		{
			name:    "malformed JSON",
			input:   `{"cmd":`,
			wantErr: "malformed command frame",
		},
		{
			name:    "empty frame",
			input:   ``,
			wantErr: "malformed command frame",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand([]byte(tt.input))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("ParseCommand() expected error containing %q, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("ParseCommand() error = %v, want substring %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand() unexpected error: %v", err)
			}
			if cmd.Cmd != tt.wantCmd {
				t.Errorf("ParseCommand() cmd = %q, want %q", cmd.Cmd, tt.wantCmd)
			}
		})
	}
}

func TestParseCommandStartSettings(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"cmd":"start","profile":"fast","language":"en","summarize":false,"mime_type":"audio/ogg"}`))
	if err != nil {
		t.Fatalf("ParseCommand() error: %v", err)
	}

	if cmd.Profile != "fast" {
		t.Errorf("Profile = %q, want fast", cmd.Profile)
	}
	if cmd.Language != "en" {
		t.Errorf("Language = %q, want en", cmd.Language)
	}
	if cmd.Summarize == nil || *cmd.Summarize {
		t.Errorf("Summarize = %v, want explicit false", cmd.Summarize)
	}
	if cmd.MimeType != "audio/ogg" {
		t.Errorf("MimeType = %q, want audio/ogg", cmd.MimeType)
	}

	cmd, err = ParseCommand([]byte(`{"cmd":"start"}`))
	if err != nil {
		t.Fatalf("ParseCommand() error: %v", err)
	}
	if cmd.Summarize != nil {
		t.Errorf("Summarize = %v, want nil when omitted", cmd.Summarize)
	}
}

func TestParseCommandSaveTextOverride(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"cmd":"save","text_override":"final words"}`))
	if err != nil {
		t.Fatalf("ParseCommand() error: %v", err)
	}
	if cmd.TextOverride != "final words" {
		t.Errorf("TextOverride = %q, want final words", cmd.TextOverride)
	}
}

func TestEventMarshal(t *testing.T) {
	tests := []struct {
		name  string
		event *Event
		want  map[string]any
	}{
		{
			name:  "state event",
			event: NewStateEvent("recording"),
			want:  map[string]any{"type": "state", "state": "recording"},
		},
		{
			name:  "started event",
			event: NewStartedEvent("balanced", "uk"),
			want:  map[string]any{"type": "started", "profile": "balanced", "language": "uk"},
		},
		{
			name:  "partial event",
			event: NewPartialEvent("hello world"),
			want:  map[string]any{"type": "partial", "text": "hello world"},
		},
		{
			name:  "stats event",
			event: NewStatsEvent(0.42, 12.5),
			want:  map[string]any{"type": "stats", "rtf": 0.42, "seconds": 12.5},
		},
		{
			name:  "error event",
			event: NewErrorEvent("decode failed"),
			want:  map[string]any{"type": "error", "message": "decode failed"},
		},
		{
			name:  "stopped event",
			event: NewStoppedEvent(),
			want:  map[string]any{"type": "stopped"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.event.Marshal()
			if err != nil {
				t.Fatalf("Marshal() error: %v", err)
			}

			var got map[string]any
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("output is not valid JSON: %v", err)
			}

			if len(got) != len(tt.want) {
				t.Errorf("Marshal() produced %d fields %v, want %d fields %v",
					len(got), got, len(tt.want), tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("field %q = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestStatsEventZeroValuesKept(t *testing.T) {
	data, err := NewStatsEvent(0, 0).Marshal()
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if _, ok := got["rtf"]; !ok {
		t.Error("stats event dropped rtf=0, pointer fields should survive zero values")
	}
	if _, ok := got["seconds"]; !ok {
		t.Error("stats event dropped seconds=0, pointer fields should survive zero values")
	}
}

func TestSavedEventPaths(t *testing.T) {
	data, err := NewSavedEvent("Morning standup", []string{"exports/a/transcript.txt", "exports/a/note.md"}).Marshal()
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}

	if got.Title != "Morning standup" {
		t.Errorf("Title = %q, want %q", got.Title, "Morning standup")
	}
	if len(got.Paths) != 2 {
		t.Errorf("Paths = %v, want 2 entries", got.Paths)
	}
}
