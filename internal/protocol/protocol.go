package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Command names accepted from the client.
const (
	CmdStart   = "start"
	CmdStop    = "stop"
	CmdFlush   = "flush"
	CmdClear   = "clear"
	CmdSetText = "set_text"
	CmdSave    = "save"
)

// Event types emitted to the client.
const (
	EventStatus  = "status"
	EventState   = "state"
	EventStarted = "started"
	EventPartial = "partial"
	EventFinal   = "final"
	EventStats   = "stats"
	EventSaved   = "saved"
	EventStopped = "stopped"
	EventError   = "error"
)

// Command is a client control message carried in a WebSocket text frame.
type Command struct {
	Cmd          string `json:"cmd"`
	Profile      string `json:"profile,omitempty"`
	Language     string `json:"language,omitempty"`
	Summarize    *bool  `json:"summarize,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	Text         string `json:"text,omitempty"`
	TextOverride string `json:"text_override,omitempty"`
}

// Event is a server message carried in a WebSocket text frame. Fields are
// populated per event type; omitted fields are dropped from the wire form.
type Event struct {
	Type     string   `json:"type"`
	State    string   `json:"state,omitempty"`
	Text     string   `json:"text,omitempty"`
	Message  string   `json:"message,omitempty"`
	Profile  string   `json:"profile,omitempty"`
	Language string   `json:"language,omitempty"`
	RTF      *float64 `json:"rtf,omitempty"`
	Seconds  *float64 `json:"seconds,omitempty"`
	Paths    []string `json:"paths,omitempty"`
	Title    string   `json:"title,omitempty"`
}

var knownCommands = map[string]bool{
	CmdStart:   true,
	CmdStop:    true,
	CmdFlush:   true,
	CmdClear:   true,
	CmdSetText: true,
	CmdSave:    true,
}

// ParseCommand decodes a text frame into a Command. Unknown command names
// and malformed JSON are rejected so a client typo never silently no-ops.
func ParseCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("malformed command frame: %w", err)
	}

	name := strings.TrimSpace(cmd.Cmd)
	if name == "" {
		return nil, fmt.Errorf("command frame missing cmd field")
	}
	if !knownCommands[name] {
		return nil, fmt.Errorf("unknown command %q", name)
	}
	cmd.Cmd = name

	if cmd.Cmd == CmdSetText && cmd.Text == "" {
		// set_text with empty text is legal and means "replace with nothing",
		// but the field must be present; a missing field and an empty string
		// decode identically, so accept both.
		cmd.Text = ""
	}

	return &cmd, nil
}

// Marshal encodes an event for the wire.
func (e *Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", e.Type, err)
	}
	return data, nil
}

// NewStateEvent reports a session state transition.
func NewStateEvent(state string) *Event {
	return &Event{Type: EventState, State: state}
}

// NewStartedEvent acknowledges a start command with the resolved settings.
func NewStartedEvent(profile, language string) *Event {
	return &Event{Type: EventStarted, Profile: profile, Language: language}
}

// NewPartialEvent carries the full merged transcript so far.
func NewPartialEvent(text string) *Event {
	return &Event{Type: EventPartial, Text: text}
}

// NewFinalEvent carries the complete transcript after stop.
func NewFinalEvent(text string) *Event {
	return &Event{Type: EventFinal, Text: text}
}

// NewStatsEvent reports per-cycle timing: real-time factor and the
// duration of decoded audio in seconds.
func NewStatsEvent(rtf, seconds float64) *Event {
	return &Event{Type: EventStats, RTF: &rtf, Seconds: &seconds}
}

// NewSavedEvent reports a completed export with the written artifact paths.
func NewSavedEvent(title string, paths []string) *Event {
	return &Event{Type: EventSaved, Title: title, Paths: paths}
}

// NewStoppedEvent reports that the session reached the stopped state.
func NewStoppedEvent() *Event {
	return &Event{Type: EventStopped}
}

// NewErrorEvent reports a recoverable or fatal session error.
func NewErrorEvent(message string) *Event {
	return &Event{Type: EventError, Message: message}
}

// NewStatusEvent reports the current session state on connect.
func NewStatusEvent(state string) *Event {
	return &Event{Type: EventStatus, State: state}
}
