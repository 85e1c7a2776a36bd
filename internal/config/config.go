package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	Dictation     DictationConfig     `yaml:"dictation"`
	Profiles      map[string]Profile  `yaml:"profiles"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Summarize     SummarizeConfig     `yaml:"summarize"`
	Export        ExportConfig        `yaml:"export"`
	History       HistoryConfig       `yaml:"history"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains WebSocket server configuration
type ServerConfig struct {
	Port                  int    `yaml:"port"`
	BindAddress           string `yaml:"bind_address"`
	MaxConcurrentSessions int    `yaml:"max_concurrent_sessions"`
	ReadBufferSize        int    `yaml:"read_buffer_size"`
	WriteBufferSize       int    `yaml:"write_buffer_size"`
	SessionTimeout        int    `yaml:"session_timeout"` // seconds, idle session cleanup
}

// HTTPConfig contains the HTTP monitoring API configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains audio handling parameters
type AudioConfig struct {
	SampleRate     int    `yaml:"sample_rate"`      // PCM target rate for decode/transcribe
	Channels       int    `yaml:"channels"`         // PCM target channel count
	MinBufferBytes int    `yaml:"min_buffer_bytes"` // container bytes required before the first decode
	FFmpegPath     string `yaml:"ffmpeg_path"`      // decoder binary, defaults to "ffmpeg" on PATH
	MimeType       string `yaml:"mime_type"`        // container type assumed when start omits mime_type
}

// DictationConfig contains the dictation loop tunables
type DictationConfig struct {
	CycleInterval          float64 `yaml:"cycle_interval"`           // seconds between decode/transcribe cycles
	TailWindow             float64 `yaml:"tail_window"`              // seconds of trailing audio for the windowed decode
	OverlapWindowTokens    int     `yaml:"overlap_window_tokens"`    // committed-tail tokens considered for the overlap anchor
	MinOverlapTokens       int     `yaml:"min_overlap_tokens"`       // shortest anchor accepted as a real overlap
	DecodeFailureThreshold int     `yaml:"decode_failure_threshold"` // consecutive decode failures before session error
	EngineFailureThreshold int     `yaml:"engine_failure_threshold"` // consecutive engine failures before session error
	FinalCycleTimeout      float64 `yaml:"final_cycle_timeout"`      // seconds, bound on the final cycle during stop
	DisconnectCycleTimeout float64 `yaml:"disconnect_cycle_timeout"` // seconds, bound on the best-effort cycle at disconnect
	SaveWaitTimeout        float64 `yaml:"save_wait_timeout"`        // seconds save waits for an in-flight cycle
	AutoSave               bool    `yaml:"auto_save"`                // stop behaves as stop followed by save
	DefaultProfile         string  `yaml:"default_profile"`
	DefaultLanguage        string  `yaml:"default_language"`
	DefaultSummarize       bool    `yaml:"default_summarize"`
}

// Profile maps a user-facing quality profile to engine parameters
type Profile struct {
	Model    string `yaml:"model"`
	BeamSize int    `yaml:"beam_size"`
}

// TranscriptionConfig contains speech engine client configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"` // optional for a local engine
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"` // engine-wide; 1 serializes cycles across sessions
}

// SummarizeConfig contains Ollama summarizer configuration
type SummarizeConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Model    string `yaml:"model"`
	Timeout  int    `yaml:"timeout"` // seconds
	MaxChars int    `yaml:"max_chars"`
}

// ExportConfig contains transcript artifact export configuration
type ExportConfig struct {
	OutputDir         string `yaml:"output_dir"`
	SaveTxt           bool   `yaml:"save_txt"`
	SaveJSON          bool   `yaml:"save_json"`
	SaveMarkdown      bool   `yaml:"save_md"`
	IncludeTimestamps bool   `yaml:"include_timestamps"`
}

// HistoryConfig contains the history store configuration
type HistoryConfig struct {
	DBPath string `yaml:"db_path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Dictation.Validate(); err != nil {
		return fmt.Errorf("dictation config: %w", err)
	}

	if err := c.validateProfiles(); err != nil {
		return fmt.Errorf("profiles config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Summarize.Validate(); err != nil {
		return fmt.Errorf("summarize config: %w", err)
	}

	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export config: %w", err)
	}

	if err := c.History.Validate(); err != nil {
		return fmt.Errorf("history config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max_concurrent_sessions must be at least 1, got %d", s.MaxConcurrentSessions)
	}

	if s.ReadBufferSize < 1024 {
		return fmt.Errorf("read_buffer_size must be at least 1024 bytes, got %d", s.ReadBufferSize)
	}

	if s.WriteBufferSize < 1024 {
		return fmt.Errorf("write_buffer_size must be at least 1024 bytes, got %d", s.WriteBufferSize)
	}

	if s.SessionTimeout < 1 {
		return fmt.Errorf("session_timeout must be at least 1 second, got %d", s.SessionTimeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz for the speech engine, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono) for the speech engine, got %d", a.Channels)
	}

	if a.MinBufferBytes < 0 {
		return fmt.Errorf("min_buffer_bytes cannot be negative, got %d", a.MinBufferBytes)
	}

	return nil
}

// Validate validates dictation loop configuration
func (d *DictationConfig) Validate() error {
	if d.CycleInterval <= 0 {
		return fmt.Errorf("cycle_interval must be positive, got %f", d.CycleInterval)
	}

	if d.TailWindow <= 0 {
		return fmt.Errorf("tail_window must be positive, got %f", d.TailWindow)
	}

	if d.OverlapWindowTokens < 1 {
		return fmt.Errorf("overlap_window_tokens must be at least 1, got %d", d.OverlapWindowTokens)
	}

	if d.MinOverlapTokens < 1 {
		return fmt.Errorf("min_overlap_tokens must be at least 1, got %d", d.MinOverlapTokens)
	}

	if d.MinOverlapTokens > d.OverlapWindowTokens {
		return fmt.Errorf("min_overlap_tokens (%d) cannot exceed overlap_window_tokens (%d)",
			d.MinOverlapTokens, d.OverlapWindowTokens)
	}

	if d.DecodeFailureThreshold < 1 {
		return fmt.Errorf("decode_failure_threshold must be at least 1, got %d", d.DecodeFailureThreshold)
	}

	if d.EngineFailureThreshold < 1 {
		return fmt.Errorf("engine_failure_threshold must be at least 1, got %d", d.EngineFailureThreshold)
	}

	if d.FinalCycleTimeout <= 0 {
		return fmt.Errorf("final_cycle_timeout must be positive, got %f", d.FinalCycleTimeout)
	}

	if d.DisconnectCycleTimeout <= 0 {
		return fmt.Errorf("disconnect_cycle_timeout must be positive, got %f", d.DisconnectCycleTimeout)
	}

	if d.SaveWaitTimeout <= 0 {
		return fmt.Errorf("save_wait_timeout must be positive, got %f", d.SaveWaitTimeout)
	}

	if d.DefaultProfile == "" {
		return fmt.Errorf("default_profile cannot be empty")
	}

	if d.DefaultLanguage == "" {
		return fmt.Errorf("default_language cannot be empty")
	}

	return nil
}

// validateProfiles validates the profile preset table
func (c *Config) validateProfiles() error {
	if len(c.Profiles) == 0 {
		return fmt.Errorf("at least one profile must be defined")
	}

	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		profile := c.Profiles[name]
		if profile.Model == "" {
			return fmt.Errorf("profile %q: model cannot be empty", name)
		}
		if profile.BeamSize < 1 {
			return fmt.Errorf("profile %q: beam_size must be at least 1, got %d", name, profile.BeamSize)
		}
	}

	if _, ok := c.Profiles[c.Dictation.DefaultProfile]; !ok {
		return fmt.Errorf("default_profile %q is not defined in profiles", c.Dictation.DefaultProfile)
	}

	return nil
}

// ResolveProfile returns the engine parameters for a profile name,
// falling back to the configured default for unknown or "auto" names.
func (c *Config) ResolveProfile(name string) (string, Profile) {
	if name == "" || name == "auto" {
		name = c.Dictation.DefaultProfile
	}
	if profile, ok := c.Profiles[name]; ok {
		return name, profile
	}
	return c.Dictation.DefaultProfile, c.Profiles[c.Dictation.DefaultProfile]
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates summarizer configuration
func (s *SummarizeConfig) Validate() error {
	if s.Enabled {
		if s.URL == "" {
			return fmt.Errorf("url cannot be empty when summarize is enabled")
		}

		if s.Model == "" {
			return fmt.Errorf("model cannot be empty when summarize is enabled")
		}
	}

	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	if s.MaxChars < 1000 {
		return fmt.Errorf("max_chars must be at least 1000, got %d", s.MaxChars)
	}

	return nil
}

// Validate validates export configuration
func (e *ExportConfig) Validate() error {
	if e.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}

	if !e.SaveTxt && !e.SaveJSON && !e.SaveMarkdown {
		return fmt.Errorf("at least one of save_txt, save_json, save_md must be enabled")
	}

	return nil
}

// Validate validates history configuration
func (h *HistoryConfig) Validate() error {
	if h.DBPath == "" {
		return fmt.Errorf("db_path cannot be empty")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetSessionTimeoutDuration returns the idle session timeout as a time.Duration
func (s *ServerConfig) GetSessionTimeoutDuration() time.Duration {
	return time.Duration(s.SessionTimeout) * time.Second
}

// GetCycleInterval returns the cycle interval as a time.Duration
func (d *DictationConfig) GetCycleInterval() time.Duration {
	return time.Duration(d.CycleInterval * float64(time.Second))
}

// GetTailWindow returns the tail decode window as a time.Duration
func (d *DictationConfig) GetTailWindow() time.Duration {
	return time.Duration(d.TailWindow * float64(time.Second))
}

// GetFinalCycleTimeout returns the stop-time final cycle bound as a time.Duration
func (d *DictationConfig) GetFinalCycleTimeout() time.Duration {
	return time.Duration(d.FinalCycleTimeout * float64(time.Second))
}

// GetDisconnectCycleTimeout returns the disconnect-time cycle bound as a time.Duration
func (d *DictationConfig) GetDisconnectCycleTimeout() time.Duration {
	return time.Duration(d.DisconnectCycleTimeout * float64(time.Second))
}

// GetSaveWaitTimeout returns the save-time cycle wait bound as a time.Duration
func (d *DictationConfig) GetSaveWaitTimeout() time.Duration {
	return time.Duration(d.SaveWaitTimeout * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the summarizer timeout as a time.Duration
func (s *SummarizeConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}
