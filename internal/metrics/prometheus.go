package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the dictation service
type Metrics struct {
	// WebSocket connection metrics
	ConnectionsAccepted prometheus.Counter
	ConnectionsRejected prometheus.Counter
	AudioChunksReceived prometheus.Counter
	AudioBytesReceived  prometheus.Counter
	CommandsReceived    *prometheus.CounterVec
	CommandErrors       prometheus.Counter

	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsDestroyed prometheus.Counter
	SessionDuration   prometheus.Histogram
	SessionErrors     prometheus.Counter

	// Dictation cycle metrics
	CyclesStarted  prometheus.Counter
	CyclesSkipped  prometheus.Counter
	CycleDuration  prometheus.Histogram
	CycleRTF       prometheus.Histogram
	MergeOutcomes  *prometheus.CounterVec
	DecodeFailures prometheus.Counter

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// Save/export metrics
	SavesCompleted prometheus.Counter
	SaveFailures   prometheus.Counter
	SaveDuration   prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// WebSocket connection metrics
		ConnectionsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_connections_accepted_total",
			Help: "Total number of WebSocket connections accepted",
		}),
		ConnectionsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_connections_rejected_total",
			Help: "Total number of WebSocket connections rejected",
		}),
		AudioChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_audio_chunks_received_total",
			Help: "Total number of binary audio chunks received",
		}),
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_audio_bytes_received_total",
			Help: "Total bytes of container audio received",
		}),
		CommandsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_commands_received_total",
			Help: "Total number of control commands received",
		}, []string{"command"}),
		CommandErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_command_errors_total",
			Help: "Total number of rejected or malformed commands",
		}),

		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dictation_active_sessions",
			Help: "Current number of active dictation sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsDestroyed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_sessions_destroyed_total",
			Help: "Total number of sessions destroyed",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_session_duration_seconds",
			Help:    "Duration of dictation sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),
		SessionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_session_errors_total",
			Help: "Total number of sessions that entered the error state",
		}),

		// Dictation cycle metrics
		CyclesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_cycles_started_total",
			Help: "Total number of decode/transcribe cycles started",
		}),
		CyclesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_cycles_skipped_total",
			Help: "Total number of ticks skipped because a cycle was in flight",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_cycle_duration_seconds",
			Help:    "Wall-clock duration of complete decode/transcribe/merge cycles",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		CycleRTF: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_cycle_rtf",
			Help:    "Real-time factor per cycle (processing time / audio duration)",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 0.05 to ~6.4
		}),
		MergeOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_merge_outcomes_total",
			Help: "Merge engine outcomes per cycle",
		}, []string{"outcome"}),
		DecodeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_decode_failures_total",
			Help: "Total number of failed decode attempts",
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// Save/export metrics
		SavesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_saves_completed_total",
			Help: "Total number of completed save/export operations",
		}),
		SaveFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dictation_save_failures_total",
			Help: "Total number of failed save/export operations",
		}),
		SaveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_save_duration_seconds",
			Help:    "Duration of save/export operations including summarization",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~3.4 minutes
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dictation_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordConnectionAccepted increments the accepted connections counter
func (m *Metrics) RecordConnectionAccepted() {
	m.ConnectionsAccepted.Inc()
}

// RecordConnectionRejected increments the rejected connections counter
func (m *Metrics) RecordConnectionRejected() {
	m.ConnectionsRejected.Inc()
}

// RecordAudioChunk records one received binary audio chunk
func (m *Metrics) RecordAudioChunk(sizeBytes int) {
	m.AudioChunksReceived.Inc()
	m.AudioBytesReceived.Add(float64(sizeBytes))
}

// RecordCommand records one received control command
func (m *Metrics) RecordCommand(command string) {
	m.CommandsReceived.WithLabelValues(command).Inc()
}

// RecordCommandError increments the command errors counter
func (m *Metrics) RecordCommandError() {
	m.CommandErrors.Inc()
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionDestroyed increments the sessions destroyed counter and records duration
func (m *Metrics) RecordSessionDestroyed(durationSeconds float64) {
	m.SessionsDestroyed.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionError increments the session errors counter
func (m *Metrics) RecordSessionError() {
	m.SessionErrors.Inc()
}

// RecordCycleStarted increments the cycles started counter
func (m *Metrics) RecordCycleStarted() {
	m.CyclesStarted.Inc()
}

// RecordCycleSkipped increments the skipped ticks counter
func (m *Metrics) RecordCycleSkipped() {
	m.CyclesSkipped.Inc()
}

// RecordCycleCompleted records one finished cycle
func (m *Metrics) RecordCycleCompleted(durationSeconds, rtf float64, outcome string) {
	m.CycleDuration.Observe(durationSeconds)
	if rtf > 0 {
		m.CycleRTF.Observe(rtf)
	}
	m.MergeOutcomes.WithLabelValues(outcome).Inc()
}

// RecordDecodeFailure increments the decode failures counter
func (m *Metrics) RecordDecodeFailure() {
	m.DecodeFailures.Inc()
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordSaveCompleted records a completed save operation
func (m *Metrics) RecordSaveCompleted(durationSeconds float64) {
	m.SavesCompleted.Inc()
	m.SaveDuration.Observe(durationSeconds)
}

// RecordSaveFailure increments the save failures counter
func (m *Metrics) RecordSaveFailure() {
	m.SaveFailures.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
