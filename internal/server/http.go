package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EddSaulys-senior/Transcribelite/internal/config"
	"github.com/EddSaulys-senior/Transcribelite/internal/history"
	"github.com/EddSaulys-senior/Transcribelite/internal/metrics"
	"github.com/EddSaulys-senior/Transcribelite/internal/session"
	"github.com/EddSaulys-senior/Transcribelite/internal/transcription"
)

const defaultHistoryLimit = 50

// HTTPServer provides the monitoring and history API.
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	sessionMgr *session.Manager
	trClient   *transcription.Client
	store      *history.Store
	metrics    *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the HTTP API server.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	sessionMgr *session.Manager, trClient *transcription.Client, store *history.Store, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:     logger.With(slog.String("component", "http_server")),
		config:     appConfig,
		sessionMgr: sessionMgr,
		trClient:   trClient,
		store:      store,
		metrics:    m,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return h
}

func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionDetail))

	mux.HandleFunc("/history/dictations", h.withMetrics("/history/dictations", h.handleHistory))
	mux.HandleFunc("/history/dictations/", h.withMetrics("/history/dictations/{id}", h.handleHistoryItem))

	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/stats/transcription", h.withMetrics("/stats/transcription", h.handleTranscriptionStats))

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with request metrics.
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		h.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server in a background goroutine.
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server", slog.String("address", h.server.Addr))

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Stop gracefully stops the HTTP server.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")
	return h.server.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	trStats := h.trClient.GetStats()
	historyCount, err := h.store.Count(r.Context())
	historyStatus := "running"
	if err != nil {
		historyStatus = "degraded"
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "transcribelite",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"session_manager": map[string]interface{}{
				"status":          "running",
				"active_sessions": h.sessionMgr.Count(),
			},
			"transcription": map[string]interface{}{
				"status":          "running",
				"total_requests":  trStats.TotalRequests,
				"success_rate":    trStats.SuccessRate,
				"active_requests": trStats.ActiveRequests,
			},
			"history": map[string]interface{}{
				"status":  historyStatus,
				"entries": historyCount,
			},
		},
	}

	writeJSON(w, health)
}

func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := h.sessionMgr.Infos()
	writeJSON(w, map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Path[len("/sessions/"):]
	if id == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	sess, exists := h.sessionMgr.GetSession(id)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, sess.Info())
}

func (h *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	var (
		entries []history.Entry
		err     error
	)
	if query := r.URL.Query().Get("q"); query != "" {
		entries, err = h.store.Search(r.Context(), query, limit)
	} else {
		entries, err = h.store.Recent(r.Context(), limit)
	}
	if err != nil {
		h.logger.Error("History lookup failed", slog.String("error", err.Error()))
		http.Error(w, "History lookup failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"total":     len(entries),
		"timestamp": time.Now().UTC(),
		"entries":   entries,
	})
}

func (h *HTTPServer) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw := r.URL.Path[len("/history/dictations/"):]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "Invalid dictation ID", http.StatusBadRequest)
		return
	}

	deleted, err := h.store.Delete(r.Context(), id)
	if err != nil {
		h.logger.Error("History delete failed", slog.String("error", err.Error()))
		http.Error(w, "History delete failed", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "Dictation not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{"deleted": id})
}

func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// API key is intentionally omitted.
	sanitized := map[string]interface{}{
		"server": map[string]interface{}{
			"port":                    h.config.Server.Port,
			"bind_address":            h.config.Server.BindAddress,
			"max_concurrent_sessions": h.config.Server.MaxConcurrentSessions,
		},
		"audio": map[string]interface{}{
			"sample_rate":      h.config.Audio.SampleRate,
			"channels":         h.config.Audio.Channels,
			"min_buffer_bytes": h.config.Audio.MinBufferBytes,
		},
		"dictation": map[string]interface{}{
			"cycle_interval":        h.config.Dictation.CycleInterval,
			"tail_window":           h.config.Dictation.TailWindow,
			"overlap_window_tokens": h.config.Dictation.OverlapWindowTokens,
			"min_overlap_tokens":    h.config.Dictation.MinOverlapTokens,
			"auto_save":             h.config.Dictation.AutoSave,
			"default_profile":       h.config.Dictation.DefaultProfile,
			"default_language":      h.config.Dictation.DefaultLanguage,
		},
		"transcription": map[string]interface{}{
			"endpoint":       h.config.Transcription.Endpoint,
			"timeout":        h.config.Transcription.Timeout,
			"max_retries":    h.config.Transcription.MaxRetries,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
		},
		"summarize": map[string]interface{}{
			"enabled": h.config.Summarize.Enabled,
			"model":   h.config.Summarize.Model,
		},
		"export": map[string]interface{}{
			"output_dir": h.config.Export.OutputDir,
			"save_txt":   h.config.Export.SaveTxt,
			"save_json":  h.config.Export.SaveJSON,
			"save_md":    h.config.Export.SaveMarkdown,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}
	writeJSON(w, sanitized)
}

func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	historyCount, _ := h.store.Count(r.Context())
	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]interface{}{
			"active_count": h.sessionMgr.Count(),
		},
		"transcription": h.trClient.GetStats(),
		"history": map[string]interface{}{
			"entries": historyCount,
		},
	}
	writeJSON(w, stats)
}

func (h *HTTPServer) handleTranscriptionStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, h.trClient.GetStats())
}

func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, map[string]interface{}{
		"service": "Transcribelite Dictation Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                           "API documentation",
			"GET /health":                     "Service health check",
			"GET /sessions":                   "List active dictation sessions",
			"GET /sessions/{id}":              "Get detailed session information",
			"GET /history/dictations":         "Recent dictations (q= to search, limit=)",
			"DELETE /history/dictations/{id}": "Remove a dictation from history",
			"GET /config":                     "Get service configuration",
			"GET /stats":                      "Get service statistics",
			"GET /stats/transcription":        "Get transcription statistics",
			"GET /metrics":                    "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
