package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EddSaulys-senior/Transcribelite/internal/config"
	"github.com/EddSaulys-senior/Transcribelite/internal/decode"
	"github.com/EddSaulys-senior/Transcribelite/internal/export"
	"github.com/EddSaulys-senior/Transcribelite/internal/history"
	"github.com/EddSaulys-senior/Transcribelite/internal/merge"
	"github.com/EddSaulys-senior/Transcribelite/internal/metrics"
	"github.com/EddSaulys-senior/Transcribelite/internal/server"
	"github.com/EddSaulys-senior/Transcribelite/internal/session"
	"github.com/EddSaulys-senior/Transcribelite/internal/summarize"
	"github.com/EddSaulys-senior/Transcribelite/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "transcribelite"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("max_concurrent_sessions", cfg.Server.MaxConcurrentSessions),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("cycle_interval", cfg.Dictation.CycleInterval),
		slog.Float64("tail_window", cfg.Dictation.TailWindow),
		slog.String("default_profile", cfg.Dictation.DefaultProfile),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.Bool("summarize_enabled", cfg.Summarize.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	trClient, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	decoder := decode.NewFFmpeg(decode.Config{
		FFmpegPath: cfg.Audio.FFmpegPath,
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		TailWindow: cfg.Dictation.GetTailWindow(),
	}, logger)

	merger := merge.NewEngine(merge.Config{
		OverlapWindow: cfg.Dictation.OverlapWindowTokens,
		MinOverlap:    cfg.Dictation.MinOverlapTokens,
	})

	summarizer := summarize.NewOllama(summarize.Config{
		Enabled:  cfg.Summarize.Enabled,
		URL:      cfg.Summarize.URL,
		Model:    cfg.Summarize.Model,
		Timeout:  cfg.Summarize.GetTimeoutDuration(),
		MaxChars: cfg.Summarize.MaxChars,
	}, logger)

	store, err := history.Open(cfg.History.DBPath, logger)
	if err != nil {
		logger.Error("Failed to open history store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	exporter := export.NewExporter(export.Config{
		OutputDir:    cfg.Export.OutputDir,
		SaveTxt:      cfg.Export.SaveTxt,
		SaveJSON:     cfg.Export.SaveJSON,
		SaveMarkdown: cfg.Export.SaveMarkdown,
	}, logger)

	sessionCfg := session.Config{
		CycleInterval:          cfg.Dictation.GetCycleInterval(),
		FinalCycleTimeout:      cfg.Dictation.GetFinalCycleTimeout(),
		DisconnectCycleTimeout: cfg.Dictation.GetDisconnectCycleTimeout(),
		SaveWaitTimeout:        cfg.Dictation.GetSaveWaitTimeout(),
		MinBufferBytes:         cfg.Audio.MinBufferBytes,
		SampleRate:             cfg.Audio.SampleRate,
		DecodeFailureThreshold: cfg.Dictation.DecodeFailureThreshold,
		EngineFailureThreshold: cfg.Dictation.EngineFailureThreshold,
		AutoSave:               cfg.Dictation.AutoSave,
		DefaultLanguage:        cfg.Dictation.DefaultLanguage,
		DefaultSummarize:       cfg.Dictation.DefaultSummarize,
		DefaultMimeType:        cfg.Audio.MimeType,
	}
	sessionMgr := session.NewManager(sessionCfg, session.Deps{
		Decoder:    decoder,
		Engine:     trClient,
		Merger:     merger,
		Exporter:   exporter,
		Summarizer: summarizer,
		History:    store,
		Resolve: func(name string) (string, string, int) {
			resolved, profile := cfg.ResolveProfile(name)
			return resolved, profile.Model, profile.BeamSize
		},
		Metrics: appMetrics,
		Logger:  logger,
	}, cfg.Server.MaxConcurrentSessions, cfg.Server.GetSessionTimeoutDuration())
	logger.Info("Session manager initialized",
		slog.Duration("session_timeout", cfg.Server.GetSessionTimeoutDuration()),
		slog.Duration("cycle_interval", cfg.Dictation.GetCycleInterval()),
	)

	wsServer := server.NewWSServer(cfg.Server, sessionMgr, logger, appMetrics)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, sessionMgr, trClient, store, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	if err := wsServer.Start(); err != nil {
		logger.Error("Failed to start WebSocket server", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("ws_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}
	if err := wsServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping WebSocket server", slog.String("error", err.Error()))
	}

	// Sessions run their final cycles here, so this comes after the servers
	// stopped accepting traffic.
	sessionMgr.Stop()

	if err := trClient.Close(); err != nil {
		logger.Error("Error closing transcription client", slog.String("error", err.Error()))
	}
	if err := store.Close(); err != nil {
		logger.Error("Error closing history store", slog.String("error", err.Error()))
	}

	trStats := trClient.GetStats()
	logger.Info("Final transcription statistics",
		slog.Uint64("total_requests", trStats.TotalRequests),
		slog.Uint64("success_requests", trStats.SuccessRequests),
		slog.Uint64("failed_requests", trStats.FailedRequests),
		slog.Float64("success_rate", trStats.SuccessRate),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
