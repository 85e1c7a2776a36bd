package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EddSaulys-senior/Transcribelite/internal/config"
	"github.com/EddSaulys-senior/Transcribelite/internal/metrics"
	"github.com/EddSaulys-senior/Transcribelite/internal/protocol"
	"github.com/EddSaulys-senior/Transcribelite/internal/session"
)

const (
	// maxFrameBytes bounds a single WebSocket frame; audio chunks are
	// expected in the tens of kilobytes.
	maxFrameBytes = 4 << 20

	writeTimeout = 10 * time.Second
)

// WSServer accepts dictation connections. Each connection gets exactly one
// session: binary frames feed its audio buffer, text frames carry JSON
// commands, and events flow back as JSON text frames.
type WSServer struct {
	server   *http.Server
	upgrader websocket.Upgrader
	manager  *session.Manager
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewWSServer creates the WebSocket server. Call Start to begin listening.
func NewWSServer(cfg config.ServerConfig, manager *session.Manager, logger *slog.Logger, m *metrics.Metrics) *WSServer {
	s := &WSServer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			// Desktop clients connect from arbitrary local origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		manager: manager,
		logger:  logger.With(slog.String("component", "ws_server")),
		metrics: m,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/dictation", s.handleWS)

	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		Handler:     mux,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *WSServer) Start() error {
	s.logger.Info("Starting WebSocket server", slog.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("WebSocket server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *WSServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping WebSocket server...")
	return s.server.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *WSServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *WSServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	sink := &connSink{conn: conn}
	sess, err := s.manager.CreateSession(sink)
	if err != nil {
		s.logger.Warn("Connection rejected",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()))
		sink.Send(protocol.NewErrorEvent(err.Error()))
		return
	}
	defer s.manager.RemoveSession(sess.ID)

	s.metrics.RecordConnectionAccepted()
	s.logger.Info("Client connected",
		slog.String("session_id", sess.ID),
		slog.String("remote", r.RemoteAddr))

	// Tell the client where it stands before any command arrives.
	sink.Send(protocol.NewStatusEvent(sess.State().String()))

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Connection closed unexpectedly",
					slog.String("session_id", sess.ID),
					slog.String("error", err.Error()))
			} else {
				s.logger.Info("Client disconnected", slog.String("session_id", sess.ID))
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			// The session drops chunks outside recording; nothing to do here.
			_ = sess.AppendAudio(data)
		case websocket.TextMessage:
			cmd, err := protocol.ParseCommand(data)
			if err != nil {
				s.metrics.RecordCommandError()
				s.logger.Warn("Bad command frame",
					slog.String("session_id", sess.ID),
					slog.String("error", err.Error()))
				sink.Send(protocol.NewErrorEvent(err.Error()))
				continue
			}
			sess.HandleCommand(cmd)
		default:
			s.logger.Debug("Ignoring WebSocket frame",
				slog.String("session_id", sess.ID),
				slog.Int("type", messageType))
		}
	}
}

// connSink serializes event writes onto a WebSocket connection. The session
// sends from its cycle goroutine and from command handlers concurrently;
// gorilla connections allow only one writer at a time.
type connSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *connSink) Send(event *protocol.Event) error {
	data, err := event.Marshal()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
