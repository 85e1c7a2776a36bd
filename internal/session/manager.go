package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EddSaulys-senior/Transcribelite/internal/metrics"
)

const cleanupInterval = 30 * time.Second

// Manager tracks every live session, enforces the concurrency cap and
// reaps sessions whose connections went quiet without a clean close.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	cfg         Config
	deps        Deps
	maxSessions int
	timeout     time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics

	stopOnce sync.Once
	stopCh   chan struct{}
	cleanup  chan struct{}
}

// NewManager creates a manager and starts its cleanup routine.
func NewManager(cfg Config, deps Deps, maxSessions int, timeout time.Duration) *Manager {
	m := &Manager{
		sessions:    make(map[string]*Session),
		cfg:         cfg,
		deps:        deps,
		maxSessions: maxSessions,
		timeout:     timeout,
		logger:      deps.Logger.With(slog.String("component", "session_manager")),
		metrics:     deps.Metrics,
		stopCh:      make(chan struct{}),
		cleanup:     make(chan struct{}),
	}
	go m.cleanupRoutine()
	return m
}

// CreateSession registers a new session for a connection. It fails when the
// configured session cap is reached.
func (m *Manager) CreateSession(sink EventSink) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.metrics.RecordConnectionRejected()
		return nil, fmt.Errorf("session limit reached (%d)", m.maxSessions)
	}

	id := uuid.NewString()
	sess := New(id, m.cfg, m.deps, sink)
	m.sessions[id] = sess

	m.metrics.RecordSessionCreated()
	m.metrics.SetActiveSessions(len(m.sessions))
	m.logger.Info("Session created",
		slog.String("session_id", id),
		slog.Int("active_sessions", len(m.sessions)))
	return sess, nil
}

// GetSession looks up a session by ID.
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// RemoveSession closes a session and releases its slot. It returns false
// when the ID is unknown.
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	active := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return false
	}

	sess.Close()
	m.metrics.RecordSessionDestroyed(time.Since(sess.CreatedAt).Seconds())
	m.metrics.SetActiveSessions(active)
	m.logger.Info("Session removed",
		slog.String("session_id", id),
		slog.Int("active_sessions", active))
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Infos snapshots every live session for the monitoring API.
func (m *Manager) Infos() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}
	return infos
}

func (m *Manager) cleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.reapStale()
		}
	}
}

func (m *Manager) reapStale() {
	if m.timeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-m.timeout)

	m.mu.RLock()
	var stale []string
	for id, sess := range m.sessions {
		if sess.LastActivity().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.logger.Warn("Reaping stale session",
			slog.String("session_id", id),
			slog.Duration("timeout", m.timeout))
		m.RemoveSession(id)
	}
}

// Stop closes every session and halts the cleanup routine. It is safe to
// call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		<-m.cleanup

		m.mu.Lock()
		sessions := m.sessions
		m.sessions = make(map[string]*Session)
		m.mu.Unlock()

		for id, sess := range sessions {
			sess.Close()
			m.logger.Debug("Session closed on shutdown", slog.String("session_id", id))
		}
		m.metrics.SetActiveSessions(0)
		m.logger.Info("Session manager stopped", slog.Int("closed_sessions", len(sessions)))
	})
}
