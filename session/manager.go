package session

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Manager tracks every connected client's Session by session_id. It is
// the server-side registry the RTSP connection handler consults on
// every request after SETUP has allocated an id.
type Manager struct {
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[uint32]*Session
}

// NewManager constructs an empty session registry.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger:   logger,
		sessions: make(map[uint32]*Session),
	}
}

// Create allocates a new session_id and registers a fresh INIT-state
// Session under it.
func (m *Manager) Create() (*Session, error) {
	id, err := NewSessionID()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		if _, exists := m.sessions[id]; !exists {
			break
		}
		id, err = NewSessionID()
		if err != nil {
			return nil, err
		}
	}

	sess := NewSession(id, m.logger)
	m.sessions[id] = sess

	m.logger.Info("session created", zap.Uint32("session_id", id), zap.Int("active_sessions", len(m.sessions)))

	return sess, nil
}

// Get looks up a session by id.
func (m *Manager) Get(id uint32) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Remove tears down and forgets a session. It is safe to call even if
// Teardown was already invoked on the session directly.
func (m *Manager) Remove(id uint32) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session: %d not found", id)
	}

	return sess.Teardown()
}

// Count returns the number of currently registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sessions returns a snapshot slice of all registered sessions, used by
// the dashboard to report live stats.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}
