package call

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Manager keeps at most one live session per interview for a client.
type Manager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[uuid.UUID]*Session)}
}

// Open returns a new session for cfg.InterviewID. A previous session for the
// same interview is replaced only once it is no longer active.
func (m *Manager) Open(cfg Config) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.sessions[cfg.InterviewID]; ok && prev.State().Active() {
		return nil, ErrBusy
	}
	s := NewSession(cfg)
	m.sessions[cfg.InterviewID] = s
	return s, nil
}

// EndAll ends every session, e.g. when the client shuts down.
func (m *Manager) EndAll(ctx context.Context, reason EndReason) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.End(ctx, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
