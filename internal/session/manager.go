package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/livecode/internal/errors"
	"github.com/conneroisu/livecode/internal/lesson"
	"github.com/conneroisu/livecode/internal/logging"
)

// Manager tracks the open sessions.
type Manager struct {
	opts     Options
	logger   logging.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions use opts.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		opts:     opts,
		logger:   logger.WithComponent("sessions"),
		sessions: make(map[string]*Session),
	}
}

// Create opens a session on mod.
func (m *Manager) Create(ctx context.Context, mod *lesson.Module) (*Session, error) {
	s, err := New(uuid.NewString(), mod, m.opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.report(n)
	m.logger.Debug(ctx, "session created", "session", s.ID(), "lesson", mod.Name)
	return s, nil
}

// Get returns the open session id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.ErrSessionNotFound(id)
	}
	return s, nil
}

// Remove closes and forgets session id.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if ok {
		s.Close()
		m.report(n)
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs lists open session ids, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NotifyReload tells every session of lesson name that it changed.
func (m *Manager) NotifyReload(name string) {
	m.mu.RLock()
	var targets []*Session
	for _, s := range m.sessions {
		if s.Lesson() == name {
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range targets {
		s.NotifyReload()
	}
}

// Reap closes sessions without clients that have been idle longer than the
// idle timeout. It returns the number of sessions closed.
func (m *Manager) Reap(now time.Time) int {
	if m.opts.IdleTimeout <= 0 {
		return 0
	}

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.Closed() || (s.Clients() == 0 && s.IdleSince(now) > m.opts.IdleTimeout) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		m.report(n)
		m.logger.Info(context.Background(), "reaped idle sessions", "closed", len(stale), "open", n)
	}
	return len(stale)
}

// Run reaps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Reap(now)
		}
	}
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	m.report(0)
}

func (m *Manager) report(n int) {
	if m.opts.Metrics != nil {
		m.opts.Metrics.SetActiveSessions(n)
	}
}
