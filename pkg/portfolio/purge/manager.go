package purge

import (
	"errors"
	"sync"
	"time"

	"github.com/tendant/portfolio-content/pkg/portfolio"
)

// DefaultIdleTimeout is how long an unused session's protocol is kept.
const DefaultIdleTimeout = 12 * time.Hour

// Factory builds a fresh protocol for a session.
type Factory func() (*Protocol, error)

type managed struct {
	p        *Protocol
	lastUsed time.Time
	dropped  bool
}

// Manager keeps one protocol per admin session. There is no locking across
// sessions: two sessions may run deletions at the same time.
//
// Protocols unused for longer than the idle timeout, and protocols dropped
// while executing, are swept on the next For once they are not executing.
type Manager struct {
	mu        sync.Mutex
	factory   Factory
	protocols map[string]*managed
	idle      time.Duration
	now       func() time.Time
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithIdleTimeout sets how long an unused protocol is kept. Use the session
// token lifetime so protocols of expired sessions are released.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.idle = d
		}
	}
}

// WithManagerClock sets the time source for idle tracking
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager building protocols with factory.
func NewManager(factory Factory, opts ...ManagerOption) *Manager {
	m := &Manager{
		factory:   factory,
		protocols: make(map[string]*managed),
		idle:      DefaultIdleTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// For returns the protocol of session, creating it on first use.
func (m *Manager) For(session *portfolio.Session) (*Protocol, error) {
	if session == nil || session.ID == "" {
		return nil, portfolio.ErrNotAuthenticated
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepLocked(now, session.ID)

	if e, ok := m.protocols[session.ID]; ok && !e.dropped {
		e.lastUsed = now
		return e.p, nil
	}
	if m.factory == nil {
		return nil, errors.New("protocol factory is not configured")
	}
	p, err := m.factory()
	if err != nil {
		return nil, err
	}
	m.protocols[session.ID] = &managed{p: p, lastUsed: now}
	return p, nil
}

// sweepLocked forgets idle and dropped protocols that are not executing.
// The protocol of keep is only swept when it was dropped.
func (m *Manager) sweepLocked(now time.Time, keep string) {
	for id, e := range m.protocols {
		expired := e.dropped || (id != keep && now.Sub(e.lastUsed) > m.idle)
		if expired && e.p.State() != StateExecuting {
			delete(m.protocols, id)
		}
	}
}

// Drop forgets the protocol of a session, for example on logout. A run that
// is executing is marked and swept once it finishes.
func (m *Manager) Drop(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.protocols[sessionID]
	if !ok || e.dropped {
		return false
	}
	if e.p.State() == StateExecuting {
		e.dropped = true
		return false
	}
	delete(m.protocols, sessionID)
	return true
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.protocols)
}
