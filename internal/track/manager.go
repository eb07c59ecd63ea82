package track

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownSession is returned for signals referencing a session that
// does not exist or was already closed.
var ErrUnknownSession = errors.New("track: unknown session")

// Manager owns the live tracker sessions behind the HTTP surface. Each
// browsing session gets a server-assigned ID on its first navigate.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session

	sink        Sink
	minVisit    time.Duration
	idleTimeout time.Duration
	now         func() time.Time
}

type session struct {
	tracker  *Tracker
	lastSeen time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerClock injects a clock, for tests.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager returns an empty session registry.
func NewManager(sink Sink, minVisit, idleTimeout time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions:    make(map[string]*session),
		sink:        sink,
		minVisit:    minVisit,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Navigate advances a session to a new page, creating the session when the
// ID is empty or unknown. It returns the session ID the client should echo
// on subsequent signals. An empty visitorID gets a fallback token; the
// fingerprint is best-effort by design.
func (m *Manager) Navigate(sessionID, visitorID, path, referrer, clientIP string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		s.tracker.OnNavigate(path)
		s.lastSeen = m.now()
		return sessionID
	}

	if visitorID == "" {
		visitorID = "fallback_" + uuid.NewString()
	}
	id := uuid.NewString()
	m.sessions[id] = &session{
		tracker: New(visitorID, path, referrer, clientIP, m.sink,
			WithClock(m.now), WithMinVisit(m.minVisit)),
		lastSeen: m.now(),
	}
	return id
}

// Visibility pauses or resumes a session's clock.
func (m *Manager) Visibility(sessionID string, hidden bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	if hidden {
		s.tracker.Pause()
	} else {
		s.tracker.Resume()
	}
	s.lastSeen = m.now()
	return nil
}

// Close flushes and removes a session. Closing an unknown session is not
// an error: unload handlers fire more than once.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		s.tracker.Close()
		delete(m.sessions, sessionID)
	}
}

// SweepIdle finalizes sessions that stopped signalling, standing in for
// the unload event the browser never delivered. Returns the number of
// sessions closed.
func (m *Manager) SweepIdle() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	closed := 0
	cutoff := m.now().Add(-m.idleTimeout)
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			s.tracker.Close()
			delete(m.sessions, id)
			closed++
		}
	}
	if closed > 0 {
		log.Printf("tracker sweep closed %d idle session(s)", closed)
	}
	return closed
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
