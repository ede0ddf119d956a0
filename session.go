package secure

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionPolicy selects when a zone creates or reuses sessions.
type SessionPolicy string

const (
	// PolicyAlways guarantees a session exists for every request.
	PolicyAlways SessionPolicy = "always"
	// PolicyIfRequired (the default) creates a session only when something
	// needs to write into it: a login, a CSRF token.
	PolicyIfRequired SessionPolicy = "if_required"
	// PolicyNever reuses an existing session but never issues a new one.
	PolicyNever SessionPolicy = "never"
	// PolicyStateless never reads or creates sessions; every request carries
	// its own authentication proof.
	PolicyStateless SessionPolicy = "stateless"
)

// IsValid checks the policy is one of the four defined values.
func (p SessionPolicy) IsValid() bool {
	switch p {
	case PolicyAlways, PolicyIfRequired, PolicyNever, PolicyStateless:
		return true
	default:
		return false
	}
}

// AllowsCreation reports whether the policy permits issuing new sessions.
func (p SessionPolicy) AllowsCreation() bool {
	return p == PolicyAlways || p == PolicyIfRequired
}

// UsesSessions reports whether the policy reads existing sessions at all.
func (p SessionPolicy) UsesSessions() bool {
	return p != PolicyStateless
}

// DefaultSessionMaxIdle is the idle timeout applied when the manager is not
// configured with one.
const DefaultSessionMaxIdle = 30 * time.Minute

// Session is one server-side session table entry. The principal reference is
// nil while the session is anonymous (e.g. it only carries a CSRF token).
type Session struct {
	id        string
	createdAt time.Time
	maxIdle   time.Duration

	mu           sync.Mutex
	lastAccessed time.Time
	principal    *Principal
	csrfToken    string
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Session) LastAccessedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessed
}

func (s *Session) Principal() *Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

func (s *Session) SetPrincipal(p *Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = p
}

// CSRFToken returns the anti-forgery token bound to this session, empty if
// none was issued yet.
func (s *Session) CSRFToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrfToken
}

func (s *Session) SetCSRFToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.csrfToken = token
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccessed = now
}

func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxIdle > 0 && now.Sub(s.lastAccessed) > s.maxIdle
}

// Manager owns the active session table: a concurrent map keyed by session
// identifier. Creation happens inside one critical section, expiry is lazy
// (idle sessions are treated as absent on next access; there is no background
// sweeper and therefore no second concurrency domain).
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	maxIdle  time.Duration
	logger   Logger
	now      func() time.Time
}

// NewManager returns a session manager with the default idle timeout.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		maxIdle:  DefaultSessionMaxIdle,
		logger:   defLogger{},
		now:      time.Now,
	}
}

func (m *Manager) WithLogger(l Logger) *Manager {
	if l != nil {
		m.logger = l
	}
	return m
}

// WithMaxIdle overrides the idle timeout applied to new sessions.
func (m *Manager) WithMaxIdle(d time.Duration) *Manager {
	if d > 0 {
		m.maxIdle = d
	}
	return m
}

// WithClock injects a custom clock (useful for tests).
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	if clock != nil {
		m.now = clock
	}
	return m
}

// Resolve looks up a session by identifier, applying lazy expiry: a session
// idle past its max-idle duration is dropped and reported as absent. Live
// sessions get their last-access timestamp updated.
func (m *Manager) Resolve(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}

	now := m.now()
	if s.expired(now) {
		delete(m.sessions, id)
		m.logger.Debug("session expired lazily", "session_id", id)
		return nil, false
	}

	s.touch(now)
	return s, true
}

// Create issues a fresh anonymous session. The check-then-insert runs under
// the table lock so two concurrent requests can never race the same id.
func (m *Manager) Create() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked()
}

func (m *Manager) createLocked() *Session {
	now := m.now()
	s := &Session{
		id:           uuid.NewString(),
		createdAt:    now,
		lastAccessed: now,
		maxIdle:      m.maxIdle,
	}
	m.sessions[s.id] = s
	return s
}

// Ensure resolves the session for id, creating one when absent and the policy
// allows it. Under PolicyNever an absent session stays absent; under
// PolicyStateless calling Ensure is a configuration error.
func (m *Manager) Ensure(policy SessionPolicy, id string) (*Session, error) {
	if policy == PolicyStateless {
		return nil, ErrStatelessSession
	}

	if s, ok := m.Resolve(id); ok {
		return s, nil
	}

	if !policy.AllowsCreation() {
		return nil, nil
	}

	return m.Create(), nil
}

// Migrate moves a session to a fresh identifier, carrying the principal over.
// Used on login to defeat session fixation; the CSRF token is deliberately
// not carried, callers rotate it.
func (m *Manager) Migrate(old *Session) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := m.createLocked()
	if old != nil {
		delete(m.sessions, old.id)
		fresh.SetPrincipal(old.Principal())
	}
	return fresh
}

// Invalidate destroys a session. Destroying an absent session is a no-op.
func (m *Manager) Invalidate(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len reports the number of live entries (expired-but-unswept included).
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
