// Package session tracks authenticated identities by opaque token.
//
// A Manager replaces a single global "current user" slot: every login mints an
// independent token, so any number of users (or several logins of the same user)
// can be active at once. Single-seat mode restores the one-session-at-a-time
// behaviour for deployments that expect it.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned for unknown, revoked or expired tokens.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSeatTaken is returned by Login in single-seat mode while a session is active.
	ErrSeatTaken = errors.New("another session is active")
)

// Session binds a token to an authenticated user.
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time

	// ExpiresAt is zero when the session never expires
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Config configures a Manager.
type Config struct {
	// TTL bounds the lifetime of a session. Zero disables expiry.
	TTL time.Duration

	// SingleSeat rejects logins while any session is active.
	SingleSeat bool
}

// Manager is a concurrency-safe in-memory session table.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	sessions map[string]*Session
	now      func() time.Time
}

// NewManager creates an empty session manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Login opens a new session for userID.
// Credentials must have been verified by the caller.
func (m *Manager) Login(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.expireLocked(now)

	if m.cfg.SingleSeat && len(m.sessions) > 0 {
		return nil, ErrSeatTaken
	}

	s := &Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
	}
	if m.cfg.TTL > 0 {
		s.ExpiresAt = now.Add(m.cfg.TTL)
	}
	m.sessions[s.Token] = s

	c := *s
	return &c, nil
}

// Resolve returns the session bound to token.
// Returns ErrSessionNotFound for empty, unknown or expired tokens.
func (m *Manager) Resolve(token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Expired(m.now()) {
		delete(m.sessions, token)
		return nil, ErrSessionNotFound
	}

	c := *s
	return &c, nil
}

// Revoke ends the session bound to token.
// Returns ErrSessionNotFound if the token is not active.
func (m *Manager) Revoke(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, token)
	if s.Expired(m.now()) {
		return ErrSessionNotFound
	}
	return nil
}

// RevokeUser ends every session of userID and returns how many were removed.
func (m *Manager) RevokeUser(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for token, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, token)
			n++
		}
	}
	return n
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked(m.now())
	return len(m.sessions)
}

func (m *Manager) expireLocked(now time.Time) {
	if m.cfg.TTL <= 0 {
		return
	}
	for token, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, token)
		}
	}
}
