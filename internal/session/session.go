// Package session keeps the signed-in user and access token of the terminal client.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/leadboard/internal/models"
	"github.com/rs/zerolog"
)

// ErrNoSession is returned when an operation needs a signed-in user
var ErrNoSession = errors.New("not logged in")

// Session is the persisted login state. Its absence means logged out.
type Session struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

// Store persists at most one session
type Store interface {
	// Load returns nil, nil when nothing is stored
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context) error
}

// Manager is the single accessor for the current session
type Manager struct {
	mu      sync.RWMutex
	store   Store
	current *Session
	log     zerolog.Logger
}

// NewManager creates a manager over store; call Init before use
func NewManager(store Store, log zerolog.Logger) *Manager {
	return &Manager{
		store: store,
		log:   log.With().Str("component", "session").Logger(),
	}
}

// Init loads the stored session, if any
func (m *Manager) Init(ctx context.Context) error {
	s, err := m.store.Load(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	if s != nil {
		m.log.Debug().Str("user_id", s.User.ID).Msg("Session restored")
	}
	return nil
}

// Current returns a copy of the session, or nil when logged out
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

// User returns the signed-in user, or nil
func (m *Manager) User() *models.User {
	if s := m.Current(); s != nil {
		return &s.User
	}
	return nil
}

// Token returns the access token, or "" when logged out
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.Token
}

// Begin stores a new session after a successful login
func (m *Manager) Begin(ctx context.Context, user models.User, token string) error {
	s := &Session{User: user, Token: token}
	if err := m.store.Save(ctx, s); err != nil {
		return err
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	m.log.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("Session started")
	return nil
}

// Teardown clears the session in memory and in storage
func (m *Manager) Teardown(ctx context.Context) error {
	m.mu.Lock()
	had := m.current != nil
	m.current = nil
	m.mu.Unlock()

	if err := m.store.Delete(ctx); err != nil {
		return err
	}
	if had {
		m.log.Info().Msg("Session cleared")
	}
	return nil
}
