package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedant-vijay/community-platform/internal/domain"
	"github.com/vedant-vijay/community-platform/internal/identity"
)

// CookieName is the cookie that carries the session id.
const CookieName = "session_id"

var (
	// ErrNoSession is returned when a session id is unknown, expired or
	// signed out.
	ErrNoSession = errors.New("no session")

	ErrNameRequired = errors.New("name is required")
)

// Session is a signed-in user. Only ID leaves the server, as a cookie.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Store persists sessions.
type Store interface {
	Save(ctx context.Context, s Session, ttl time.Duration) error

	// Load returns ErrNoSession if the id is unknown.
	Load(ctx context.Context, id string) (Session, error)

	Delete(ctx context.Context, id string) error
}

// Identity is the external identity service.
type Identity interface {
	SignUp(ctx context.Context, email, password string) (identity.Tokens, error)
	SignIn(ctx context.Context, email, password string) (identity.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (identity.Tokens, error)
}

// Users reads and writes user profile records.
type Users interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	SaveUser(ctx context.Context, u domain.User) error
}

// Listener is called when a session changes. s is nil after sign out.
type Listener func(s *Session)

// Manager is the process-wide session context. It signs users in and out,
// keeps id tokens fresh and tells subscribers when a session changes.
type Manager struct {
	store    Store
	identity Identity
	users    Users
	logger   *slog.Logger

	ttl           time.Duration
	refreshWindow time.Duration
	now           func() time.Time

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]Listener
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets how long an idle session is kept. Default 7 days.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithRefreshWindow sets how close to expiry an id token is refreshed.
// Default 5 minutes.
func WithRefreshWindow(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshWindow = d
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager.
func NewManager(store Store, idp Identity, users Users, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		identity:      idp,
		users:         users,
		logger:        logger,
		ttl:           7 * 24 * time.Hour,
		refreshWindow: 5 * time.Minute,
		now:           time.Now,
		subs:          make(map[string]map[int]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SignUp registers an account with the identity service, writes the user
// profile record and starts a session.
func (m *Manager) SignUp(ctx context.Context, name, email, password string) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, ErrNameRequired
	}
	email = strings.TrimSpace(email)

	tokens, err := m.identity.SignUp(ctx, email, password)
	if err != nil {
		return Session{}, fmt.Errorf("sign up: %w", err)
	}

	err = m.users.SaveUser(ctx, domain.User{
		ID:    tokens.UserID,
		Name:  name,
		Email: email,
	})
	if err != nil {
		m.logger.Error("account created without profile", "userId", tokens.UserID, "error", err)
		return Session{}, fmt.Errorf("create profile: %w", err)
	}

	return m.start(ctx, tokens, name)
}

// SignIn authenticates with the identity service and starts a session. The
// display name comes from the user's profile record.
func (m *Manager) SignIn(ctx context.Context, email, password string) (Session, error) {
	tokens, err := m.identity.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return Session{}, fmt.Errorf("sign in: %w", err)
	}

	var name string
	u, err := m.users.GetUser(ctx, tokens.UserID)
	switch {
	case err == nil:
		name = u.Name
	case errors.Is(err, domain.ErrUserNotFound):
		m.logger.Warn("signed in user has no profile", "userId", tokens.UserID)
	default:
		m.logger.Warn("failed to load profile at sign in", "userId", tokens.UserID, "error", err)
	}

	return m.start(ctx, tokens, name)
}

func (m *Manager) start(ctx context.Context, tokens identity.Tokens, name string) (Session, error) {
	s := Session{
		ID:           uuid.NewString(),
		UserID:       tokens.UserID,
		Email:        tokens.Email,
		Name:         name,
		IDToken:      tokens.IDToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	}
	if err := m.store.Save(ctx, s, m.ttl); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}

	m.logger.Info("session started", "userId", s.UserID)
	return s, nil
}

// SignOut ends a session. Subscribers are notified with nil.
func (m *Manager) SignOut(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.notify(id, nil)
	return nil
}

// Current returns the session for id, refreshing the id token when it is
// close to expiry. A session whose token has expired and cannot be refreshed
// is ended.
func (m *Manager) Current(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrNoSession
	}

	s, err := m.store.Load(ctx, id)
	if err != nil {
		return Session{}, err
	}

	now := m.now()
	if s.ExpiresAt.IsZero() || now.Add(m.refreshWindow).Before(s.ExpiresAt) {
		return s, nil
	}

	tokens, err := m.identity.Refresh(ctx, s.RefreshToken)
	if err != nil {
		if now.Before(s.ExpiresAt) {
			m.logger.Warn("token refresh failed, keeping current token", "userId", s.UserID, "error", err)
			return s, nil
		}
		m.logger.Warn("token refresh failed, ending session", "userId", s.UserID, "error", err)
		if err := m.SignOut(ctx, id); err != nil {
			m.logger.Error("failed to end session", "error", err)
		}
		return Session{}, ErrNoSession
	}

	s.IDToken = tokens.IDToken
	s.ExpiresAt = tokens.ExpiresAt
	if tokens.RefreshToken != "" {
		s.RefreshToken = tokens.RefreshToken
	}
	if err := m.store.Save(ctx, s, m.ttl); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}

	m.logger.Debug("session token refreshed", "userId", s.UserID)
	m.notify(id, &s)
	return s, nil
}

// Subscribe registers fn for changes to session id. The returned function
// unsubscribes; it is safe to call more than once.
func (m *Manager) Subscribe(id string, fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.nextID
	m.nextID++
	if m.subs[id] == nil {
		m.subs[id] = make(map[int]Listener)
	}
	m.subs[id][key] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[id], key)
		if len(m.subs[id]) == 0 {
			delete(m.subs, id)
		}
	}
}

func (m *Manager) notify(id string, s *Session) {
	m.mu.Lock()
	listeners := make([]Listener, 0, len(m.subs[id]))
	for _, fn := range m.subs[id] {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}
