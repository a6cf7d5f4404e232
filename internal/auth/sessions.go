package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SessionTTL is the sliding lifetime of a controller session.
const SessionTTL = 24 * time.Hour

const sessionTokenBytes = 32

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
)

type Config struct {
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password_hash"`
}

type Session struct {
	Token   string
	Owner   string
	Expires time.Time
}

// SessionStore checks the single controller credential and tracks the
// resulting sessions. Sessions live only in memory.
type SessionStore struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	username     string
	passwordHash string
	ttl          time.Duration
	now          func() time.Time
}

// NewSessionStore builds a store for the configured credential. A bcrypt
// password_hash wins over a plaintext password, which is hashed once here.
func NewSessionStore(cfg Config) (*SessionStore, error) {
	if cfg.Username == "" {
		return nil, fmt.Errorf("controller username is required")
	}

	hash := cfg.PasswordHash
	if hash == "" {
		if cfg.Password == "" {
			return nil, fmt.Errorf("controller password or password_hash is required")
		}
		var err error
		hash, err = HashPassword(cfg.Password)
		if err != nil {
			return nil, err
		}
	}

	return &SessionStore{
		sessions:     make(map[string]*Session),
		username:     cfg.Username,
		passwordHash: hash,
		ttl:          SessionTTL,
		now:          time.Now,
	}, nil
}

func (s *SessionStore) Login(username, password string) (Session, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passOK := CheckPassword(password, s.passwordHash)
	if !userOK || !passOK {
		slog.Warn("Controller login rejected", "username", username)
		return Session{}, ErrInvalidCredentials
	}

	token, err := newSessionToken()
	if err != nil {
		return Session{}, err
	}

	session := &Session{
		Token:   token,
		Owner:   username,
		Expires: s.now().Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[token] = session
	s.mu.Unlock()

	slog.Info("Controller session created", "owner", username, "expires", session.Expires)
	return *session, nil
}

// Validate returns the session for token and slides its expiry forward.
func (s *SessionStore) Validate(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return Session{}, ErrSessionNotFound
	}

	now := s.now()
	if now.After(session.Expires) {
		delete(s.sessions, token)
		return Session{}, ErrSessionExpired
	}

	session.Expires = now.Add(s.ttl)
	return *session, nil
}

func (s *SessionStore) Logout(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[token]; !ok {
		return false
	}
	delete(s.sessions, token)
	return true
}

// Sweep drops every session that expired before now and returns how many went.
func (s *SessionStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, session := range s.sessions {
		if now.After(session.Expires) {
			delete(s.sessions, token)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("Removed expired controller sessions", "removed", removed)
	}
	return removed
}

func (s *SessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func newSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
