// Package auth implements username/password authentication against the
// user store and the in-memory bearer-session table.  The service holds
// no global state: one instance is constructed at startup and injected
// into the handlers, which keeps tests isolated.
package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amplmaint/mo-approval-api/internal/model"
	"github.com/amplmaint/mo-approval-api/internal/repository"
	"github.com/amplmaint/mo-approval-api/internal/utils"
)

// Authentication failures carry the exact messages the frontend shows.
// Unknown user and wrong password deliberately share one message so a
// caller cannot enumerate accounts.
var (
	ErrInvalidCredentials = errors.New("Invalid username or password")
	ErrAccountDisabled    = errors.New("User account is disabled")
	ErrWrongPassword      = errors.New("Current password is incorrect")
)

// Service validates credentials and owns the token -> session table.
type Service struct {
	users *repository.UserStore
	ttl   time.Duration // 0 disables expiry; sessions then live until logout
	now   func() time.Time
	log   *logrus.Entry

	mu       sync.RWMutex
	sessions map[string]model.Session
}

// NewService builds an authenticator over the given store.  A zero ttl
// reproduces the historical behavior of sessions living for the whole
// process lifetime.
func NewService(users *repository.UserStore, ttl time.Duration, log *logrus.Logger) *Service {
	return &Service{
		users:    users,
		ttl:      ttl,
		now:      time.Now,
		log:      log.WithField("component", "auth"),
		sessions: make(map[string]model.Session),
	}
}

// Authenticate checks the credentials and, on success, stamps
// lastLogin, mints an opaque bearer token and stores a denormalized
// snapshot of the account under it.
func (s *Service) Authenticate(userID, password string) (model.Session, error) {
	u, err := s.users.FindByUserID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.Session{}, ErrInvalidCredentials
		}
		return model.Session{}, err
	}
	if !u.Active {
		return model.Session{}, ErrAccountDisabled
	}
	ok, err := utils.VerifyPassword(u.PasswordHash, password)
	if err != nil {
		return model.Session{}, err
	}
	if !ok {
		return model.Session{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.users.TouchLastLogin(u.UserID, now); err != nil {
		return model.Session{}, err
	}

	token, err := utils.NewSessionToken()
	if err != nil {
		return model.Session{}, err
	}
	sess := model.Session{
		Token:     token,
		UserID:    u.UserID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		Plant:     u.Plant,
		LoginTime: now,
	}
	if s.ttl > 0 {
		exp := now.Add(s.ttl)
		sess.ExpiresAt = &exp
	}

	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()

	s.log.WithField("user", u.UserID).Info("user logged in")
	return sess, nil
}

// VerifyToken resolves a bearer token back to its session snapshot.
// It is a pure table lookup; the user store is not consulted again.
// Expired sessions (only possible when a TTL is configured) are removed
// on sight.
func (s *Service) VerifyToken(token string) (model.Session, bool) {
	if token == "" {
		return model.Session{}, false
	}
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return model.Session{}, false
	}
	if sess.ExpiresAt != nil && s.now().After(*sess.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return model.Session{}, false
	}
	return sess, true
}

// Logout removes the session.  Returns false when the token was not an
// active session to begin with.
func (s *Service) Logout(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return false
	}
	delete(s.sessions, token)
	s.log.WithField("user", sess.UserID).Info("user logged out")
	return true
}

// ChangePassword re-verifies the current password before storing the
// new hash.  Other active sessions for the account are intentionally
// left alone, matching the behavior the frontend was built against.
func (s *Service) ChangePassword(userID, oldPassword, newPassword string) error {
	u, err := s.users.FindByUserID(userID)
	if err != nil {
		return err
	}
	ok, err := utils.VerifyPassword(u.PasswordHash, oldPassword)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWrongPassword
	}
	if _, err := s.users.Update(userID, repository.UserUpdate{Password: &newPassword}); err != nil {
		return err
	}
	s.log.WithField("user", userID).Info("password changed")
	return nil
}

// AllUsers lists every account, hashes stripped.  Role enforcement is
// the boundary layer's job; this service only gates on Active during
// authentication.
func (s *Service) AllUsers() ([]model.UserView, error) {
	return s.users.ListAll()
}

// AddUser creates an account via the store.  Same note on role
// enforcement as AllUsers.
func (s *Service) AddUser(nu repository.NewUser) (model.UserView, error) {
	return s.users.Create(nu)
}

// ActiveSessions reports the current session count, for diagnostics.
func (s *Service) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
