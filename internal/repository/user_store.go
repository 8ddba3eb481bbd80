package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amplmaint/mo-approval-api/internal/model"
	"github.com/amplmaint/mo-approval-api/internal/utils"
)

// Default credentials seeded on first run.  The admin is expected to
// change the password immediately after the first login.
const (
	defaultAdminID       = "admin"
	defaultAdminPassword = "admin123"
)

// UserStore persists the user collection as a single JSON document.
// Every mutation is read-entire, mutate-in-memory, write-entire, and the
// collection-level lastUpdated stamp is refreshed on each write.  All
// mutations run under a store-level mutex so concurrent handlers cannot
// race on the file.
type UserStore struct {
	path       string
	bcryptCost int
	log        *logrus.Entry

	mu sync.Mutex
}

// NewUserStore builds a store over the collection file at path.  The
// file is not touched until EnsureInitialized or the first operation.
func NewUserStore(path string, bcryptCost int, log *logrus.Logger) *UserStore {
	return &UserStore{
		path:       path,
		bcryptCost: bcryptCost,
		log:        log.WithField("component", "user_store"),
	}
}

// EnsureInitialized creates the collection file on first run, seeded
// with a single default admin account.  Calling it again is a no-op, so
// a restart never produces a second admin.  The parent directory is
// created if absent.
func (s *UserStore) EnsureInitialized() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat users file: %w", err)
	}

	hash, err := utils.HashPassword(defaultAdminPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	col := model.UserCollection{
		Users: []model.UserAccount{{
			UserID:       defaultAdminID,
			PasswordHash: hash,
			Name:         "Administrator",
			Email:        "admin@ampl.in",
			Role:         model.RoleAdmin,
			Plant:        model.PlantAll,
			Active:       true,
			CreatedAt:    time.Now().UTC(),
		}},
	}
	if err := s.writeLocked(&col); err != nil {
		return err
	}
	s.log.WithField("user", defaultAdminID).Info("created users file with default admin user")
	return nil
}

// FindByUserID returns the full account record, hash included.  Only
// the auth service should see the returned value.
func (s *UserStore) FindByUserID(userID string) (model.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.readLocked()
	if err != nil {
		return model.UserAccount{}, err
	}
	for _, u := range col.Users {
		if u.UserID == userID {
			return u, nil
		}
	}
	return model.UserAccount{}, ErrUserNotFound
}

// ListAll returns every account in insertion order with the password
// hash stripped.
func (s *UserStore) ListAll() ([]model.UserView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	out := make([]model.UserView, 0, len(col.Users))
	for _, u := range col.Users {
		out = append(out, u.View())
	}
	return out, nil
}

// NewUser carries the caller-supplied fields for Create.  An empty
// Role falls back to "user".  Plant is a pointer so callers can
// distinguish "unspecified" (nil, falls back to "ALL") from an
// explicitly empty plant, which the public register endpoint sends.
type NewUser struct {
	UserID   string
	Password string
	Name     string
	Email    string
	Role     string
	Plant    *string
}

// Create appends a new account.  The plaintext password is hashed
// before anything is persisted, and the userId must be unique.
func (s *UserStore) Create(nu NewUser) (model.UserView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.readLocked()
	if err != nil {
		return model.UserView{}, err
	}
	for _, u := range col.Users {
		if u.UserID == nu.UserID {
			return model.UserView{}, ErrDuplicateUser
		}
	}

	hash, err := utils.HashPassword(nu.Password, s.bcryptCost)
	if err != nil {
		return model.UserView{}, err
	}
	role := nu.Role
	if role == "" {
		role = model.RoleUser
	}
	plant := model.PlantAll
	if nu.Plant != nil {
		plant = *nu.Plant
	}
	acc := model.UserAccount{
		UserID:       nu.UserID,
		PasswordHash: hash,
		Name:         nu.Name,
		Email:        nu.Email,
		Role:         role,
		Plant:        plant,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	col.Users = append(col.Users, acc)
	if err := s.writeLocked(col); err != nil {
		return model.UserView{}, err
	}
	s.log.WithField("user", acc.UserID).Info("user created")
	return acc.View(), nil
}

// UserUpdate lists the fields Update may change.  Nil pointers leave
// the stored value untouched (shallow merge); a non-nil Password is
// hashed before the merge.
type UserUpdate struct {
	Password *string
	Name     *string
	Email    *string
	Role     *string
	Plant    *string
	Active   *bool
}

// Update applies a shallow merge onto an existing account.
func (s *UserStore) Update(userID string, upd UserUpdate) (model.UserView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.readLocked()
	if err != nil {
		return model.UserView{}, err
	}
	for i := range col.Users {
		if col.Users[i].UserID != userID {
			continue
		}
		u := &col.Users[i]
		if upd.Password != nil {
			hash, err := utils.HashPassword(*upd.Password, s.bcryptCost)
			if err != nil {
				return model.UserView{}, err
			}
			u.PasswordHash = hash
		}
		if upd.Name != nil {
			u.Name = *upd.Name
		}
		if upd.Email != nil {
			u.Email = *upd.Email
		}
		if upd.Role != nil {
			u.Role = *upd.Role
		}
		if upd.Plant != nil {
			u.Plant = *upd.Plant
		}
		if upd.Active != nil {
			u.Active = *upd.Active
		}
		if err := s.writeLocked(col); err != nil {
			return model.UserView{}, err
		}
		s.log.WithField("user", userID).Info("user updated")
		return u.View(), nil
	}
	return model.UserView{}, ErrUserNotFound
}

// Delete removes the account entirely.  Existing sessions that
// reference it are not revoked here; they simply become orphaned
// snapshots (the auth service does not re-check the store per request).
func (s *UserStore) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.readLocked()
	if err != nil {
		return err
	}
	kept := col.Users[:0]
	for _, u := range col.Users {
		if u.UserID != userID {
			kept = append(kept, u)
		}
	}
	if len(kept) == len(col.Users) {
		return ErrUserNotFound
	}
	col.Users = kept
	if err := s.writeLocked(col); err != nil {
		return err
	}
	s.log.WithField("user", userID).Info("user deleted")
	return nil
}

// TouchLastLogin stamps the account's lastLogin field.
func (s *UserStore) TouchLastLogin(userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.readLocked()
	if err != nil {
		return err
	}
	for i := range col.Users {
		if col.Users[i].UserID == userID {
			at := at.UTC()
			col.Users[i].LastLogin = &at
			return s.writeLocked(col)
		}
	}
	return ErrUserNotFound
}

func (s *UserStore) readLocked() (*model.UserCollection, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}
	var col model.UserCollection
	if err := json.Unmarshal(b, &col); err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}
	return &col, nil
}

func (s *UserStore) writeLocked(col *model.UserCollection) error {
	col.LastUpdated = time.Now().UTC()
	b, err := json.MarshalIndent(col, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to write users file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to write users file: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write users file: %w", err)
	}
	return nil
}
