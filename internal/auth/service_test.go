package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/amplmaint/mo-approval-api/internal/repository"
)

func newTestService(t *testing.T, ttl time.Duration) *Service {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	store := repository.NewUserStore(filepath.Join(t.TempDir(), "users.json"), bcrypt.MinCost, log)
	require.NoError(t, store.EnsureInitialized())
	return NewService(store, ttl, log)
}

func TestSessionRoundTrip(t *testing.T) {
	svc := newTestService(t, 0)

	sess, err := svc.Authenticate("admin", "admin123")
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	assert.Equal(t, "admin", sess.UserID)
	assert.Equal(t, "admin", sess.Role)

	got, ok := svc.VerifyToken(sess.Token)
	require.True(t, ok)
	assert.Equal(t, "admin", got.UserID)

	assert.True(t, svc.Logout(sess.Token))
	_, ok = svc.VerifyToken(sess.Token)
	assert.False(t, ok)
	assert.False(t, svc.Logout(sess.Token))
}

func TestAuthenticateTouchesLastLogin(t *testing.T) {
	svc := newTestService(t, 0)
	_, err := svc.Authenticate("admin", "admin123")
	require.NoError(t, err)

	u, err := svc.users.FindByUserID("admin")
	require.NoError(t, err)
	assert.NotNil(t, u.LastLogin)
}

func TestGenericFailureIndistinguishability(t *testing.T) {
	svc := newTestService(t, 0)

	_, errUnknown := svc.Authenticate("nonexistent", "x")
	_, errWrongPw := svc.Authenticate("admin", "wrong-password")

	require.Error(t, errUnknown)
	require.Error(t, errWrongPw)
	assert.Equal(t, errUnknown.Error(), errWrongPw.Error())
	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPw, ErrInvalidCredentials)
}

func TestDisabledAccountCannotAuthenticate(t *testing.T) {
	svc := newTestService(t, 0)
	inactive := false
	_, err := svc.users.Create(repository.NewUser{UserID: "bob", Password: "pw", Name: "Bob", Email: "b@x.com"})
	require.NoError(t, err)
	_, err = svc.users.Update("bob", repository.UserUpdate{Active: &inactive})
	require.NoError(t, err)

	_, err = svc.Authenticate("bob", "pw")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestChangePasswordFlow(t *testing.T) {
	svc := newTestService(t, 0)
	_, err := svc.users.Create(repository.NewUser{UserID: "bob", Password: "secret1", Name: "Bob", Email: "b@x.com"})
	require.NoError(t, err)

	// Wrong current password is rejected with the dedicated message.
	err = svc.ChangePassword("bob", "nope", "secret2")
	assert.ErrorIs(t, err, ErrWrongPassword)

	require.NoError(t, svc.ChangePassword("bob", "secret1", "secret2"))

	_, err = svc.Authenticate("bob", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate("bob", "secret2")
	assert.NoError(t, err)
}

func TestExistingSessionSurvivesPasswordChange(t *testing.T) {
	svc := newTestService(t, 0)

	sess, err := svc.Authenticate("admin", "admin123")
	require.NoError(t, err)
	require.NoError(t, svc.ChangePassword("admin", "admin123", "newpass1"))

	// Deliberate: password changes do not revoke existing sessions.
	_, ok := svc.VerifyToken(sess.Token)
	assert.True(t, ok)
}

func TestSessionTTL(t *testing.T) {
	svc := newTestService(t, time.Hour)

	sess, err := svc.Authenticate("admin", "admin123")
	require.NoError(t, err)
	require.NotNil(t, sess.ExpiresAt)

	_, ok := svc.VerifyToken(sess.Token)
	assert.True(t, ok)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, ok = svc.VerifyToken(sess.Token)
	assert.False(t, ok)
	// Expired sessions are removed, not just hidden.
	assert.Equal(t, 0, svc.ActiveSessions())
}
