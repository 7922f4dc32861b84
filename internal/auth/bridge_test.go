package auth

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edduval373/aisentinel-sub002/internal/roles"
	"github.com/edduval373/aisentinel-sub002/internal/session"
	"github.com/edduval373/aisentinel-sub002/internal/session/sessiontest"
)

type recordingMailer struct {
	mu    sync.Mutex
	links map[string]string
	err   error
}

func (m *recordingMailer) SendVerification(_ context.Context, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.links == nil {
		m.links = map[string]string{}
	}
	m.links[email] = link
	return nil
}

type bridgeFixture struct {
	bridge   *EmailBridge
	dir      *memDirectory
	sessions *sessiontest.Store
	mailer   *recordingMailer
	now      time.Time
}

func newBridgeFixture(t *testing.T, cfg BridgeConfig) *bridgeFixture {
	t.Helper()
	sessions := sessiontest.NewStore()
	dir := newMemDirectory(sessions)
	mailer := &recordingMailer{}
	now := time.Now().Truncate(time.Second)

	b := NewEmailBridge(dir, mailer, cfg, zap.NewNop())
	b.now = func() time.Time { return now }
	return &bridgeFixture{bridge: b, dir: dir, sessions: sessions, mailer: mailer, now: now}
}

func TestVerifyEmailTokenCreatesUserAndSession(t *testing.T) {
	f := newBridgeFixture(t, BridgeConfig{})
	f.dir.addToken("tok", "new@gmail.com", f.now.Add(time.Hour), false)

	sess, err := f.bridge.VerifyEmailToken(context.Background(), "tok")
	require.NoError(t, err)

	assert.Len(t, sess.SessionToken, 64)
	assert.Equal(t, roles.User, sess.RoleLevel)
	assert.Nil(t, sess.CompanyID)
	assert.Equal(t, f.now.Add(session.DefaultLifetime), sess.ExpiresAt)

	stored, err := f.sessions.GetByToken(context.Background(), sess.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, stored.UserID)

	vt, _ := f.dir.token("tok")
	assert.True(t, vt.IsUsed)
	require.NotNil(t, vt.UsedAt)

	u, ok := f.dir.userByEmail("new@gmail.com")
	require.True(t, ok)
	assert.Equal(t, "user", u.Role)
	assert.Equal(t, u.ID, sess.UserID)
}

func TestVerifyEmailTokenTenantAssignment(t *testing.T) {
	f := newBridgeFixture(t, BridgeConfig{})
	acme := f.dir.addCompany("Acme", "acme.com")
	f.dir.addEmployee(acme.ID, "boss@acme.com", "owner")
	f.dir.addToken("boss", "Boss@Acme.com", f.now.Add(time.Hour), false)
	f.dir.addToken("staff", "staff@acme.com", f.now.Add(time.Hour), false)

	sess, err := f.bridge.VerifyEmailToken(context.Background(), "boss")
	require.NoError(t, err)
	require.NotNil(t, sess.CompanyID)
	assert.Equal(t, acme.ID, *sess.CompanyID)
	assert.Equal(t, roles.Owner, sess.RoleLevel)

	sess, err = f.bridge.VerifyEmailToken(context.Background(), "staff")
	require.NoError(t, err)
	require.NotNil(t, sess.CompanyID)
	assert.Equal(t, roles.User, sess.RoleLevel)
}

func TestVerifyEmailTokenExistingUserKeepsHigherRole(t *testing.T) {
	f := newBridgeFixture(t, BridgeConfig{})
	acme := f.dir.addCompany("Acme", "acme.com")
	f.dir.addEmployee(acme.ID, "lead@acme.com", "user")
	f.dir.addUser(User{ID: "u-lead", Email: "lead@acme.com", RoleLevel: roles.Administrator, Role: "administrator"})
	f.dir.addToken("tok", "lead@acme.com", f.now.Add(time.Hour), false)

	sess, err := f.bridge.VerifyEmailToken(context.Background(), "tok")
	require.NoError(t, err)

	assert.Equal(t, "u-lead", sess.UserID)
	assert.Equal(t, roles.Administrator, sess.RoleLevel)
	require.NotNil(t, sess.CompanyID)
	assert.Equal(t, acme.ID, *sess.CompanyID)
}

func TestVerifyEmailTokenFailures(t *testing.T) {
	f := newBridgeFixture(t, BridgeConfig{})
	f.dir.addToken("used", "a@example.com", f.now.Add(time.Hour), true)
	f.dir.addToken("expired", "a@example.com", f.now, false)
	f.dir.addToken("used-and-expired", "a@example.com", f.now.Add(-time.Hour), true)

	tests := []struct {
		token string
		want  error
	}{
		{"", ErrTokenNotFound},
		{"missing", ErrTokenNotFound},
		{"used", ErrTokenAlreadyUsed},
		{"expired", ErrTokenExpired},
		{"used-and-expired", ErrTokenAlreadyUsed},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			sess, err := f.bridge.VerifyEmailToken(context.Background(), tt.token)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, sess)
		})
	}
	assert.Zero(t, f.sessions.Len())
}

func TestVerifyEmailTokenIsSingleUse(t *testing.T) {
	f := newBridgeFixture(t, BridgeConfig{})
	f.dir.addToken("tok", "once@example.com", f.now.Add(time.Hour), false)

	_, err := f.bridge.VerifyEmailToken(context.Background(), "tok")
	require.NoError(t, err)

	_, err = f.bridge.VerifyEmailToken(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrTokenAlreadyUsed)
	assert.Equal(t, 1, f.sessions.Len())
}

func TestVerifyEmailTokenConcurrentRedemption(t *testing.T) {
	f := newBridgeFixture(t, BridgeConfig{})
	f.dir.addToken("tok", "race@example.com", f.now.Add(time.Hour), false)

	var wg sync.WaitGroup
	var ok, used atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.bridge.VerifyEmailToken(context.Background(), "tok")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrTokenAlreadyUsed):
				used.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(7), used.Load())
	assert.Equal(t, 1, f.sessions.Len())
}

func TestVerifyEmailTokenRollsBackOnSessionFailure(t *testing.T) {
	f := newBridgeFixture(t, BridgeConfig{})
	f.dir.addToken("tok", "rollback@example.com", f.now.Add(time.Hour), false)
	f.dir.sessionErr = errors.New("insert failed")

	_, err := f.bridge.VerifyEmailToken(context.Background(), "tok")
	require.Error(t, err)

	vt, _ := f.dir.token("tok")
	assert.False(t, vt.IsUsed, "token must stay usable when no session was stored")
	_, created := f.dir.userByEmail("rollback@example.com")
	assert.False(t, created)
	assert.Zero(t, f.sessions.Len())

	f.dir.sessionErr = nil
	_, err = f.bridge.VerifyEmailToken(context.Background(), "tok")
	assert.NoError(t, err)
}

func TestDeveloperEmails(t *testing.T) {
	f := newBridgeFixture(t, BridgeConfig{DeveloperEmails: []string{" Dev@Example.com "}})
	f.dir.addToken("dev", "dev@example.com", f.now.Add(time.Hour), false)
	f.dir.addUser(User{ID: "u-old", Email: "old@example.com", RoleLevel: roles.User, Role: "user"})
	f.bridge.developers["old@example.com"] = struct{}{}
	f.dir.addToken("old", "old@example.com", f.now.Add(time.Hour), false)

	sess, err := f.bridge.VerifyEmailToken(context.Background(), "dev")
	require.NoError(t, err)
	assert.True(t, sess.IsDeveloper)

	sess, err = f.bridge.VerifyEmailToken(context.Background(), "old")
	require.NoError(t, err)
	assert.True(t, sess.IsDeveloper)
	u, _ := f.dir.userByEmail("old@example.com")
	assert.True(t, u.IsDeveloper)
}

func TestIssueToken(t *testing.T) {
	f := newBridgeFixture(t, BridgeConfig{VerifyURLBase: "https://app.example.com/verify?src=mail"})

	vt, err := f.bridge.IssueToken(context.Background(), "  Person@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "person@example.com", vt.Email)
	assert.Equal(t, f.now.Add(DefaultVerificationTTL), vt.ExpiresAt)
	assert.Len(t, vt.Token, 64)

	stored, ok := f.dir.token(vt.Token)
	require.True(t, ok)
	assert.False(t, stored.IsUsed)

	link, err := url.Parse(f.mailer.links["person@example.com"])
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", link.Host)
	assert.Equal(t, vt.Token, link.Query().Get("token"))
	assert.Equal(t, "mail", link.Query().Get("src"))

	_, err = f.bridge.IssueToken(context.Background(), "not-an-email")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestIssueTokenMailerFailure(t *testing.T) {
	f := newBridgeFixture(t, BridgeConfig{})
	f.mailer.err = errors.New("smtp down")

	_, err := f.bridge.IssueToken(context.Background(), "a@example.com")
	assert.Error(t, err)
}

func TestDevLogin(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newBridgeFixture(t, BridgeConfig{})
		_, err := f.bridge.DevLogin(context.Background(), "a@example.com")
		assert.ErrorIs(t, err, ErrDevLoginDisabled)
	})

	t.Run("enabled", func(t *testing.T) {
		f := newBridgeFixture(t, BridgeConfig{DevLoginEnabled: true, SessionTTL: time.Hour})
		sess, err := f.bridge.DevLogin(context.Background(), "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, f.now.Add(time.Hour), sess.ExpiresAt)
		assert.Equal(t, 1, f.sessions.Len())

		_, err = f.bridge.DevLogin(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrInvalidEmail)
	})
}

func TestBridgeSessionVerifies(t *testing.T) {
	f := newBridgeFixture(t, BridgeConfig{})
	acme := f.dir.addCompany("Acme", "acme.com")
	f.dir.addEmployee(acme.ID, "owner@acme.com", "owner")
	f.dir.addToken("tok", "owner@acme.com", f.now.Add(time.Hour), false)

	minted, err := f.bridge.VerifyEmailToken(context.Background(), "tok")
	require.NoError(t, err)

	got, err := session.NewVerifier(f.sessions).Verify(context.Background(), minted.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, minted.UserID, got.UserID)
	assert.Equal(t, minted.Email, got.Email)
	assert.Equal(t, minted.CompanyID, got.CompanyID)
	assert.Equal(t, roles.Owner, got.RoleLevel)
}
