package authcore

import (
	"context"
	"encoding/base32"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennyledger/authcore/password"
	"github.com/pennyledger/authcore/session"
	"github.com/pennyledger/authcore/store"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "correct horse battery"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testPasswordConfig() password.Config {
	return password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.AccessSecret = []byte(strings.Repeat("a", 32))
	cfg.Token.RefreshSecret = []byte(strings.Repeat("r", 32))
	cfg.Password = testPasswordConfig()
	cfg.Audit.Enabled = false
	return cfg
}

type testEnv struct {
	engine   *Engine
	users    *store.MemUsers
	sessions *flakySessionStore
	notifs   *store.MemNotifications
	seclog   *store.MemSecurityLog
	clock    *testClock
}

// flakySessionStore wraps a MemStore and can simulate a datastore outage.
type flakySessionStore struct {
	*session.MemStore
	mu   sync.Mutex
	down bool
}

func (f *flakySessionStore) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *flakySessionStore) unavailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

func (f *flakySessionStore) FindByID(ctx context.Context, id string) (*session.Session, error) {
	if f.unavailable() {
		return nil, session.ErrUnavailable
	}
	return f.MemStore.FindByID(ctx, id)
}

func (f *flakySessionStore) TouchActivity(ctx context.Context, id string, at time.Time) error {
	if f.unavailable() {
		return session.ErrUnavailable
	}
	return f.MemStore.TouchActivity(ctx, id, at)
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	clock := newTestClock()
	users := store.NewMemUsers()
	sessions := &flakySessionStore{MemStore: session.NewMemStore()}
	notifs := store.NewMemNotifications()
	seclog := store.NewMemSecurityLog()

	hasher, err := password.NewHasher(testPasswordConfig())
	require.NoError(t, err)
	hash, err := hasher.Hash(testPassword)
	require.NoError(t, err)
	users.Seed(&store.UserRecord{
		ID:            "u1",
		Email:         testEmail,
		PasswordHash:  hash,
		Role:          "member",
		EmailVerified: true,
	})

	engine, err := New().
		WithConfig(cfg).
		WithUserStore(users).
		WithSessionStore(sessions).
		WithNotificationStore(notifs).
		WithSecurityLog(seclog).
		WithClock(clock.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &testEnv{
		engine:   engine,
		users:    users,
		sessions: sessions,
		notifs:   notifs,
		seclog:   seclog,
		clock:    clock,
	}
}

func (env *testEnv) login(t *testing.T, in LoginInput) *LoginResult {
	t.Helper()
	if in.Email == "" {
		in.Email = testEmail
	}
	if in.Password == "" {
		in.Password = testPassword
	}
	res, err := env.engine.Login(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// totpCodeAt derives the code a user's authenticator app would show.
func totpCodeAt(t *testing.T, secret string, cfg TOTPConfig, at time.Time) string {
	t.Helper()
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	require.NoError(t, err)
	code, err := hotpCode(key, at.Unix()/int64(cfg.Period), cfg.Digits, cfg.Algorithm)
	require.NoError(t, err)
	return code
}

func TestLoginIssuesPairAndSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	now := env.clock.Now()

	res := env.login(t, LoginInput{DeviceInfo: "Firefox on Linux", Location: "Berlin"})

	assert.Equal(t, "u1", res.UserID)
	require.NotNil(t, res.Session)
	assert.True(t, res.Session.IsActive)
	assert.Equal(t, now.Add(24*time.Hour), res.Session.ExpiresAt)
	assert.Equal(t, res.Session.ExpiresAt, res.Tokens.RefreshExpiresAt)
	assert.Equal(t, now.Add(15*time.Minute), res.Tokens.AccessExpiresAt)

	auth, err := env.engine.VerifyAccess(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", auth.UserID)
	assert.Equal(t, testEmail, auth.Email)
	assert.Equal(t, res.Session.ID, auth.SessionID)
	assert.False(t, auth.Degraded)

	// The new-login notification must exclude the session that caused it.
	notifs, err := env.engine.Notifications(ctx, "u1", res.Session.ID)
	require.NoError(t, err)
	assert.Empty(t, notifs)
	notifs, err = env.engine.Notifications(ctx, "u1", "some-other-session")
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, store.EventLoginSuccess, notifs[0].Type)
}

func TestLoginRememberMeExtendsSession(t *testing.T) {
	env := newTestEnv(t, nil)
	now := env.clock.Now()

	res := env.login(t, LoginInput{RememberMe: true})
	assert.Equal(t, now.Add(30*24*time.Hour), res.Session.ExpiresAt)
	assert.Equal(t, res.Session.ExpiresAt, res.Tokens.RefreshExpiresAt)
	// Access window never stretches with rememberMe.
	assert.Equal(t, now.Add(15*time.Minute), res.Tokens.AccessExpiresAt)
}

func TestLoginUnknownEmailIsUniform(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	_, err := env.engine.Login(ctx, LoginInput{Email: "nobody@example.com", Password: testPassword})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.engine.Login(ctx, LoginInput{Email: testEmail, Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLockoutThresholdExactlyOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Lockout.FailedLoginThreshold = 3
		cfg.Lockout.LockoutDuration = 15 * time.Minute
	})

	for i := 0; i < 3; i++ {
		_, err := env.engine.Login(ctx, LoginInput{Email: testEmail, Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Locked now, even with the right password.
	_, err := env.engine.Login(ctx, LoginInput{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, ErrAccountLocked)

	notifs, err := env.notifs.ListUnread(ctx, "u1", "")
	require.NoError(t, err)
	locked := 0
	for _, n := range notifs {
		if n.Type == store.EventAccountLocked {
			locked++
		}
	}
	assert.Equal(t, 1, locked, "lockout notification fires exactly once at the crossing")

	// After the cool-down a success resets the counter.
	env.clock.Advance(16 * time.Minute)
	env.login(t, LoginInput{})
	user, err := env.users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, user.FailedLoginAttempts)
	assert.Equal(t, env.clock.Now(), user.LastLoginAt)
}

// The counter only resets on success, so every failure past the cool-down is
// already at or above the threshold and must re-arm the lock. Otherwise one
// waited-out window would buy unlimited guesses.
func TestLockoutReappliesAfterCoolDown(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Lockout.FailedLoginThreshold = 3
		cfg.Lockout.LockoutDuration = 15 * time.Minute
	})

	for i := 0; i < 3; i++ {
		_, err := env.engine.Login(ctx, LoginInput{Email: testEmail, Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	env.clock.Advance(16 * time.Minute)

	// The first failure after the window trips the lock again.
	_, err := env.engine.Login(ctx, LoginInput{Email: testEmail, Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	user, err := env.users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, user.Locked(env.clock.Now()), "lock must re-arm past the threshold")

	// Even the right password is shut out for another window.
	_, err = env.engine.Login(ctx, LoginInput{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, ErrAccountLocked)
	_, err = env.engine.Login(ctx, LoginInput{Email: testEmail, Password: "wrong"})
	require.ErrorIs(t, err, ErrAccountLocked)

	// Re-arming does not re-notify; the crossing notification stays single.
	notifs, err := env.notifs.ListUnread(ctx, "u1", "")
	require.NoError(t, err)
	locked := 0
	for _, n := range notifs {
		if n.Type == store.EventAccountLocked {
			locked++
		}
	}
	assert.Equal(t, 1, locked)
}

func TestLoginHistoryRecordsBothOutcomes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	_, err := env.engine.Login(ctx, LoginInput{Email: testEmail, Password: "wrong", DeviceInfo: "cli"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	env.clock.Advance(time.Minute)
	env.login(t, LoginInput{DeviceInfo: "cli"})

	rows, err := env.engine.LoginAttempts(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Success)
	assert.False(t, rows[1].Success)
}

func TestMFALoginRequiresSecondFactor(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	prov, err := env.engine.ProvisionTOTP(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, prov.Secret)
	assert.Contains(t, prov.URI, "otpauth://totp/")
	require.Len(t, prov.BackupCodes, 10)

	code := totpCodeAt(t, prov.Secret, env.engine.config.TOTP, env.clock.Now())
	require.NoError(t, env.engine.ConfirmTOTP(ctx, "u1", "", code))

	_, err = env.engine.Login(ctx, LoginInput{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, ErrMFARequired)

	_, err = env.engine.Login(ctx, LoginInput{Email: testEmail, Password: testPassword, TOTPCode: "000000"})
	require.ErrorIs(t, err, ErrMFAInvalid)

	res := env.login(t, LoginInput{TOTPCode: totpCodeAt(t, prov.Secret, env.engine.config.TOTP, env.clock.Now())})
	assert.NotNil(t, res.Session)
}

func TestBackupCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	prov, err := env.engine.ProvisionTOTP(ctx, "u1")
	require.NoError(t, err)
	code := totpCodeAt(t, prov.Secret, env.engine.config.TOTP, env.clock.Now())
	require.NoError(t, env.engine.ConfirmTOTP(ctx, "u1", "", code))

	backup := prov.BackupCodes[0]
	env.login(t, LoginInput{BackupCode: backup})

	_, err = env.engine.Login(ctx, LoginInput{Email: testEmail, Password: testPassword, BackupCode: backup})
	require.ErrorIs(t, err, ErrMFAInvalid, "a consumed backup code must never verify again")

	// The remaining codes still work.
	env.login(t, LoginInput{BackupCode: prov.BackupCodes[1]})
}

func TestDisableTOTPRevokesOtherSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	prov, err := env.engine.ProvisionTOTP(ctx, "u1")
	require.NoError(t, err)
	code := totpCodeAt(t, prov.Secret, env.engine.config.TOTP, env.clock.Now())
	require.NoError(t, env.engine.ConfirmTOTP(ctx, "u1", "", code))

	acting := env.login(t, LoginInput{TOTPCode: totpCodeAt(t, prov.Secret, env.engine.config.TOTP, env.clock.Now())})
	other := env.login(t, LoginInput{TOTPCode: totpCodeAt(t, prov.Secret, env.engine.config.TOTP, env.clock.Now())})

	code = totpCodeAt(t, prov.Secret, env.engine.config.TOTP, env.clock.Now())
	require.NoError(t, env.engine.DisableTOTP(ctx, "u1", acting.Session.ID, code))

	user, err := env.users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, user.MFAEnabled)
	assert.Empty(t, user.BackupCodeHashes)

	kept, err := env.sessions.FindByID(ctx, acting.Session.ID)
	require.NoError(t, err)
	assert.True(t, kept.IsActive)
	revoked, err := env.sessions.FindByID(ctx, other.Session.ID)
	require.NoError(t, err)
	assert.False(t, revoked.IsActive)
	assert.Equal(t, session.ReasonMFADisabled, revoked.RevokedReason)

	// Plain password login works again.
	env.login(t, LoginInput{})
}

func TestChangePasswordRevokesOtherSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	acting := env.login(t, LoginInput{})
	other := env.login(t, LoginInput{})

	err := env.engine.ChangePassword(ctx, "u1", acting.Session.ID, "wrong", "new password 1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, env.engine.ChangePassword(ctx, "u1", acting.Session.ID, testPassword, "new password 1"))

	revoked, err := env.sessions.FindByID(ctx, other.Session.ID)
	require.NoError(t, err)
	assert.False(t, revoked.IsActive)
	assert.Equal(t, session.ReasonPasswordChanged, revoked.RevokedReason)
	kept, err := env.sessions.FindByID(ctx, acting.Session.ID)
	require.NoError(t, err)
	assert.True(t, kept.IsActive)

	_, err = env.engine.Login(ctx, LoginInput{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	env.login(t, LoginInput{Password: "new password 1"})

	// Exactly one password-changed notification, invisible to the actor.
	fromActor, err := env.notifs.ListUnread(ctx, "u1", acting.Session.ID)
	require.NoError(t, err)
	for _, n := range fromActor {
		assert.NotEqual(t, store.EventPasswordChanged, n.Type)
	}
	fromElsewhere, err := env.notifs.ListUnread(ctx, "u1", "elsewhere")
	require.NoError(t, err)
	changed := 0
	for _, n := range fromElsewhere {
		if n.Type == store.EventPasswordChanged {
			changed++
		}
	}
	assert.Equal(t, 1, changed)
}
