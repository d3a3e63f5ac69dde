package authcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennyledger/authcore/store"
)

func TestVerifyAccessRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	_, err := env.engine.VerifyAccess(ctx, "not-a-token")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyAccessRejectsRefreshToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	res := env.login(t, LoginInput{})

	_, err := env.engine.VerifyAccess(ctx, res.Tokens.RefreshToken)
	require.ErrorIs(t, err, ErrTokenInvalid, "token classes must never cross over")
}

func TestVerifyAccessExpiredToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	res := env.login(t, LoginInput{})

	// Past access TTL plus clock tolerance.
	env.clock.Advance(15*time.Minute + 61*time.Second)
	_, err := env.engine.VerifyAccess(ctx, res.Tokens.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestRevocationCascade(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	keep := env.login(t, LoginInput{})
	s2 := env.login(t, LoginInput{})
	s3 := env.login(t, LoginInput{})

	// Warm the cache with positive verdicts.
	for _, tok := range []string{keep.Tokens.AccessToken, s2.Tokens.AccessToken, s3.Tokens.AccessToken} {
		_, err := env.engine.VerifyAccess(ctx, tok)
		require.NoError(t, err)
	}

	count, err := env.engine.RevokeOtherSessions(ctx, "u1", keep.Session.ID, "logout_all")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// The global cache clear makes the revocation visible immediately,
	// well inside the cache TTL bound.
	_, err = env.engine.VerifyAccess(ctx, s2.Tokens.AccessToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
	_, err = env.engine.VerifyAccess(ctx, s3.Tokens.AccessToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
	_, err = env.engine.VerifyAccess(ctx, keep.Tokens.AccessToken)
	require.NoError(t, err)

	// Idempotent: nothing left to revoke, no error.
	count, err = env.engine.RevokeOtherSessions(ctx, "u1", keep.Session.ID, "logout_all")
	require.NoError(t, err)
	assert.Zero(t, count)

	// One security log row per operation carries the count.
	events, err := env.engine.SecurityEvents(ctx, "u1", 50)
	require.NoError(t, err)
	var revocations []*store.SecurityLog
	for _, ev := range events {
		if ev.EventType == store.EventSessionRevoked {
			revocations = append(revocations, ev)
		}
	}
	require.Len(t, revocations, 2)
}

func TestRevokeAllSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	s1 := env.login(t, LoginInput{})
	s2 := env.login(t, LoginInput{})

	count, err := env.engine.RevokeAllSessions(ctx, "u1", "logout_all")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, tok := range []string{s1.Tokens.AccessToken, s2.Tokens.AccessToken} {
		_, err := env.engine.VerifyAccess(ctx, tok)
		require.ErrorIs(t, err, ErrSessionRevoked)
	}
}

func TestLogoutDeactivatesOwnSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	res := env.login(t, LoginInput{})

	_, err := env.engine.VerifyAccess(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)

	require.NoError(t, env.engine.Logout(ctx, res.Tokens.AccessToken))
	_, err = env.engine.VerifyAccess(ctx, res.Tokens.AccessToken)
	require.ErrorIs(t, err, ErrSessionRevoked)

	// Second logout is a no-op.
	require.NoError(t, env.engine.Logout(ctx, res.Tokens.AccessToken))
}

func TestDegradedValidationDuringOutage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	res := env.login(t, LoginInput{})

	env.sessions.setDown(true)

	auth, err := env.engine.VerifyAccess(ctx, res.Tokens.AccessToken)
	require.NoError(t, err, "outage must not fail verification of a well-signed token")
	assert.True(t, auth.Degraded)
	assert.Equal(t, "u1", auth.UserID)
	assert.EqualValues(t, 1, env.engine.metrics.Value(MetricDegradedValidation))

	// Signature failures still fail closed.
	_, err = env.engine.VerifyAccess(ctx, res.Tokens.AccessToken+"x")
	require.ErrorIs(t, err, ErrTokenInvalid)

	env.sessions.setDown(false)
	auth, err = env.engine.VerifyAccess(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.False(t, auth.Degraded)
}

func TestVerifyAccessUsesCache(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	res := env.login(t, LoginInput{})

	_, err := env.engine.VerifyAccess(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	misses := env.engine.metrics.Value(MetricCacheMiss)

	_, err = env.engine.VerifyAccess(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, misses, env.engine.metrics.Value(MetricCacheMiss))
	assert.EqualValues(t, 1, env.engine.metrics.Value(MetricCacheHit))

	// Stale entries fall through to the store again.
	env.clock.Advance(11 * time.Second)
	_, err = env.engine.VerifyAccess(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, misses+1, env.engine.metrics.Value(MetricCacheMiss))
}

// A failed background activity touch must surface in the swallowed-writes
// counter rather than vanish. The touch runs off the request path, so the
// assertion polls.
func TestFailedActivityTouchCountsAsSwallowedWrite(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	res := env.login(t, LoginInput{})

	// Warm the cache while the store is healthy.
	_, err := env.engine.VerifyAccess(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)

	// A cache hit still touches activity; with the store down that write
	// fails and must be counted.
	env.sessions.setDown(true)
	auth, err := env.engine.VerifyAccess(ctx, res.Tokens.AccessToken)
	require.NoError(t, err, "cache hit must not depend on the store")
	assert.False(t, auth.Degraded)

	require.Eventually(t, func() bool {
		return env.engine.metrics.Value(MetricSwallowedWrites) >= 1
	}, time.Second, 5*time.Millisecond, "failed TouchActivity must increment swallowed writes")
}
