package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(now time.Time) *Session {
	return &Session{
		ID:             "sess-1",
		UserID:         "user-1",
		Token:          "tok-1",
		DeviceInfo:     "Firefox on Linux",
		IsActive:       true,
		ExpiresAt:      now.Add(24 * time.Hour),
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

func TestFixedExpiryInvariant(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	sess := newTestSession(now)
	require.NoError(t, store.Create(ctx, sess))
	wantExpiry := sess.ExpiresAt

	// Hammer every mutating operation; none may move ExpiresAt.
	for i := 0; i < 50; i++ {
		at := now.Add(time.Duration(i) * 2 * time.Minute)
		require.NoError(t, store.TouchActivity(ctx, sess.ID, at))
		require.NoError(t, store.RotateToken(ctx, sess.ID, "tok-rotated", at))
	}
	_, err := store.Deactivate(ctx, sess.ID, ReasonLogout, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = store.Deactivate(ctx, sess.ID, ReasonLogout, now.Add(2*time.Hour))
	require.NoError(t, err)

	got, err := store.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, wantExpiry, got.ExpiresAt, "expiresAt must never change after creation")
}

func TestTouchActivityRateLimited(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	sess := newTestSession(now)
	require.NoError(t, store.Create(ctx, sess))

	// Within the interval: touch is silently skipped.
	require.NoError(t, store.TouchActivity(ctx, sess.ID, now.Add(30*time.Second)))
	got, err := store.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, now, got.LastActivityAt)

	// Past the interval: touch lands.
	later := now.Add(TouchInterval)
	require.NoError(t, store.TouchActivity(ctx, sess.ID, later))
	got, err = store.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, later, got.LastActivityAt)
}

func TestRotateTokenKeepsSameRow(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	sess := newTestSession(now)
	require.NoError(t, store.Create(ctx, sess))

	require.NoError(t, store.RotateToken(ctx, sess.ID, "tok-2", now.Add(time.Minute)))

	_, err := store.FindActiveByToken(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrNotFound, "old token identity must stop matching")

	got, err := store.FindActiveByToken(ctx, "tok-2")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID, "rotation must not create a new session row")
}

func TestDeactivateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	sess := newTestSession(now)
	require.NoError(t, store.Create(ctx, sess))

	flipped, err := store.Deactivate(ctx, sess.ID, ReasonPasswordChanged, now)
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = store.Deactivate(ctx, sess.ID, ReasonPasswordChanged, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, flipped, "second deactivation must not count again")

	got, err := store.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonPasswordChanged, got.RevokedReason)
	assert.Equal(t, now, got.RevokedAt, "first revocation timestamp must stick")
}

func TestDeactivateAllForUserKeepsOne(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	for _, id := range []string{"a", "b", "c"} {
		sess := newTestSession(now)
		sess.ID = id
		sess.Token = "tok-" + id
		require.NoError(t, store.Create(ctx, sess))
	}

	count, err := store.DeactivateAllForUser(ctx, "user-1", "b", ReasonPasswordChanged, now)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	remaining, err := store.ListActiveByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "b", remaining[0].ID)

	// Re-running is a no-op, not an error.
	count, err = store.DeactivateAllForUser(ctx, "user-1", "b", ReasonPasswordChanged, now)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestLiveRequiresActiveAndUnexpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	sess := newTestSession(now)

	assert.True(t, sess.Live(now))
	assert.True(t, sess.Live(sess.ExpiresAt.Add(-time.Second)))
	assert.False(t, sess.Live(sess.ExpiresAt), "expiry instant itself is not live")

	sess.IsActive = false
	assert.False(t, sess.Live(now))

	// Activity never extends life.
	sess.IsActive = true
	sess.LastActivityAt = sess.ExpiresAt.Add(time.Hour)
	assert.False(t, sess.Live(sess.ExpiresAt.Add(time.Minute)))
}
