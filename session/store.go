package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no matching session exists.
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable indicates the backing datastore is unreachable. The
	// engine treats this as a signal to enter degraded validation, never as
	// a hard request failure.
	ErrUnavailable = errors.New("session store unavailable")
)

// TouchInterval bounds activity-write amplification: a session's
// LastActivityAt is persisted at most once per interval.
const TouchInterval = 60 * time.Second

// Store persists session records.
//
// Implementations must uphold the fixed-expiry invariant: no method writes
// ExpiresAt after Create. Deactivation is idempotent: deactivating an
// already-inactive session is not an error and is not counted again.
type Store interface {
	Create(ctx context.Context, sess *Session) error
	FindByID(ctx context.Context, id string) (*Session, error)

	// FindActiveByToken resolves the session currently bound to the given
	// refresh-token identity. Inactive and expired sessions are not returned.
	FindActiveByToken(ctx context.Context, token string) (*Session, error)

	ListActiveByUser(ctx context.Context, userID string) ([]*Session, error)

	// RotateToken replaces the refresh-token identity on the same session
	// row. Concurrent rotations are last-writer-wins; the loser's token
	// simply stops matching on its next use.
	RotateToken(ctx context.Context, id, newToken string, at time.Time) error

	// TouchActivity updates LastActivityAt, rate-limited to once per
	// TouchInterval. It must never extend the session's lifetime.
	TouchActivity(ctx context.Context, id string, at time.Time) error

	// Deactivate flips IsActive off with a reason. Returns false when the
	// session was already inactive or missing.
	Deactivate(ctx context.Context, id, reason string, at time.Time) (bool, error)

	// DeactivateAllForUser revokes every active session of the user except
	// keepID (empty keepID revokes all). Returns the number of sessions
	// actually flipped.
	DeactivateAllForUser(ctx context.Context, userID, keepID, reason string, at time.Time) (int, error)
}
