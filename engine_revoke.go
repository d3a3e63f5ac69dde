package authcore

import (
	"context"
	"fmt"

	"github.com/pennyledger/authcore/session"
	"github.com/pennyledger/authcore/store"
)

// RevokeOtherSessions deactivates every active session of the user except
// keepSessionID and returns the number revoked. The validation cache is
// cleared globally, so stale acceptance is bounded by the cache TTL.
func (e *Engine) RevokeOtherSessions(ctx context.Context, userID, keepSessionID, reason string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.revokeSessions(ctx, userID, keepSessionID, reason, true)
}

// RevokeAllSessions deactivates every active session of the user, including
// the one performing the call.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID, reason string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.revokeSessions(ctx, userID, "", reason, true)
}

// revokeSessions is the shared cascade. It is idempotent: a second call in a
// race finds nothing active and reports count 0 without erroring. When emit
// is false the caller owns the security log row and notification (it is
// folding the revocation into a larger action like a password change).
func (e *Engine) revokeSessions(ctx context.Context, userID, keepSessionID, reason string, emit bool) (int, error) {
	if reason == "" {
		reason = session.ReasonLogoutAll
	}

	now := e.now()
	count, err := e.sessions.DeactivateAllForUser(ctx, userID, keepSessionID, reason, now)
	if err != nil {
		return 0, wrapUnavailable(err)
	}

	// Global clear; stale acceptance is bounded by the cache TTL.
	if e.cache != nil {
		e.cache.Invalidate(ctx)
	}

	if count > 0 {
		e.metricInc(MetricSessionRevoked)
	}

	if emit {
		e.recordEvent(ctx, userID, store.EventSessionRevoked,
			fmt.Sprintf("%d session(s) revoked", count),
			store.RevocationMetadata(reason, count))
		if count > 0 {
			e.notify(ctx, userID, store.EventSessionRevoked,
				"Sessions on your account were signed out", "", "", keepSessionID)
		}
	}

	return count, nil
}
