package authcore

import (
	"context"

	"github.com/pennyledger/authcore/session"
	"github.com/pennyledger/authcore/store"
)

// Logout deactivates the session behind the given access token and drops its
// cached verdict. Logging out an already-inactive session is a no-op, not an
// error.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e == nil || e.codec == nil {
		return ErrEngineNotReady
	}

	claims, err := e.codec.VerifyAccess(accessToken)
	if err != nil {
		return mapTokenErr(err)
	}

	now := e.now()
	revoked, err := e.sessions.Deactivate(ctx, claims.SessionID, session.ReasonLogout, now)
	if err != nil {
		return wrapUnavailable(err)
	}

	if e.cache != nil {
		e.cache.Invalidate(ctx, accessToken)
	}

	e.metricInc(MetricLogout)
	if revoked {
		e.metricInc(MetricSessionRevoked)
		e.recordEvent(ctx, claims.Subject, store.EventSessionRevoked, "logout",
			store.EventMetadata{SessionID: claims.SessionID, Reason: session.ReasonLogout, Count: 1})
	}

	return nil
}
