package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/pennyledger/authcore/session"
	"github.com/pennyledger/authcore/token"
)

// VerifyAccess validates an access token and returns the identity for the
// request layer. The verdict path is: signature/expiry via the codec, then
// the validation cache, then the session store. A session store outage does
// not fail the request — validation degrades to signature-only acceptance
// and the result is marked Degraded.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken string) (AuthContext, error) {
	if e == nil || e.codec == nil {
		return AuthContext{}, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}()

	claims, err := e.codec.VerifyAccess(accessToken)
	if err != nil {
		return AuthContext{}, mapTokenErr(err)
	}

	auth := AuthContext{
		UserID:    claims.Subject,
		Email:     claims.Email,
		SessionID: claims.SessionID,
	}

	if e.cache != nil {
		if entry, ok := e.cache.Get(ctx, accessToken); ok {
			e.metricInc(MetricCacheHit)
			if !entry.Valid {
				return AuthContext{}, ErrSessionRevoked
			}
			e.touchAsync(claims.SessionID)
			return auth, nil
		}
		e.metricInc(MetricCacheMiss)
	}

	sess, err := e.sessions.FindByID(ctx, claims.SessionID)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotFound):
		e.cachePut(ctx, accessToken, false)
		return AuthContext{}, ErrSessionNotFound
	default:
		// Availability beats perfect revocation enforcement during an
		// outage: accept on signature alone, visibly.
		e.metricInc(MetricDegradedValidation)
		e.emitAudit(ctx, AuditEvent{
			Timestamp: e.now(),
			EventType: "validation_degraded",
			UserID:    claims.Subject,
			SessionID: claims.SessionID,
			Success:   true,
			Error:     err.Error(),
		})
		auth.Degraded = true
		return auth, nil
	}

	now := e.now()
	if !sess.IsActive {
		e.cachePut(ctx, accessToken, false)
		return AuthContext{}, ErrSessionRevoked
	}
	if !now.Before(sess.ExpiresAt) {
		e.cachePut(ctx, accessToken, false)
		return AuthContext{}, ErrTokenExpired
	}

	e.cachePut(ctx, accessToken, true)
	e.touchAsync(sess.ID)
	return auth, nil
}

func (e *Engine) cachePut(ctx context.Context, accessToken string, valid bool) {
	if e.cache == nil {
		return
	}
	e.cache.Put(ctx, accessToken, valid)
}

// touchAsync persists LastActivityAt off the request path. Failures are
// swallowed and counted; the store rate-limits the write itself.
func (e *Engine) touchAsync(sessionID string) {
	at := e.now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.sessions.TouchActivity(ctx, sessionID, at); err != nil && !errors.Is(err, session.ErrNotFound) {
			e.metricInc(MetricSwallowedWrites)
		}
	}()
}

func mapTokenErr(err error) error {
	if errors.Is(err, token.ErrExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}
