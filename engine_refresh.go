package authcore

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/pennyledger/authcore/session"
	"github.com/pennyledger/authcore/token"
)

// Refresh exchanges a valid refresh token for a new pair. The refresh-token
// identity rotates on the same session row; the fixed ExpiresAt caps the new
// pair, so refreshing can never extend a session past its original lifetime.
//
// The session is resolved by the token's own identity, so a token that was
// rotated out is rejected even though its session is still alive. Rotation is
// last-writer-wins: of two near-simultaneous refreshes, the second either
// rotates again or no longer matches and fails with ErrTokenInvalid.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.VerifyRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, mapTokenErr(err)
	}

	sess, err := e.sessions.FindActiveByToken(ctx, claims.ID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, session.ErrNotFound) {
			return nil, e.rejectStaleRefresh(ctx, claims)
		}
		// Refresh mutates state, so there is no degraded path here.
		return nil, wrapUnavailable(err)
	}
	if sess.ID != claims.SessionID {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrTokenInvalid
	}

	now := e.now()
	if !now.Before(sess.ExpiresAt) {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrTokenExpired
	}

	newToken := uuid.NewString()
	if err := e.sessions.RotateToken(ctx, sess.ID, newToken, now); err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, wrapUnavailable(err)
	}
	sess.Token = newToken

	pair, err := e.codec.Issue(token.Payload{UserID: claims.Subject, Email: claims.Email},
		sess.ID, newToken, sess.RememberMe, sess.ExpiresAt)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, mapTokenErr(err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.touchAsync(sess.ID)

	return &LoginResult{
		Tokens:  pair,
		Session: sess,
		UserID:  claims.Subject,
		Email:   claims.Email,
	}, nil
}

// rejectStaleRefresh picks the failure for a refresh token that no longer
// resolves by identity. The session row still discriminates why: gone,
// revoked, expired, or alive but bound to a newer token.
func (e *Engine) rejectStaleRefresh(ctx context.Context, claims *token.Claims) error {
	sess, err := e.sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return wrapUnavailable(err)
	}
	if !sess.IsActive {
		return ErrSessionRevoked
	}
	if !e.now().Before(sess.ExpiresAt) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}
