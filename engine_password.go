package authcore

import (
	"context"
	"errors"

	"github.com/pennyledger/authcore/session"
	"github.com/pennyledger/authcore/store"
)

// ChangePassword verifies the current password, stores the new hash, and
// revokes every other session. The acting session stays signed in and is
// excluded from the resulting notification.
func (e *Engine) ChangePassword(ctx context.Context, userID, sessionID, oldPassword, newPassword string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return wrapUnavailable(err)
	}

	ok, err := e.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return wrapUnavailable(err)
	}

	if _, err := e.revokeSessions(ctx, userID, sessionID, session.ReasonPasswordChanged, false); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChanged)
	e.recordEvent(ctx, userID, store.EventPasswordChanged, "password changed",
		store.EventMetadata{SessionID: sessionID})
	e.notify(ctx, userID, store.EventPasswordChanged,
		"Your password was changed", "", "", sessionID)

	return nil
}
