package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/pennyledger/authcore/session"
	"github.com/pennyledger/authcore/store"
	"github.com/pennyledger/authcore/token"
)

// Login authenticates one attempt end to end: lockout check, password
// verification, MFA challenge when enabled, session creation, token issuance,
// and the audit trail on both outcomes.
//
// All password-phase failures return ErrInvalidCredentials, including unknown
// emails, so responses never reveal whether an account exists.
func (e *Engine) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	now := e.now()
	email := strings.ToLower(strings.TrimSpace(in.Email))
	deviceInfo := in.DeviceInfo
	if deviceInfo == "" {
		deviceInfo = deviceInfoFromContext(ctx)
	}
	location := in.Location
	if location == "" {
		location = locationFromContext(ctx)
	}

	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metricInc(MetricLoginFailure)
			e.appendLoginHistory(ctx, "", email, false, deviceInfo, location)
			return nil, ErrInvalidCredentials
		}
		return nil, wrapUnavailable(err)
	}

	if user.Locked(now) {
		e.metricInc(MetricLoginFailure)
		e.appendLoginHistory(ctx, user.ID, email, false, deviceInfo, location)
		return nil, ErrAccountLocked
	}

	ok, err := e.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, user, email, deviceInfo, location, ErrInvalidCredentials)
	}

	if user.MFAEnabled {
		switch {
		case in.TOTPCode != "":
			ok, _, err := e.totp.VerifyCode(user.MFASecret, in.TOTPCode, now)
			if err != nil || !ok {
				e.metricInc(MetricMFAFailure)
				return nil, e.failLogin(ctx, user, email, deviceInfo, location, ErrMFAInvalid)
			}
			e.metricInc(MetricMFASuccess)

		case in.BackupCode != "":
			remaining, ok := consumeBackupCode(in.BackupCode, user.BackupCodeHashes)
			if !ok {
				e.metricInc(MetricBackupCodeFailed)
				return nil, e.failLogin(ctx, user, email, deviceInfo, location, ErrMFAInvalid)
			}
			// The code is spent the moment it verifies. Persisting the
			// shrunk hash list is part of the same logical step, so a
			// store failure here fails the login.
			if err := e.users.ReplaceBackupCodes(ctx, user.ID, remaining); err != nil {
				return nil, wrapUnavailable(err)
			}
			e.metricInc(MetricBackupCodeUsed)
			e.recordEvent(ctx, user.ID, store.EventBackupCodeUsed,
				"backup code consumed during login",
				store.DeviceMetadata(deviceInfo, location))

		default:
			e.metricInc(MetricMFARequired)
			return nil, ErrMFARequired
		}
	}

	if err := e.users.ResetLoginFailures(ctx, user.ID, now); err != nil {
		e.metricInc(MetricSwallowedWrites)
	}

	sess := &session.Session{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		Token:          uuid.NewString(),
		DeviceInfo:     deviceInfo,
		Location:       location,
		RememberMe:     in.RememberMe,
		IsActive:       true,
		ExpiresAt:      now.Add(e.codec.Policy().SessionLifetime(in.RememberMe)),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := e.sessions.Create(ctx, sess); err != nil {
		return nil, wrapUnavailable(err)
	}

	pair, err := e.codec.Issue(token.Payload{UserID: user.ID, Email: user.Email},
		sess.ID, sess.Token, in.RememberMe, sess.ExpiresAt)
	if err != nil {
		return nil, mapTokenErr(err)
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.appendLoginHistory(ctx, user.ID, email, true, deviceInfo, location)
	e.recordEvent(ctx, user.ID, store.EventLoginSuccess, "new login",
		store.EventMetadata{DeviceInfo: deviceInfo, Location: location, SessionID: sess.ID})
	e.notify(ctx, user.ID, store.EventLoginSuccess,
		"New login on your account", deviceInfo, location, sess.ID)

	return &LoginResult{
		Tokens:  pair,
		Session: sess,
		UserID:  user.ID,
		Email:   user.Email,
	}, nil
}

// failLogin records a failed attempt and runs the lockout counter. The lock
// re-arms on every failure at or past the threshold, so the counter staying
// high after a cool-down cannot open an unlimited guessing window. The
// notification fires exactly once, at the crossing; only a successful login
// resets the counter.
func (e *Engine) failLogin(ctx context.Context, user *store.UserRecord, email, deviceInfo, location string, cause error) error {
	e.metricInc(MetricLoginFailure)
	e.appendLoginHistory(ctx, user.ID, email, false, deviceInfo, location)
	e.recordEvent(ctx, user.ID, store.EventLoginFailed, "failed login attempt",
		store.DeviceMetadata(deviceInfo, location))

	n, err := e.users.RecordLoginFailure(ctx, user.ID)
	if err != nil {
		e.metricInc(MetricSwallowedWrites)
		return cause
	}

	threshold := e.config.Lockout.FailedLoginThreshold
	if n >= threshold {
		until := e.now().Add(e.config.Lockout.LockoutDuration)
		if err := e.users.LockUntil(ctx, user.ID, until); err != nil {
			e.metricInc(MetricSwallowedWrites)
			return cause
		}
		e.metricInc(MetricAccountLocked)
		e.recordEvent(ctx, user.ID, store.EventAccountLocked,
			"account locked after repeated failed logins",
			store.LockoutMetadata(n, threshold))
		if n == threshold {
			e.notify(ctx, user.ID, store.EventAccountLocked,
				"Your account was temporarily locked after repeated failed login attempts",
				deviceInfo, location, "")
		}
	}

	return cause
}
