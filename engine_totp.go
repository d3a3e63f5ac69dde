package authcore

import (
	"context"

	"github.com/pennyledger/authcore/session"
	"github.com/pennyledger/authcore/store"
)

// ProvisionTOTP generates a fresh TOTP secret and backup codes for the user
// and moves the account into the provisioned state. MFA is not enforced
// until [Engine.ConfirmTOTP] sees one valid code. The returned cleartext
// secret and codes are shown once and never persisted.
func (e *Engine) ProvisionTOTP(ctx context.Context, userID string) (*TOTPProvision, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	if user.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	raw, secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := e.users.SetMFASecret(ctx, userID, raw); err != nil {
		return nil, wrapUnavailable(err)
	}

	codes, hashes, err := generateBackupCodes(e.config.TOTP.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	if err := e.users.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, wrapUnavailable(err)
	}

	return &TOTPProvision{
		Secret:      secret,
		URI:         e.totp.ProvisionURI(secret, user.Email),
		BackupCodes: codes,
	}, nil
}

// ConfirmTOTP enables MFA after one successful code verification against the
// provisioned secret.
func (e *Engine) ConfirmTOTP(ctx context.Context, userID, sessionID, code string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return wrapUnavailable(err)
	}
	if user.MFAEnabled {
		return ErrMFAAlreadyEnabled
	}
	if !user.MFAProvisioned() {
		return ErrMFANotConfigured
	}

	ok, _, err := e.totp.VerifyCode(user.MFASecret, code, e.now())
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricMFAFailure)
		return ErrMFAInvalid
	}

	if err := e.users.EnableMFA(ctx, userID); err != nil {
		return wrapUnavailable(err)
	}

	e.metricInc(MetricMFASuccess)
	e.recordEvent(ctx, userID, store.EventMFAEnabled, "two-factor authentication enabled",
		store.EventMetadata{SessionID: sessionID})
	e.notify(ctx, userID, store.EventMFAEnabled,
		"Two-factor authentication was enabled on your account", "", "", sessionID)

	return nil
}

// DisableTOTP turns MFA off after verifying one current code. The secret and
// all backup codes are dropped, and every other session is revoked.
func (e *Engine) DisableTOTP(ctx context.Context, userID, sessionID, code string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return wrapUnavailable(err)
	}
	if !user.MFAEnabled {
		return ErrMFANotConfigured
	}

	ok, _, err := e.totp.VerifyCode(user.MFASecret, code, e.now())
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricMFAFailure)
		return ErrMFAInvalid
	}

	if err := e.users.DisableMFA(ctx, userID); err != nil {
		return wrapUnavailable(err)
	}

	if _, err := e.revokeSessions(ctx, userID, sessionID, session.ReasonMFADisabled, false); err != nil {
		return err
	}

	e.recordEvent(ctx, userID, store.EventMFADisabled, "two-factor authentication disabled",
		store.EventMetadata{SessionID: sessionID})
	e.notify(ctx, userID, store.EventMFADisabled,
		"Two-factor authentication was disabled on your account", "", "", sessionID)

	return nil
}

// RegenerateBackupCodes replaces the stored backup-code hashes with a fresh
// set and returns the cleartext codes once. Requires a valid current TOTP
// code so a hijacked session cannot mint recovery credentials silently.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	if !user.MFAEnabled {
		return nil, ErrMFANotConfigured
	}

	ok, _, err := e.totp.VerifyCode(user.MFASecret, code, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricMFAFailure)
		return nil, ErrMFAInvalid
	}

	codes, hashes, err := generateBackupCodes(e.config.TOTP.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	if err := e.users.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, wrapUnavailable(err)
	}

	return codes, nil
}
