package authcore

import "errors"

var (
	// ErrTokenExpired marks a well-formed, correctly signed token past its
	// validity window. Callers typically react with a silent refresh.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid marks a malformed token, a bad signature, or a token of
	// the wrong class. Callers react with a forced re-login.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrSessionNotFound is returned when a token references a session that
	// does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionRevoked is returned when the referenced session has been
	// deactivated.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrAccountLocked is returned while an account is in its lockout
	// cool-down window.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidCredentials covers every password-phase login failure,
	// including unknown email. The uniformity is deliberate.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMFARequired is returned when the account has MFA enabled and the
	// login attempt carried no second factor.
	ErrMFARequired = errors.New("mfa required")
	// ErrMFAInvalid is returned for a wrong TOTP code or backup code.
	ErrMFAInvalid = errors.New("invalid mfa code")
	// ErrMFANotConfigured is returned when an MFA operation needs a
	// provisioned or enabled secret and there is none.
	ErrMFANotConfigured = errors.New("mfa not configured")
	// ErrMFAAlreadyEnabled is returned when provisioning is attempted on an
	// account that already has MFA enabled.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrDatastoreUnavailable is returned when a mutating operation cannot
	// reach the backing datastore. Verification never surfaces it; it
	// degrades to signature-only validation instead.
	ErrDatastoreUnavailable = errors.New("datastore unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or incompletely built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
