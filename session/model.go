// Package session defines the server-side session record and its stores.
//
// A session has a fixed, non-sliding lifetime: ExpiresAt is written exactly
// once at creation and no store operation may change it afterwards.
// LastActivityAt is informational only and never influences expiry.
package session

import "time"

// Revocation reasons recorded on deactivated sessions.
const (
	ReasonLogout          = "logout"
	ReasonLogoutAll       = "logout_all"
	ReasonPasswordChanged = "password_changed"
	ReasonMFADisabled     = "mfa_disabled"
	ReasonExpired         = "expired"
)

// Session is the server-side record backing a refresh-token lineage.
// Never hard-deleted by the core; revocation flips IsActive and stamps
// RevokedAt/RevokedReason so the row stays available for audit.
type Session struct {
	ID     string
	UserID string

	// Token is the rotating refresh-token identity (the jti of the most
	// recently issued refresh token). Refresh rotates this value in place;
	// it never creates a second row for the same session.
	Token string

	DeviceInfo string
	Location   string
	RememberMe bool
	IsActive   bool

	// ExpiresAt is set once at creation and is immutable thereafter.
	ExpiresAt time.Time

	CreatedAt      time.Time
	LastActivityAt time.Time

	RevokedAt     time.Time
	RevokedReason string
}

// Live reports whether the session authorizes requests at the given instant.
// The signature on a token is necessary but not sufficient; this check is the
// single source of truth for server-side validity.
func (s *Session) Live(now time.Time) bool {
	return s != nil && s.IsActive && now.Before(s.ExpiresAt)
}
