// Package store holds the persisted record collections owned by the
// authentication core: user security fields, login history, security logs,
// and notifications. Sessions live in the session package.
//
// Login history and security logs are append-only; their retention is driven
// by a datastore-level TTL index on the timestamp column (15 days), not by
// application code. Notifications auto-expire 24 hours after being read.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no matching record exists.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable indicates the backing datastore is unreachable.
	ErrUnavailable = errors.New("record store unavailable")
)

// AuditRetention is the TTL applied by the datastore to login history and
// security log rows.
const AuditRetention = 15 * 24 * time.Hour

// NotificationReadTTL is how long a notification survives after being read.
const NotificationReadTTL = 24 * time.Hour

// UserRecord carries the security-relevant fields of a user account. The full
// account is owned by the account-management collaborator; this core only
// reads and updates the fields below.
type UserRecord struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string

	EmailVerified bool

	// MFA state machine: disabled (no secret) → provisioned (secret set,
	// MFAEnabled false) → enabled → disabled again on explicit disable.
	MFAEnabled       bool
	MFASecret        []byte
	BackupCodeHashes []string

	FailedLoginAttempts int
	LockedUntil         time.Time
	LastLoginAt         time.Time
}

// Locked reports whether the account is inside a lockout cool-down.
func (u *UserRecord) Locked(now time.Time) bool {
	return u != nil && now.Before(u.LockedUntil)
}

// MFAProvisioned reports whether a secret exists but MFA is not yet confirmed.
func (u *UserRecord) MFAProvisioned() bool {
	return u != nil && !u.MFAEnabled && len(u.MFASecret) > 0
}

// UserStore is the persistence surface for user security fields.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*UserRecord, error)
	GetByID(ctx context.Context, id string) (*UserRecord, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	// SetMFASecret moves the account into the provisioned state.
	SetMFASecret(ctx context.Context, id string, secret []byte) error
	EnableMFA(ctx context.Context, id string) error
	// DisableMFA clears the secret and all backup code hashes.
	DisableMFA(ctx context.Context, id string) error
	ReplaceBackupCodes(ctx context.Context, id string, hashes []string) error

	// RecordLoginFailure increments the failed-login counter and returns the
	// new value.
	RecordLoginFailure(ctx context.Context, id string) (int, error)
	// ResetLoginFailures zeroes the counter and stamps lastLoginAt.
	ResetLoginFailures(ctx context.Context, id string, lastLogin time.Time) error
	LockUntil(ctx context.Context, id string, until time.Time) error
}

// EventType identifies a security-log event class. Each type fixes which
// EventMetadata fields may be populated, keeping redaction exhaustive.
type EventType string

const (
	EventLoginSuccess       EventType = "login_success"
	EventLoginFailed        EventType = "login_failed"
	EventAccountLocked      EventType = "failed_login_attempts"
	EventPasswordChanged    EventType = "password_changed"
	EventSessionRevoked     EventType = "session_revoked"
	EventMFAEnabled         EventType = "mfa_enabled"
	EventMFADisabled        EventType = "mfa_disabled"
	EventBackupCodeUsed     EventType = "backup_code_used"
	EventValidationDegraded EventType = "validation_degraded"
)

// EventMetadata is the closed, typed field set attached to security logs and
// notifications. There is deliberately no open map: secrets, hashes, and raw
// tokens have no field to leak through.
type EventMetadata struct {
	DeviceInfo string `json:"deviceInfo,omitempty"`
	Location   string `json:"location,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Count      int    `json:"count,omitempty"`
	Threshold  int    `json:"threshold,omitempty"`
}

// DeviceMetadata describes the device behind a login-shaped event.
func DeviceMetadata(deviceInfo, location string) EventMetadata {
	return EventMetadata{DeviceInfo: deviceInfo, Location: location}
}

// RevocationMetadata describes a session-revocation event.
func RevocationMetadata(reason string, count int) EventMetadata {
	return EventMetadata{Reason: reason, Count: count}
}

// LockoutMetadata describes a threshold-crossing lockout event.
func LockoutMetadata(count, threshold int) EventMetadata {
	return EventMetadata{Count: count, Threshold: threshold}
}

// LoginHistory is one append-only login attempt record.
type LoginHistory struct {
	ID         string
	UserID     string
	Email      string
	Success    bool
	DeviceInfo string
	Location   string
	Timestamp  time.Time
}

// LoginHistoryStore appends and lists login attempts.
type LoginHistoryStore interface {
	Append(ctx context.Context, rec *LoginHistory) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*LoginHistory, error)
}

// SecurityLog is one append-only security event record.
type SecurityLog struct {
	ID          string
	UserID      string
	EventType   EventType
	Description string
	Metadata    EventMetadata
	Timestamp   time.Time
}

// SecurityLogStore appends and lists security events.
type SecurityLogStore interface {
	Append(ctx context.Context, rec *SecurityLog) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*SecurityLog, error)
}

// Notification is a user-facing message emitted by the audit bridge.
// ExcludeSessionID keeps a session from being notified about its own action.
type Notification struct {
	ID      string
	UserID  string
	Type    EventType
	Message string

	Read      bool
	ReadAt    time.Time
	ExpiresAt time.Time

	DeviceInfo       string
	Location         string
	ExcludeSessionID string

	CreatedAt time.Time
}

// NotificationStore persists notifications for the (out-of-scope) UI.
type NotificationStore interface {
	Create(ctx context.Context, rec *Notification) error

	// ListUnread returns unread notifications for the user, excluding any
	// whose ExcludeSessionID equals viewingSessionID. The exclusion is part
	// of the query contract, not a presentation concern.
	ListUnread(ctx context.Context, userID, viewingSessionID string) ([]*Notification, error)

	// MarkRead flips the read flag and schedules expiry at at+NotificationReadTTL.
	MarkRead(ctx context.Context, id string, at time.Time) error
}
