package authcore

import (
	"github.com/pennyledger/authcore/internal/audit"
	"github.com/pennyledger/authcore/session"
	"github.com/pennyledger/authcore/store"
	"github.com/pennyledger/authcore/token"
)

// Aliases re-export the collaborator types hosts handle directly, so most
// integrations only import the root package.
type (
	// AuditEvent is the structured record delivered to audit sinks.
	AuditEvent = audit.Event
	// AuditSink receives audit events from the engine's dispatcher.
	AuditSink = audit.Sink
	// TokenPair is an access/refresh token pair with expiry timestamps.
	TokenPair = token.Pair
	// Session is the server-side session record.
	Session = session.Session
	// User is the security-relevant view of a user account.
	User = store.UserRecord
	// Notification is a user-facing security notification.
	Notification = store.Notification
	// SecurityLog is one append-only security event row.
	SecurityLog = store.SecurityLog
	// LoginHistory is one append-only login attempt row.
	LoginHistory = store.LoginHistory
)

// AuthContext is the verified identity handed to the request layer after a
// successful access-token validation.
type AuthContext struct {
	UserID    string
	Email     string
	SessionID string

	// Degraded is true when the verdict came from signature validity alone
	// because the session store was unreachable.
	Degraded bool
}

// LoginInput carries one login attempt. Exactly one of TOTPCode or BackupCode
// is consulted when the account has MFA enabled.
type LoginInput struct {
	Email      string
	Password   string
	TOTPCode   string
	BackupCode string

	DeviceInfo string
	Location   string
	RememberMe bool
}

// LoginResult is the outcome of a successful login or refresh.
type LoginResult struct {
	Tokens  TokenPair
	Session *Session
	UserID  string
	Email   string
}

// TOTPProvision is returned once at MFA enrollment. Secret and BackupCodes
// are shown to the user and never stored in cleartext.
type TOTPProvision struct {
	Secret      string
	URI         string
	BackupCodes []string
}
