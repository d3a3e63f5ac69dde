// Package authcore is the authentication token and session-lifecycle core of
// the Pennyledger expense application.
//
// It issues and verifies signed access/refresh token pairs, keeps server-side
// session records with a fixed (non-sliding) expiry, caches validation
// verdicts for a few seconds, revokes sessions in cascade, runs TOTP-based
// multi-factor authentication with single-use backup codes, and records
// security events with user-facing notifications.
//
// Hosts construct an [Engine] through [New] and the [Builder], wire their
// request layer through [Engine.VerifyAccess], and drive login, refresh, and
// revocation flows through the remaining Engine methods.
package authcore
