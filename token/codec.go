// Package token signs and verifies the access/refresh token pairs used by the
// authentication core. Access and refresh tokens are HMAC-SHA256 JWTs signed
// with independent secrets and carry a "typ" discriminator so one class can
// never be replayed as the other.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token class discriminator values stored in the "typ" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var (
	// ErrExpired is returned when a token is structurally valid but past its
	// expiry (beyond the configured clock tolerance).
	ErrExpired = errors.New("token expired")
	// ErrInvalid is returned for bad signatures, malformed tokens, and tokens
	// of the wrong class.
	ErrInvalid = errors.New("token invalid")
)

// Payload is the caller-supplied identity embedded in both token classes.
type Payload struct {
	UserID string
	Email  string
}

// Claims is the JWT claim set for both access and refresh tokens.
// Subject carries the user ID, ID (jti) the rotating refresh-token identity.
type Claims struct {
	Email     string `json:"email,omitempty"`
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Pair bundles a freshly issued access/refresh token pair together with the
// exact expiry instants. Hosts must use these instants verbatim for cookie
// max-age so transport lifetime can never drift from token lifetime.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TTLPolicy is the single source of truth for token and session lifetimes.
// Session rows, refresh tokens, and cookie max-age are all derived from it so
// the three can never disagree.
type TTLPolicy struct {
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	RefreshTTLRemembered time.Duration
}

// AccessExpiry returns the access-token expiry. Access tokens always use the
// short window regardless of rememberMe.
func (p TTLPolicy) AccessExpiry(now time.Time) time.Time {
	return now.Add(p.AccessTTL)
}

// RefreshExpiry returns the refresh-token expiry for a session issued at now.
func (p TTLPolicy) RefreshExpiry(now time.Time, rememberMe bool) time.Time {
	return now.Add(p.SessionLifetime(rememberMe))
}

// SessionLifetime returns the fixed session lifetime set once at creation.
func (p TTLPolicy) SessionLifetime(rememberMe bool) time.Duration {
	if rememberMe {
		return p.RefreshTTLRemembered
	}
	return p.RefreshTTL
}

// Config configures a Codec.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Policy        TTLPolicy
	Issuer        string

	// Leeway is the clock-skew tolerance applied during verification. It
	// absorbs drift between issuing and verifying hosts and must be an
	// explicit parameter, never ad-hoc retries.
	Leeway time.Duration

	// Now is the clock used for issuance and verification. Tests substitute
	// a deterministic clock here. Defaults to time.Now.
	Now func() time.Time
}

// Codec issues and verifies token pairs. Safe for concurrent use.
type Codec struct {
	cfg Config
	now func() time.Time
}

// NewCodec validates cfg and returns a ready Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: both access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if cfg.Policy.AccessTTL <= 0 || cfg.Policy.RefreshTTL <= 0 || cfg.Policy.RefreshTTLRemembered <= 0 {
		return nil, errors.New("token: all TTLs must be > 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token: leeway must be within [0, 2m]")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{cfg: cfg, now: now}, nil
}

// Policy exposes the shared TTL policy.
func (c *Codec) Policy() TTLPolicy { return c.cfg.Policy }

// Issue mints a token pair for the given session. refreshID is the rotating
// refresh-token identity recorded on the session row. notAfter, when non-zero,
// caps the refresh expiry; callers pass the session's fixed ExpiresAt so a
// rotated refresh token can never outlive its session.
func (c *Codec) Issue(p Payload, sessionID, refreshID string, rememberMe bool, notAfter time.Time) (Pair, error) {
	now := c.now()

	accessExp := c.cfg.Policy.AccessExpiry(now)
	refreshExp := c.cfg.Policy.RefreshExpiry(now, rememberMe)
	if !notAfter.IsZero() && refreshExp.After(notAfter) {
		refreshExp = notAfter
	}
	if !refreshExp.After(now) {
		return Pair{}, ErrExpired
	}
	if accessExp.After(refreshExp) {
		accessExp = refreshExp
	}

	access, err := c.sign(p, sessionID, refreshID, KindAccess, now, accessExp)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := c.sign(p, sessionID, refreshID, KindRefresh, now, refreshExp)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess parses and verifies an access token. A structurally valid
// refresh token always fails with ErrInvalid.
func (c *Codec) VerifyAccess(tok string) (*Claims, error) {
	return c.verify(tok, KindAccess, c.cfg.AccessSecret)
}

// VerifyRefresh parses and verifies a refresh token. A structurally valid
// access token always fails with ErrInvalid.
func (c *Codec) VerifyRefresh(tok string) (*Claims, error) {
	return c.verify(tok, KindRefresh, c.cfg.RefreshSecret)
}

func (c *Codec) sign(p Payload, sessionID, refreshID, kind string, now, exp time.Time) (string, error) {
	claims := Claims{
		Email:     p.Email,
		SessionID: sessionID,
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			ID:        refreshID,
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	secret := c.cfg.AccessSecret
	if kind == KindRefresh {
		secret = c.cfg.RefreshSecret
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return signed, nil
}

func (c *Codec) verify(tok, kind string, secret []byte) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.cfg.Leeway))
	}
	if c.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.cfg.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tok, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		// Expired is the only failure callers may recover from silently;
		// everything else collapses to invalid.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.TokenType != kind {
		return nil, fmt.Errorf("%w: wrong token class", ErrInvalid)
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing identity claims", ErrInvalid)
	}

	return claims, nil
}
