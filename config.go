package authcore

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/pennyledger/authcore/password"
)

// TokenConfig controls token signing and lifetimes. The two secrets must
// differ so compromise of one class does not invalidate the other.
type TokenConfig struct {
	AccessSecret  []byte `envconfig:"ACCESS_SECRET"`
	RefreshSecret []byte `envconfig:"REFRESH_SECRET"`
	Issuer        string

	// AccessTTL is independent of rememberMe; RefreshTTLRemembered replaces
	// RefreshTTL when the login sets rememberMe.
	AccessTTL            time.Duration `split_words:"true"`
	RefreshTTL           time.Duration `split_words:"true"`
	RefreshTTLRemembered time.Duration `split_words:"true"`

	// ClockTolerance absorbs clock drift between issuing and verifying hosts.
	ClockTolerance time.Duration `split_words:"true"`
}

// CacheConfig controls the validation cache.
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int `split_words:"true"`
}

// TOTPConfig controls TOTP provisioning and verification.
type TOTPConfig struct {
	Issuer    string
	Period    int
	Digits    int
	Algorithm string
	// Window is the accepted drift in time steps on either side of now.
	Window          int
	BackupCodeCount int `split_words:"true"`
}

// LockoutConfig controls failed-login lockout.
type LockoutConfig struct {
	FailedLoginThreshold int           `split_words:"true"`
	LockoutDuration      time.Duration `split_words:"true"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int `split_words:"true"`
	DropIfFull bool `split_words:"true"`
}

// MetricsConfig controls the in-process metric counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool `split_words:"true"`
}

// Config is the full engine configuration tree.
type Config struct {
	Token    TokenConfig
	Cache    CacheConfig
	TOTP     TOTPConfig
	Lockout  LockoutConfig
	Password password.Config
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// DefaultConfig returns the baseline configuration. Hosts still need to set
// the two token secrets before Build accepts it.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:               "pennyledger",
			AccessTTL:            15 * time.Minute,
			RefreshTTL:           24 * time.Hour,
			RefreshTTLRemembered: 30 * 24 * time.Hour,
			ClockTolerance:       60 * time.Second,
		},
		Cache: CacheConfig{
			TTL:        10 * time.Second,
			MaxEntries: 10000,
		},
		TOTP: TOTPConfig{
			Issuer:          "Pennyledger",
			Period:          30,
			Digits:          6,
			Algorithm:       "SHA1",
			Window:          2,
			BackupCodeCount: 10,
		},
		Lockout: LockoutConfig{
			FailedLoginThreshold: 5,
			LockoutDuration:      15 * time.Minute,
		},
		Password: password.DefaultConfig(),
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AccessSecret = cloneBytes(cfg.Token.AccessSecret)
	out.Token.RefreshSecret = cloneBytes(cfg.Token.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Validate checks the whole tree. It is called by Build, so hosts only need
// it when surfacing configuration errors earlier.
func (c Config) Validate() error {
	if len(c.Token.AccessSecret) < 32 {
		return errors.New("config: token access secret must be at least 32 bytes")
	}
	if len(c.Token.RefreshSecret) < 32 {
		return errors.New("config: token refresh secret must be at least 32 bytes")
	}
	if len(c.Token.AccessSecret) == len(c.Token.RefreshSecret) &&
		subtle.ConstantTimeCompare(c.Token.AccessSecret, c.Token.RefreshSecret) == 1 {
		return errors.New("config: access and refresh secrets must differ")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 || c.Token.RefreshTTLRemembered <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.Token.RefreshTTLRemembered < c.Token.RefreshTTL {
		return errors.New("config: remembered refresh TTL must not be shorter than the default")
	}
	if c.Token.ClockTolerance < 0 || c.Token.ClockTolerance > 2*time.Minute {
		return errors.New("config: clock tolerance must be within [0s, 2m]")
	}

	if c.Cache.TTL <= 0 {
		return errors.New("config: cache TTL must be positive")
	}
	if c.Cache.MaxEntries < 1 {
		return errors.New("config: cache max entries must be at least 1")
	}

	if c.TOTP.Period < 15 || c.TOTP.Period > 120 {
		return errors.New("config: totp period must be within [15s, 120s]")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("config: totp digits must be within [6, 8]")
	}
	if c.TOTP.Window < 0 || c.TOTP.Window > 4 {
		return errors.New("config: totp window must be within [0, 4]")
	}
	if c.TOTP.BackupCodeCount < 1 || c.TOTP.BackupCodeCount > 20 {
		return errors.New("config: backup code count must be within [1, 20]")
	}
	switch c.TOTP.Algorithm {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return fmt.Errorf("config: unsupported totp algorithm %q", c.TOTP.Algorithm)
	}

	if c.Lockout.FailedLoginThreshold < 1 {
		return errors.New("config: failed login threshold must be at least 1")
	}
	if c.Lockout.LockoutDuration <= 0 {
		return errors.New("config: lockout duration must be positive")
	}

	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return errors.New("config: audit buffer size must be at least 1")
	}

	return nil
}

// ConfigFromEnv builds a Config from environment variables layered over the
// defaults. Variables follow envconfig conventions, e.g.
// AUTHCORE_TOKEN_ACCESS_SECRET, AUTHCORE_LOCKOUT_LOCKOUT_DURATION.
func ConfigFromEnv(prefix string) (Config, error) {
	if prefix == "" {
		prefix = "AUTHCORE"
	}

	cfg := defaultConfig()
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
