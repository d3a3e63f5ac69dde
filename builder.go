package authcore

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pennyledger/authcore/cache"
	"github.com/pennyledger/authcore/internal/audit"
	"github.com/pennyledger/authcore/password"
	"github.com/pennyledger/authcore/session"
	"github.com/pennyledger/authcore/store"
	"github.com/pennyledger/authcore/token"
)

// Builder assembles an Engine. A user store is the only mandatory dependency;
// everything else falls back to in-memory implementations suitable for tests
// and single-process deployments, or to Postgres/Redis backends when
// WithPostgres/WithRedis are supplied.
type Builder struct {
	config Config

	users    store.UserStore
	sessions session.Store
	vcache   cache.ValidationCache
	history  store.LoginHistoryStore
	seclog   store.SecurityLogStore
	notifs   store.NotificationStore

	auditSink AuditSink
	pool      *pgxpool.Pool
	redis     redis.UniversalClient
	now       func() time.Time

	built bool
}

// New returns a Builder loaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithUserStore supplies the user security-field store.
func (b *Builder) WithUserStore(users store.UserStore) *Builder {
	b.users = users
	return b
}

// WithSessionStore overrides the session backend.
func (b *Builder) WithSessionStore(sessions session.Store) *Builder {
	b.sessions = sessions
	return b
}

// WithValidationCache overrides the validation cache.
func (b *Builder) WithValidationCache(c cache.ValidationCache) *Builder {
	b.vcache = c
	return b
}

// WithLoginHistory overrides the login history store.
func (b *Builder) WithLoginHistory(h store.LoginHistoryStore) *Builder {
	b.history = h
	return b
}

// WithSecurityLog overrides the security log store.
func (b *Builder) WithSecurityLog(s store.SecurityLogStore) *Builder {
	b.seclog = s
	return b
}

// WithNotificationStore overrides the notification store.
func (b *Builder) WithNotificationStore(n store.NotificationStore) *Builder {
	b.notifs = n
	return b
}

// WithPostgres wires Postgres-backed implementations for every store not
// explicitly overridden, including the user store.
func (b *Builder) WithPostgres(pool *pgxpool.Pool) *Builder {
	b.pool = pool
	return b
}

// WithRedis wires a Redis validation cache for multi-instance deployments.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink supplies the sink behind the async audit dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock substitutes the engine clock, mainly for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration, fills in defaults, and returns the
// Engine. A Builder can only be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	users := b.users
	sessions := b.sessions
	history := b.history
	seclog := b.seclog
	notifs := b.notifs

	if b.pool != nil {
		if users == nil {
			users = store.NewPGUsers(b.pool)
		}
		if sessions == nil {
			sessions = session.NewPGStore(b.pool)
		}
		if history == nil {
			history = store.NewPGLoginHistory(b.pool)
		}
		if seclog == nil {
			seclog = store.NewPGSecurityLog(b.pool)
		}
		if notifs == nil {
			notifs = store.NewPGNotifications(b.pool)
		}
	}

	if users == nil {
		return nil, errors.New("user store required")
	}
	if sessions == nil {
		sessions = session.NewMemStore()
	}
	if history == nil {
		history = store.NewMemLoginHistory()
	}
	if seclog == nil {
		seclog = store.NewMemSecurityLog()
	}
	if notifs == nil {
		notifs = store.NewMemNotifications()
	}

	vcache := b.vcache
	if vcache == nil {
		if b.redis != nil {
			vcache = cache.NewRedis(b.redis, "av", cfg.Cache.TTL)
		} else {
			vcache = cache.NewLocal(cfg.Cache.TTL, cfg.Cache.MaxEntries, now)
		}
	}

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  cfg.Token.AccessSecret,
		RefreshSecret: cfg.Token.RefreshSecret,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.ClockTolerance,
		Now:           now,
		Policy: token.TTLPolicy{
			AccessTTL:            cfg.Token.AccessTTL,
			RefreshTTL:           cfg.Token.RefreshTTL,
			RefreshTTLRemembered: cfg.Token.RefreshTTLRemembered,
		},
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		codec:    codec,
		sessions: sessions,
		cache:    vcache,
		users:    users,
		history:  history,
		seclog:   seclog,
		notifs:   notifs,
		hasher:   hasher,
		totp:     newTOTPManager(cfg.TOTP),
		metrics:  NewMetrics(cfg.Metrics),
		now:      now,
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
