package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pennyledger/authcore/cache"
	"github.com/pennyledger/authcore/internal/audit"
	"github.com/pennyledger/authcore/password"
	"github.com/pennyledger/authcore/session"
	"github.com/pennyledger/authcore/store"
	"github.com/pennyledger/authcore/token"
)

// Engine is the authentication core. Construct it with [New] and [Builder];
// the zero value is not usable. All methods are safe for concurrent use.
type Engine struct {
	config   Config
	codec    *token.Codec
	sessions session.Store
	cache    cache.ValidationCache
	users    store.UserStore
	history  store.LoginHistoryStore
	seclog   store.SecurityLogStore
	notifs   store.NotificationStore
	hasher   *password.Hasher
	totp     *totpManager
	audit    *audit.Dispatcher
	metrics  *Metrics
	now      func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports audit events lost to dispatcher backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Sessions lists the user's currently active sessions, newest first.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]*Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	out, err := e.sessions.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return out, nil
}

func wrapUnavailable(err error) error {
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return fmt.Errorf("%w: %v", ErrDatastoreUnavailable, err)
}
