// Package cache provides the short-TTL validation cache consulted before the
// session store on every verified request. Entries are keyed by a SHA-256
// digest of the token so raw credentials never sit in cache memory or keys.
//
// The cache is an explicit consistency trade-off: after a revocation, a stale
// positive entry may survive for at most the configured TTL. Local is the
// process-local default; Redis is a drop-in replacement for multi-instance
// deployments.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// DefaultTTL bounds post-revocation staleness.
const DefaultTTL = 10 * time.Second

// DefaultMaxEntries triggers the self-pruning sweep on writes.
const DefaultMaxEntries = 10000

// Entry is a cached verdict for one token.
type Entry struct {
	Valid    bool
	CachedAt time.Time
}

// ValidationCache maps tokens to recent validity verdicts.
//
// Implementations are best-effort: a lookup failure is reported as a miss and
// callers fall through to the session store.
type ValidationCache interface {
	Get(ctx context.Context, token string) (Entry, bool)
	Put(ctx context.Context, token string, valid bool)

	// Invalidate drops the given tokens; with no arguments it clears the
	// whole cache. Revocation paths use the global form.
	Invalidate(ctx context.Context, tokens ...string)
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Local is the process-local ValidationCache.
type Local struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewLocal builds a Local cache. Zero ttl/maxEntries select the defaults;
// nil now selects time.Now (tests inject a deterministic clock).
func NewLocal(ttl time.Duration, maxEntries int, now func() time.Time) *Local {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if now == nil {
		now = time.Now
	}
	return &Local{
		entries:    make(map[string]Entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
	}
}

func (c *Local) Get(_ context.Context, token string) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[tokenKey(token)]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	// Staleness is enforced at read time; the sweep below is hygiene only.
	if c.now().Sub(entry.CachedAt) >= c.ttl {
		return Entry{}, false
	}
	return entry, true
}

func (c *Local) Put(_ context.Context, token string, valid bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[tokenKey(token)] = Entry{Valid: valid, CachedAt: now}
	if len(c.entries) > c.maxEntries {
		for key, entry := range c.entries {
			if now.Sub(entry.CachedAt) >= c.ttl {
				delete(c.entries, key)
			}
		}
	}
}

func (c *Local) Invalidate(_ context.Context, tokens ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(tokens) == 0 {
		c.entries = make(map[string]Entry)
		return
	}
	for _, token := range tokens {
		delete(c.entries, tokenKey(token))
	}
}

// Len reports the current entry count (sweep diagnostics).
func (c *Local) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ ValidationCache = (*Local)(nil)
