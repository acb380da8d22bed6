// Package ratelimiter provides token-bucket rate limiting keyed by client.
//
// Each client key (remote address or user id) gets its own bucket from
// golang.org/x/time/rate. Buckets idle for longer than the configured TTL are
// evicted lazily so long-running servers do not accumulate one bucket per
// address ever seen.
package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures a Limiter.
type Config struct {
	// RequestsPerSecond is the sustained rate per client. Zero disables limiting.
	RequestsPerSecond float64

	// Burst is the bucket capacity per client (default: 2x RequestsPerSecond, min 1)
	Burst int

	// IdleTTL evicts buckets unused for this long (default: 10m)
	IdleTTL time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a set of per-client token buckets.
//
// Thread safety:
// All methods are safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	cfg       Config
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

// New creates a Limiter.
//
// Example:
//
//	// 50 req/s per client, bursts of 100
//	limiter := New(Config{RequestsPerSecond: 50, Burst: 100})
func New(cfg Config) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}

	return &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.cfg.RequestsPerSecond > 0
}

// Allow consumes one token from key's bucket.
//
// Returns false if the request should be rejected. This is the fast path: it
// never waits.
func (l *Limiter) Allow(key string) bool {
	if !l.Enabled() {
		return true
	}

	l.mu.Lock()
	now := l.now()
	l.sweepLocked(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// sweepLocked evicts idle buckets at most once per IdleTTL.
func (l *Limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.cfg.IdleTTL {
		return
	}
	l.lastSweep = now

	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.cfg.IdleTTL {
			delete(l.buckets, key)
		}
	}
}
