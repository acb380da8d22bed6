package ratelimiter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(cfg Config) (*Limiter, *clock) {
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(cfg)
	l.now = c.Now
	return l, c
}

func TestNewDefaults(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		burst int
	}{
		{"explicit burst", Config{RequestsPerSecond: 10, Burst: 3}, 3},
		{"derived burst", Config{RequestsPerSecond: 10}, 20},
		{"fractional rate", Config{RequestsPerSecond: 0.2}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.cfg)
			assert.Equal(t, tt.burst, l.cfg.Burst)
			assert.Equal(t, 10*time.Minute, l.cfg.IdleTTL)
		})
	}
}

func TestAllowBurstThenReject(t *testing.T) {
	l, c := newTestLimiter(Config{RequestsPerSecond: 10, Burst: 5})

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))

	// Other clients have their own bucket
	assert.True(t, l.Allow("10.0.0.2"))

	// 100ms refills one token at 10 req/s
	c.Advance(100 * time.Millisecond)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestDisabled(t *testing.T) {
	l := New(Config{})
	assert.False(t, l.Enabled())
	for i := 0; i < 1000; i++ {
		assert.True(t, l.Allow("client"))
	}
	assert.Zero(t, l.Len())

	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow("client"))
}

func TestIdleEviction(t *testing.T) {
	l, c := newTestLimiter(Config{RequestsPerSecond: 1, IdleTTL: time.Minute})

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	c.Advance(30 * time.Second)
	l.Allow("b")

	c.Advance(45 * time.Second)
	l.Allow("c")
	assert.Equal(t, 2, l.Len(), "a idle for 75s is evicted, b idle for 45s is kept")
}
