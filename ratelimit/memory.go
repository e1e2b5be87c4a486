package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	remaining  float64
	lastRefill time.Time
}

// Memory is an in-process token-bucket [Limiter]. Buckets are created
// lazily at full capacity and refilled linearly on access; there is no
// background goroutine.
type Memory struct {
	config Config
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewMemory builds an in-process limiter with the given bucket policy.
func NewMemory(cfg Config) (*Memory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Memory{
		config:  cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}, nil
}

// WithClock overrides the time source. Test hook; not safe to call after
// the limiter is in use.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// refillRate is units per nanosecond.
func (m *Memory) refillRate() float64 {
	return float64(m.config.Capacity) / float64(m.config.Window)
}

// refilled returns the balance b would hold at t without mutating it.
func (m *Memory) refilled(b *bucket, t time.Time) float64 {
	elapsed := t.Sub(b.lastRefill)
	if elapsed <= 0 {
		return b.remaining
	}
	balance := b.remaining + float64(elapsed)*m.refillRate()
	if balance > float64(m.config.Capacity) {
		balance = float64(m.config.Capacity)
	}
	return balance
}

// Check implements [Limiter]. Stored state is not mutated.
func (m *Memory) Check(_ context.Context, identifier, action string) (Result, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[bucketKey(identifier, action)]
	if !ok {
		return Result{
			Allowed:   true,
			Remaining: m.config.Capacity,
			ResetAt:   now,
		}, nil
	}

	balance := m.refilled(b, now)
	res := Result{
		Allowed:   balance >= 1,
		Remaining: int(balance),
	}

	rate := m.refillRate()
	res.ResetAt = now.Add(time.Duration((float64(m.config.Capacity) - balance) / rate))
	if !res.Allowed {
		res.RetryAfter = time.Duration((1 - balance) / rate)
	}
	return res, nil
}

// Consume implements [Limiter]: refill-then-subtract under the lock.
func (m *Memory) Consume(_ context.Context, identifier, action string) error {
	now := m.now()
	key := bucketKey(identifier, action)

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{remaining: float64(m.config.Capacity), lastRefill: now}
		m.buckets[key] = b
	}

	b.remaining = m.refilled(b, now) - 1
	if b.remaining < 0 {
		b.remaining = 0
	}
	b.lastRefill = now
	return nil
}

// Reset implements [Limiter].
func (m *Memory) Reset(_ context.Context, identifier, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, bucketKey(identifier, action))
	return nil
}
