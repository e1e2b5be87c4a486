package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrBackendUnavailable wraps transport failures from external limiter
// backends so callers can classify them without importing the driver.
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// Result is the outcome of a non-consuming admission probe.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter is the admission port the engine consumes. Implementations must
// make Consume atomic per key: concurrent consumers observe monotonically
// non-increasing remaining quota and never double-spend a unit.
type Limiter interface {
	// Check probes admission for (identifier, action) without spending quota.
	Check(ctx context.Context, identifier, action string) (Result, error)
	// Consume spends one unit, creating the bucket at full capacity on
	// first use. Spending from an empty bucket is a no-op, not an error;
	// denial is Check's job.
	Consume(ctx context.Context, identifier, action string) error
	// Reset clears the bucket so attempt counting restarts, typically after
	// the guarded action succeeds.
	Reset(ctx context.Context, identifier, action string) error
}

// Config tunes a bucket: Capacity units are available per full Window, and
// quota refills linearly over the window.
type Config struct {
	Capacity int
	Window   time.Duration
}

// DefaultConfig matches the login policy baseline: 5 units per 15 minutes.
func DefaultConfig() Config {
	return Config{Capacity: 5, Window: 15 * time.Minute}
}

func (c Config) validate() error {
	if c.Capacity <= 0 {
		return errors.New("ratelimit capacity must be positive")
	}
	if c.Window <= 0 {
		return errors.New("ratelimit window must be positive")
	}
	return nil
}

func bucketKey(identifier, action string) string {
	return action + ":" + identifier
}
