package keywarden

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// accountGuard records login attempts and applies threshold lockout.
// Attempt rows are append-only and read back only to count recent failures.
type accountGuard struct {
	repo Repository
	cfg  LockoutConfig
	now  func() time.Time
}

func newAccountGuard(repo Repository, cfg LockoutConfig, now func() time.Time) *accountGuard {
	return &accountGuard{repo: repo, cfg: cfg, now: now}
}

// recordAttempt appends one LoginAttempt row. userID may be empty when the
// email did not resolve.
func (g *accountGuard) recordAttempt(ctx context.Context, email, ip, userID string, success bool) error {
	attempt := &LoginAttempt{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		IP:        ip,
		Success:   success,
		CreatedAt: g.now(),
	}
	if err := g.repo.RecordLoginAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

// isLocked reports whether the user is inside an active lockout window.
// The lock lifts implicitly once LockedUntil passes; no unlock write is
// needed.
func (g *accountGuard) isLocked(user *User) bool {
	return user.LockedUntil != nil && g.now().Before(*user.LockedUntil)
}

// evaluateLockout counts recent failures for the email and, at or past the
// threshold, stamps the user's LockedUntil. Returns whether a lock was
// applied.
func (g *accountGuard) evaluateLockout(ctx context.Context, user *User) (bool, error) {
	if !g.cfg.Enabled {
		return false, nil
	}

	failures, err := g.repo.CountRecentFailedAttempts(ctx, user.Email, g.cfg.Window)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if failures < g.cfg.Threshold {
		return false, nil
	}

	until := g.now().Add(g.cfg.LockDuration)
	user.LockedUntil = &until
	if err := g.repo.UpdateUser(ctx, user); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return true, nil
}

// clearLock is the explicit admin-unlock path: LockedUntil goes back to
// null rather than waiting out the window.
func (g *accountGuard) clearLock(ctx context.Context, user *User) error {
	if user.LockedUntil == nil {
		return nil
	}
	user.LockedUntil = nil
	if err := g.repo.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}
