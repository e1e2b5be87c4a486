package keywarden

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/keywarden/keywarden/password"
	"github.com/keywarden/keywarden/ratelimit"
)

// Rate-limit action names, as passed to the [ratelimit.Limiter]. Login
// buckets key on the normalized email, signup buckets on the client IP.
// Custom limiters route on these when distinguishing actions.
const (
	ActionLogin  = "login"
	ActionSignup = "signup"
)

// Engine orchestrates the authentication flows over the collaborator
// ports. Construct it through [Builder.Build]; after that, every method is
// safe for concurrent use.
type Engine struct {
	config  Config
	repo    Repository
	limiter ratelimit.Limiter
	email   EmailProvider
	oauth   map[string]OAuthProvider

	hasher    *password.Hasher
	sessions  *sessionManager
	ephemeral *ephemeralTokenManager
	guard     *accountGuard
	audit     *auditDispatcher
	metrics   *Metrics
	logger    *log.Logger

	// dummyDigest is a real Argon2id digest of an unguessable throwaway
	// password, verified against sign-in attempts for unknown emails so the
	// miss path pays full hash cost.
	dummyDigest string

	now func() time.Time
}

// Close stops the audit dispatcher after draining queued events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events shed under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine's counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// DescribeError maps an engine outcome to its caller-facing [ErrorInfo].
// In development mode the raw error text is attached as Detail.
func (e *Engine) DescribeError(err error) ErrorInfo {
	info := Describe(err)
	if e != nil && e.config.DevelopmentMode && err != nil {
		info.Detail = err.Error()
	}
	return info
}

// AdminUnlock clears a user's lockout ahead of its expiry.
func (e *Engine) AdminUnlock(ctx context.Context, userID string) error {
	if e == nil || e.repo == nil {
		return ErrEngineNotReady
	}

	user, err := e.repo.FindUserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if err := e.guard.clearLock(ctx, user); err != nil {
		return err
	}
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditLockoutCleared,
		UserID:    user.ID,
		Email:     user.Email,
		Success:   true,
	})
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeLatency(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) warnf(format string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Printf("keywarden: "+format, args...)
}

// normalizeEmail lower-cases and trims the address, and validates it
// parses as a bare address (no display name).
func normalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", ErrInvalidEmail
	}

	parsed, err := mail.ParseAddress(normalized)
	if err != nil || parsed.Address != normalized {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

// checkPasswordPolicy enforces length bounds before plaintext reaches the
// hasher.
func (e *Engine) checkPasswordPolicy(plaintext string) error {
	if plaintext == "" || len(plaintext) > e.config.PasswordPolicy.MaxLength {
		return ErrInvalidPassword
	}
	if len(plaintext) < e.config.PasswordPolicy.MinLength {
		return ErrPasswordTooWeak
	}
	return nil
}

// checkAdmission probes the limiter without consuming. Limiter backend
// faults fail closed into ErrInternal rather than waving requests through.
func (e *Engine) checkAdmission(ctx context.Context, identifier, action string) error {
	res, err := e.limiter.Check(ctx, identifier, action)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !res.Allowed {
		return ErrRateLimited
	}
	return nil
}

func (e *Engine) consumeQuota(ctx context.Context, identifier, action string) {
	if err := e.limiter.Consume(ctx, identifier, action); err != nil {
		e.warnf("rate limiter consume failed for %s: %v", action, err)
	}
}

func (e *Engine) resetQuota(ctx context.Context, identifier, action string) {
	if err := e.limiter.Reset(ctx, identifier, action); err != nil {
		e.warnf("rate limiter reset failed for %s: %v", action, err)
	}
}
