package keywarden

import (
	"context"
	"errors"
	"fmt"
)

// SignIn authenticates an email-credential user and issues a session.
//
// Pipeline: admission check on (email, login) -> user load -> lockout
// check -> Argon2id verify -> on failure, record the attempt, evaluate
// lockout, and spend a rate-limit unit -> on success, record the attempt,
// reset the bucket, and issue a session.
//
// Unknown emails and OAuth-only users take a dummy verification against a
// prebuilt digest before failing, so the response time does not reveal
// whether the address exists.
func (e *Engine) SignIn(ctx context.Context, email, plaintext string) (*SignInResult, error) {
	if e == nil || e.repo == nil {
		return nil, ErrEngineNotReady
	}

	normalized, err := normalizeEmail(email)
	if err != nil {
		// Still a guessing attempt; same collapsed outcome as a bad
		// password, but no hash cost for garbage input.
		return nil, ErrInvalidCredentials
	}
	ip := clientIPFromContext(ctx)

	if err := e.checkAdmission(ctx, normalized, ActionLogin); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, AuditEvent{EventType: AuditLoginRateLimited, Email: normalized})
		}
		return nil, err
	}

	user, err := e.repo.FindUserByEmail(ctx, normalized)
	if errors.Is(err, ErrNotFound) {
		return nil, e.failUnknownIdentity(ctx, normalized, ip, plaintext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if e.guard.isLocked(user) {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, AuditEvent{EventType: AuditLoginLocked, UserID: user.ID, Email: normalized})
		if err := e.guard.recordAttempt(ctx, normalized, ip, user.ID, false); err != nil {
			e.warnf("login attempt record failed: %v", err)
		}
		return nil, ErrAccountLocked
	}

	account, err := e.repo.FindEmailAccountByUserID(ctx, user.ID)
	if errors.Is(err, ErrNotFound) {
		// OAuth-only user; indistinguishable from a wrong password.
		return nil, e.failUnknownIdentity(ctx, normalized, ip, plaintext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if !e.hasher.Verify(plaintext, account.PasswordDigest) {
		return nil, e.failBadPassword(ctx, user, normalized, ip)
	}

	if e.config.RequireVerifiedEmail && !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	if err := e.guard.recordAttempt(ctx, normalized, ip, user.ID, true); err != nil {
		e.warnf("login attempt record failed: %v", err)
	}
	e.resetQuota(ctx, normalized, ActionLogin)
	e.maybeUpgradeDigest(ctx, account, plaintext)

	session, rawToken, err := e.sessions.create(ctx, e.repo, user.ID, ip, userAgentFromContext(ctx))
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditLoginSuccess,
		UserID:    user.ID,
		Email:     normalized,
		SessionID: session.ID,
		Success:   true,
	})

	return &SignInResult{User: user, Session: session, RawToken: rawToken}, nil
}

// failUnknownIdentity burns a full verification against the dummy digest,
// records the attempt, spends quota, and returns the collapsed outcome.
func (e *Engine) failUnknownIdentity(ctx context.Context, email, ip, plaintext string) error {
	e.hasher.Verify(plaintext, e.dummyDigest)

	if err := e.guard.recordAttempt(ctx, email, ip, "", false); err != nil {
		e.warnf("login attempt record failed: %v", err)
	}
	e.consumeQuota(ctx, email, ActionLogin)

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, AuditEvent{EventType: AuditLoginFailure, Email: email})
	return ErrInvalidCredentials
}

// failBadPassword records the failure, runs lockout evaluation, and spends
// quota.
func (e *Engine) failBadPassword(ctx context.Context, user *User, email, ip string) error {
	if err := e.guard.recordAttempt(ctx, email, ip, user.ID, false); err != nil {
		e.warnf("login attempt record failed: %v", err)
	}

	locked, err := e.guard.evaluateLockout(ctx, user)
	if err != nil {
		e.warnf("lockout evaluation failed: %v", err)
	} else if locked {
		e.metricInc(MetricLockoutTriggered)
		e.emitAudit(ctx, AuditEvent{EventType: AuditLockoutTriggered, UserID: user.ID, Email: email})
	}
	e.consumeQuota(ctx, email, ActionLogin)

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, AuditEvent{EventType: AuditLoginFailure, UserID: user.ID, Email: email})
	return ErrInvalidCredentials
}

// maybeUpgradeDigest re-hashes on login when stored costs lag the current
// configuration. Best-effort; the sign-in already succeeded.
func (e *Engine) maybeUpgradeDigest(ctx context.Context, account *Account, plaintext string) {
	if !e.hasher.NeedsRehash(account.PasswordDigest) {
		return
	}

	digest, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.warnf("password digest upgrade hash failed: %v", err)
		return
	}
	if err := e.repo.UpdateEmailAccountPassword(ctx, account.ID, digest); err != nil {
		e.warnf("password digest upgrade write failed: %v", err)
	}
}
