package keywarden

import (
	"context"
	"errors"
)

// ValidateSession resolves a presented raw session token. Hot path: one
// selector lookup plus a constant-time digest comparison.
func (e *Engine) ValidateSession(ctx context.Context, rawToken string) (*Session, error) {
	if e == nil || e.repo == nil {
		return nil, ErrEngineNotReady
	}

	start := e.now()
	session, err := e.sessions.validate(ctx, rawToken)
	e.observeLatency(MetricValidateLatency, e.now().Sub(start))

	switch {
	case errors.Is(err, ErrSessionExpired):
		e.metricInc(MetricSessionExpired)
		return nil, err
	case errors.Is(err, ErrSessionInvalid):
		e.metricInc(MetricSessionInvalid)
		return nil, err
	case err != nil:
		return nil, err
	}

	return session, nil
}

// SignOut revokes the presented session. The token must authenticate
// (parse + digest match), but an expired session can still be revoked by
// its holder; an unknown token is treated as already signed out.
func (e *Engine) SignOut(ctx context.Context, rawToken string) error {
	if e == nil || e.repo == nil {
		return ErrEngineNotReady
	}

	session, err := e.sessions.lookup(ctx, rawToken)
	if errors.Is(err, ErrSessionInvalid) {
		// Idempotent: nothing to revoke.
		return nil
	}
	if err != nil {
		return err
	}

	if err := e.sessions.revoke(ctx, session.ID); err != nil {
		return err
	}

	e.metricInc(MetricSignOut)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditSignOut,
		UserID:    session.UserID,
		SessionID: session.ID,
		Success:   true,
	})
	return nil
}

// SignOutAll revokes every session of the presented token's user,
// including the presented one. Unlike SignOut, the presented session must
// still be valid: revoking a whole account's sessions from an expired
// token is not allowed.
func (e *Engine) SignOutAll(ctx context.Context, rawToken string) error {
	if e == nil || e.repo == nil {
		return ErrEngineNotReady
	}

	session, err := e.sessions.validate(ctx, rawToken)
	if err != nil {
		return err
	}

	if err := e.sessions.revokeAll(ctx, session.UserID); err != nil {
		return err
	}

	e.metricInc(MetricSignOutAll)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditSignOutAll,
		UserID:    session.UserID,
		SessionID: session.ID,
		Success:   true,
	})
	return nil
}

// RevokeUserSessions is the operator path: drop every session for a user
// without holding one of their tokens.
func (e *Engine) RevokeUserSessions(ctx context.Context, userID string) error {
	if e == nil || e.repo == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.revokeAll(ctx, userID); err != nil {
		return err
	}
	e.metricInc(MetricSignOutAll)
	return nil
}

// RotateSession exchanges a valid session for a fresh one atomically. The
// old token stops working the instant the new one exists.
func (e *Engine) RotateSession(ctx context.Context, rawToken string) (*SignInResult, error) {
	if e == nil || e.repo == nil {
		return nil, ErrEngineNotReady
	}

	session, raw, err := e.sessions.rotate(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSessionRotated)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditSessionRotated,
		UserID:    session.UserID,
		SessionID: session.ID,
		Success:   true,
	})

	return &SignInResult{Session: session, RawToken: raw}, nil
}
