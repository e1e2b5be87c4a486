package keywarden

import (
	"context"
	"errors"
	"fmt"
)

// RequestEmailVerification issues a fresh verification token for the
// address and mails the link. To avoid an enumeration oracle the operation
// reports success for unknown and already-verified addresses without
// issuing anything.
//
// The token is persisted before the send; a send failure is returned so
// the caller can retry, but the token stays valid.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	if e == nil || e.repo == nil {
		return ErrEngineNotReady
	}

	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	user, err := e.repo.FindUserByEmail(ctx, normalized)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if user.EmailVerified {
		return nil
	}

	_, raw, err := e.ephemeral.issue(ctx, e.repo, TokenKindEmailVerification, user.ID)
	if err != nil {
		return err
	}
	e.metricInc(MetricVerificationRequest)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditVerificationIssued,
		UserID:    user.ID,
		Email:     normalized,
		Success:   true,
	})

	if e.email == nil {
		return nil
	}
	link := buildTokenLink(e.config.VerificationBaseURL, raw)
	if err := e.email.SendVerificationEmail(ctx, normalized, link); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

// ConfirmEmailVerification redeems a verification token and marks the
// owning user verified. Redemption and the flag write commit in one
// transaction, so a token can never confirm twice.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, rawToken string) (*User, error) {
	if e == nil || e.repo == nil {
		return nil, ErrEngineNotReady
	}

	var user *User
	err := e.repo.Transaction(ctx, func(tx Repository) error {
		record, err := e.ephemeral.redeem(ctx, tx, rawToken, TokenKindEmailVerification)
		if err != nil {
			return err
		}

		user, err = tx.FindUserByID(ctx, record.UserID)
		if errors.Is(err, ErrNotFound) {
			// Owner vanished between issue and redeem.
			return ErrEmailVerificationInvalid
		}
		if err != nil {
			return err
		}

		user.EmailVerified = true
		user.UpdatedAt = e.now()
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		if errors.Is(err, ErrEmailVerificationInvalid) || errors.Is(err, ErrEmailVerificationExpired) {
			e.metricInc(MetricVerificationFailure)
			return nil, err
		}
		if errors.Is(err, ErrInternal) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	e.metricInc(MetricVerificationSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditVerificationDone,
		UserID:    user.ID,
		Email:     user.Email,
		Success:   true,
	})
	return user, nil
}
