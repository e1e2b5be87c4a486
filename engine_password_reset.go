package keywarden

import (
	"context"
	"errors"
	"fmt"
)

// RequestPasswordReset issues a reset token for the address and mails the
// link. Unknown addresses and OAuth-only users report success without
// issuing, so the operation cannot be used to probe for accounts.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
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

	// A reset only makes sense for a password credential.
	if _, err := e.repo.FindEmailAccountByUserID(ctx, user.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	_, raw, err := e.ephemeral.issue(ctx, e.repo, TokenKindPasswordReset, user.ID)
	if err != nil {
		return err
	}
	e.metricInc(MetricResetRequest)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditResetIssued,
		UserID:    user.ID,
		Email:     normalized,
		Success:   true,
	})

	if e.email == nil {
		return nil
	}
	link := buildTokenLink(e.config.ResetBaseURL, raw)
	if err := e.email.SendPasswordResetEmail(ctx, normalized, link); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

// ConfirmPasswordReset redeems a reset token and replaces the password
// digest in the same transaction. All sessions of the user are revoked:
// whoever now holds the password is the only one who can sign in, which is
// the point of a reset after a suspected compromise. The login bucket and
// any active lockout are cleared so the legitimate owner is not locked out
// of their own recovery.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, rawToken, newPlaintext string) (*User, error) {
	if e == nil || e.repo == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.checkPasswordPolicy(newPlaintext); err != nil {
		return nil, err
	}

	digest, err := e.hasher.Hash(newPlaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	var user *User
	err = e.repo.Transaction(ctx, func(tx Repository) error {
		record, err := e.ephemeral.redeem(ctx, tx, rawToken, TokenKindPasswordReset)
		if err != nil {
			return err
		}

		user, err = tx.FindUserByID(ctx, record.UserID)
		if errors.Is(err, ErrNotFound) {
			return ErrPasswordResetInvalid
		}
		if err != nil {
			return err
		}

		account, err := tx.FindEmailAccountByUserID(ctx, user.ID)
		if errors.Is(err, ErrNotFound) {
			return ErrPasswordResetInvalid
		}
		if err != nil {
			return err
		}

		if err := tx.UpdateEmailAccountPassword(ctx, account.ID, digest); err != nil {
			return err
		}
		if user.LockedUntil != nil {
			user.LockedUntil = nil
			user.UpdatedAt = e.now()
			if err := tx.UpdateUser(ctx, user); err != nil {
				return err
			}
		}
		return tx.DeleteSessionsByUserID(ctx, user.ID)
	})
	if err != nil {
		if errors.Is(err, ErrPasswordResetInvalid) || errors.Is(err, ErrPasswordResetExpired) {
			e.metricInc(MetricResetFailure)
			return nil, err
		}
		if errors.Is(err, ErrInternal) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	e.resetQuota(ctx, user.Email, ActionLogin)
	e.metricInc(MetricResetSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditResetDone,
		UserID:    user.ID,
		Email:     user.Email,
		Success:   true,
	})
	return user, nil
}
