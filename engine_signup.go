package keywarden

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SignUp registers an email-credential user and signs them in. The flow is
// validate -> admission -> hash -> create user+account in one transaction
// -> issue session. A unique-constraint collision surfaces as
// [ErrEmailExists] regardless of which constraint fired.
//
// When an email provider and verification base URL are configured, a
// verification token is issued and mailed after the transaction commits; a
// send failure is logged, not returned, since the account already exists.
func (e *Engine) SignUp(ctx context.Context, email, plaintext string) (*SignUpResult, error) {
	if e == nil || e.repo == nil {
		return nil, ErrEngineNotReady
	}

	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := e.checkPasswordPolicy(plaintext); err != nil {
		return nil, err
	}

	ip := clientIPFromContext(ctx)
	if err := e.checkAdmission(ctx, ip, ActionSignup); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricSignupRateLimited)
			e.emitAudit(ctx, AuditEvent{EventType: AuditSignupRateLimited, Email: normalized})
		}
		return nil, err
	}
	e.consumeQuota(ctx, ip, ActionSignup)

	digest, err := e.hasher.Hash(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	now := e.now()
	user := &User{
		ID:        uuid.NewString(),
		Email:     normalized,
		CreatedAt: now,
		UpdatedAt: now,
	}
	account := &Account{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		Provider:       ProviderEmail,
		ProviderUserID: normalized,
		PasswordDigest: digest,
		CreatedAt:      now,
	}

	var (
		session  *Session
		rawToken string
	)
	err = e.repo.Transaction(ctx, func(tx Repository) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		if err := tx.CreateAccount(ctx, account); err != nil {
			return err
		}
		var txErr error
		session, rawToken, txErr = e.sessions.create(ctx, tx, user.ID, ip, userAgentFromContext(ctx))
		return txErr
	})
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			e.metricInc(MetricSignupDuplicate)
			e.emitAudit(ctx, AuditEvent{EventType: AuditSignupDuplicate, Email: normalized})
			return nil, ErrEmailExists
		}
		if errors.Is(err, ErrInternal) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	e.metricInc(MetricSignupSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditSignupSuccess,
		UserID:    user.ID,
		Email:     normalized,
		SessionID: session.ID,
		Success:   true,
	})

	e.sendVerificationMail(ctx, user)

	return &SignUpResult{User: user, Session: session, RawToken: rawToken}, nil
}

// sendVerificationMail issues and mails a verification token when the
// engine is configured for it. Best-effort: failures are logged only.
func (e *Engine) sendVerificationMail(ctx context.Context, user *User) {
	if e.email == nil || e.config.VerificationBaseURL == "" || user.EmailVerified {
		return
	}

	_, raw, err := e.ephemeral.issue(ctx, e.repo, TokenKindEmailVerification, user.ID)
	if err != nil {
		e.warnf("verification token issue failed: %v", err)
		return
	}
	e.metricInc(MetricVerificationRequest)

	link := buildTokenLink(e.config.VerificationBaseURL, raw)
	if err := e.email.SendVerificationEmail(ctx, user.Email, link); err != nil {
		e.warnf("verification email send failed: %v", err)
	}
}

func buildTokenLink(baseURL, rawToken string) string {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	// Raw tokens are base64url; no escaping needed.
	return baseURL + sep + "token=" + rawToken
}
