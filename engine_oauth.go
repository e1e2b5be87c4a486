package keywarden

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// OAuthBegin starts an authorization-code round trip with the named
// provider. It persists a state record carrying a fresh PKCE verifier and
// returns the provider URL to redirect the caller to. The state string
// must come back unchanged through [Engine.OAuthCallback].
func (e *Engine) OAuthBegin(ctx context.Context, providerName, redirectURI string, scopes []string) (*OAuthBeginResult, error) {
	if e == nil || e.repo == nil {
		return nil, ErrEngineNotReady
	}

	provider, ok := e.oauth[providerName]
	if !ok {
		return nil, ErrOAuthProviderUnknown
	}

	_, state, challenge, err := e.ephemeral.issueState(ctx, providerName, redirectURI)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricOAuthBegin)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditOAuthBegin,
		Provider:  providerName,
		Success:   true,
	})

	return &OAuthBeginResult{
		AuthorizationURL: provider.AuthorizationURL(state, challenge, scopes),
		State:            state,
	}, nil
}

// OAuthCallback completes the round trip: it consumes the state record,
// exchanges the code using the stored PKCE verifier, resolves the
// provider-asserted identity to a local user, and issues a session.
//
// Binding rules: a known (provider, subject) pair signs in its user. An
// unknown pair whose email matches an existing user links a new account to
// that user, but only when the provider asserts the email verified; an
// unverified match is rejected, because accepting it would let anyone who
// can register that address at the provider take the account over. No
// match at all creates a user.
//
// The state is consumed before the code exchange, so a failed exchange
// burns it; the caller restarts the flow with a fresh state.
func (e *Engine) OAuthCallback(ctx context.Context, providerName, state, code string) (*SignInResult, error) {
	if e == nil || e.repo == nil {
		return nil, ErrEngineNotReady
	}

	provider, ok := e.oauth[providerName]
	if !ok {
		return nil, ErrOAuthProviderUnknown
	}

	record, err := e.ephemeral.redeemState(ctx, e.repo, state)
	if err != nil {
		return nil, e.failOAuth(ctx, providerName, "", err)
	}
	if record.Provider != providerName {
		return nil, e.failOAuth(ctx, providerName, "", ErrOAuthStateInvalid)
	}
	if code == "" {
		return nil, e.failOAuth(ctx, providerName, "", ErrOAuthCallbackInvalid)
	}

	tokens, err := provider.Exchange(ctx, code, record.PKCEVerifier)
	if err != nil {
		return nil, e.failOAuth(ctx, providerName, "", fmt.Errorf("%w: %v", ErrOAuthCallbackInvalid, err))
	}

	info, err := provider.UserInfo(ctx, tokens)
	if err != nil {
		return nil, e.failOAuth(ctx, providerName, "", fmt.Errorf("%w: %v", ErrOAuthCallbackInvalid, err))
	}
	if info.ID == "" {
		return nil, e.failOAuth(ctx, providerName, "", ErrOAuthCallbackInvalid)
	}

	normalized, err := normalizeEmail(info.Email)
	if err != nil {
		// A local identity needs an address. Providers that withhold the
		// email claim cannot sign users in here.
		return nil, e.failOAuth(ctx, providerName, "", ErrOAuthCallbackInvalid)
	}
	ip := clientIPFromContext(ctx)

	var (
		user     *User
		session  *Session
		rawToken string
	)
	err = e.repo.Transaction(ctx, func(tx Repository) error {
		var err error
		user, err = e.resolveOAuthUser(ctx, tx, providerName, normalized, info)
		if err != nil {
			return err
		}

		if e.guard.isLocked(user) {
			return ErrAccountLocked
		}

		session, rawToken, err = e.sessions.create(ctx, tx, user.ID, ip, userAgentFromContext(ctx))
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrOAuthCallbackInvalid), errors.Is(err, ErrAccountLocked):
			return nil, e.failOAuth(ctx, providerName, normalized, err)
		case errors.Is(err, ErrInternal):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
	}

	e.metricInc(MetricOAuthSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditOAuthSuccess,
		UserID:    user.ID,
		Email:     user.Email,
		Provider:  providerName,
		SessionID: session.ID,
		Success:   true,
	})

	return &SignInResult{User: user, Session: session, RawToken: rawToken}, nil
}

// resolveOAuthUser maps the provider identity onto a local user inside the
// caller's transaction, creating or linking records as needed.
func (e *Engine) resolveOAuthUser(ctx context.Context, tx Repository, providerName, email string, info OAuthUserInfo) (*User, error) {
	account, err := tx.FindAccountByProvider(ctx, providerName, info.ID)
	if err == nil {
		user, err := tx.FindUserByID(ctx, account.UserID)
		if errors.Is(err, ErrNotFound) {
			return nil, ErrOAuthCallbackInvalid
		}
		return user, err
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user, err := tx.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !info.EmailVerified {
			return nil, ErrOAuthCallbackInvalid
		}
	case errors.Is(err, ErrNotFound):
		now := e.now()
		user = &User{
			ID:            uuid.NewString(),
			Email:         email,
			EmailVerified: info.EmailVerified,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	newAccount := &Account{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		Provider:       providerName,
		ProviderUserID: info.ID,
		CreatedAt:      e.now(),
	}
	if err := tx.CreateAccount(ctx, newAccount); err != nil {
		return nil, err
	}
	return user, nil
}

// failOAuth counts and audits a callback failure, passing err through.
func (e *Engine) failOAuth(ctx context.Context, providerName, email string, err error) error {
	e.metricInc(MetricOAuthFailure)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditOAuthFailure,
		Provider:  providerName,
		Email:     email,
		Error:     Describe(err).Code,
	})
	return err
}
