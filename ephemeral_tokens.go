package keywarden

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keywarden/keywarden/token"
)

// ephemeralTokenManager issues and redeems single-use, time-boxed tokens.
// Verification and reset tokens reuse the split-token scheme; OAuth state
// records are keyed by their random state value and carry PKCE material.
//
// Redemption is exactly-once: the record delete reports whether a row was
// removed, and a redeemer that finds the row already gone lost a race and
// fails with the kind's INVALID outcome.
type ephemeralTokenManager struct {
	repo Repository
	cfg  TokenConfig
	now  func() time.Time
}

func newEphemeralTokenManager(repo Repository, cfg TokenConfig, now func() time.Time) *ephemeralTokenManager {
	return &ephemeralTokenManager{repo: repo, cfg: cfg, now: now}
}

func (m *ephemeralTokenManager) ttl(kind TokenKind) time.Duration {
	switch kind {
	case TokenKindEmailVerification:
		return m.cfg.VerificationTTL
	case TokenKindPasswordReset:
		return m.cfg.ResetTTL
	default:
		return m.cfg.OAuthStateTTL
	}
}

func (m *ephemeralTokenManager) invalidErr(kind TokenKind) error {
	switch kind {
	case TokenKindEmailVerification:
		return ErrEmailVerificationInvalid
	case TokenKindPasswordReset:
		return ErrPasswordResetInvalid
	default:
		return ErrOAuthStateInvalid
	}
}

func (m *ephemeralTokenManager) expiredErr(kind TokenKind) error {
	switch kind {
	case TokenKindEmailVerification:
		return ErrEmailVerificationExpired
	case TokenKindPasswordReset:
		return ErrPasswordResetExpired
	default:
		return ErrOAuthStateExpired
	}
}

// issue creates a split token of the given kind for userID. Outstanding
// tokens of the same kind for the user are invalidated first, so only the
// newest link in an inbox works.
func (m *ephemeralTokenManager) issue(ctx context.Context, repo Repository, kind TokenKind, userID string) (*EphemeralToken, string, error) {
	split, err := token.GenerateSplit()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if err := repo.DeleteEphemeralTokensByUser(ctx, kind, userID); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	now := m.now()
	record := &EphemeralToken{
		ID:             uuid.NewString(),
		Kind:           kind,
		UserID:         userID,
		Selector:       split.Selector,
		VerifierDigest: token.Digest(split.Verifier),
		ExpiresAt:      now.Add(m.ttl(kind)),
		CreatedAt:      now,
	}

	if err := repo.CreateEphemeralToken(ctx, record); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return record, split.Raw, nil
}

// issueState creates an OAuth state record with a fresh PKCE pair and
// returns the S256 challenge for the authorization URL.
func (m *ephemeralTokenManager) issueState(ctx context.Context, provider, redirectURI string) (record *EphemeralToken, state, challenge string, err error) {
	state, err = token.NewOpaque(24)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	verifier, challenge, err := token.NewPKCEPair()
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	now := m.now()
	record = &EphemeralToken{
		ID:           uuid.NewString(),
		Kind:         TokenKindOAuthState,
		Provider:     provider,
		State:        state,
		PKCEVerifier: verifier,
		RedirectURI:  redirectURI,
		ExpiresAt:    now.Add(m.cfg.OAuthStateTTL),
		CreatedAt:    now,
	}

	if err := m.repo.CreateEphemeralToken(ctx, record); err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return record, state, challenge, nil
}

// redeem consumes a split token of the given kind against repo, which may
// be a transaction handle so the delete commits with the caller's effect.
func (m *ephemeralTokenManager) redeem(ctx context.Context, repo Repository, rawToken string, kind TokenKind) (*EphemeralToken, error) {
	selector, verifier, ok := token.ParseSplit(rawToken)
	if !ok {
		return nil, m.invalidErr(kind)
	}

	record, err := repo.FindEphemeralTokenBySelector(ctx, kind, selector)
	if errors.Is(err, ErrNotFound) {
		return nil, m.invalidErr(kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	presented := token.Digest(verifier)
	if !token.ConstantTimeEqual(presented[:], record.VerifierDigest[:]) {
		return nil, m.invalidErr(kind)
	}

	return m.consume(ctx, repo, record, kind)
}

// redeemState consumes an OAuth state record.
func (m *ephemeralTokenManager) redeemState(ctx context.Context, repo Repository, state string) (*EphemeralToken, error) {
	if state == "" {
		return nil, ErrOAuthStateInvalid
	}

	record, err := repo.FindEphemeralTokenByState(ctx, state)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrOAuthStateInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !token.ConstantTimeEqualString(record.State, state) {
		return nil, ErrOAuthStateInvalid
	}

	return m.consume(ctx, repo, record, TokenKindOAuthState)
}

// consume deletes the record and enforces expiry. An expired record is
// deleted too, but reported as expired rather than invalid: the caller held
// a genuine token, it just arrived late.
func (m *ephemeralTokenManager) consume(ctx context.Context, repo Repository, record *EphemeralToken, kind TokenKind) (*EphemeralToken, error) {
	deleted, err := repo.DeleteEphemeralToken(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !deleted {
		// A concurrent redemption won the delete.
		return nil, m.invalidErr(kind)
	}

	if !m.now().Before(record.ExpiresAt) {
		return nil, m.expiredErr(kind)
	}
	return record, nil
}
