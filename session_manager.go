package keywarden

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keywarden/keywarden/token"
)

// sessionManager owns the session lifecycle: issued -> valid -> expired or
// revoked. There is no renew-in-place; rotation issues a fresh session and
// revokes the old one in a single transaction.
type sessionManager struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

func newSessionManager(repo Repository, cfg SessionConfig, now func() time.Time) *sessionManager {
	return &sessionManager{repo: repo, ttl: cfg.TTL, now: now}
}

// create issues a session against repo, which may be a transaction handle.
// The returned raw token is the only copy of the verifier.
func (m *sessionManager) create(ctx context.Context, repo Repository, userID, ip, userAgent string) (*Session, string, error) {
	split, err := token.GenerateSplit()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	now := m.now()
	session := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Selector:       split.Selector,
		VerifierDigest: token.Digest(split.Verifier),
		ExpiresAt:      now.Add(m.ttl),
		IP:             ip,
		UserAgent:      userAgent,
		CreatedAt:      now,
	}

	if err := repo.CreateSession(ctx, session); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return session, split.Raw, nil
}

// validate resolves a presented raw token. Parse failures, unknown
// selectors, and verifier mismatches are all ErrSessionInvalid; a matching
// session past expiry is ErrSessionExpired and is deleted on the way out.
func (m *sessionManager) validate(ctx context.Context, rawToken string) (*Session, error) {
	session, err := m.lookup(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	if !m.now().Before(session.ExpiresAt) {
		// Lazy cleanup; the delete is best-effort and the outcome is
		// expired either way.
		if err := m.repo.DeleteSession(ctx, session.ID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		return nil, ErrSessionExpired
	}

	return session, nil
}

// lookup authenticates the token against the stored digest without the
// expiry check. Sign-out uses it so expired sessions can still be revoked
// by their holder.
func (m *sessionManager) lookup(ctx context.Context, rawToken string) (*Session, error) {
	selector, verifier, ok := token.ParseSplit(rawToken)
	if !ok {
		return nil, ErrSessionInvalid
	}

	session, err := m.repo.FindSessionBySelector(ctx, selector)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	presented := token.Digest(verifier)
	if !token.ConstantTimeEqual(presented[:], session.VerifierDigest[:]) {
		return nil, ErrSessionInvalid
	}

	return session, nil
}

// revoke deletes one session; deleting a missing session is not an error.
func (m *sessionManager) revoke(ctx context.Context, sessionID string) error {
	if err := m.repo.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

// revokeAll deletes every session owned by userID.
func (m *sessionManager) revokeAll(ctx context.Context, userID string) error {
	if err := m.repo.DeleteSessionsByUserID(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

// rotate validates the presented token, then atomically issues a
// replacement and revokes the old session.
func (m *sessionManager) rotate(ctx context.Context, rawToken string) (*Session, string, error) {
	current, err := m.validate(ctx, rawToken)
	if err != nil {
		return nil, "", err
	}

	var (
		next *Session
		raw  string
	)
	err = m.repo.Transaction(ctx, func(tx Repository) error {
		var txErr error
		next, raw, txErr = m.create(ctx, tx, current.UserID, current.IP, current.UserAgent)
		if txErr != nil {
			return txErr
		}
		return tx.DeleteSession(ctx, current.ID)
	})
	if err != nil {
		if errors.Is(err, ErrInternal) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	return next, raw, nil
}
