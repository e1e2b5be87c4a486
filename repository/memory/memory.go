// Package memory provides a map-backed keywarden.Repository. It is meant
// for examples, tests, and single-process setups where durability does not
// matter; data is gone when the process exits.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/keywarden/keywarden"
)

// Store is an in-memory Repository. The zero value is not usable; use
// [New]. All methods are safe for concurrent use.
//
// Transaction runs the callback under the store's single mutex-free
// handle; writes are applied immediately and a returned error does not
// undo them. That is weaker than a real database transaction and is the
// accepted trade-off for a test-and-example store.
type Store struct {
	mu sync.RWMutex

	users          map[string]*keywarden.User
	usersByEmail   map[string]string
	accounts       map[string]*keywarden.Account
	sessions       map[string]string // selector -> session id
	sessionRecords map[string]*keywarden.Session
	tokens         map[string]*keywarden.EphemeralToken
	attempts       []*keywarden.LoginAttempt
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:          make(map[string]*keywarden.User),
		usersByEmail:   make(map[string]string),
		accounts:       make(map[string]*keywarden.Account),
		sessions:       make(map[string]string),
		sessionRecords: make(map[string]*keywarden.Session),
		tokens:         make(map[string]*keywarden.EphemeralToken),
	}
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*keywarden.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, keywarden.ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

func (s *Store) FindUserByID(_ context.Context, id string) (*keywarden.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, keywarden.ErrNotFound
	}
	return copyUser(user), nil
}

func (s *Store) CreateUser(_ context.Context, user *keywarden.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByEmail[user.Email]; exists {
		return keywarden.ErrEmailExists
	}
	s.users[user.ID] = copyUser(user)
	s.usersByEmail[user.Email] = user.ID
	return nil
}

func (s *Store) UpdateUser(_ context.Context, user *keywarden.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return keywarden.ErrNotFound
	}
	if existing.Email != user.Email {
		delete(s.usersByEmail, existing.Email)
		s.usersByEmail[user.Email] = user.ID
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *Store) FindAccountByProvider(_ context.Context, provider, providerUserID string) (*keywarden.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if account.Provider == provider && account.ProviderUserID == providerUserID {
			copied := *account
			return &copied, nil
		}
	}
	return nil, keywarden.ErrNotFound
}

func (s *Store) FindEmailAccountByUserID(_ context.Context, userID string) (*keywarden.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if account.UserID == userID && account.Provider == keywarden.ProviderEmail {
			copied := *account
			return &copied, nil
		}
	}
	return nil, keywarden.ErrNotFound
}

func (s *Store) CreateAccount(_ context.Context, account *keywarden.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.Provider == account.Provider && existing.ProviderUserID == account.ProviderUserID {
			return keywarden.ErrEmailExists
		}
	}
	copied := *account
	s.accounts[account.ID] = &copied
	return nil
}

func (s *Store) UpdateEmailAccountPassword(_ context.Context, accountID, passwordDigest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return keywarden.ErrNotFound
	}
	account.PasswordDigest = passwordDigest
	return nil
}

func (s *Store) FindSessionBySelector(_ context.Context, selector string) (*keywarden.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.sessions[selector]
	if !ok {
		return nil, keywarden.ErrNotFound
	}
	copied := *s.sessionRecords[id]
	return &copied, nil
}

func (s *Store) CreateSession(_ context.Context, session *keywarden.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *session
	s.sessions[session.Selector] = session.ID
	s.sessionRecords[session.ID] = &copied
	return nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessionRecords[id]
	if !ok {
		return nil
	}
	delete(s.sessions, session.Selector)
	delete(s.sessionRecords, id)
	return nil
}

func (s *Store) DeleteSessionsByUserID(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, session := range s.sessionRecords {
		if session.UserID == userID {
			delete(s.sessions, session.Selector)
			delete(s.sessionRecords, id)
		}
	}
	return nil
}

func (s *Store) FindEphemeralTokenBySelector(_ context.Context, kind keywarden.TokenKind, selector string) (*keywarden.EphemeralToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tok := range s.tokens {
		if tok.Kind == kind && tok.Selector == selector {
			copied := *tok
			return &copied, nil
		}
	}
	return nil, keywarden.ErrNotFound
}

func (s *Store) FindEphemeralTokenByState(_ context.Context, state string) (*keywarden.EphemeralToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tok := range s.tokens {
		if tok.State != "" && tok.State == state {
			copied := *tok
			return &copied, nil
		}
	}
	return nil, keywarden.ErrNotFound
}

func (s *Store) CreateEphemeralToken(_ context.Context, tok *keywarden.EphemeralToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *tok
	s.tokens[tok.ID] = &copied
	return nil
}

func (s *Store) DeleteEphemeralToken(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[id]; !ok {
		return false, nil
	}
	delete(s.tokens, id)
	return true, nil
}

func (s *Store) DeleteEphemeralTokensByUser(_ context.Context, kind keywarden.TokenKind, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, tok := range s.tokens {
		if tok.Kind == kind && tok.UserID == userID {
			delete(s.tokens, id)
		}
	}
	return nil
}

func (s *Store) RecordLoginAttempt(_ context.Context, attempt *keywarden.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *attempt
	s.attempts = append(s.attempts, &copied)
	return nil
}

func (s *Store) CountRecentFailedAttempts(_ context.Context, email string, window time.Duration) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	count := 0
	for _, attempt := range s.attempts {
		if attempt.Email == email && !attempt.Success && attempt.CreatedAt.After(cutoff) {
			count++
		}
	}
	return count, nil
}

func (s *Store) Transaction(ctx context.Context, fn func(keywarden.Repository) error) error {
	return fn(s)
}

// PruneExpired drops sessions and ephemeral tokens past their expiry.
// Long-lived processes can call it periodically to bound memory.
func (s *Store) PruneExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, session := range s.sessionRecords {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, session.Selector)
			delete(s.sessionRecords, id)
			pruned++
		}
	}
	for id, tok := range s.tokens {
		if !now.Before(tok.ExpiresAt) {
			delete(s.tokens, id)
			pruned++
		}
	}
	return pruned
}

func copyUser(user *keywarden.User) *keywarden.User {
	copied := *user
	if user.LockedUntil != nil {
		until := *user.LockedUntil
		copied.LockedUntil = &until
	}
	return &copied
}
