package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/keywarden/keywarden"
	"github.com/keywarden/keywarden/token"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements keywarden.Repository over a PostgreSQL database.
type Store struct {
	db *sql.DB
	q  dbtx
	tx *sql.Tx
}

var _ keywarden.Repository = (*Store)(nil)

// New wraps an existing database handle. The caller owns the connection
// pool and its lifetime.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// Open connects with the pgx stdlib driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// Close releases the underlying pool. Only meaningful for stores built
// with [Open].
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*keywarden.User, error) {
	row := s.q.QueryRowContext(ctx,
		`select id, email, email_verified, locked_until, created_at, updated_at
		 from users where email = $1`, email)
	return scanUser(row)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*keywarden.User, error) {
	row := s.q.QueryRowContext(ctx,
		`select id, email, email_verified, locked_until, created_at, updated_at
		 from users where id = $1`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*keywarden.User, error) {
	var (
		user        keywarden.User
		lockedUntil sql.NullTime
	)
	err := row.Scan(&user.ID, &user.Email, &user.EmailVerified, &lockedUntil, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, keywarden.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lockedUntil.Valid {
		user.LockedUntil = &lockedUntil.Time
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *keywarden.User) error {
	var lockedUntil any
	if user.LockedUntil != nil {
		lockedUntil = *user.LockedUntil
	}
	_, err := s.q.ExecContext(ctx,
		`insert into users (id, email, email_verified, locked_until, created_at, updated_at)
		 values ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.EmailVerified, lockedUntil, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return keywarden.ErrEmailExists
	}
	return err
}

func (s *Store) UpdateUser(ctx context.Context, user *keywarden.User) error {
	var lockedUntil any
	if user.LockedUntil != nil {
		lockedUntil = *user.LockedUntil
	}
	result, err := s.q.ExecContext(ctx,
		`update users
		 set email = $2, email_verified = $3, locked_until = $4, updated_at = $5
		 where id = $1`,
		user.ID, user.Email, user.EmailVerified, lockedUntil, user.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return keywarden.ErrNotFound
	}
	return nil
}

func (s *Store) FindAccountByProvider(ctx context.Context, provider, providerUserID string) (*keywarden.Account, error) {
	row := s.q.QueryRowContext(ctx,
		`select id, user_id, provider, provider_user_id, password_digest, created_at
		 from accounts where provider = $1 and provider_user_id = $2`,
		provider, providerUserID)
	return scanAccount(row)
}

func (s *Store) FindEmailAccountByUserID(ctx context.Context, userID string) (*keywarden.Account, error) {
	row := s.q.QueryRowContext(ctx,
		`select id, user_id, provider, provider_user_id, password_digest, created_at
		 from accounts where user_id = $1 and provider = $2`,
		userID, keywarden.ProviderEmail)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*keywarden.Account, error) {
	var account keywarden.Account
	err := row.Scan(&account.ID, &account.UserID, &account.Provider,
		&account.ProviderUserID, &account.PasswordDigest, &account.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, keywarden.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *keywarden.Account) error {
	_, err := s.q.ExecContext(ctx,
		`insert into accounts (id, user_id, provider, provider_user_id, password_digest, created_at)
		 values ($1, $2, $3, $4, $5, $6)`,
		account.ID, account.UserID, account.Provider, account.ProviderUserID,
		account.PasswordDigest, account.CreatedAt)
	if isUniqueViolation(err) {
		return keywarden.ErrEmailExists
	}
	return err
}

func (s *Store) UpdateEmailAccountPassword(ctx context.Context, accountID, passwordDigest string) error {
	result, err := s.q.ExecContext(ctx,
		`update accounts set password_digest = $2 where id = $1`,
		accountID, passwordDigest)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return keywarden.ErrNotFound
	}
	return nil
}

func (s *Store) FindSessionBySelector(ctx context.Context, selector string) (*keywarden.Session, error) {
	row := s.q.QueryRowContext(ctx,
		`select id, user_id, selector, verifier_digest, expires_at, ip, user_agent, created_at
		 from sessions where selector = $1`, selector)

	var (
		session keywarden.Session
		digest  []byte
	)
	err := row.Scan(&session.ID, &session.UserID, &session.Selector, &digest,
		&session.ExpiresAt, &session.IP, &session.UserAgent, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, keywarden.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(digest) != token.DigestSize {
		return nil, fmt.Errorf("session %s: verifier digest is %d bytes, want %d", session.ID, len(digest), token.DigestSize)
	}
	copy(session.VerifierDigest[:], digest)
	return &session, nil
}

func (s *Store) CreateSession(ctx context.Context, session *keywarden.Session) error {
	_, err := s.q.ExecContext(ctx,
		`insert into sessions (id, user_id, selector, verifier_digest, expires_at, ip, user_agent, created_at)
		 values ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID, session.UserID, session.Selector, session.VerifierDigest[:],
		session.ExpiresAt, session.IP, session.UserAgent, session.CreatedAt)
	return err
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `delete from sessions where id = $1`, id)
	return err
}

func (s *Store) DeleteSessionsByUserID(ctx context.Context, userID string) error {
	_, err := s.q.ExecContext(ctx, `delete from sessions where user_id = $1`, userID)
	return err
}

func (s *Store) FindEphemeralTokenBySelector(ctx context.Context, kind keywarden.TokenKind, selector string) (*keywarden.EphemeralToken, error) {
	row := s.q.QueryRowContext(ctx,
		`select id, kind, user_id, provider, selector, verifier_digest, state,
		        pkce_verifier, redirect_uri, expires_at, created_at
		 from ephemeral_tokens where kind = $1 and selector = $2 and selector <> ''`,
		string(kind), selector)
	return scanEphemeralToken(row)
}

func (s *Store) FindEphemeralTokenByState(ctx context.Context, state string) (*keywarden.EphemeralToken, error) {
	row := s.q.QueryRowContext(ctx,
		`select id, kind, user_id, provider, selector, verifier_digest, state,
		        pkce_verifier, redirect_uri, expires_at, created_at
		 from ephemeral_tokens where state = $1 and state <> ''`, state)
	return scanEphemeralToken(row)
}

func scanEphemeralToken(row *sql.Row) (*keywarden.EphemeralToken, error) {
	var (
		tok    keywarden.EphemeralToken
		kind   string
		digest []byte
	)
	err := row.Scan(&tok.ID, &kind, &tok.UserID, &tok.Provider, &tok.Selector,
		&digest, &tok.State, &tok.PKCEVerifier, &tok.RedirectURI,
		&tok.ExpiresAt, &tok.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, keywarden.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tok.Kind = keywarden.TokenKind(kind)
	copy(tok.VerifierDigest[:], digest)
	return &tok, nil
}

func (s *Store) CreateEphemeralToken(ctx context.Context, tok *keywarden.EphemeralToken) error {
	_, err := s.q.ExecContext(ctx,
		`insert into ephemeral_tokens (id, kind, user_id, provider, selector, verifier_digest,
		        state, pkce_verifier, redirect_uri, expires_at, created_at)
		 values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		tok.ID, string(tok.Kind), tok.UserID, tok.Provider, tok.Selector,
		tok.VerifierDigest[:], tok.State, tok.PKCEVerifier, tok.RedirectURI,
		tok.ExpiresAt, tok.CreatedAt)
	return err
}

// DeleteEphemeralToken reports whether this call removed the row. Under
// concurrent redemption the row count decides the single winner.
func (s *Store) DeleteEphemeralToken(ctx context.Context, id string) (bool, error) {
	result, err := s.q.ExecContext(ctx, `delete from ephemeral_tokens where id = $1`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) DeleteEphemeralTokensByUser(ctx context.Context, kind keywarden.TokenKind, userID string) error {
	_, err := s.q.ExecContext(ctx,
		`delete from ephemeral_tokens where kind = $1 and user_id = $2`,
		string(kind), userID)
	return err
}

func (s *Store) RecordLoginAttempt(ctx context.Context, attempt *keywarden.LoginAttempt) error {
	_, err := s.q.ExecContext(ctx,
		`insert into login_attempts (id, user_id, email, ip, success, created_at)
		 values ($1, $2, $3, $4, $5, $6)`,
		attempt.ID, attempt.UserID, attempt.Email, attempt.IP, attempt.Success, attempt.CreatedAt)
	return err
}

func (s *Store) CountRecentFailedAttempts(ctx context.Context, email string, window time.Duration) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`select count(*) from login_attempts
		 where email = $1 and success = false and created_at > $2`,
		email, time.Now().Add(-window)).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Transaction begins a database transaction and runs fn against a handle
// bound to it. A nested call joins the enclosing transaction.
func (s *Store) Transaction(ctx context.Context, fn func(keywarden.Repository) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	scoped := &Store{db: s.db, q: tx, tx: tx}
	if err := fn(scoped); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
