package keywarden

import (
	"context"
	"time"

	"github.com/keywarden/keywarden/token"
)

// ProviderEmail is the provider id of password-credential accounts. Any
// other provider id names an external OAuth provider.
const ProviderEmail = "email"

// User is the identity record. Email is stored normalized (lower-cased,
// trimmed) and is unique across all users. The engine never deletes users;
// deletion is a repository concern.
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	LockedUntil   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Account binds a user to one credential provider. For ProviderEmail,
// ProviderUserID is the email address and PasswordDigest holds the Argon2id
// digest; for OAuth providers, ProviderUserID is the provider-scoped subject
// and PasswordDigest is empty. (Provider, ProviderUserID) is unique across
// all accounts, and a user holds at most one email account.
type Account struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	PasswordDigest string
	CreatedAt      time.Time
}

// Session is a live login. Selector is the public lookup half of the split
// token; VerifierDigest is the SHA-256 of the secret half. The raw verifier
// is handed to the caller once at creation and never stored.
type Session struct {
	ID             string
	UserID         string
	Selector       string
	VerifierDigest [token.DigestSize]byte
	ExpiresAt      time.Time
	IP             string
	UserAgent      string
	CreatedAt      time.Time
}

// LoginAttempt is one append-only audit row per authentication try. UserID
// is empty when the email did not resolve to a user.
type LoginAttempt struct {
	ID        string
	UserID    string
	Email     string
	IP        string
	Success   bool
	CreatedAt time.Time
}

// TokenKind discriminates ephemeral token records.
type TokenKind string

const (
	// TokenKindEmailVerification tokens confirm ownership of an address.
	TokenKindEmailVerification TokenKind = "email_verification"
	// TokenKindPasswordReset tokens authorize one password replacement.
	TokenKindPasswordReset TokenKind = "password_reset"
	// TokenKindOAuthState tokens pin one OAuth round trip (CSRF + PKCE).
	TokenKindOAuthState TokenKind = "oauth_state"
)

// EphemeralToken is a single-use, time-boxed token record. Verification and
// reset tokens are split tokens (Selector/VerifierDigest set, State empty);
// OAuth state records are looked up by their random State value and carry
// the PKCE code verifier and redirect target instead.
type EphemeralToken struct {
	ID             string
	Kind           TokenKind
	UserID         string
	Provider       string
	Selector       string
	VerifierDigest [token.DigestSize]byte
	State          string
	PKCEVerifier   string
	RedirectURI    string
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// Repository is the persistence port the engine consumes. Implementations
// own durability and uniqueness enforcement but never business rules.
//
// Contract notes:
//   - Find* methods return [ErrNotFound] (possibly wrapped) on a miss.
//   - CreateUser and CreateAccount return [ErrEmailExists] when a unique
//     constraint collides, without distinguishing which constraint.
//   - DeleteSession and DeleteSessionsByUserID are idempotent.
//   - DeleteEphemeralToken reports whether a row was actually removed, so a
//     concurrent double-redeem resolves to exactly one winner.
//   - Transaction runs fn against a handle whose writes commit atomically
//     and roll back in full when fn returns an error. Nested calls run in
//     the enclosing transaction.
type Repository interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error

	FindAccountByProvider(ctx context.Context, provider, providerUserID string) (*Account, error)
	FindEmailAccountByUserID(ctx context.Context, userID string) (*Account, error)
	CreateAccount(ctx context.Context, account *Account) error
	UpdateEmailAccountPassword(ctx context.Context, accountID, passwordDigest string) error

	FindSessionBySelector(ctx context.Context, selector string) (*Session, error)
	CreateSession(ctx context.Context, session *Session) error
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsByUserID(ctx context.Context, userID string) error

	FindEphemeralTokenBySelector(ctx context.Context, kind TokenKind, selector string) (*EphemeralToken, error)
	FindEphemeralTokenByState(ctx context.Context, state string) (*EphemeralToken, error)
	CreateEphemeralToken(ctx context.Context, tok *EphemeralToken) error
	DeleteEphemeralToken(ctx context.Context, id string) (bool, error)
	DeleteEphemeralTokensByUser(ctx context.Context, kind TokenKind, userID string) error

	RecordLoginAttempt(ctx context.Context, attempt *LoginAttempt) error
	CountRecentFailedAttempts(ctx context.Context, email string, window time.Duration) (int, error)

	Transaction(ctx context.Context, fn func(Repository) error) error
}

// EmailProvider delivers outbound mail. Sends are fire-and-forget from the
// engine's perspective: a failure is surfaced to the caller but does not
// unwind the token that was already issued.
type EmailProvider interface {
	SendVerificationEmail(ctx context.Context, email, link string) error
	SendPasswordResetEmail(ctx context.Context, email, link string) error
}

// OAuthTokens is the provider's response to a code exchange.
type OAuthTokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiresIn    int64
}

// OAuthUserInfo is the provider-asserted identity for a completed exchange.
type OAuthUserInfo struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// OAuthProvider is the outbound OAuth/OIDC port. Implementations perform
// the network calls; the engine owns state, PKCE, and account binding.
type OAuthProvider interface {
	Name() string
	AuthorizationURL(state, codeChallenge string, scopes []string) string
	Exchange(ctx context.Context, code, codeVerifier string) (OAuthTokens, error)
	UserInfo(ctx context.Context, tokens OAuthTokens) (OAuthUserInfo, error)
}

// SignUpResult is returned by [Engine.SignUp]. RawToken is the session
// token, shown exactly once.
type SignUpResult struct {
	User     *User
	Session  *Session
	RawToken string
}

// SignInResult is returned by [Engine.SignIn] and [Engine.OAuthCallback].
type SignInResult struct {
	User     *User
	Session  *Session
	RawToken string
}

// OAuthBeginResult is returned by [Engine.OAuthBegin]. State round-trips
// through the provider and back to [Engine.OAuthCallback].
type OAuthBeginResult struct {
	AuthorizationURL string
	State            string
}
