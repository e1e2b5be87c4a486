package keywarden

import (
	"errors"
	"time"

	"github.com/keywarden/keywarden/password"
	"github.com/keywarden/keywarden/ratelimit"
)

// PasswordPolicyConfig bounds accepted plaintext lengths. Composition rules
// (classes of characters) are deliberately not enforced; length is the only
// policy with evidence behind it.
type PasswordPolicyConfig struct {
	MinLength int
	MaxLength int
}

// RateLimitConfig holds per-action bucket policies. Identifiers are the
// normalized email for login and the client IP for signup.
type RateLimitConfig struct {
	Login  ratelimit.Config
	Signup ratelimit.Config
}

// LockoutConfig tunes failed-login lockout. Threshold failures within
// Window lock the account for LockDuration. The lock lifts implicitly when
// the timestamp passes; AdminUnlock clears it early.
type LockoutConfig struct {
	Enabled      bool
	Window       time.Duration
	Threshold    int
	LockDuration time.Duration
}

// SessionConfig tunes session issuance.
type SessionConfig struct {
	TTL time.Duration
}

// TokenConfig holds per-kind ephemeral token lifetimes.
type TokenConfig struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	OAuthStateTTL   time.Duration
}

// AuditConfig tunes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig tunes the in-process metrics collector.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Config is the full engine configuration. Zero value is not usable; start
// from [DefaultConfig] or [HighSecurityConfig] and adjust.
type Config struct {
	Password       password.Config
	PasswordPolicy PasswordPolicyConfig
	RateLimit      RateLimitConfig
	Lockout        LockoutConfig
	Session        SessionConfig
	Tokens         TokenConfig
	Audit          AuditConfig
	Metrics        MetricsConfig

	// VerificationBaseURL and ResetBaseURL are the link prefixes embedded
	// in outbound emails; the raw token is appended as a query parameter.
	VerificationBaseURL string
	ResetBaseURL        string

	// RequireVerifiedEmail gates sign-in on a verified address.
	RequireVerifiedEmail bool

	// DevelopmentMode attaches free-text detail to DescribeError output.
	// Must stay false in any production posture.
	DevelopmentMode bool
}

// DefaultConfig returns the baseline policy: Argon2id at interactive cost,
// 5 login attempts per 15 minutes per email, lockout after 5 recent
// failures, 30-day sessions, 24h/1h/10m token lifetimes.
func DefaultConfig() Config {
	return Config{
		Password: password.DefaultConfig(),
		PasswordPolicy: PasswordPolicyConfig{
			MinLength: 10,
			MaxLength: 512,
		},
		RateLimit: RateLimitConfig{
			Login:  ratelimit.Config{Capacity: 5, Window: 15 * time.Minute},
			Signup: ratelimit.Config{Capacity: 10, Window: time.Hour},
		},
		Lockout: LockoutConfig{
			Enabled:      true,
			Window:       15 * time.Minute,
			Threshold:    5,
			LockDuration: 30 * time.Minute,
		},
		Session: SessionConfig{TTL: 30 * 24 * time.Hour},
		Tokens: TokenConfig{
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
			OAuthStateTTL:   10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// HighSecurityConfig tightens the baseline: heavier hashing, verified email
// required, shorter sessions, stricter lockout.
func HighSecurityConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 128 * 1024
	cfg.Password.Time = 4
	cfg.PasswordPolicy.MinLength = 12
	cfg.RateLimit.Login = ratelimit.Config{Capacity: 3, Window: 15 * time.Minute}
	cfg.Lockout.Threshold = 3
	cfg.Lockout.LockDuration = time.Hour
	cfg.Session.TTL = 24 * time.Hour
	cfg.Tokens.ResetTTL = 30 * time.Minute
	cfg.RequireVerifiedEmail = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.PasswordPolicy.MinLength < 1 {
		return errors.New("config: password min length must be positive")
	}
	if c.PasswordPolicy.MaxLength < c.PasswordPolicy.MinLength {
		return errors.New("config: password max length below min length")
	}
	if c.RateLimit.Login.Capacity <= 0 || c.RateLimit.Login.Window <= 0 {
		return errors.New("config: login rate limit requires positive capacity and window")
	}
	if c.RateLimit.Signup.Capacity <= 0 || c.RateLimit.Signup.Window <= 0 {
		return errors.New("config: signup rate limit requires positive capacity and window")
	}
	if c.Lockout.Enabled {
		if c.Lockout.Threshold <= 0 {
			return errors.New("config: lockout threshold must be positive")
		}
		if c.Lockout.Window <= 0 || c.Lockout.LockDuration <= 0 {
			return errors.New("config: lockout window and duration must be positive")
		}
	}
	if c.Session.TTL <= 0 {
		return errors.New("config: session ttl must be positive")
	}
	if c.Tokens.VerificationTTL <= 0 || c.Tokens.ResetTTL <= 0 || c.Tokens.OAuthStateTTL <= 0 {
		return errors.New("config: token ttls must be positive")
	}
	if _, err := password.NewHasher(c.Password); err != nil {
		return err
	}
	return nil
}
