package keywarden

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig is the flat environment surface. Only knobs an operator would
// plausibly turn at deploy time are exposed; everything else stays code.
type envConfig struct {
	PasswordMinLength int `env:"KEYWARDEN_PASSWORD_MIN_LENGTH"`
	PasswordMaxLength int `env:"KEYWARDEN_PASSWORD_MAX_LENGTH"`

	ArgonMemoryKiB   uint32 `env:"KEYWARDEN_ARGON_MEMORY_KIB"`
	ArgonTime        uint32 `env:"KEYWARDEN_ARGON_TIME"`
	ArgonParallelism uint8  `env:"KEYWARDEN_ARGON_PARALLELISM"`

	LoginLimitCapacity  int           `env:"KEYWARDEN_LOGIN_LIMIT_CAPACITY"`
	LoginLimitWindow    time.Duration `env:"KEYWARDEN_LOGIN_LIMIT_WINDOW"`
	SignupLimitCapacity int           `env:"KEYWARDEN_SIGNUP_LIMIT_CAPACITY"`
	SignupLimitWindow   time.Duration `env:"KEYWARDEN_SIGNUP_LIMIT_WINDOW"`

	LockoutThreshold    int           `env:"KEYWARDEN_LOCKOUT_THRESHOLD"`
	LockoutWindow       time.Duration `env:"KEYWARDEN_LOCKOUT_WINDOW"`
	LockoutLockDuration time.Duration `env:"KEYWARDEN_LOCKOUT_DURATION"`

	SessionTTL      time.Duration `env:"KEYWARDEN_SESSION_TTL"`
	VerificationTTL time.Duration `env:"KEYWARDEN_VERIFICATION_TTL"`
	ResetTTL        time.Duration `env:"KEYWARDEN_RESET_TTL"`
	OAuthStateTTL   time.Duration `env:"KEYWARDEN_OAUTH_STATE_TTL"`

	VerificationBaseURL  string `env:"KEYWARDEN_VERIFICATION_BASE_URL"`
	ResetBaseURL         string `env:"KEYWARDEN_RESET_BASE_URL"`
	RequireVerifiedEmail bool   `env:"KEYWARDEN_REQUIRE_VERIFIED_EMAIL"`
	DevelopmentMode      bool   `env:"KEYWARDEN_DEVELOPMENT_MODE"`
}

// ConfigFromEnv starts from [DefaultConfig] and overrides with any
// KEYWARDEN_* environment variables that are set. The result is validated.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	var e envConfig
	if err := env.Parse(&e); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if e.PasswordMinLength > 0 {
		cfg.PasswordPolicy.MinLength = e.PasswordMinLength
	}
	if e.PasswordMaxLength > 0 {
		cfg.PasswordPolicy.MaxLength = e.PasswordMaxLength
	}
	if e.ArgonMemoryKiB > 0 {
		cfg.Password.Memory = e.ArgonMemoryKiB
	}
	if e.ArgonTime > 0 {
		cfg.Password.Time = e.ArgonTime
	}
	if e.ArgonParallelism > 0 {
		cfg.Password.Parallelism = e.ArgonParallelism
	}
	if e.LoginLimitCapacity > 0 {
		cfg.RateLimit.Login.Capacity = e.LoginLimitCapacity
	}
	if e.LoginLimitWindow > 0 {
		cfg.RateLimit.Login.Window = e.LoginLimitWindow
	}
	if e.SignupLimitCapacity > 0 {
		cfg.RateLimit.Signup.Capacity = e.SignupLimitCapacity
	}
	if e.SignupLimitWindow > 0 {
		cfg.RateLimit.Signup.Window = e.SignupLimitWindow
	}
	if e.LockoutThreshold > 0 {
		cfg.Lockout.Threshold = e.LockoutThreshold
	}
	if e.LockoutWindow > 0 {
		cfg.Lockout.Window = e.LockoutWindow
	}
	if e.LockoutLockDuration > 0 {
		cfg.Lockout.LockDuration = e.LockoutLockDuration
	}
	if e.SessionTTL > 0 {
		cfg.Session.TTL = e.SessionTTL
	}
	if e.VerificationTTL > 0 {
		cfg.Tokens.VerificationTTL = e.VerificationTTL
	}
	if e.ResetTTL > 0 {
		cfg.Tokens.ResetTTL = e.ResetTTL
	}
	if e.OAuthStateTTL > 0 {
		cfg.Tokens.OAuthStateTTL = e.OAuthStateTTL
	}
	if e.VerificationBaseURL != "" {
		cfg.VerificationBaseURL = e.VerificationBaseURL
	}
	if e.ResetBaseURL != "" {
		cfg.ResetBaseURL = e.ResetBaseURL
	}
	cfg.RequireVerifiedEmail = cfg.RequireVerifiedEmail || e.RequireVerifiedEmail
	cfg.DevelopmentMode = e.DevelopmentMode

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
