package keywarden

import (
	"errors"
	"log"
	"time"

	"github.com/keywarden/keywarden/password"
	"github.com/keywarden/keywarden/ratelimit"
	"github.com/keywarden/keywarden/token"
)

// Builder assembles an [Engine]. Construction is allocation-only until
// Build, which validates the configuration, computes the dummy digest, and
// starts the audit dispatcher.
type Builder struct {
	config Config

	repo      Repository
	limiter   ratelimit.Limiter
	email     EmailProvider
	oauth     map[string]OAuthProvider
	auditSink AuditSink
	logger    *log.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		oauth:  make(map[string]OAuthProvider),
	}
}

// WithConfig replaces the configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRepository sets the persistence port. Required.
func (b *Builder) WithRepository(repo Repository) *Builder {
	b.repo = repo
	return b
}

// WithRateLimiter sets the admission port. Defaults to an in-process
// token bucket when unset.
func (b *Builder) WithRateLimiter(limiter ratelimit.Limiter) *Builder {
	b.limiter = limiter
	return b
}

// WithEmailProvider sets the outbound mail port. Without it, verification
// and reset requests still issue tokens but no mail is sent.
func (b *Builder) WithEmailProvider(provider EmailProvider) *Builder {
	b.email = provider
	return b
}

// WithOAuthProvider registers one OAuth provider under its Name.
func (b *Builder) WithOAuthProvider(provider OAuthProvider) *Builder {
	if provider != nil {
		b.oauth[provider.Name()] = provider
	}
	return b
}

// WithAuditSink sets the audit destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger overrides the warn-path logger. Defaults to [log.Default].
func (b *Builder) WithLogger(logger *log.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source. Test hook.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates and assembles the Engine. A Builder builds once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.repo == nil {
		return nil, errors.New("repository is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(b.config.Password)
	if err != nil {
		return nil, err
	}

	// One digest of a throwaway random password, computed at build time so
	// the sign-in miss path never has to synthesize it per request.
	throwaway, err := token.NewOpaque(32)
	if err != nil {
		return nil, err
	}
	dummyDigest, err := hasher.Hash(throwaway)
	if err != nil {
		return nil, err
	}

	limiter := b.limiter
	if limiter == nil {
		limiter, err = defaultLimiter(b.config.RateLimit)
		if err != nil {
			return nil, err
		}
	}

	logger := b.logger
	if logger == nil {
		logger = log.Default()
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	engine := &Engine{
		config:      b.config,
		repo:        b.repo,
		limiter:     limiter,
		email:       b.email,
		oauth:       b.oauth,
		hasher:      hasher,
		metrics:     NewMetrics(b.config.Metrics),
		logger:      logger,
		dummyDigest: dummyDigest,
		now:         clock,
	}
	engine.sessions = newSessionManager(b.repo, b.config.Session, clock)
	engine.ephemeral = newEphemeralTokenManager(b.repo, b.config.Tokens, clock)
	engine.guard = newAccountGuard(b.repo, b.config.Lockout, clock)
	engine.audit = newAuditDispatcher(b.config.Audit, b.auditSink)

	b.built = true
	return engine, nil
}

// defaultLimiter wires in-process buckets per action from the configured
// policies.
func defaultLimiter(cfg RateLimitConfig) (ratelimit.Limiter, error) {
	login, err := ratelimit.NewMemory(cfg.Login)
	if err != nil {
		return nil, err
	}
	signup, err := ratelimit.NewMemory(cfg.Signup)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewPerAction(login).
		Set(ActionLogin, login).
		Set(ActionSignup, signup), nil
}
