package keywarden

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSignUpSuccess(t *testing.T) {
	repo := newMockRepository()
	engine, _ := newTestEngine(t, engineTestConfig(), repo)

	ctx := WithClientIP(WithUserAgent(context.Background(), "test-agent/1.0"), "203.0.113.9")
	result, err := engine.SignUp(ctx, "Alice@Example.com ", "a-long-enough-password")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	if result.User.Email != "alice@example.com" {
		t.Errorf("email not normalized: %q", result.User.Email)
	}
	if result.User.EmailVerified {
		t.Error("new user should start unverified")
	}
	if result.RawToken == "" {
		t.Fatal("no session token returned")
	}
	if result.Session.UserAgent != "test-agent/1.0" || result.Session.IP != "203.0.113.9" {
		t.Errorf("session metadata not captured: %+v", result.Session)
	}

	session, err := engine.ValidateSession(ctx, result.RawToken)
	if err != nil {
		t.Fatalf("fresh session should validate: %v", err)
	}
	if session.UserID != result.User.ID {
		t.Errorf("session bound to wrong user: %s", session.UserID)
	}

	account, err := repo.FindEmailAccountByUserID(ctx, result.User.ID)
	if err != nil {
		t.Fatalf("email account missing: %v", err)
	}
	if !strings.HasPrefix(account.PasswordDigest, "$argon2id$") {
		t.Errorf("digest not in PHC format: %q", account.PasswordDigest)
	}
	if strings.Contains(account.PasswordDigest, "a-long-enough-password") {
		t.Error("plaintext leaked into stored digest")
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	repo := newMockRepository()
	engine, _ := newTestEngine(t, engineTestConfig(), repo)

	signUpUser(t, engine, "dup@example.com", "a-long-enough-password")

	_, err := engine.SignUp(context.Background(), "dup@example.com", "another-long-password")
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("want ErrEmailExists, got %v", err)
	}

	// The failed transaction must not leave a second session behind.
	if got := repo.sessionCount(); got != 1 {
		t.Errorf("session count = %d, want 1", got)
	}
	if got := engine.MetricsSnapshot().Counters[MetricSignupDuplicate]; got != 1 {
		t.Errorf("duplicate counter = %d, want 1", got)
	}
}

func TestSignUpRejectsBadInput(t *testing.T) {
	engine, _ := newTestEngine(t, engineTestConfig(), newMockRepository())

	cases := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"empty email", "", "a-long-enough-password", ErrInvalidEmail},
		{"not an address", "not-an-email", "a-long-enough-password", ErrInvalidEmail},
		{"display name", `Alice <alice@example.com>`, "a-long-enough-password", ErrInvalidEmail},
		{"empty password", "a@example.com", "", ErrInvalidPassword},
		{"overlong password", "a@example.com", strings.Repeat("x", 600), ErrInvalidPassword},
		{"short password", "a@example.com", "short", ErrPasswordTooWeak},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.SignUp(context.Background(), tc.email, tc.password)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSignUpRateLimitedByIP(t *testing.T) {
	cfg := engineTestConfig()
	cfg.RateLimit.Signup.Capacity = 2

	engine, _ := newTestEngine(t, cfg, newMockRepository())
	ctx := WithClientIP(context.Background(), "192.0.2.1")

	for i := 0; i < 2; i++ {
		if _, err := engine.SignUp(ctx, fmt.Sprintf("user%d@example.com", i), "a-long-enough-password"); err != nil {
			t.Fatalf("sign-up %d failed: %v", i, err)
		}
	}

	_, err := engine.SignUp(ctx, "user3@example.com", "a-long-enough-password")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}

	// A different IP has its own bucket.
	other := WithClientIP(context.Background(), "192.0.2.2")
	if _, err := engine.SignUp(other, "user4@example.com", "a-long-enough-password"); err != nil {
		t.Fatalf("other IP should not share the bucket: %v", err)
	}
}

func TestSignUpSendsVerificationMail(t *testing.T) {
	cfg := engineTestConfig()
	cfg.VerificationBaseURL = "https://app.example.com/verify"

	repo := newMockRepository()
	email := &mockEmailProvider{}
	engine, _ := newTestEngine(t, cfg, repo, func(b *Builder) {
		b.WithEmailProvider(email)
	})

	result := signUpUser(t, engine, "mailme@example.com", "a-long-enough-password")

	link := email.lastVerifyLink(t)
	if !strings.HasPrefix(link, "https://app.example.com/verify?token=") {
		t.Fatalf("unexpected link shape: %s", link)
	}

	user, err := engine.ConfirmEmailVerification(context.Background(), tokenFromLink(t, link))
	if err != nil {
		t.Fatalf("mailed token should confirm: %v", err)
	}
	if user.ID != result.User.ID || !user.EmailVerified {
		t.Errorf("wrong confirmation result: %+v", user)
	}
}

func TestSignUpMailFailureDoesNotFailSignUp(t *testing.T) {
	cfg := engineTestConfig()
	cfg.VerificationBaseURL = "https://app.example.com/verify"

	email := &mockEmailProvider{sendErr: errors.New("smtp down")}
	engine, _ := newTestEngine(t, cfg, newMockRepository(), func(b *Builder) {
		b.WithEmailProvider(email)
	})

	if _, err := engine.SignUp(context.Background(), "mailfail@example.com", "a-long-enough-password"); err != nil {
		t.Fatalf("mail failure must not fail sign-up: %v", err)
	}
	if email.verifyCallCount != 1 {
		t.Errorf("send attempts = %d, want 1", email.verifyCallCount)
	}
}
