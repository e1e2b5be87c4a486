package keywarden

import (
	"context"
	"errors"
	"testing"
	"time"
)

func resetTestEngine(t *testing.T) (*Engine, *mockRepository, *mockEmailProvider, *fakeClock) {
	t.Helper()

	cfg := engineTestConfig()
	cfg.ResetBaseURL = "https://app.example.com/reset"

	repo := newMockRepository()
	email := &mockEmailProvider{}
	engine, clock := newTestEngine(t, cfg, repo, func(b *Builder) {
		b.WithEmailProvider(email)
	})
	return engine, repo, email, clock
}

func TestRequestPasswordResetUnknownAddressSilent(t *testing.T) {
	engine, repo, email, _ := resetTestEngine(t)

	if err := engine.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("unknown address must report success: %v", err)
	}
	if email.resetCallCount != 0 {
		t.Error("no mail should be sent for an unknown address")
	}
	if got := repo.tokenCount(TokenKindPasswordReset); got != 0 {
		t.Errorf("token count = %d, want 0", got)
	}
}

func TestRequestPasswordResetOAuthOnlyUserSilent(t *testing.T) {
	engine, repo, email, _ := resetTestEngine(t)

	user := &User{ID: "u-sso", Email: "sso@example.com"}
	repo.CreateUser(context.Background(), user)
	repo.CreateAccount(context.Background(), &Account{
		ID:             "a-sso",
		UserID:         user.ID,
		Provider:       "corp-idp",
		ProviderUserID: "subject-9",
	})

	if err := engine.RequestPasswordReset(context.Background(), "sso@example.com"); err != nil {
		t.Fatalf("OAuth-only user must report success: %v", err)
	}
	if email.resetCallCount != 0 {
		t.Error("no mail should be sent for a user without a password")
	}
}

func TestConfirmPasswordReset(t *testing.T) {
	engine, repo, email, _ := resetTestEngine(t)

	result := signUpUser(t, engine, "vera@example.com", "the-original-password")
	extra, err := engine.SignIn(context.Background(), "vera@example.com", "the-original-password")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	if err := engine.RequestPasswordReset(context.Background(), "vera@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	raw := tokenFromLink(t, email.lastResetLink(t))

	user, err := engine.ConfirmPasswordReset(context.Background(), raw, "the-replacement-password")
	if err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}
	if user.ID != result.User.ID {
		t.Errorf("reset resolved wrong user: %s", user.ID)
	}

	// Old credential is dead, new one works.
	if _, err := engine.SignIn(context.Background(), "vera@example.com", "the-original-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should fail, got %v", err)
	}
	if _, err := engine.SignIn(context.Background(), "vera@example.com", "the-replacement-password"); err != nil {
		t.Fatalf("new password should work: %v", err)
	}

	// Every pre-reset session is revoked.
	for _, token := range []string{result.RawToken, extra.RawToken} {
		if _, err := engine.ValidateSession(context.Background(), token); !errors.Is(err, ErrSessionInvalid) {
			t.Errorf("pre-reset session should be revoked, got %v", err)
		}
	}
	if got := repo.tokenCount(TokenKindPasswordReset); got != 0 {
		t.Errorf("token count after reset = %d, want 0", got)
	}
}

func TestConfirmPasswordResetSingleUse(t *testing.T) {
	engine, _, email, _ := resetTestEngine(t)

	signUpUser(t, engine, "walt@example.com", "the-original-password")
	if err := engine.RequestPasswordReset(context.Background(), "walt@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	raw := tokenFromLink(t, email.lastResetLink(t))

	if _, err := engine.ConfirmPasswordReset(context.Background(), raw, "the-replacement-password"); err != nil {
		t.Fatalf("first redemption failed: %v", err)
	}
	_, err := engine.ConfirmPasswordReset(context.Background(), raw, "yet-another-password-1")
	if !errors.Is(err, ErrPasswordResetInvalid) {
		t.Fatalf("second redemption: want ErrPasswordResetInvalid, got %v", err)
	}
}

func TestConfirmPasswordResetExpired(t *testing.T) {
	engine, _, email, clock := resetTestEngine(t)

	signUpUser(t, engine, "xena@example.com", "the-original-password")
	if err := engine.RequestPasswordReset(context.Background(), "xena@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	raw := tokenFromLink(t, email.lastResetLink(t))

	clock.Advance(2 * time.Hour)
	_, err := engine.ConfirmPasswordReset(context.Background(), raw, "the-replacement-password")
	if !errors.Is(err, ErrPasswordResetExpired) {
		t.Fatalf("want ErrPasswordResetExpired, got %v", err)
	}

	// The late token is consumed; the old password still works.
	if _, err := engine.SignIn(context.Background(), "xena@example.com", "the-original-password"); err != nil {
		t.Fatalf("password should be unchanged: %v", err)
	}
}

func TestConfirmPasswordResetEnforcesPolicy(t *testing.T) {
	engine, repo, email, _ := resetTestEngine(t)

	signUpUser(t, engine, "yuri@example.com", "the-original-password")
	if err := engine.RequestPasswordReset(context.Background(), "yuri@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	raw := tokenFromLink(t, email.lastResetLink(t))

	_, err := engine.ConfirmPasswordReset(context.Background(), raw, "short")
	if !errors.Is(err, ErrPasswordTooWeak) {
		t.Fatalf("want ErrPasswordTooWeak, got %v", err)
	}

	// A policy rejection happens before redemption; the link survives.
	if got := repo.tokenCount(TokenKindPasswordReset); got != 1 {
		t.Fatalf("token count = %d, want 1", got)
	}
	if _, err := engine.ConfirmPasswordReset(context.Background(), raw, "an-acceptable-password"); err != nil {
		t.Fatalf("retry with valid password failed: %v", err)
	}
}

func TestConfirmPasswordResetClearsLockout(t *testing.T) {
	cfg := engineTestConfig()
	cfg.ResetBaseURL = "https://app.example.com/reset"
	cfg.RateLimit.Login.Capacity = 20
	cfg.Lockout.Threshold = 3

	repo := newMockRepository()
	email := &mockEmailProvider{}
	engine, _ := newTestEngine(t, cfg, repo, func(b *Builder) {
		b.WithEmailProvider(email)
	})

	signUpUser(t, engine, "zoe@example.com", "the-original-password")
	for i := 0; i < 3; i++ {
		engine.SignIn(context.Background(), "zoe@example.com", "wrong-password-guess")
	}
	if _, err := engine.SignIn(context.Background(), "zoe@example.com", "the-original-password"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("want ErrAccountLocked, got %v", err)
	}

	if err := engine.RequestPasswordReset(context.Background(), "zoe@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	raw := tokenFromLink(t, email.lastResetLink(t))
	if _, err := engine.ConfirmPasswordReset(context.Background(), raw, "the-replacement-password"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	// The reset proves control of the mailbox; the lock and failure
	// history no longer apply.
	repo.mu.Lock()
	repo.attempts = nil
	repo.mu.Unlock()
	if _, err := engine.SignIn(context.Background(), "zoe@example.com", "the-replacement-password"); err != nil {
		t.Fatalf("sign-in after reset failed: %v", err)
	}
}
