package keywarden

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func verificationTestEngine(t *testing.T) (*Engine, *mockRepository, *mockEmailProvider, *fakeClock) {
	t.Helper()

	cfg := engineTestConfig()
	cfg.VerificationBaseURL = "https://app.example.com/verify"

	repo := newMockRepository()
	email := &mockEmailProvider{}
	engine, clock := newTestEngine(t, cfg, repo, func(b *Builder) {
		b.WithEmailProvider(email)
	})
	return engine, repo, email, clock
}

func TestRequestEmailVerificationUnknownAddressSilent(t *testing.T) {
	engine, repo, email, _ := verificationTestEngine(t)

	if err := engine.RequestEmailVerification(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("unknown address must report success: %v", err)
	}
	if email.verifyCallCount != 0 {
		t.Error("no mail should be sent for an unknown address")
	}
	if got := repo.tokenCount(TokenKindEmailVerification); got != 0 {
		t.Errorf("token count = %d, want 0", got)
	}
}

func TestRequestEmailVerificationAlreadyVerifiedSilent(t *testing.T) {
	engine, repo, email, _ := verificationTestEngine(t)

	result := signUpUser(t, engine, "quinn@example.com", "a-long-enough-password")
	raw := tokenFromLink(t, email.lastVerifyLink(t))
	if _, err := engine.ConfirmEmailVerification(context.Background(), raw); err != nil {
		t.Fatalf("confirmation failed: %v", err)
	}

	sends := email.verifyCallCount
	if err := engine.RequestEmailVerification(context.Background(), result.User.Email); err != nil {
		t.Fatalf("verified address must report success: %v", err)
	}
	if email.verifyCallCount != sends {
		t.Error("no mail should be sent for an already verified address")
	}
	if got := repo.tokenCount(TokenKindEmailVerification); got != 0 {
		t.Errorf("token count = %d, want 0", got)
	}
}

func TestConfirmEmailVerificationSingleUse(t *testing.T) {
	engine, _, email, _ := verificationTestEngine(t)

	signUpUser(t, engine, "rita@example.com", "a-long-enough-password")
	raw := tokenFromLink(t, email.lastVerifyLink(t))

	user, err := engine.ConfirmEmailVerification(context.Background(), raw)
	if err != nil {
		t.Fatalf("first confirmation failed: %v", err)
	}
	if !user.EmailVerified {
		t.Fatal("user should be verified")
	}

	_, err = engine.ConfirmEmailVerification(context.Background(), raw)
	if !errors.Is(err, ErrEmailVerificationInvalid) {
		t.Fatalf("second redemption: want ErrEmailVerificationInvalid, got %v", err)
	}
}

func TestConfirmEmailVerificationExpired(t *testing.T) {
	cfg := engineTestConfig()
	cfg.VerificationBaseURL = "https://app.example.com/verify"
	cfg.Tokens.VerificationTTL = time.Hour

	repo := newMockRepository()
	email := &mockEmailProvider{}
	engine, clock := newTestEngine(t, cfg, repo, func(b *Builder) {
		b.WithEmailProvider(email)
	})

	signUpUser(t, engine, "sven@example.com", "a-long-enough-password")
	raw := tokenFromLink(t, email.lastVerifyLink(t))

	clock.Advance(2 * time.Hour)
	_, err := engine.ConfirmEmailVerification(context.Background(), raw)
	if !errors.Is(err, ErrEmailVerificationExpired) {
		t.Fatalf("want ErrEmailVerificationExpired, got %v", err)
	}

	// Expired is still consumed: trying again is now invalid, not expired.
	_, err = engine.ConfirmEmailVerification(context.Background(), raw)
	if !errors.Is(err, ErrEmailVerificationInvalid) {
		t.Fatalf("want ErrEmailVerificationInvalid, got %v", err)
	}
}

func TestReRequestInvalidatesOlderToken(t *testing.T) {
	engine, repo, email, _ := verificationTestEngine(t)

	result := signUpUser(t, engine, "tina@example.com", "a-long-enough-password")
	first := tokenFromLink(t, email.lastVerifyLink(t))

	if err := engine.RequestEmailVerification(context.Background(), result.User.Email); err != nil {
		t.Fatalf("re-request failed: %v", err)
	}
	second := tokenFromLink(t, email.lastVerifyLink(t))

	if got := repo.tokenCount(TokenKindEmailVerification); got != 1 {
		t.Fatalf("outstanding tokens = %d, want 1", got)
	}
	if _, err := engine.ConfirmEmailVerification(context.Background(), first); !errors.Is(err, ErrEmailVerificationInvalid) {
		t.Fatalf("older link should be dead, got %v", err)
	}
	if _, err := engine.ConfirmEmailVerification(context.Background(), second); err != nil {
		t.Fatalf("newest link should work: %v", err)
	}
}

func TestConfirmEmailVerificationMalformedToken(t *testing.T) {
	engine, _, _, _ := verificationTestEngine(t)

	for _, raw := range []string{"", "junk", "AAAAAAAAAAAAAAAA"} {
		if _, err := engine.ConfirmEmailVerification(context.Background(), raw); !errors.Is(err, ErrEmailVerificationInvalid) {
			t.Errorf("ConfirmEmailVerification(%q): want ErrEmailVerificationInvalid, got %v", raw, err)
		}
	}
}

func TestConfirmEmailVerificationConcurrentExactlyOnce(t *testing.T) {
	engine, _, email, _ := verificationTestEngine(t)

	signUpUser(t, engine, "uma@example.com", "a-long-enough-password")
	raw := tokenFromLink(t, email.lastVerifyLink(t))

	const redeemers = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int64
	)
	start := make(chan struct{})

	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := engine.ConfirmEmailVerification(context.Background(), raw); err == nil {
				successes.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Fatalf("successful redemptions = %d, want exactly 1", got)
	}
}
