package password

import (
	"strings"
	"testing"
)

func testConfig() Config {
	// Low-cost parameters keep the suite fast; still above validation floors.
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	digest, err := hasher.Hash("Secur3Pass!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if !strings.HasPrefix(digest, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", digest)
	}

	if !hasher.Verify("Secur3Pass!", digest) {
		t.Fatal("expected verification to succeed")
	}
	if hasher.Verify("Secur3Pass?", digest) {
		t.Fatal("expected wrong password to fail")
	}
}

func TestHashSaltsDiffer(t *testing.T) {
	hasher, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	first, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	second, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if first == second {
		t.Fatal("two hashes of the same password must differ")
	}
	if !hasher.Verify("same-password", first) || !hasher.Verify("same-password", second) {
		t.Fatal("both digests must verify")
	}
}

func TestVerifyMalformedDigestIsFalse(t *testing.T) {
	hasher, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	for name, digest := range map[string]string{
		"empty":         "",
		"not phc":       "plaintext",
		"bad algorithm": "$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"bad version":   "$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"bad params":    "$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"bad base64":    "$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA",
	} {
		if hasher.Verify("anything", digest) {
			t.Errorf("%s: malformed digest verified as true", name)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	weak, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	strong, err := NewHasher(Config{
		Memory:      16 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	digest, err := weak.Hash("upgrade-me")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if weak.NeedsRehash(digest) {
		t.Fatal("digest at current costs should not need rehash")
	}
	if !strong.NeedsRehash(digest) {
		t.Fatal("digest below current costs should need rehash")
	}
	if !strong.NeedsRehash("garbage") {
		t.Fatal("malformed digest should report rehash needed")
	}
	if !strong.Verify("upgrade-me", digest) {
		t.Fatal("stronger hasher must still verify older digest")
	}
}

func TestNewHasherRejectsWeakConfig(t *testing.T) {
	bad := []Config{
		{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 8192, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 8192, Time: 1, Parallelism: 0, SaltLength: 16, KeyLength: 32},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 32},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	}
	for i, cfg := range bad {
		if _, err := NewHasher(cfg); err == nil {
			t.Errorf("config %d: expected validation error", i)
		}
	}
}
