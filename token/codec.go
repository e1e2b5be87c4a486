package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

const (
	// SelectorSize is the byte length of the public half of a split token.
	SelectorSize = 12
	// VerifierSize is the byte length of the secret half of a split token.
	VerifierSize = 32

	splitRawSize = SelectorSize + VerifierSize

	// MinOpaqueSize is the smallest entropy accepted for any
	// security-sensitive opaque token.
	MinOpaqueSize = 16
)

// RawTokenLength is the encoded length of every raw split token. Callers can
// reject oversized input before decoding.
var RawTokenLength = base64.RawURLEncoding.EncodedLen(splitRawSize)

// DigestSize is the byte length of Digest output.
const DigestSize = sha256.Size

// Split carries one freshly generated split token. Raw is returned to the
// end user exactly once; only Digest(Verifier) may be written to storage.
type Split struct {
	Selector string
	Verifier []byte
	Raw      string
}

// NewOpaque returns n cryptographically random bytes encoded as unpadded
// base64url. n below MinOpaqueSize is an error, not a silent clamp.
func NewOpaque(n int) (string, error) {
	if n < MinOpaqueSize {
		return "", errors.New("opaque token entropy below minimum")
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateSplit creates a selector+verifier pair and the raw token encoding
// both halves.
func GenerateSplit() (Split, error) {
	var raw [splitRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return Split{}, err
	}

	verifier := make([]byte, VerifierSize)
	copy(verifier, raw[SelectorSize:])

	return Split{
		Selector: base64.RawURLEncoding.EncodeToString(raw[:SelectorSize]),
		Verifier: verifier,
		Raw:      base64.RawURLEncoding.EncodeToString(raw[:]),
	}, nil
}

// ParseSplit splits a presented raw token back into selector and verifier.
// Malformed input returns ok=false; it is never an error value, so callers
// cannot leak parse failures as distinct outcomes.
func ParseSplit(raw string) (selector string, verifier []byte, ok bool) {
	if len(raw) != RawTokenLength {
		return "", nil, false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil || len(decoded) != splitRawSize {
		return "", nil, false
	}

	verifier = make([]byte, VerifierSize)
	copy(verifier, decoded[SelectorSize:])

	return base64.RawURLEncoding.EncodeToString(decoded[:SelectorSize]), verifier, true
}

// Digest computes the SHA-256 digest stored in place of a secret.
func Digest(secret []byte) [DigestSize]byte {
	return sha256.Sum256(secret)
}

// DigestString is Digest over a string secret without an extra copy escaping.
func DigestString(secret string) [DigestSize]byte {
	return sha256.Sum256([]byte(secret))
}

// ConstantTimeEqual compares two byte slices in time dependent only on their
// length, never their content. Differing lengths return false up front;
// length is not secret here, content is.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ConstantTimeEqualString is ConstantTimeEqual over strings.
func ConstantTimeEqualString(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// NewPKCEPair returns an OAuth code verifier and its S256 challenge.
func NewPKCEPair() (verifier, challenge string, err error) {
	verifier, err = NewOpaque(32)
	if err != nil {
		return "", "", err
	}

	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:]), nil
}
