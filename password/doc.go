// Package password implements credential hashing and verification with
// Argon2id.
//
// # Output format
//
// Digests are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Every call to [Hasher.Hash] draws a fresh random salt, so two digests of
// the same password never match. [Hasher.Verify] recomputes from the
// parameters embedded in the digest and never reports malformed input as an
// error: a digest that cannot be parsed simply fails verification, which
// keeps the failure surface identical to a wrong password.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length
// bounds, reuse) is enforced by the Engine before plaintext reaches it.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords — callers supply plaintext and receive digests.
//   - Import any other keywarden package.
//   - Log plaintext passwords or digest parameters at runtime.
package password
