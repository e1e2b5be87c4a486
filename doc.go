// Package keywarden provides a storage-agnostic authentication engine:
// credential verification, split-token sessions, rate limiting, account
// lockout, and single-use tokens for email verification, password reset,
// and OAuth state.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build]. Persistence, outbound email, and OAuth network calls are
// supplied by the host application through the [Repository],
// [EmailProvider], and [OAuthProvider] ports.
//
// # Architecture boundaries
//
// keywarden is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator ports, and the record types they trade in. Leaf packages
// hold reusable mechanisms: token (split-token codec), password (Argon2id),
// ratelimit (admission buckets), repository/postgres and repository/memory
// (reference stores), oauth (OIDC adapter), middleware (HTTP helper).
//
// # What this package must NOT do
//
//   - Persist or log a raw verifier, a plaintext password, or a password digest.
//   - Distinguish "record never existed" from "secret wrong" in any outcome.
//   - Hold locks across Repository calls; cross-record atomicity is always
//     expressed as a single [Repository.Transaction].
//
// # Security contract
//
// Session and one-time tokens are split tokens: the selector half is an
// indexable lookup key and may appear in logs; the verifier half exists in
// memory only and is compared by digest in constant time. Sign-in performs a
// fixed-cost dummy hash verification when the email is unknown so response
// timing does not reveal account existence.
package keywarden
