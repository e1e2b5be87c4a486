// Package token implements the split-token primitive shared by sessions and
// one-time tokens: a short public selector used as an indexed lookup key and
// a longer secret verifier whose SHA-256 digest is the only thing persisted.
//
// Raw tokens are fixed-width base64url blobs (selector bytes followed by
// verifier bytes), so parsing is a length split with no delimiter scan and
// malformed input is rejected before any store access.
//
// # What this package must NOT do
//
//   - Persist or log a raw verifier.
//   - Perform I/O of any kind; it is pure computation over crypto/rand.
package token
