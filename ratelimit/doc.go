// Package ratelimit provides request-admission buckets keyed by
// (identifier, action).
//
// The [Limiter] port is what the engine consumes: a non-consuming Check,
// an atomic Consume, and a Reset used after a successful action. Two
// implementations ship with it: [Memory], a token bucket with lazy linear
// refill held in process, and [Redis], a counter-with-TTL scheme for
// multi-instance deployments.
//
// Bucket state is admission bookkeeping, not durable data; neither
// implementation promises survival across process or backend restarts.
package ratelimit
