// Package middleware exposes HTTP adapters for session enforcement built
// on top of keywarden.Engine validation.
//
// [RequireSession] reads the Authorization header, calls
// Engine.ValidateSession, and injects the validated session into the
// request context, where handlers read it back with [SessionFromContext].
// [Annotate] attaches the client IP and User-Agent to the request context
// for the engine's rate limiting and session metadata.
//
// This package translates HTTP semantics into Engine calls; it makes no
// authorization decisions of its own.
package middleware
