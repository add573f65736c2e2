// Package gradauth provides an authentication engine with signed JWT access
// tokens, rotating opaque refresh tokens, purpose-bound one-time tokens for
// email verification and password reset, and per-action sliding-window rate
// limiting.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// gradauth is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (SessionResult, UserRecord, etc.). The user database, the
// mail channel, and the third-party identity check are supplied by the caller
// through [UserDirectory], [Notifier], and [IdentityVerifier]. Token rows are
// reached only through the contracts in the store subpackage; the engine never
// sees secrets at rest, only their digests.
//
// # What this package must NOT do
//
//   - Expose Redis clients, store internals, or digest encoding details in
//     its public API.
//   - Persist or log a raw refresh or one-time secret after issuance.
//   - Translate storage failures into credential errors.
package gradauth
