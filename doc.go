// Package tokenlife manages the lifecycle of authentication tokens: issuing
// access/refresh/id token sets, validating presented access tokens, rotating
// refresh tokens, revoking tokens, and tracking active sessions per user.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// tokenlife is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (TokenSet, ValidationResult, RevocationRecord, etc.). All
// internal coordination (refresh orchestration, redis-backed state, event
// dispatch) lives under internal/ and is never exported. The signing
// primitive is an injected [signer.Signer]; this package makes no
// cryptographic choices of its own.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or key layouts in its public API.
//   - Store user credentials or perform authentication. Callers hand an
//     already-authenticated identity to [Engine.CreateTokenSet].
//   - Block issuance or validation on event subscribers.
//
// # State model
//
// A TokenSet is Active until it is Refreshed, Revoked, or Expired. Refreshed
// and Revoked are terminal for that set (a rotation produces a new set).
// Expiry is implicit: validators and the refresh coordinator treat an expired
// token as absent even before any cleanup runs.
package tokenlife
