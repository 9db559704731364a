// Package signer is the tamper-evident token primitive consumed by the
// tokenlife engine. [Manager] mints and verifies JWTs (Ed25519 by default,
// HS256 optional) with key-id based verification key sets for rotation.
//
// The engine depends only on the [Signer] interface; tests substitute a
// deterministic fake.
//
// # What this package must NOT do
//
//   - Touch Redis or any engine state.
//   - Decide token lifetimes or lifecycle policy; callers pass the TTL.
package signer
