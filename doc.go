// Package veriauth provides an identity-verification and session-authentication
// engine. Account registration is gated by email ownership proof, and login
// issues Redis-backed opaque session tokens behind a rate limiter.
//
// The package is designed for concurrent server workloads: Manager methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// veriauth is the public surface. It exposes [Manager], [Builder], [Config],
// store interfaces ([CredentialStore], [PendingRegistrationStore]), the
// [Notifier] capability, and value types. Internal coordination such as rate
// limiting and audit dispatch lives under internal/ and is never exported.
//
// # What this package must NOT do
//
//   - Expose record encodings or Lua scripts in its public API.
//   - Perform I/O outside of Manager methods (construction via Builder is
//     allocation-only until Build).
//   - Hold any store state while waiting on the external Notifier.
//
// # State machine
//
// Per username: Unregistered -> PendingVerification (Register) -> Verified
// (VerifyEmail). A username exists in at most one of the credential and
// pending stores at any time, and every credential-store entry is verified.
package veriauth
