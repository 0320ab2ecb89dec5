// Package phoneauth provides phone-number authentication: one-time codes
// delivered by SMS, password login, and JWT access/refresh credentials, all
// backed by Redis.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// phoneauth is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (AuthResult, ChallengeReceipt, Stats). Flow orchestration,
// challenge encoding, the abuse guard, and audit dispatch live under
// internal/ and are never exported. SMS providers live in delivery/ and
// identity persistence in directory/.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Store or log a plaintext code or password.
//   - Import any sub-package that re-imports phoneauth (no import cycles).
//
// # Consistency
//
// Each (phone, purpose) pair has at most one live challenge. Issue and
// verify are single-key compare-and-swap transactions, so concurrent
// verifications of one code have exactly one winner.
package phoneauth
