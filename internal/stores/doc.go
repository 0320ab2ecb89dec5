// Package stores provides the Redis-backed records behind phone verification:
// the OTP challenge slot per (phone, purpose) and the refresh-token
// revocation list.
//
// # Design
//
// A challenge slot holds the current challenge for one (phone, purpose) pair
// plus the hashes of recently retired codes. Every mutation of a slot runs
// inside a WATCH/MULTI optimistic transaction with bounded retry, so two
// concurrent issues cannot both create a live challenge and two concurrent
// verifications cannot both succeed against one challenge. Codes are stored
// only as hashes and compared in constant time.
//
// Slots are indexed in a sorted set scored by creation time. Purge walks the
// index up to a deadline and re-checks each slot under WATCH before deleting,
// so a challenge issued while the sweep runs is never removed.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control. It does NOT generate
// codes, decide lockouts, or map errors to user-facing outcomes.
//
// # What this package must NOT do
//
//   - Import phoneauth or any sibling internal package.
//   - Log or expose plaintext codes.
//   - Use non-constant-time comparisons for code matching.
package stores
