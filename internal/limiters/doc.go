// Package limiters provides the abuse-resistance policies of phone
// authentication, built on top of the internal/rate primitives.
//
// # Limiters
//
//   - [AbuseGuard]: records authentication attempts and computes lockout per
//     phone and per network origin over a sliding window.
//   - [ChallengeRequestLimiter]: fixed-window cap on challenge requests per
//     origin.
//
// All limiters are nil-safe: calling any method on a nil receiver returns the
// zero result and no error.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace. Thresholds come from Config
// structs supplied at construction time. Callers pass the current time in, so
// decisions are reproducible in tests.
//
// # What this package must NOT do
//
//   - Import phoneauth or any sibling internal package except internal/rate.
//   - Make decisions beyond counting and thresholds; the engine decides
//     which outcomes are recorded and what a lockout means for the caller.
package limiters
