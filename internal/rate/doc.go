// Package rate provides the Redis counting primitives behind phone
// authentication throttles.
//
// # Window semantics
//
//   - [Counter]: fixed window. INCR + EXPIRE on first hit.
//   - [Window]: sliding window. One sorted-set member per event scored by
//     unix milliseconds; members older than the window are trimmed on write
//     and ignored on read.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the phoneauth module.
package rate
