// Package internal contains helpers that are private to phoneauth: phone
// number canonicalization and challenge code hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: orchestrators for the challenge lifecycle operations
//   - limiters: abuse guard and challenge request throttle
//   - rate: Redis fixed-window and sliding-window primitives
//   - stores: challenge slots and the revocation list
//
// # What this package must NOT do
//
//   - Export types that appear in the public phoneauth API.
//   - Be imported by any package outside the phoneauth module.
package internal
