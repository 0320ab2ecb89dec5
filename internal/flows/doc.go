// Package flows contains pure-function orchestrators for the Engine's
// challenge and credential operations.
//
// Each flow function (RunRequestChallenge, RunVerifyChallenge, RunLogin,
// RunResetPassword) accepts a typed dependency struct and returns results
// without side-effects beyond those dependencies. The Engine builds the
// dependency set once and delegates to the matching flow.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the challenge store, abuse guard,
// request throttle, identity directory, delivery pipeline, audit dispatcher,
// and metrics. They do NOT own any of these resources; ownership stays with
// the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import phoneauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
