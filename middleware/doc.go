// Package middleware exposes HTTP middleware adapters built on top of
// phoneauth.Engine.
//
// # Middleware
//
//   - [RequireAccess] rejects requests without a valid access token.
//   - [OptionalAccess] attaches the identity when a valid token is present.
//   - [ClientContext] attaches the caller's address and User-Agent for the
//     abuse guard and audit log.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. All token
// decisions are delegated to Engine.VerifyAccess.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
package middleware
