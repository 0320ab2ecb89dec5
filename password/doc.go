// Package password implements password hashing and verification with Argon2id
// and the acceptance policy applied to new passwords.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can re-hash on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing, verification and the content policy. Where a
// password is stored and when the policy runs is decided by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other phoneauth package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
