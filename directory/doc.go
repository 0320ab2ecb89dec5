// Package directory is the identity directory: the minimal account record
// keyed by canonical phone number.
//
// A [Store] persists identities. Two implementations ship with the package:
// [RedisStore] for single-store deployments and tests, and [PostgresStore]
// backed by pgx for durable deployments, whose schema is applied with
// [Migrate].
//
// [Directory.ResolveOrCreate] is the only path that creates an identity. An
// existing identity for the phone is returned unchanged; the supplied password
// hash and display name are then ignored.
package directory
