// Package metrics holds the in-process counters behind the phoneauth
// metric IDs: challenge outcomes, deliveries, logins, refreshes and
// retention purges, plus an optional access-verification latency
// histogram.
//
// Writes are single atomic adds on padded slots and never allocate, so
// they are safe on every request path. Readers take a [Snapshot]; the
// exporters under metrics/export render snapshots and this package never
// does I/O itself. It must not import phoneauth.
package metrics
