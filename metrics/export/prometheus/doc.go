// Package prometheus renders phoneauth metrics in Prometheus text
// exposition format.
//
// [NewExporter] accepts a [phoneauth.Engine] and exposes an [http.Handler].
// Counter names are prefixed phoneauth_*_total; the single histogram is
// phoneauth_verify_access_latency_seconds. The delivery queue depth is a
// gauge.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
