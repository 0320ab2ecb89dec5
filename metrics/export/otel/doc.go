// Package otel binds phoneauth metrics to OpenTelemetry instruments.
//
// [NewExporter] registers an Int64ObservableCounter per counter, an
// Int64ObservableGauge per histogram bucket, and a gauge for the delivery
// queue depth. A single callback reads the engine snapshot on each
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
