// Package otel publishes goNoPass client metrics through an OpenTelemetry
// Meter.
//
// [NewOTelExporter] registers observable instruments that a single callback
// fills from [goNoPass.Client.MetricsSnapshot] on each collection cycle:
//
//   - gonopass.calls, attributed by operation (auth, validation) and
//     outcome (request, success, failure)
//   - gonopass.errors, attributed by kind, using the same kind strings as
//     [goNoPass.AuditEvent.Error]
//   - gonopass.round_trip.bucket, one cumulative gauge series per le bound,
//     plus gonopass.round_trip.count and gonopass.round_trip.sum in seconds
//   - gonopass.audit.dropped
//
// The exporter never owns the MeterProvider and never mutates client state.
package otel
