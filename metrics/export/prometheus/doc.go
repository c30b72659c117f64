// Package prometheus exposes goNoPass client metrics as a Prometheus
// collector.
//
// [NewPrometheusExporter] accepts a [goNoPass.Client]. The exporter can be
// registered on any prometheus.Registerer, or mounted directly through
// [PrometheusExporter.Handler]. Counter names are prefixed gonopass_*_total;
// the single histogram is gonopass_round_trip_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate client state.
package prometheus
