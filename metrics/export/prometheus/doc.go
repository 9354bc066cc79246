// Package prometheus exposes goOTP engine metrics through
// prometheus/client_golang.
//
// [Collector] implements prometheus.Collector over
// [goOTP.Engine.MetricsSnapshot]; counters are named otp_*_total and the
// verify latency histogram is otp_verify_latency_seconds.
// [Collector.Handler] serves a private registry holding only this
// collector.
//
// # What this package must NOT do
//
//   - Register into the global Prometheus registry; callers choose the
//     Registerer.
//   - Mutate engine state.
package prometheus
