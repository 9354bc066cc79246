// Package otel binds goOTP engine metrics to an OpenTelemetry Meter.
//
// [NewExporter] registers one observable counter per engine counter. The
// verify latency histogram is published as a "_bucket" gauge carrying an
// "le" attribute, plus "_count" and "_sum" counters. A single callback reads
// [goOTP.Engine.MetricsSnapshot] per collection cycle.
//
// The caller owns the MeterProvider.
package otel
