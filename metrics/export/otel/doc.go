// Package otel binds engine metrics to OpenTelemetry observable instruments.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per latency bucket, all fed by a single callback
// that reads sessioncap.Engine.MetricsSnapshot. The caller owns the
// MeterProvider.
package otel
