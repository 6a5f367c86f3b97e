// Package otel exports goIdentity engine metrics as OpenTelemetry observable
// instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per engine counter
// and one Int64ObservableGauge per histogram bucket, plus count and sum
// gauges. A single callback reads [goIdentity.Engine.MetricsSnapshot] on each
// collection cycle. Callers own the MeterProvider.
package otel
