// Package otel provides OpenTelemetry metric bindings for the engine's
// counters and histograms.
//
// [NewExporter] registers an Int64ObservableCounter per engine counter and
// an Int64ObservableGauge per histogram bucket. A single callback reads
// the engine's metrics snapshot on each collection cycle. The caller owns
// the MeterProvider and supplies the Meter.
package otel
