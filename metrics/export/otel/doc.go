// Package otel publishes controller metrics through an OpenTelemetry Meter.
//
// Each counter becomes an Int64ObservableCounter and each histogram bucket an
// Int64ObservableGauge. One callback reads Controller.MetricsSnapshot per
// collection. Callers own the MeterProvider.
package otel
