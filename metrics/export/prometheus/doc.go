// Package prometheus renders controller metrics in Prometheus text format.
//
// Counters are named amfa_*_total and the backend latency histogram is
// amfa_backend_latency_seconds. Nothing is registered globally; callers mount
// Handler or print Render.
package prometheus
