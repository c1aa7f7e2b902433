// Package internaldefs holds the metric names shared by the Prometheus and
// OTel exporters, so both publish identical names and bucket bounds.
//
// It must not import an exporter package or perform I/O.
package internaldefs
