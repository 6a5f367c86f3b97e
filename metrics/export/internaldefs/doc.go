// Package internaldefs holds the metric names and bucket helpers shared by
// the Prometheus and OpenTelemetry exporters.
package internaldefs
