// Package prometheus exposes goIdentity engine metrics through
// prometheus/client_golang.
//
// [NewCollector] adapts a [goIdentity.Engine] to a prometheus.Collector that
// reads the engine snapshot on every scrape. Counter names are
// goidentity_*_total; password verification latency is the histogram
// goidentity_password_verify_seconds. [Handler] wires the collector into a
// private registry; it never touches the global default registry.
package prometheus
