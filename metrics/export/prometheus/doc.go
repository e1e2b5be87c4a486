// Package prometheus exposes engine metrics to Prometheus.
//
// [NewCollector] wraps a [keywarden.Engine] in a [prometheus.Collector]
// that reads the counter snapshot on every scrape. Counter names are
// prefixed keywarden_*_total; the single histogram is
// keywarden_validate_latency_seconds.
//
// The package never registers in the global Prometheus registry. Callers
// either mount [Collector.Handler], which serves a private registry, or
// register the collector in their own.
package prometheus
