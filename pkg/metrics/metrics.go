// Package metrics exposes the Prometheus registry used by web-cache-counter.
// The metrics themselves are defined in their own packages (counter, store,
// fetch) and registered there through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package registers its metrics with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer the scrape handler reads from.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Caching counter (pkg/counter):
//   - webcount_cache_hits_total (Counter): calls served from the cache
//   - webcount_cache_misses_total (Counter): calls that invoked the fetch
//   - webcount_fetch_errors_total (Counter): wrapped fetch failures
//   - webcount_store_errors_total{operation} (Counter): store errors seen by the wrapper
//   - webcount_fetch_duration_seconds (Histogram): wrapped fetch latency
//
// Store (pkg/store):
//   - webcount_store_operations_total{backend, operation, result} (Counter)
//
// HTTP fetcher (pkg/fetch):
//   - webcount_http_requests_total{status} (Counter)
//   - webcount_http_request_duration_seconds (Histogram)
//   - webcount_fetch_retries_total{error_class} (Counter)
//   - webcount_fetch_retry_exhausted_total{error_class} (Counter)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(webcount_cache_hits_total[5m])) /
//   (sum(rate(webcount_cache_hits_total[5m])) + sum(rate(webcount_cache_misses_total[5m])))
//
//   # Store Error Rate
//   sum by (operation) (rate(webcount_store_errors_total[5m]))
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(webcount_fetch_duration_seconds_bucket[5m]))
