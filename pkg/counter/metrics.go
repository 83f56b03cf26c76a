package counter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts calls answered from the cache.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webcount_cache_hits_total",
			Help: "Total number of calls served from the cache",
		},
	)

	// CacheMisses counts calls that had to invoke the fetch function.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webcount_cache_misses_total",
			Help: "Total number of calls that invoked the wrapped fetch",
		},
	)

	// FetchErrors counts failed invocations of the fetch function.
	FetchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webcount_fetch_errors_total",
			Help: "Total number of wrapped fetch failures",
		},
	)

	// StoreErrors counts store failures seen by the wrapper, by operation.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webcount_store_errors_total",
			Help: "Total number of store errors seen by the caching counter",
		},
		[]string{"operation"}, // "incr", "get", "setex"
	)

	// FetchDuration observes the wrapped fetch latency on misses.
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webcount_fetch_duration_seconds",
			Help:    "Duration of wrapped fetch calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)
)
