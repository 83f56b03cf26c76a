package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation results used as metric label values.
const (
	resultOK    = "ok"
	resultMiss  = "miss"
	resultError = "error"
)

var (
	// Operations tracks store operations by backend, operation and result.
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webcount_store_operations_total",
			Help: "Total number of key-value store operations",
		},
		[]string{"backend", "operation", "result"}, // "redis"|"memory", "incr"|"get"|"setex", "ok"|"miss"|"error"
	)
)
