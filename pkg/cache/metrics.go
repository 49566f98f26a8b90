package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the export cache.
var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "export_cache_lookups_total",
		Help: "Export cache lookups by result (hit, miss, expired)",
	}, []string{"result"})

	cachedBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "export_cache_entry_bytes",
		Help:    "Size of the CSV bodies written to the export cache",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})

	notModifiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "export_cache_not_modified_total",
		Help: "Exports answered with 304 Not Modified from an ETag match",
	})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "export_cache_errors_total",
		Help: "Export cache operation errors",
	}, []string{"operation"})
)
