// Package metrics exposes the Prometheus registry of the export service.
// All metrics are defined in their respective packages (pagination, export,
// shopify, ratelimit, cache) to maintain modularity and avoid circular
// dependencies.
//
// This package serves them and documents what is available.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the service.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects what Registry holds.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(Registry, promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
}

// Metrics Documentation
//
// Export Metrics (pkg/export, pkg/pagination):
//   - catalog_exports_total{mode, result} (Counter): Exports by mode and result (ok, truncated, fetch_error, serialize_error)
//   - catalog_export_rows{mode} (Histogram): CSV rows per successful export
//   - catalog_export_pages_fetched_total{strategy} (Counter): Product pages fetched
//   - catalog_export_fetch_duration_seconds{strategy} (Histogram): Duration of a complete catalog fetch
//   - catalog_export_truncated_total (Counter): Fetches stopped by the page safety bound
//
// Request Metrics (pkg/shopify):
//   - shopify_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - shopify_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint, retries included
//   - shopify_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/shopify):
//   - shopify_retries_total{error_class} (Counter): Retry attempts by error class
//   - shopify_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - shopify_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - shopify_api_calls_used (Gauge): Calls in the Shopify leaky bucket
//   - shopify_api_calls_limit (Gauge): Size of the bucket
//
// Cache Metrics (pkg/cache):
//   - export_cache_lookups_total{result} (Counter): Lookups by result (hit, miss, expired)
//   - export_cache_entry_bytes (Histogram): Size of stored CSV bodies
//   - export_cache_not_modified_total (Counter): 304 responses from an ETag match
//   - export_cache_errors_total{operation} (Counter): Cache operation errors
//
// HTTP Metrics (internal/server):
//   - http_requests_total{route, status} (Counter): Requests served by route
//   - http_request_duration_seconds{route} (Histogram): Handler duration by route
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(export_cache_lookups_total{result="hit"}[5m])) /
//   sum(rate(export_cache_lookups_total[5m]))
//
//   # Bucket Saturation
//   shopify_api_calls_used / shopify_api_calls_limit > 0.8
//
//   # Failed Exports
//   sum by (result) (rate(catalog_exports_total{result=~".*_error"}[15m]))
//
//   # P95 Shopify Latency
//   histogram_quantile(0.95, rate(shopify_request_duration_seconds_bucket[5m]))
