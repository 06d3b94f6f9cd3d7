// Package metrics provides the centralized Prometheus registry reference
// for the catalog client. All metrics are defined in their respective
// packages (client, dedup, paginate, scrollstate) to maintain modularity
// and avoid circular dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registerer used by the catalog
// client. All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - catalog_requests_total{endpoint,status} (Counter): Catalog API requests by endpoint and outcome
//   - catalog_request_duration_seconds{endpoint} (Histogram): Request latency
//   - catalog_errors_total{class} (Counter): Catalog errors by error class
//   - catalog_retries_total{error_class} (Counter): Retry attempts issued
//   - catalog_retry_backoff_seconds{error_class} (Histogram): Backoff durations between retries
//   - catalog_retry_exhausted_total{error_class} (Counter): Requests that failed after all retries
//
// Dedup Metrics (pkg/dedup):
//   - catalog_dedup_dispatches_total (Counter): Requests passed through to the network
//   - catalog_dedup_suppressed_total (Counter): Duplicate requests suppressed within the window
//
// Pagination Metrics (pkg/paginate):
//   - catalog_pagination_mode_switches_total (Counter): Cursor-to-offset fallback switches
//   - catalog_pagination_cursor_failures_total (Counter): Cursor fetch failures counted toward fallback
//
// Scroll State Metrics (pkg/scrollstate):
//   - catalog_scrollstate_restore_hits_total (Counter): Successful position restores
//   - catalog_scrollstate_restore_misses_total (Counter): Restore lookups with no usable entry
//   - catalog_scrollstate_evictions_total{reason} (Counter): Entries removed (stale or capacity)
//   - catalog_scrollstate_storage_errors_total{operation} (Counter): Swallowed storage failures
