package scrollstate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// restoreHits tracks successful scroll-state restores.
	restoreHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_scrollstate_restore_hits_total",
			Help: "Total number of scroll-state restores that found a live entry",
		},
	)

	// restoreMisses tracks restores that found nothing usable.
	restoreMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_scrollstate_restore_misses_total",
			Help: "Total number of scroll-state restores that missed",
		},
	)

	// evictions tracks entries removed by maintenance, by reason.
	evictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_scrollstate_evictions_total",
			Help: "Total number of scroll-state entries evicted",
		},
		[]string{"reason"}, // "stale", "capacity"
	)

	// storageErrors tracks swallowed backend failures by operation.
	storageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_scrollstate_storage_errors_total",
			Help: "Total number of swallowed scroll-state storage errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "list"
	)
)
