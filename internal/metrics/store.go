package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Store Prometheus metrics.
var (
	StoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "occdex",
			Name:      "store_operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"op", "index", "outcome"},
	)

	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "occdex",
			Name:      "store_operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"op"},
	)

	StoreBulkItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "occdex",
			Name:      "store_bulk_items_total",
			Help:      "Bulk items by outcome",
		},
		[]string{"index", "outcome"},
	)

	StoreSearchHits = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "occdex",
			Name:      "store_search_hits",
			Help:      "Number of hits returned per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		},
		[]string{"index"},
	)
)

var registerStoreOnce sync.Once

// RegisterStoreMetrics registers Prometheus store metrics. Safe to call more than once.
func RegisterStoreMetrics() {
	registerStoreOnce.Do(func() {
		prometheus.MustRegister(StoreOperationsTotal)
		prometheus.MustRegister(StoreOperationDuration)
		prometheus.MustRegister(StoreBulkItemsTotal)
		prometheus.MustRegister(StoreSearchHits)
	})
}
