package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forest_snapshot_operation_duration_seconds",
			Help:    "Duration of snapshot operations in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"operation", "status"},
	)

	rowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forest_snapshot_rows_total",
			Help: "Snapshot rows written or restored",
		},
		[]string{"table", "direction"},
	)

	rowsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forest_snapshot_rows_skipped_total",
			Help: "Snapshot rows skipped on restore because no current resource unit or location matched",
		},
		[]string{"table"},
	)

	saplingsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forest_snapshot_saplings_rejected_total",
			Help: "Sapling cohorts rejected on restore because the target cell was full",
		},
		[]string{"table"},
	)
)
