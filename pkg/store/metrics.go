package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_etl_store_records_written_total",
		Help: "Schedules upserted by entity kind",
	}, []string{"kind"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedule_etl_store_batch_duration_seconds",
		Help:    "Duration of one batch write transaction",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	storeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_etl_store_errors_total",
		Help: "Storage errors by operation",
	}, []string{"operation"})
)
