package etl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for fan-out stages and chunk iteration.
var (
	stageItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_etl_stage_items_total",
		Help: "Work items processed by fan-out stage and outcome class",
	}, []string{"stage", "class"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schedule_etl_stage_duration_seconds",
		Help:    "Wall time of a fan-out stage until every item completed",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"stage"})

	stageInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "schedule_etl_stage_in_flight",
		Help: "Lookups currently in flight by stage",
	}, []string{"stage"})

	iterationStepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schedule_etl_iteration_steps_total",
		Help: "Chunk iteration transitions taken",
	})
)

const classSuccess = "success"
