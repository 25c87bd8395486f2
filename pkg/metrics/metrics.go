// Package metrics exposes the Prometheus registry of the schedule ETL.
// All metrics are defined in their respective packages (etl, client, cache,
// ratelimit, store, runner) to maintain modularity and avoid circular
// dependencies; this package serves them.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the ETL.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads what Registry collected.
var Gatherer = prometheus.DefaultGatherer

// HealthCheck reports whether a dependency (Redis, the database) is usable.
type HealthCheck func(ctx context.Context) error

// Handler serves the collected metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// NewMux returns a mux with /metrics and /health. /health answers 503
// with the first failing check.
func NewMux(checks map[string]HealthCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				http.Error(w, fmt.Sprintf("%s: %v", name, err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Metrics Documentation
//
// Stage Metrics (pkg/etl):
//   - schedule_etl_stage_items_total{stage, class} (Counter): Items per stage by outcome (success, client, parser, unhandled)
//   - schedule_etl_stage_duration_seconds{stage} (Histogram): Wall time of a stage
//   - schedule_etl_stage_in_flight{stage} (Gauge): Lookups currently in flight
//   - schedule_etl_iteration_steps_total (Counter): Chunk iteration transitions
//
// Failure Budget Metrics (pkg/ratelimit):
//   - schedule_etl_failure_budget_remaining (Gauge): Failures left in the window
//   - schedule_etl_failure_budget_blocks_total (Counter): Requests blocked by an exhausted budget
//   - schedule_etl_failure_budget_throttles_total (Counter): Requests throttled by a low budget
//
// Cache Metrics (pkg/cache):
//   - schedule_etl_cache_hits_total{layer="redis"} (Counter): Cache hits
//   - schedule_etl_cache_misses_total (Counter): Cache misses
//   - schedule_etl_cache_bytes_written_total (Counter): Page bytes written to Redis
//   - schedule_etl_cache_not_modified_total (Counter): 304 answers served from cache
//   - schedule_etl_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - schedule_etl_http_requests_total{endpoint, status} (Counter): Requests by endpoint and status
//   - schedule_etl_http_request_duration_seconds{endpoint} (Histogram): Request duration
//   - schedule_etl_http_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - schedule_etl_http_retries_total{error_class} (Counter): Retry attempts
//   - schedule_etl_http_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - schedule_etl_http_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// Storage Metrics (pkg/store):
//   - schedule_etl_store_records_written_total{kind} (Counter): Schedules upserted
//   - schedule_etl_store_batch_duration_seconds (Histogram): Duration of one batch transaction
//   - schedule_etl_store_errors_total{operation} (Counter): Storage errors
//
// Runner Metrics (internal/runner):
//   - schedule_etl_runner_iterations_total{kind} (Counter): Iterations finished
//   - schedule_etl_runner_last_success_timestamp_seconds{kind} (Gauge): Unix time of the last full run
//
// Example Prometheus Queries:
//
//   # Parser failure share per stage
//   sum by (stage) (rate(schedule_etl_stage_items_total{class="parser"}[1h])) /
//   sum by (stage) (rate(schedule_etl_stage_items_total[1h]))
//
//   # Cache Hit Rate
//   sum(rate(schedule_etl_cache_hits_total[5m])) /
//   (sum(rate(schedule_etl_cache_hits_total[5m])) + sum(rate(schedule_etl_cache_misses_total[5m])))
//
//   # Stale harvest
//   time() - schedule_etl_runner_last_success_timestamp_seconds > 86400
