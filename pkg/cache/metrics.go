package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks page cache hits.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "schedule_etl_cache_hits_total",
			Help: "Total number of timetable page cache hits",
		},
	)

	// CacheMisses tracks page cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "schedule_etl_cache_misses_total",
			Help: "Total number of timetable page cache misses",
		},
	)

	// CacheBytesWritten tracks bytes written to Redis.
	CacheBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "schedule_etl_cache_bytes_written_total",
			Help: "Total bytes of timetable pages written to the cache",
		},
	)

	// NotModifiedResponses tracks 304 answers to conditional requests.
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "schedule_etl_cache_not_modified_total",
			Help: "Total number of 304 Not Modified responses served from cache",
		},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_etl_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
