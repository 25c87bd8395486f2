// Package cache keeps timetable pages in Redis so that repeated harvests
// within a TTL window do not hit the timetable site again.
//
// Pages are stored under deterministic keys built from the method, path,
// query and a hash of the request body. The final URL after redirects is
// cached with the body, because id resolution reads the schedule id from it.
//
// Fresh entries are served as they are. Entries that carry an ETag or
// Last-Modified stay in Redis for StaleRetention past their expiry; Get
// still returns them so the client can revalidate with a conditional
// request and call Refresh on 304 Not Modified.
//
// # Basic Usage
//
//	manager := cache.NewManager(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//
//	key := cache.CacheKey{
//		Method:      "GET",
//		Endpoint:    "/Schedules/ViewSchedule.aspx",
//		QueryParams: url.Values{"g": []string{id.String()}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the site, then
//		_ = manager.Set(ctx, key, cache.NewEntry(status, header, finalURL, body, ttl))
//	}
//
// # Metrics
//
//   - schedule_etl_cache_hits_total
//   - schedule_etl_cache_misses_total
//   - schedule_etl_cache_bytes_written_total
//   - schedule_etl_cache_not_modified_total
//   - schedule_etl_cache_errors_total{operation}
package cache
