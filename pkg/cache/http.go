package cache

import (
	"net/http"
	"time"
)

// DefaultTTL applies when neither the response nor the caller sets one.
// Timetables change a few times per semester.
const DefaultTTL = 6 * time.Hour

// NewEntry builds a cache entry from a response. The Expires header wins
// over ttl when it is present and in the future.
func NewEntry(statusCode int, header http.Header, finalURL string, body []byte, ttl time.Duration) *CacheEntry {
	entry := &CacheEntry{
		Data:       body,
		URL:        finalURL,
		StatusCode: statusCode,
		ETag:       header.Get("ETag"),
		Expires:    parseExpires(header, ttl),
		CachedAt:   time.Now(),
	}

	if lastModStr := header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry
}

func parseExpires(header http.Header, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	fallback := time.Now().Add(ttl)

	expiresStr := header.Get("Expires")
	if expiresStr == "" {
		return fallback
	}
	expires, err := http.ParseTime(expiresStr)
	if err != nil || !expires.After(time.Now()) {
		// ASP.NET pages send "Expires: -1"; treat stale or broken values as absent.
		return fallback
	}
	return expires
}

// ShouldMakeConditionalRequest reports whether entry is stale but can be
// revalidated instead of downloaded again.
func ShouldMakeConditionalRequest(entry *CacheEntry) bool {
	return entry != nil && entry.IsExpired() && entry.HasValidators()
}

// ConditionalHeaders returns the If-None-Match or If-Modified-Since header
// for entry, preferring the ETag.
func ConditionalHeaders(entry *CacheEntry) map[string]string {
	if entry == nil || !entry.HasValidators() {
		return nil
	}
	if entry.ETag != "" {
		return map[string]string{"If-None-Match": entry.ETag}
	}
	return map[string]string{"If-Modified-Since": entry.LastModified.UTC().Format(http.TimeFormat)}
}
