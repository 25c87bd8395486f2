package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cached page in Redis.
const KeyPrefix = "rozklad"

// CacheKey identifies one request to the timetable site.
type CacheKey struct {
	// Method is the HTTP method; POST lookups are cacheable because they are
	// pure reads on this site.
	Method string

	// Endpoint is the request path (e.g. "/Schedules/ViewSchedule.aspx").
	Endpoint string

	// QueryParams are the query parameters (e.g. {"g": "<uuid>"}).
	QueryParams url.Values

	// Body is the encoded request body, hashed into the key.
	Body string
}

// String generates a deterministic cache key string.
// Format: rozklad:METHOD:endpoint:query1=val1:body=<sha256 prefix>
//
// Example:
//
//	rozklad:GET:Schedules/ViewSchedule.aspx:g=1a2b...
func (k CacheKey) String() string {
	method := strings.ToUpper(k.Method)
	if method == "" {
		method = "GET"
	}
	parts := []string{KeyPrefix, method}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.QueryParams[key], ",")))
		}
	}

	if k.Body != "" {
		sum := sha256.Sum256([]byte(k.Body))
		parts = append(parts, "body="+hex.EncodeToString(sum[:8]))
	}

	return strings.Join(parts, ":")
}
