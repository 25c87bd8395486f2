//go:build integration

package cache

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		container.Terminate(ctx)
	})
	return client
}

func TestManager_Integration_SetAndGet(t *testing.T) {
	manager := NewManager(setupRedis(t))
	ctx := context.Background()

	key := CacheKey{
		Method:      "GET",
		Endpoint:    "/Schedules/ViewSchedule.aspx",
		QueryParams: url.Values{"g": []string{"0b4c3a5e-1f4e-4e0f-9a0b-4a8c6d2f1e3a"}},
	}
	entry := &CacheEntry{
		Data:       []byte("<html>schedule</html>"),
		URL:        "http://rozklad/Schedules/ViewSchedule.aspx?g=0b4c3a5e-1f4e-4e0f-9a0b-4a8c6d2f1e3a",
		StatusCode: 200,
		ETag:       `"abc123"`,
		Expires:    time.Now().Add(5 * time.Minute),
		CachedAt:   time.Now(),
	}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != string(entry.Data) || got.URL != entry.URL || got.ETag != entry.ETag {
		t.Errorf("Get() = %+v, want %+v", got, entry)
	}
}

func TestManager_Integration_MissAndExpiry(t *testing.T) {
	manager := NewManager(setupRedis(t))
	ctx := context.Background()

	key := CacheKey{Endpoint: "/missing"}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want %v", err, ErrCacheMiss)
	}

	expired := &CacheEntry{Data: []byte("x"), Expires: time.Now().Add(-time.Hour)}
	if err := manager.Set(ctx, key, expired); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() of expired entry error = %v, want %v", err, ErrCacheMiss)
	}

	if err := manager.Set(ctx, key, nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}

func TestManager_Integration_RefreshAndDelete(t *testing.T) {
	manager := NewManager(setupRedis(t))
	ctx := context.Background()

	key := CacheKey{Endpoint: "/page"}
	if err := manager.Set(ctx, key, &CacheEntry{Data: []byte("x"), Expires: time.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	newExpires := time.Now().Add(time.Hour)
	refreshed, err := manager.Refresh(ctx, key, newExpires)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if diff := refreshed.Expires.Sub(newExpires); diff < -time.Second || diff > time.Second {
		t.Errorf("Expires = %v, want %v", refreshed.Expires, newExpires)
	}

	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after Delete error = %v, want %v", err, ErrCacheMiss)
	}
}

func TestManager_Integration_StaleWithValidators(t *testing.T) {
	rdb := setupRedis(t)
	manager := NewManager(rdb)
	ctx := context.Background()

	key := CacheKey{Endpoint: "/stale"}
	stale := &CacheEntry{Data: []byte("x"), ETag: `"v1"`, Expires: time.Now().Add(-time.Minute)}
	if err := manager.Set(ctx, key, stale); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() of stale entry error = %v", err)
	}
	if !ShouldMakeConditionalRequest(got) {
		t.Error("stale entry with etag should be revalidated")
	}

	ttl, err := rdb.TTL(ctx, key.String()).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > StaleRetention {
		t.Errorf("redis ttl = %v, want within (0, %v]", ttl, StaleRetention)
	}
}
