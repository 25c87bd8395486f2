//go:build integration

package client

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/kpi-schedule-etl/internal/testutil"
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

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() {
		rdb.Close()
		container.Terminate(ctx)
	})
	return rdb
}

func newCachedClient(t *testing.T, mock *testutil.MockTimetable, rdb *redis.Client, ttl time.Duration) *Client {
	t.Helper()
	cfg := testConfig(mock.URL())
	cfg.Redis = rdb
	cfg.CacheTTL = ttl
	c, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestClient_Integration_CachedSchedule(t *testing.T) {
	rdb := setupRedis(t)
	mock := testutil.NewMockTimetable()
	defer mock.Close()

	id := uuid.New()
	mock.SetSchedule(id, testutil.SchedulePage("ІП-11"))

	c := newCachedClient(t, mock, rdb, time.Hour)
	groups := NewGroupDirectory(c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s, err := groups.FetchSchedule(ctx, id)
		if err != nil {
			t.Fatalf("FetchSchedule() #%d error = %v", i, err)
		}
		if s.Name != "ІП-11" {
			t.Errorf("Name = %q, want %q", s.Name, "ІП-11")
		}
	}

	if got := mock.RequestCount(testutil.ViewSchedulePath); got != 1 {
		t.Errorf("schedule requests = %d, want 1", got)
	}
}

func TestClient_Integration_ConditionalRequest(t *testing.T) {
	rdb := setupRedis(t)
	mock := testutil.NewMockTimetable()
	defer mock.Close()

	var conditional int
	mock.SetHandler("/etag", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional++
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("body-v1"))
	})

	c := newCachedClient(t, mock, rdb, 10*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if i == 2 {
			// let the entry go stale so the next request revalidates
			time.Sleep(20 * time.Millisecond)
		}
		p, err := c.do(ctx, request{method: http.MethodGet, path: "/etag"})
		if err != nil {
			t.Fatalf("do() #%d error = %v", i, err)
		}
		if string(p.body) != "body-v1" {
			t.Errorf("body = %q, want %q", p.body, "body-v1")
		}
	}
	if conditional != 1 {
		t.Errorf("conditional requests = %d, want 1", conditional)
	}
	if got := mock.RequestCount("/etag"); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestClient_Integration_SharedBudget(t *testing.T) {
	rdb := setupRedis(t)
	mock := testutil.NewMockTimetable()
	defer mock.Close()
	mock.FailNext("/flaky", 2)
	mock.SetHandler("/flaky", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	first := newCachedClient(t, mock, rdb, time.Hour)
	second := newCachedClient(t, mock, rdb, time.Hour)
	ctx := context.Background()

	if _, err := first.do(ctx, request{method: http.MethodGet, path: "/flaky"}); err != nil {
		t.Fatalf("do() error = %v", err)
	}

	state, err := second.Budget().GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if want := first.config.Budget.Budget - 2; state.FailuresRemaining != want {
		t.Errorf("FailuresRemaining = %d, want %d", state.FailuresRemaining, want)
	}
}
