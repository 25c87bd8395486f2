// Package client talks to the university timetable site: it lists entity
// names, resolves schedule ids and downloads schedule pages, with rate
// limiting, retries, a shared failure budget and an optional Redis page cache.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/kpi-schedule-etl/pkg/cache"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/ratelimit"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_etl_http_requests_total",
		Help: "Total timetable site requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schedule_etl_http_request_duration_seconds",
		Help:    "Timetable site request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_etl_http_errors_total",
		Help: "Total timetable site errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the timetable site, e.g. "http://rozklad.kpi.ua".
	BaseURL string

	// UserAgent sent with every request.
	UserAgent string

	// Timeout per HTTP request.
	Timeout time.Duration

	// RatePerSecond and Burst bound the request rate of this client.
	RatePerSecond float64
	Burst         int

	// ListCount is the maximum number of names requested per prefix.
	ListCount int

	// Retry policy for server, rate limit and network errors.
	Retry RetryConfig

	// Redis enables the page cache and a shared failure budget. Optional.
	Redis *redis.Client

	// CacheTTL is how long pages stay cached when the site sets no Expires.
	CacheTTL time.Duration

	// Budget configures the failure budget.
	Budget ratelimit.Config
}

// DefaultConfig returns a polite default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:       baseURL,
		UserAgent:     "kpi-schedule-etl/1.0",
		Timeout:       30 * time.Second,
		RatePerSecond: 10,
		Burst:         10,
		ListCount:     100,
		Retry:         DefaultRetryConfig(),
		CacheTTL:      cache.DefaultTTL,
		Budget:        ratelimit.DefaultConfig(),
	}
}

// Client is the timetable site transport shared by the directories.
type Client struct {
	http    *resty.Client
	cache   *cache.Manager
	budget  *ratelimit.Tracker
	limiter *rate.Limiter
	config  Config
	logger  zerolog.Logger
}

// New creates a new client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.RatePerSecond <= 0 {
		return nil, fmt.Errorf("rate_per_sec must be positive (got %v)", cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.ListCount <= 0 {
		cfg.ListCount = 100
	}

	logger = logger.With().Str("component", "timetable-client").Logger()

	budget, err := ratelimit.NewTracker(cfg.Redis, cfg.Budget, logger)
	if err != nil {
		return nil, fmt.Errorf("create failure budget: %w", err)
	}

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)

	httpClient := resty.New()
	httpClient.SetBaseURL(cfg.BaseURL)
	httpClient.SetTimeout(cfg.Timeout)
	httpClient.SetHeader("User-Agent", cfg.UserAgent)
	httpClient.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(10),
		// The selection form redirects to the schedule; the id is in the
		// Location header, so the page itself is not downloaded.
		resty.RedirectPolicyFunc(func(req *http.Request, _ []*http.Request) error {
			if strings.HasSuffix(req.URL.Path, viewSchedulePath) {
				return http.ErrUseLastResponse
			}
			return nil
		}),
	)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	return &Client{
		http:    httpClient,
		cache:   cacheManager,
		budget:  budget,
		limiter: limiter,
		config:  cfg,
		logger:  logger,
	}, nil
}

// request describes one call to the site.
type request struct {
	method string
	path   string
	query  url.Values
	form   url.Values
	body   []byte
}

func (r request) cacheKey() cache.CacheKey {
	body := string(r.body)
	if r.form != nil {
		body = r.form.Encode()
	}
	return cache.CacheKey{
		Method:      r.method,
		Endpoint:    r.path,
		QueryParams: r.query,
		Body:        body,
	}
}

// page is a successful response.
type page struct {
	status int
	url    *url.URL
	body   []byte
}

// do performs a request with budget gating, caching and retries. Any
// status >= 400 that survives retrying is returned as *HTTPError.
func (c *Client) do(ctx context.Context, req request) (*page, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(req.path).Observe(time.Since(startTime).Seconds())
	}()

	allowed, err := c.budget.ShouldAllowRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failure budget check: %w", err)
	}
	if !allowed {
		requestsTotal.WithLabelValues(req.path, "blocked").Inc()
		return nil, ErrBudgetExhausted
	}

	cacheKey := req.cacheKey()
	var cached *cache.CacheEntry
	if c.cache != nil {
		cached, err = c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", req.path).Msg("Cache get error")
		}
		if cached != nil && !cached.IsExpired() {
			requestsTotal.WithLabelValues(req.path, "cached").Inc()
			return entryToPage(cached)
		}
	}

	c.logger.Debug().
		Str("endpoint", req.path).
		Str("method", req.method).
		Msg("Executing timetable request")

	var resp *resty.Response
	retryErr := retryWithBackoff(ctx, c.config.Retry, func() error {
		r := c.http.R().SetContext(ctx)
		if cache.ShouldMakeConditionalRequest(cached) {
			r.SetHeaders(cache.ConditionalHeaders(cached))
		}
		if req.query != nil {
			r.SetQueryParamsFromValues(req.query)
		}
		if req.form != nil {
			r.SetFormDataFromValues(req.form)
		}
		if req.body != nil {
			r.SetHeader("Content-Type", "application/json; charset=utf-8").SetBody(req.body)
		}

		var reqErr error
		resp, reqErr = r.Execute(req.method, req.path)
		if reqErr != nil {
			c.logger.Warn().Err(reqErr).Str("endpoint", req.path).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(req.path, "network_error").Inc()
			c.spendBudget(ctx)
			return reqErr
		}

		status := resp.StatusCode()
		requestsTotal.WithLabelValues(req.path, strconv.Itoa(status)).Inc()
		if status < 400 {
			return nil
		}

		errClass := classifyStatus(status)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Str("endpoint", req.path).
			Int("status", status).
			Str("error_class", string(errClass)).
			Msg("Timetable request error")
		if shouldRetry(errClass) {
			c.spendBudget(ctx)
		}
		return &HTTPError{
			StatusCode: status,
			ErrorClass: errClass,
			Endpoint:   req.path,
			Message:    resp.Status(),
		}
	}, classifyError)
	if retryErr != nil {
		return nil, retryErr
	}

	if resp.StatusCode() == http.StatusNotModified && cached != nil {
		c.logger.Debug().Str("endpoint", req.path).Msg("304 Not Modified - using cache")
		refreshed, err := c.cache.Refresh(ctx, cacheKey, time.Now().Add(c.config.CacheTTL))
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
			return entryToPage(cached)
		}
		return entryToPage(refreshed)
	}

	finalURL := resp.RawResponse.Request.URL
	if isRedirect(resp.StatusCode()) {
		if target, err := finalURL.Parse(resp.Header().Get("Location")); err == nil {
			finalURL = target
		}
	}
	p := &page{
		status: resp.StatusCode(),
		url:    finalURL,
		body:   resp.Body(),
	}

	if c.cache != nil && (p.status == http.StatusOK || isRedirect(p.status)) {
		entry := cache.NewEntry(p.status, resp.Header(), finalURL.String(), p.body, c.config.CacheTTL)
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return p, nil
}

func (c *Client) spendBudget(ctx context.Context) {
	if _, err := c.budget.RecordFailure(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record failure in budget")
	}
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400 && status != http.StatusNotModified
}

func entryToPage(entry *cache.CacheEntry) (*page, error) {
	u, err := url.Parse(entry.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: url: %v", cache.ErrInvalidEntry, err)
	}
	return &page{status: entry.StatusCode, url: u, body: entry.Data}, nil
}

// Budget returns the failure budget tracker.
func (c *Client) Budget() *ratelimit.Tracker {
	return c.budget
}
