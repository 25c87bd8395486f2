package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	budgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "schedule_etl_failure_budget_remaining",
		Help: "Failures remaining in the current budget window",
	})

	budgetBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schedule_etl_failure_budget_blocks_total",
		Help: "Total number of requests blocked because the failure budget is exhausted",
	})

	budgetThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schedule_etl_failure_budget_throttles_total",
		Help: "Total number of requests throttled because the failure budget is low",
	})
)

// Config holds tracker configuration.
type Config struct {
	// Budget is the number of failures tolerated per window.
	Budget int

	// Window is how long a budget lasts before it is refilled.
	Window time.Duration

	// ThrottleDelay is the pause applied to requests in the warning zone.
	ThrottleDelay time.Duration
}

// DefaultConfig returns the default budget: 100 failures per minute.
func DefaultConfig() Config {
	return Config{
		Budget:        100,
		Window:        time.Minute,
		ThrottleDelay: time.Second,
	}
}

// Tracker spends and checks the failure budget.
type Tracker struct {
	redis  *redis.Client
	config Config
	logger zerolog.Logger

	// in-memory state when redis is nil
	mu        sync.Mutex
	remaining int
	resetAt   time.Time
}

// NewTracker creates a tracker. With a nil redis client the budget is kept
// in process memory.
func NewTracker(redisClient *redis.Client, cfg Config, logger zerolog.Logger) (*Tracker, error) {
	if cfg.Budget <= 0 {
		return nil, fmt.Errorf("budget must be positive (got %d)", cfg.Budget)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("window must be positive (got %s)", cfg.Window)
	}
	return &Tracker{
		redis:  redisClient,
		config: cfg,
		logger: logger,
	}, nil
}

// GetState returns the current budget. An untouched window is a full budget.
func (t *Tracker) GetState(ctx context.Context) (*BudgetState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.memoryStateLocked(), nil
	}

	remaining, err := t.redis.Get(ctx, RedisKeyFailuresRemaining).Int()
	if errors.Is(err, redis.Nil) {
		return t.fullState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failures remaining: %w", err)
	}

	ttl, err := t.redis.PTTL(ctx, RedisKeyFailuresRemaining).Result()
	if err != nil {
		return nil, fmt.Errorf("get budget ttl: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}

	state := &BudgetState{
		FailuresRemaining: remaining,
		ResetAt:           time.Now().Add(ttl),
	}
	state.UpdateHealth()
	return state, nil
}

// RecordFailure spends one unit of the budget.
func (t *Tracker) RecordFailure(ctx context.Context) (*BudgetState, error) {
	var state *BudgetState

	if t.redis == nil {
		t.mu.Lock()
		state = t.memoryStateLocked()
		t.remaining = state.FailuresRemaining - 1
		state.FailuresRemaining = t.remaining
		state.UpdateHealth()
		t.mu.Unlock()
	} else {
		// SETNX starts a window only if none is running.
		pipe := t.redis.TxPipeline()
		pipe.SetNX(ctx, RedisKeyFailuresRemaining, t.config.Budget, t.config.Window)
		decr := pipe.Decr(ctx, RedisKeyFailuresRemaining)
		pttl := pipe.PTTL(ctx, RedisKeyFailuresRemaining)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("spend failure budget: %w", err)
		}
		ttl := pttl.Val()
		if ttl < 0 {
			ttl = 0
		}
		state = &BudgetState{
			FailuresRemaining: int(decr.Val()),
			ResetAt:           time.Now().Add(ttl),
		}
		state.UpdateHealth()
	}

	budgetRemaining.Set(float64(state.FailuresRemaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("failures_remaining", state.FailuresRemaining).
			Time("reset_at", state.ResetAt).
			Msg("Failure budget CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("failures_remaining", state.FailuresRemaining).
			Msg("Failure budget WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("failures_remaining", state.FailuresRemaining).
			Msg("Failure budget spent")
	}

	return state, nil
}

// ShouldAllowRequest reports whether a request may go out. Requests in the
// warning zone are delayed by ThrottleDelay before being allowed.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get failure budget: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("failures_remaining", state.FailuresRemaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Failure budget exhausted - blocking request")
		budgetBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() && t.config.ThrottleDelay > 0 {
		t.logger.Warn().
			Int("failures_remaining", state.FailuresRemaining).
			Msg("Failure budget low - throttling request")
		budgetThrottlesTotal.Inc()

		timer := time.NewTimer(t.config.ThrottleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}

func (t *Tracker) fullState() *BudgetState {
	state := &BudgetState{
		FailuresRemaining: t.config.Budget,
		ResetAt:           time.Now().Add(t.config.Window),
	}
	state.UpdateHealth()
	return state
}

// memoryStateLocked refills the in-memory budget when its window has passed.
func (t *Tracker) memoryStateLocked() *BudgetState {
	now := time.Now()
	if t.resetAt.IsZero() || !now.Before(t.resetAt) {
		t.remaining = t.config.Budget
		t.resetAt = now.Add(t.config.Window)
	}
	state := &BudgetState{
		FailuresRemaining: t.remaining,
		ResetAt:           t.resetAt,
	}
	state.UpdateHealth()
	return state
}
