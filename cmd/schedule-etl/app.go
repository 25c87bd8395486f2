package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/kpi-schedule-etl/internal/config"
	"github.com/Sternrassler/kpi-schedule-etl/internal/runner"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/client"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/etl"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/logging"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/metrics"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/schedule"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/store"
)

// app holds the wired components of one process.
type app struct {
	cfg    config.Config
	logger zerolog.Logger
	redis  *redis.Client
	db     *sql.DB
	store  *store.SQLStore
	runner *runner.Runner
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger := logging.Setup(cfg.LoggerConfig())
	a := &app{cfg: cfg, logger: logger}

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	clientCfg := cfg.ClientConfig()
	clientCfg.Redis = a.redis
	c, err := client.New(clientCfg, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create timetable client: %w", err)
	}

	a.db, err = store.Open(cfg.StoreConfig())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store, err = store.New(ctx, a.db, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	pipelineLogger := logging.NewLogger("pipeline")
	groups, err := etl.NewPipeline[schedule.Schedule](client.NewGroupDirectory(c), cfg.PipelineConfig(), pipelineLogger)
	if err != nil {
		a.Close()
		return nil, err
	}
	teachers, err := etl.NewPipeline[schedule.Schedule](client.NewTeacherDirectory(c), cfg.PipelineConfig(), pipelineLogger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.runner, err = runner.New(a.store, cfg.ETL.ChunkSize, logger, groups, teachers)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// healthChecks are the dependencies /health reports on.
func (a *app) healthChecks() map[string]metrics.HealthCheck {
	checks := map[string]metrics.HealthCheck{
		"database": a.store.Ping,
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Close releases the database and Redis connections.
func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close database")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
}
