package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/kpi-schedule-etl/pkg/etl"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/logging"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/metrics"
)

func newServeCmd(opts *options) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "serve [--now]",
		Short: "Harvests on the configured cron schedule and serves /metrics and /health.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := opts.cfg.Location()
			if err != nil {
				return err
			}

			logger := logging.NewLogger("scheduler")
			harvest := func() {
				work := map[etl.EntityKind][]string{
					etl.KindGroup:   opts.cfg.ETL.GroupPrefixes,
					etl.KindTeacher: opts.cfg.ETL.TeacherPrefixes,
				}
				if _, err := a.runner.RunAll(ctx, work); err != nil {
					logger.Error().Err(err).Msg("Scheduled harvest failed")
				}
			}

			cronLog := cronLogger{logger: logger}
			c := cron.New(
				cron.WithLocation(loc),
				cron.WithLogger(cronLog),
				cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
			)
			if _, err := c.AddFunc(opts.cfg.Schedule.Cron, harvest); err != nil {
				return fmt.Errorf("schedule %q: %w", opts.cfg.Schedule.Cron, err)
			}

			server := &http.Server{
				Addr:              opts.cfg.Metrics.Addr,
				Handler:           metrics.NewMux(a.healthChecks()),
				ReadHeaderTimeout: 5 * time.Second,
			}
			serverErr := make(chan error, 1)
			if server.Addr != "" {
				go func() {
					logger.Info().Str("addr", server.Addr).Msg("Serving metrics")
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						serverErr <- err
					}
				}()
			}

			c.Start()
			logger.Info().
				Str("cron", opts.cfg.Schedule.Cron).
				Str("timezone", loc.String()).
				Msg("Scheduler started")

			if runNow {
				go harvest()
			}

			select {
			case <-ctx.Done():
			case err = <-serverErr:
			}

			logger.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
				logger.Warn().Err(shutdownErr).Msg("Metrics server shutdown")
			}
			// wait for a running harvest to observe the cancelled context
			<-c.Stop().Done()
			return err
		},
	}
	cmd.Flags().BoolVar(&runNow, "now", false, "Start a harvest immediately instead of waiting for the schedule.")
	return cmd
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msgf("cron: %s", msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msgf("cron: %s", msg)
}
