// Package runner drives chunked harvests: it runs the pipeline for the
// current chunk, persists what was fetched and advances the iteration state.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/kpi-schedule-etl/pkg/etl"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/schedule"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/store"
)

var (
	iterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_etl_runner_iterations_total",
		Help: "Chunk iterations finished by entity kind",
	}, []string{"kind"})

	lastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "schedule_etl_runner_last_success_timestamp_seconds",
		Help: "Unix time of the last harvest that processed every chunk",
	}, []string{"kind"})
)

// ErrUnknownKind is returned for kinds without a registered pipeline.
var ErrUnknownKind = errors.New("no pipeline for entity kind")

// Harvester runs one chunk of prefixes end to end.
type Harvester interface {
	Kind() etl.EntityKind
	Run(ctx context.Context, prefixes []string) ([]schedule.Schedule, etl.StageSummary, error)
}

// StepOutput is handed back to the orchestration host after every step.
type StepOutput struct {
	State     etl.IterationState `json:"state"`
	Iteration etl.StageSummary   `json:"iteration"`
	ParsedAt  time.Time          `json:"parsedAt"`
}

// Runner owns one pipeline per entity kind and the store they write to.
type Runner struct {
	pipelines map[etl.EntityKind]Harvester
	store     store.Store
	chunkSize int
	now       func() time.Time
	logger    zerolog.Logger
}

// New creates a runner. chunkSize is the number of prefixes per step.
func New(st store.Store, chunkSize int, logger zerolog.Logger, pipelines ...Harvester) (*Runner, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w (got %d)", etl.ErrInvalidChunkSize, chunkSize)
	}
	r := &Runner{
		pipelines: make(map[etl.EntityKind]Harvester, len(pipelines)),
		store:     st,
		chunkSize: chunkSize,
		now:       time.Now,
		logger:    logger.With().Str("component", "runner").Logger(),
	}
	for _, p := range pipelines {
		if _, dup := r.pipelines[p.Kind()]; dup {
			return nil, fmt.Errorf("duplicate pipeline for %s", p.Kind())
		}
		r.pipelines[p.Kind()] = p
	}
	return r, nil
}

// Chunk builds the initial iteration state for prefixes.
func (r *Runner) Chunk(prefixes []string) (etl.IterationState, error) {
	return etl.NewIterationState(prefixes, r.chunkSize)
}

// Step processes the current chunk of state. Records are persisted only
// when the chunk produced some. A store failure or a cancelled ctx leaves
// state unadvanced.
func (r *Runner) Step(ctx context.Context, kind etl.EntityKind, state etl.IterationState) (StepOutput, error) {
	p, ok := r.pipelines[kind]
	if !ok {
		return StepOutput{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	chunk, err := state.Current()
	if err != nil {
		return StepOutput{}, err
	}

	records, summary, err := p.Run(ctx, chunk)
	if err != nil {
		return StepOutput{}, fmt.Errorf("run chunk %d of %d: %w", state.Index+1, state.Count, err)
	}
	// Items cut short by cancellation were counted as client failures; the
	// chunk has to be processed again.
	if err := ctx.Err(); err != nil {
		return StepOutput{}, fmt.Errorf("chunk %d of %d interrupted: %w", state.Index+1, state.Count, err)
	}

	if len(records) > 0 {
		if err := r.store.BatchPut(ctx, kind, records); err != nil {
			return StepOutput{}, fmt.Errorf("persist chunk %d of %d: %w", state.Index+1, state.Count, err)
		}
	}

	next, err := etl.Step(state, summary)
	if err != nil {
		return StepOutput{}, err
	}
	iterationsTotal.WithLabelValues(string(kind)).Inc()

	r.logger.Info().
		Str("kind", string(kind)).
		Int("chunk_index", state.Index).
		Int("chunks", state.Count).
		Int("schedules", summary.Count).
		Int("failures", summary.Failures()).
		Msg("Chunk processed")

	return StepOutput{
		State:     next,
		Iteration: summary,
		ParsedAt:  r.now().UTC(),
	}, nil
}

// Run steps through every chunk of prefixes and returns the accumulated summary.
func (r *Runner) Run(ctx context.Context, kind etl.EntityKind, prefixes []string) (etl.StageSummary, error) {
	state, err := r.Chunk(prefixes)
	if err != nil {
		return etl.StageSummary{}, err
	}

	for !state.Done() {
		if err := ctx.Err(); err != nil {
			return state.Accumulated, err
		}
		out, err := r.Step(ctx, kind, state)
		if err != nil {
			return state.Accumulated, err
		}
		state = out.State
	}

	lastSuccess.WithLabelValues(string(kind)).Set(float64(r.now().Unix()))
	r.logger.Info().
		Str("kind", string(kind)).
		Int("schedules", state.Accumulated.Count).
		Int("client_errors", state.Accumulated.ClientErrors).
		Int("parser_errors", state.Accumulated.ParserErrors).
		Int("unhandled_errors", state.Accumulated.UnhandledErrors).
		Msg("Harvest finished")
	return state.Accumulated, nil
}

// RunAll harvests every kind in prefixes concurrently. Each kind keeps its
// own summary; the first failing kind cancels the others.
func (r *Runner) RunAll(ctx context.Context, prefixes map[etl.EntityKind][]string) (map[etl.EntityKind]etl.StageSummary, error) {
	var mu sync.Mutex
	results := make(map[etl.EntityKind]etl.StageSummary, len(prefixes))

	g, ctx := errgroup.WithContext(ctx)
	for kind, ps := range prefixes {
		if len(ps) == 0 {
			continue
		}
		kind, ps := kind, ps
		g.Go(func() error {
			summary, err := r.Run(ctx, kind, ps)
			mu.Lock()
			results[kind] = summary
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("%s harvest: %w", kind, err)
			}
			return nil
		})
	}

	err := g.Wait()
	return results, err
}
