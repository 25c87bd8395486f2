package etl

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FanOutOptions configures one fan-out stage.
type FanOutOptions[I any] struct {
	// MaxConcurrency is the number of lookups allowed in flight at once.
	MaxConcurrency int

	// Key renders an input for diagnostics. Defaults to fmt.Sprint.
	Key func(I) string

	// Logger receives per-item failure and stage completion events.
	Logger zerolog.Logger
}

type itemResult[O any] struct {
	value O
	ok    bool
}

// FanOut applies lookup to every input with at most opts.MaxConcurrency calls in
// flight. Item failures are classified and counted; they never cancel sibling
// items. The returned error is non-nil only for a malformed stage configuration.
func FanOut[I, O any](ctx context.Context, stage string, inputs []I, lookup func(context.Context, I) (O, error), opts FanOutOptions[I]) ([]O, StageSummary, error) {
	if opts.MaxConcurrency <= 0 {
		return nil, StageSummary{}, fmt.Errorf("stage %s: %w (got %d)", stage, ErrInvalidConcurrency, opts.MaxConcurrency)
	}
	if lookup == nil {
		return nil, StageSummary{}, fmt.Errorf("stage %s: lookup function is required", stage)
	}
	if len(inputs) == 0 {
		return []O{}, StageSummary{}, nil
	}

	key := opts.Key
	if key == nil {
		key = func(in I) string { return fmt.Sprint(in) }
	}
	logger := opts.Logger.With().Str("stage", stage).Logger()

	start := time.Now()
	defer func() {
		stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}()

	workers := opts.MaxConcurrency
	if workers > len(inputs) {
		workers = len(inputs)
	}

	var clientErrors, parserErrors, unhandledErrors atomic.Int64

	queue := make(chan I, len(inputs))
	for _, in := range inputs {
		queue <- in
	}
	close(queue)

	results := make(chan itemResult[O], workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for in := range queue {
				value, err := runItem(ctx, stage, in, lookup)
				if err == nil {
					results <- itemResult[O]{value: value, ok: true}
					continue
				}

				k := key(in)
				class := Classify(err, k, logger)
				switch class {
				case ClassClient:
					clientErrors.Add(1)
				case ClassParser:
					parserErrors.Add(1)
				default:
					unhandledErrors.Add(1)
				}
				stageItemsTotal.WithLabelValues(stage, string(class)).Inc()

				if class != ClassUnhandled {
					logger.Warn().
						Err(err).
						Int("worker_id", workerID).
						Str("key", k).
						Str("error_class", string(class)).
						Msg("Work item failed")
				}
				results <- itemResult[O]{}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	outputs := make([]O, 0, len(inputs))
	for r := range results {
		if !r.ok {
			continue
		}
		outputs = append(outputs, r.value)
		stageItemsTotal.WithLabelValues(stage, classSuccess).Inc()
	}

	summary := StageSummary{
		Count:           len(outputs),
		ClientErrors:    int(clientErrors.Load()),
		ParserErrors:    int(parserErrors.Load()),
		UnhandledErrors: int(unhandledErrors.Load()),
	}

	logger.Info().
		Int("inputs", len(inputs)).
		Int("succeeded", summary.Count).
		Int("failed", summary.Failures()).
		Dur("duration", time.Since(start)).
		Msg("Stage complete")

	return outputs, summary, nil
}

// runItem isolates one lookup, turning a panic into an item failure.
func runItem[I, O any](ctx context.Context, stage string, in I, lookup func(context.Context, I) (O, error)) (out O, err error) {
	stageInFlight.WithLabelValues(stage).Inc()
	defer stageInFlight.WithLabelValues(stage).Dec()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lookup panicked: %v", r)
		}
	}()
	return lookup(ctx, in)
}
