package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Stage names, used as metric and log labels.
const (
	StageNames     = "names"
	StageIDs       = "ids"
	StageSchedules = "schedules"
)

// Directory is the remote collaborator a pipeline resolves prefixes against.
type Directory[R any] interface {
	// Kind reports which entities this directory lists.
	Kind() EntityKind

	// ListNames returns the entity names matching prefix. An empty result is not an error.
	ListNames(ctx context.Context, prefix string) ([]string, error)

	// ResolveID returns the single schedule id for name, or a NotFound error.
	ResolveID(ctx context.Context, name string) (uuid.UUID, error)

	// FetchSchedule fetches and parses one schedule document.
	FetchSchedule(ctx context.Context, id uuid.UUID) (R, error)
}

// PipelineConfig holds pipeline configuration.
type PipelineConfig struct {
	// MaxConcurrency bounds in-flight remote calls in each of the three stages.
	MaxConcurrency int
}

// DefaultPipelineConfig returns a conservative configuration for the timetable site.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxConcurrency: 8,
	}
}

// Pipeline resolves prefixes into schedule records through three fan-out stages.
type Pipeline[R any] struct {
	dir    Directory[R]
	config PipelineConfig
	logger zerolog.Logger
}

// NewPipeline creates a pipeline over dir.
func NewPipeline[R any](dir Directory[R], config PipelineConfig, logger zerolog.Logger) (*Pipeline[R], error) {
	if dir == nil {
		return nil, fmt.Errorf("directory is required")
	}
	if config.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidConcurrency, config.MaxConcurrency)
	}

	return &Pipeline[R]{
		dir:    dir,
		config: config,
		logger: logger.With().Str("kind", string(dir.Kind())).Logger(),
	}, nil
}

// Kind reports the entity kind this pipeline harvests.
func (p *Pipeline[R]) Kind() EntityKind {
	return p.dir.Kind()
}

// Run resolves prefixes to names, names to ids and ids to records. Partial
// failures are only counted; an error is returned for malformed input alone.
func (p *Pipeline[R]) Run(ctx context.Context, prefixes []string) ([]R, StageSummary, error) {
	if prefixes == nil {
		return nil, StageSummary{}, ErrNilPrefixes
	}
	start := time.Now()
	kind := p.dir.Kind()

	// Stage 1: prefix -> names
	nameLists, namesSummary, err := FanOut(ctx, stageLabel(kind, StageNames), prefixes, p.dir.ListNames, FanOutOptions[string]{
		MaxConcurrency: p.config.MaxConcurrency,
		Logger:         p.logger,
	})
	if err != nil {
		return nil, StageSummary{}, err
	}
	names := flattenUnique(nameLists)

	p.logger.Debug().
		Int("prefixes", len(prefixes)).
		Int("names", len(names)).
		Msg("Resolved names")

	// Stage 2: name -> id
	resolve := func(ctx context.Context, name string) (uuid.UUID, error) {
		id, err := p.dir.ResolveID(ctx, name)
		if err != nil {
			return uuid.Nil, err
		}
		if id == uuid.Nil {
			return uuid.Nil, NotFound(kind, name)
		}
		return id, nil
	}
	ids, idsSummary, err := FanOut(ctx, stageLabel(kind, StageIDs), names, resolve, FanOutOptions[string]{
		MaxConcurrency: p.config.MaxConcurrency,
		Logger:         p.logger,
	})
	if err != nil {
		return nil, StageSummary{}, err
	}
	ids = uniqueIDs(ids)

	p.logger.Debug().
		Int("names", len(names)).
		Int("schedule_ids", len(ids)).
		Msg("Resolved schedule ids")

	// Stage 3: id -> record
	records, schedulesSummary, err := FanOut(ctx, stageLabel(kind, StageSchedules), ids, p.dir.FetchSchedule, FanOutOptions[uuid.UUID]{
		MaxConcurrency: p.config.MaxConcurrency,
		Key:            uuid.UUID.String,
		Logger:         p.logger,
	})
	if err != nil {
		return nil, StageSummary{}, err
	}

	summary := Fold(
		errorsOnly(namesSummary),
		errorsOnly(idsSummary),
		errorsOnly(schedulesSummary),
	)
	summary.Count = len(records)

	p.logger.Info().
		Int("schedules", summary.Count).
		Int("client_errors", summary.ClientErrors).
		Int("parser_errors", summary.ParserErrors).
		Int("unhandled_errors", summary.UnhandledErrors).
		Dur("duration", time.Since(start)).
		Msgf("Parsed a total of %d %s schedules", summary.Count, kind)

	return records, summary, nil
}

func stageLabel(kind EntityKind, stage string) string {
	return string(kind) + "_" + stage
}

func errorsOnly(s StageSummary) StageSummary {
	s.Count = 0
	return s
}

func flattenUnique(lists [][]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, name := range list {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// uniqueIDs drops duplicates and the sentinel id.
func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
