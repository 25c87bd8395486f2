// Package store persists parsed schedules into SQLite or a libsql server.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"github.com/Sternrassler/kpi-schedule-etl/pkg/etl"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/schedule"
)

//go:embed schema.sql
var Schema string

// BatchSize is the number of schedules written per transaction.
const BatchSize = 25

var (
	// ErrUnknownKind is returned for entity kinds without a table.
	ErrUnknownKind = errors.New("unknown entity kind")

	// ErrNotFound is returned by Get when no schedule has the id.
	ErrNotFound = errors.New("schedule not found")
)

// Store receives the records of one pipeline run.
type Store interface {
	BatchPut(ctx context.Context, kind etl.EntityKind, records []schedule.Schedule) error
}

// Config selects the database. With URL set a libsql server is used,
// otherwise File is opened with the embedded SQLite driver.
type Config struct {
	File      string
	URL       string
	AuthToken string
}

// Open opens the configured database.
func Open(cfg Config) (*sql.DB, error) {
	if cfg.URL != "" {
		values := url.Values{}
		if cfg.AuthToken != "" {
			values.Add("authToken", cfg.AuthToken)
		}
		dsn := cfg.URL
		if len(values) > 0 {
			dsn += "?" + values.Encode()
		}
		db, err := sql.Open("libsql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open libsql %s: %w", cfg.URL, err)
		}
		return db, nil
	}

	if cfg.File == "" {
		return nil, fmt.Errorf("a database file or url is required")
	}
	db, err := sql.Open("sqlite", cfg.File)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.File, err)
	}
	// single writer; WAL lets readers proceed during batch writes
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	return db, nil
}

// SQLStore writes schedules into per-kind tables.
type SQLStore struct {
	db     *sql.DB
	now    func() time.Time
	logger zerolog.Logger
}

var _ Store = (*SQLStore)(nil)

// New creates the schema if needed and returns a store on db.
func New(ctx context.Context, db *sql.DB, logger zerolog.Logger) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		storeErrors.WithLabelValues("migrate").Inc()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLStore{
		db:     db,
		now:    time.Now,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

// BatchPut upserts records in transactions of BatchSize. Batches written
// before a failing one stay committed.
func (s *SQLStore) BatchPut(ctx context.Context, kind etl.EntityKind, records []schedule.Schedule) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	now := s.now()
	for start := 0; start < len(records); start += BatchSize {
		end := min(start+BatchSize, len(records))

		entities := make([]ScheduleEntity, 0, end-start)
		for _, r := range records[start:end] {
			e, err := ToEntity(r, now)
			if err != nil {
				storeErrors.WithLabelValues("encode").Inc()
				return err
			}
			entities = append(entities, e)
		}

		if err := s.writeBatch(ctx, table, entities); err != nil {
			storeErrors.WithLabelValues("write").Inc()
			return fmt.Errorf("write %s batch %d-%d: %w", kind, start, end, err)
		}
		recordsWritten.WithLabelValues(string(kind)).Add(float64(len(entities)))
	}

	s.logger.Info().
		Str("kind", string(kind)).
		Int("records", len(records)).
		Msg("Schedules stored")
	return nil
}

func (s *SQLStore) writeBatch(ctx context.Context, table string, entities []ScheduleEntity) error {
	startTime := time.Now()
	defer func() {
		batchDuration.Observe(time.Since(startTime).Seconds())
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`insert into %s (id, name, pair_count, payload, updated_at)
values (?, ?, ?, ?, ?)
on conflict(id) do update set
    name = excluded.name,
    pair_count = excluded.pair_count,
    payload = excluded.payload,
    updated_at = excluded.updated_at`, table))
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entities {
		if _, err := stmt.ExecContext(ctx, e.ID, e.Name, e.PairCount, string(e.Payload), e.UpdatedAt.Unix()); err != nil {
			return fmt.Errorf("upsert %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// Get returns the stored entity for id.
func (s *SQLStore) Get(ctx context.Context, kind etl.EntityKind, id string) (ScheduleEntity, error) {
	table, err := tableFor(kind)
	if err != nil {
		return ScheduleEntity{}, err
	}

	var (
		e         = ScheduleEntity{ID: id, Kind: kind}
		payload   string
		updatedAt int64
	)
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`select name, pair_count, payload, updated_at from %s where id = ?`, table), id)
	if err := row.Scan(&e.Name, &e.PairCount, &payload, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ScheduleEntity{}, fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
		}
		storeErrors.WithLabelValues("read").Inc()
		return ScheduleEntity{}, fmt.Errorf("read %s %s: %w", kind, id, err)
	}
	e.Payload = []byte(payload)
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return e, nil
}

// Count returns the number of stored schedules of kind.
func (s *SQLStore) Count(ctx context.Context, kind etl.EntityKind) (int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "select count(*) from "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// Ping checks that the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
