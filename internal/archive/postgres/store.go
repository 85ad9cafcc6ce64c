// Package postgres provides the Postgres-backed archive repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tphagent/marketing-engine/internal/analysis"
	"github.com/tphagent/marketing-engine/internal/archive"
)

// StoreConfig controls the Postgres connection pool backing the archive.
type StoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements archive.Repository on top of pgx.
type Store struct {
	pool dbPool
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertRunStart records when a run began processing. Re-dispatch of the
// same request keeps the earliest start time.
func (s *Store) UpsertRunStart(ctx context.Context, requestID, target string, startedAt time.Time) error {
	if requestID == "" {
		return fmt.Errorf("request id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO analysis_runs (request_id, target, started_at, status)
VALUES ($1, $2, $3, 'running')
ON CONFLICT (request_id) DO UPDATE
SET started_at = LEAST(analysis_runs.started_at, EXCLUDED.started_at)
`, requestID, target, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// CompleteRun marks the run finished. Completing an already finished run is
// a no-op so retried event deliveries stay idempotent.
func (s *Store) CompleteRun(ctx context.Context, requestID string, finishedAt time.Time, status archive.RunStatus, errMsg *string) error {
	if requestID == "" {
		return fmt.Errorf("request id is required")
	}
	_, err := s.pool.Exec(ctx, `
UPDATE analysis_runs
SET finished_at = $2, status = $3, error_message = $4
WHERE request_id = $1 AND finished_at IS NULL
`, requestID, finishedAt.UTC(), string(status), errMsg)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// SaveResult stores the synthesized result document as JSONB.
func (s *Store) SaveResult(ctx context.Context, requestID string, result analysis.Result, at time.Time) error {
	if requestID == "" {
		return fmt.Errorf("request id is required")
	}
	doc, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO analysis_results (request_id, result, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (request_id) DO UPDATE
SET result = EXCLUDED.result, created_at = EXCLUDED.created_at
`, requestID, doc, at.UTC())
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// GetRun loads a single run by request id.
func (s *Store) GetRun(ctx context.Context, requestID string) (archive.Run, error) {
	row := s.pool.QueryRow(ctx, `
SELECT request_id, target, started_at, finished_at, status, error_message
FROM analysis_runs
WHERE request_id = $1
`, requestID)

	var run archive.Run
	var status string
	if err := row.Scan(&run.RequestID, &run.Target, &run.StartedAt, &run.FinishedAt, &status, &run.ErrorMessage); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return archive.Run{}, archive.ErrNotFound
		}
		return archive.Run{}, fmt.Errorf("get run: %w", err)
	}
	run.Status = archive.RunStatus(status)
	return run, nil
}
