// Package history persists a summary of every solve to PostgreSQL.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS tour_runs (
	id          UUID PRIMARY KEY,
	mode        TEXT NOT NULL,
	manifold    TEXT NOT NULL DEFAULT '',
	dimension   INTEGER NOT NULL,
	point_count INTEGER NOT NULL,
	status      TEXT NOT NULL,
	error_kind  TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS tour_runs_created_at_idx ON tour_runs (created_at DESC);
`

// Run summarizes one solve
type Run struct {
	ID         uuid.UUID `json:"id"`
	Mode       string    `json:"mode"`
	Manifold   string    `json:"manifold,omitempty"`
	Dimension  int       `json:"dimension"`
	PointCount int       `json:"point_count"`
	Status     string    `json:"status"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store reads and writes runs
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store over pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the runs table if it does not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tour_runs schema: %w", err)
	}
	return nil
}

// RecordRun inserts run
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tour_runs (id, mode, manifold, dimension, point_count, status, error_kind, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.Mode, run.Manifold, run.Dimension, run.PointCount, run.Status, run.ErrorKind, run.DurationMS, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// ListRecent returns up to limit runs, newest first
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, mode, manifold, dimension, point_count, status, error_kind, duration_ms, created_at
		FROM tour_runs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		var run Run
		err := rows.Scan(
			&run.ID,
			&run.Mode,
			&run.Manifold,
			&run.Dimension,
			&run.PointCount,
			&run.Status,
			&run.ErrorKind,
			&run.DurationMS,
			&run.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, &run)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}
