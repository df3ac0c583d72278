// Package pgstore writes estimate records to Postgres as JSONB documents.
// It mirrors the sqlite estimate table for deployments that serve records
// from a shared database.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banshee-data/airquality.report/internal/estimate"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("postgres: estimate not found")

const schema = `
CREATE TABLE IF NOT EXISTS time_sliced_estimates (
	id             TEXT PRIMARY KEY,
	estimation_for TIMESTAMPTZ NOT NULL,
	model_version  TEXT NOT NULL,
	grid_rows      INTEGER NOT NULL,
	grid_cols      INTEGER NOT NULL,
	document       JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_time_sliced_estimates_for ON time_sliced_estimates (estimation_for);
`

// Store is an insert-only estimate sink.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn and creates the table if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}
	s := New(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the estimate table.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: failed to create schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Insert appends rec. An empty id is assigned a new UUID.
func (s *Store) Insert(ctx context.Context, rec *estimate.Record) error {
	tx, err := s.Stage(ctx, rec)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: failed to commit estimate %s: %w", rec.ID, err)
	}
	return nil
}

// Stage inserts rec in an open transaction. The returned pgx.Tx is the
// pending write.
func (s *Store) Stage(ctx context.Context, rec *estimate.Record) (estimate.Pending, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to encode estimate %s: %w", rec.ID, err)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to begin estimate %s: %w", rec.ID, err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO time_sliced_estimates (id, estimation_for, model_version, grid_rows, grid_cols, document)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)`,
		rec.ID, rec.EstimationFor, rec.ModelVersion, rec.Rows, rec.Cols, string(doc))
	if err != nil {
		tx.Rollback(ctx)
		return nil, fmt.Errorf("postgres: failed to save estimate %s: %w", rec.ID, err)
	}
	return tx, nil
}

// Latest returns the most recent record.
func (s *Store) Latest(ctx context.Context) (*estimate.Record, error) {
	var doc string
	err := s.pool.QueryRow(ctx, `
		SELECT document::text FROM time_sliced_estimates
		ORDER BY estimation_for DESC, created_at DESC
		LIMIT 1`).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query latest estimate: %w", err)
	}
	var rec estimate.Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("postgres: failed to decode estimate: %w", err)
	}
	return &rec, nil
}
