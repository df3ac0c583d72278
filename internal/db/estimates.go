package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/airquality.report/internal/estimate"
)

// InsertEstimate appends rec to time_sliced_estimates. Records are never
// updated: inserting an id twice fails. An empty id is assigned a new UUID.
func (db *DB) InsertEstimate(ctx context.Context, rec *estimate.Record) error {
	p, err := db.StageEstimate(ctx, rec)
	if err != nil {
		return err
	}
	if err := p.Commit(ctx); err != nil {
		return fmt.Errorf("commit estimate %s: %w", rec.ID, err)
	}
	return nil
}

// StageEstimate inserts rec inside a transaction and leaves it open. The
// row is invisible to other connections until Commit.
func (db *DB) StageEstimate(ctx context.Context, rec *estimate.Record) (estimate.Pending, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode estimate %s: %w", rec.ID, err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin estimate %s: %w", rec.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO time_sliced_estimates
			(id, estimation_for_unix, model_version, grid_rows, grid_cols, contour_count, document, created_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EstimationFor.Unix(), rec.ModelVersion, rec.Rows, rec.Cols, len(rec.Contours), string(doc),
		db.clock.Now().Unix())
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("insert estimate %s: %w", rec.ID, err)
	}
	return pendingTx{tx}, nil
}

// Stage implements the pipeline sink.
func (db *DB) Stage(ctx context.Context, rec *estimate.Record) (estimate.Pending, error) {
	return db.StageEstimate(ctx, rec)
}

type pendingTx struct{ tx *sql.Tx }

func (p pendingTx) Commit(context.Context) error   { return p.tx.Commit() }
func (p pendingTx) Rollback(context.Context) error { return p.tx.Rollback() }

// LatestEstimate returns the record with the most recent estimation time.
func (db *DB) LatestEstimate(ctx context.Context) (*estimate.Record, error) {
	row := db.QueryRowContext(ctx, `
		SELECT document FROM time_sliced_estimates
		ORDER BY estimation_for_unix DESC, rowid DESC
		LIMIT 1`)
	return scanRecord(row)
}

// GetEstimate returns the record with the given id.
func (db *DB) GetEstimate(ctx context.Context, id string) (*estimate.Record, error) {
	row := db.QueryRowContext(ctx, `SELECT document FROM time_sliced_estimates WHERE id = ?`, id)
	return scanRecord(row)
}

func scanRecord(row *sql.Row) (*estimate.Record, error) {
	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec estimate.Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("decode estimate document: %w", err)
	}
	return &rec, nil
}

// ListEstimates returns summaries of records estimated in [start, end),
// newest first. limit <= 0 means no limit.
func (db *DB) ListEstimates(ctx context.Context, start, end time.Time, limit int) ([]estimate.Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, estimation_for_unix, model_version, grid_rows, grid_cols, contour_count
		FROM time_sliced_estimates
		WHERE estimation_for_unix >= ? AND estimation_for_unix < ?
		ORDER BY estimation_for_unix DESC, rowid DESC
		LIMIT ?`,
		start.Unix(), end.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []estimate.Summary{}
	for rows.Next() {
		var (
			s  estimate.Summary
			at int64
		)
		if err := rows.Scan(&s.ID, &at, &s.ModelVersion, &s.Rows, &s.Cols, &s.Contours); err != nil {
			return nil, err
		}
		s.EstimationFor = time.Unix(at, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}
