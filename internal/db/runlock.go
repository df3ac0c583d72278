package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TryAcquireLock takes the named lease for owner until ttl from now. It
// reports false, without error, when another owner holds an unexpired lease.
// An expired lease is taken over.
func (db *DB) TryAcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := db.clock.Now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO estimate_run_locks (name, owner, acquired_ms, expires_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			owner = excluded.owner,
			acquired_ms = excluded.acquired_ms,
			expires_ms = excluded.expires_ms
		WHERE estimate_run_locks.expires_ms <= ?`,
		name, owner, unixMillis(now), unixMillis(now.Add(ttl)), unixMillis(now))
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return n == 1, nil
}

// ReleaseLock drops the named lease if owner still holds it.
func (db *DB) ReleaseLock(ctx context.Context, name, owner string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM estimate_run_locks WHERE name = ? AND owner = ?`, name, owner); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// LockHolder returns the current owner of the named lease and its expiry.
func (db *DB) LockHolder(ctx context.Context, name string) (owner string, expires time.Time, err error) {
	var ms int64
	err = db.QueryRowContext(ctx, `SELECT owner, expires_ms FROM estimate_run_locks WHERE name = ?`, name).Scan(&owner, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, ErrNotFound
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return owner, time.UnixMilli(ms).UTC(), nil
}
