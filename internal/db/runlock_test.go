package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/airquality.report/internal/timeutil"
)

func TestRunLock_MutualExclusion(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	clock := timeutil.NewMockClock(epoch)
	db.SetClock(clock)
	ctx := context.Background()

	ok, err := db.TryAcquireLock(ctx, "estimate", "run-a", 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.TryAcquireLock(ctx, "estimate", "run-b", 30*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "unexpired lease is held")

	ok, err = db.TryAcquireLock(ctx, "other", "run-b", 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "names are independent")

	owner, expires, err := db.LockHolder(ctx, "estimate")
	require.NoError(t, err)
	assert.Equal(t, "run-a", owner)
	assert.Equal(t, epoch.Add(30*time.Minute), expires)
}

func TestRunLock_ExpiredLeaseIsTakenOver(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	clock := timeutil.NewMockClock(epoch)
	db.SetClock(clock)
	ctx := context.Background()

	ok, err := db.TryAcquireLock(ctx, "estimate", "run-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(time.Minute)
	ok, err = db.TryAcquireLock(ctx, "estimate", "run-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	owner, _, err := db.LockHolder(ctx, "estimate")
	require.NoError(t, err)
	assert.Equal(t, "run-b", owner)
}

func TestRunLock_Release(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	ok, err := db.TryAcquireLock(ctx, "estimate", "run-a", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.ReleaseLock(ctx, "estimate", "run-b"))
	owner, _, err := db.LockHolder(ctx, "estimate")
	require.NoError(t, err)
	assert.Equal(t, "run-a", owner, "only the owner releases")

	require.NoError(t, db.ReleaseLock(ctx, "estimate", "run-a"))
	_, _, err = db.LockHolder(ctx, "estimate")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err = db.TryAcquireLock(ctx, "estimate", "run-b", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}
